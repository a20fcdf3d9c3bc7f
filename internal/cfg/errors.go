package cfg

import (
	"errors"
	"fmt"
)

// ErrMalformedConfig is returned for configuration text that cannot be parsed
// or holds a field value of the wrong form.
var ErrMalformedConfig = errors.New("malformed config")

// SyntaxError locates a parse failure.
type SyntaxError struct {
	Line   int    // 1-based line number
	Block  int    // index of the block being read, -1 before the first header
	Text   string // offending line, trimmed
	Reason string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s: line %d: %s", ErrMalformedConfig, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: line %d (block %d): %s: %q", ErrMalformedConfig, e.Line, e.Block, e.Reason, e.Text)
}

// Unwrap makes errors.Is(err, ErrMalformedConfig) hold.
func (e *SyntaxError) Unwrap() error {
	return ErrMalformedConfig
}
