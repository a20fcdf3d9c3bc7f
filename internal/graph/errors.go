package graph

import (
	"errors"
	"fmt"
)

// Build errors.
var (
	ErrUnknownLayerKind = errors.New("unknown layer kind")
	ErrBadReference     = errors.New("bad layer reference")
)

// BuildError locates a failure to turn a configuration block into a layer.
type BuildError struct {
	Layer  int    // layer index, -1 for the network block
	Kind   string // block kind as written in the configuration
	Err    error  // ErrUnknownLayerKind, ErrBadReference or cfg.ErrMalformedConfig
	Detail string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	where := fmt.Sprintf("layer %d [%s]", e.Layer, e.Kind)
	if e.Layer < 0 {
		where = fmt.Sprintf("network block [%s]", e.Kind)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", where, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", where, e.Err, e.Detail)
}

// Unwrap returns the underlying sentinel.
func (e *BuildError) Unwrap() error {
	return e.Err
}
