package weights

import (
	"errors"
	"fmt"
)

// Load errors.
var (
	// ErrTruncatedWeights is returned when the stream ends before every
	// parameter of the graph has been filled.
	ErrTruncatedWeights = errors.New("truncated weights")

	// ErrLayerMismatch is returned in strict mode when values are left over
	// after the last layer, which means the weights belong to another network.
	ErrLayerMismatch = errors.New("weights do not match network layers")
)

// LoadError locates a load failure in the weights file. Offsets and sizes are
// in bytes from the start of the file.
type LoadError struct {
	Layer  int    // layer index, -1 for the header or the trailing data
	Param  string // parameter name, e.g. "conv_0.batch_norm.running_var"
	Offset int64  // where the read started
	Need   int64  // bytes required
	Have   int64  // bytes available from Offset
	Err    error  // ErrTruncatedWeights or ErrLayerMismatch
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	switch {
	case e.Layer < 0 && e.Param == "":
		return fmt.Sprintf("%v: %d unread bytes at offset %d", e.Err, e.Have, e.Offset)
	case e.Layer < 0:
		return fmt.Sprintf("%s: %v: need %d bytes, have %d", e.Param, e.Err, e.Need, e.Have)
	default:
		return fmt.Sprintf("layer %d: %s at offset %d: %v: need %d bytes, have %d",
			e.Layer, e.Param, e.Offset, e.Err, e.Need, e.Have)
	}
}

// Unwrap returns the sentinel error.
func (e *LoadError) Unwrap() error {
	return e.Err
}
