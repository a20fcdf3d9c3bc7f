package engine

import (
	"errors"
	"fmt"

	"github.com/born-ml/darknet/internal/detect"
	"github.com/born-ml/darknet/internal/tensor"
)

// Forward errors.
var (
	// ErrShapeMismatch is returned when a layer combines or consumes tensors
	// of incompatible shapes. Shapes are not known at build time, so this is
	// only detected while running.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNoDetections is returned when a pass finishes without any detection
	// layer producing output. It is the same value as detect.ErrNoDetections.
	ErrNoDetections = detect.ErrNoDetections
)

// ShapeError locates a shape failure.
type ShapeError struct {
	Layer  int    // layer index, -1 for the network input
	Kind   string // layer kind
	Shapes []tensor.Shape
	Detail string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	where := fmt.Sprintf("layer %d [%s]", e.Layer, e.Kind)
	if e.Layer < 0 {
		where = "input"
	}
	if len(e.Shapes) == 0 {
		return fmt.Sprintf("%s: %v: %s", where, ErrShapeMismatch, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %v: %s", where, ErrShapeMismatch, e.Shapes, e.Detail)
}

// Unwrap makes errors.Is(err, ErrShapeMismatch) hold.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
