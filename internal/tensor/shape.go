package tensor

import (
	"fmt"
	"slices"
)

// Shape lists tensor dimensions, outermost first. Activations are always
// [batch, channels, height, width].
type Shape []int

// NumElements returns the product of the dimensions; 1 for a scalar.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate rejects shapes with a zero or negative dimension.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("invalid shape %v: dimension %d is %d", []int(s), i, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// EqualExcept reports whether two shapes have the same rank and agree on
// every dimension other than dim. Used to validate concatenation.
func (s Shape) EqualExcept(other Shape, dim int) bool {
	if len(s) != len(other) || dim < 0 || dim >= len(s) {
		return false
	}
	for i := range s {
		if i != dim && s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// ComputeStrides returns contiguous row-major strides in elements.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// Split returns the product of the dimensions before dim (outer), the size of
// dim itself and the product of the dimensions after it (inner).
//
// For an NCHW tensor and dim=1 this is (N, C, H*W).
func (s Shape) Split(dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= s[i]
	}
	for i := dim + 1; i < len(s); i++ {
		inner *= s[i]
	}
	return outer, s[dim], inner
}
