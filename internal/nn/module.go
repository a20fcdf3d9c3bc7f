// Package nn implements the executable layer ops of a darknet network.
//
// Only layers that transform a single tensor with their own parameters or
// kernels live here (convolution blocks and upsampling). Route, shortcut and
// detection layers read earlier outputs and are dispatched by the engine.
package nn

import (
	"github.com/born-ml/darknet/internal/tensor"
)

// Module is the op handle attached to a graph layer.
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns the module's parameters in weight-file order.
	// Returns an empty slice for modules without parameters.
	Parameters() []*Parameter
}
