package nn

import (
	"github.com/born-ml/darknet/internal/tensor"
)

// Parameter is a named, pretrained parameter tensor of a layer.
//
// Parameters are allocated zero-filled when the graph is built and filled in
// place by the weight loader.
//
// Example:
//
//	weight := nn.NewParameter("conv_0.weight", tensor.Shape{32, 3, 3, 3})
//	copy(weight.Tensor().Data(), values)
type Parameter struct {
	name   string // e.g. "conv_0.weight"
	tensor *tensor.RawTensor
}

// NewParameter allocates a zero-filled parameter of the given shape.
func NewParameter(name string, shape tensor.Shape) *Parameter {
	return &Parameter{
		name:   name,
		tensor: tensor.MustNew(shape, tensor.CPU),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Shape returns the parameter's native shape.
func (p *Parameter) Shape() tensor.Shape {
	return p.tensor.Shape()
}

// NumElements returns the number of scalar values the parameter holds.
func (p *Parameter) NumElements() int {
	return p.tensor.NumElements()
}
