package nn

import (
	"fmt"

	"github.com/born-ml/darknet/internal/tensor"
)

// Activation selects the nonlinearity applied after a convolution.
type Activation int

// Supported activations.
const (
	Linear Activation = iota
	Leaky
)

// LeakySlope is the negative-side slope darknet uses for "leaky".
const LeakySlope = 0.1

// String returns the configuration name of the activation.
func (a Activation) String() string {
	switch a {
	case Linear:
		return "linear"
	case Leaky:
		return "leaky"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// ParseActivation maps a configuration name to an Activation.
func ParseActivation(name string) (Activation, error) {
	switch name {
	case "linear":
		return Linear, nil
	case "leaky":
		return Leaky, nil
	default:
		return Linear, fmt.Errorf("unsupported activation %q", name)
	}
}

// LeakyReLU is a leaky rectified linear unit.
//
// Applies the element-wise function: f(x) = x if x > 0 else slope*x
type LeakyReLU struct {
	slope   float32
	backend tensor.Backend
}

// NewLeakyReLU creates a LeakyReLU with the given negative slope.
func NewLeakyReLU(slope float32, backend tensor.Backend) *LeakyReLU {
	return &LeakyReLU{slope: slope, backend: backend}
}

// Forward applies the activation.
func (l *LeakyReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return l.backend.LeakyReLU(input, l.slope)
}

// Parameters returns nil (LeakyReLU has no parameters).
func (l *LeakyReLU) Parameters() []*Parameter {
	return nil
}
