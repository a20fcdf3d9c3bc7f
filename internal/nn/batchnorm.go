package nn

import (
	"fmt"

	"github.com/born-ml/darknet/internal/tensor"
)

// BatchNormEpsilon is added to the running variance before the square root.
const BatchNormEpsilon = 1e-5

// BatchNorm2D is inference-mode batch normalization over the channel axis.
//
//	y = (x - running_mean) / sqrt(running_var + eps) * scale + bias
//
// All four parameters have shape [num_features]. Scale starts at one and
// running variance at one so a freshly built layer is the identity.
type BatchNorm2D struct {
	numFeatures int

	bias     *Parameter
	scale    *Parameter
	mean     *Parameter
	variance *Parameter

	backend tensor.Backend
}

// NewBatchNorm2D creates a batch normalization layer for numFeatures channels.
func NewBatchNorm2D(name string, numFeatures int, backend tensor.Backend) *BatchNorm2D {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}

	bn := &BatchNorm2D{
		numFeatures: numFeatures,
		bias:        NewParameter(name+".bias", shape),
		scale:       NewParameter(name+".weight", shape),
		mean:        NewParameter(name+".running_mean", shape),
		variance:    NewParameter(name+".running_var", shape),
		backend:     backend,
	}
	bn.scale.Tensor().Fill(1)
	bn.variance.Tensor().Fill(1)
	return bn
}

// Forward normalizes input [N, C, H, W].
func (bn *BatchNorm2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return bn.backend.BatchNorm2D(input,
		bn.scale.Tensor(), bn.bias.Tensor(), bn.mean.Tensor(), bn.variance.Tensor(),
		BatchNormEpsilon)
}

// Parameters returns bias, scale, running mean and running variance, the
// order they are stored in a weights file.
func (bn *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{bn.bias, bn.scale, bn.mean, bn.variance}
}

// NumFeatures returns the number of normalized channels.
func (bn *BatchNorm2D) NumFeatures() int { return bn.numFeatures }

// Bias returns the shift parameter (beta).
func (bn *BatchNorm2D) Bias() *Parameter { return bn.bias }

// Scale returns the scale parameter (gamma).
func (bn *BatchNorm2D) Scale() *Parameter { return bn.scale }

// RunningMean returns the running mean.
func (bn *BatchNorm2D) RunningMean() *Parameter { return bn.mean }

// RunningVar returns the running variance.
func (bn *BatchNorm2D) RunningVar() *Parameter { return bn.variance }
