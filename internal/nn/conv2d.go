package nn

import (
	"fmt"

	"github.com/born-ml/darknet/internal/tensor"
)

// Conv2D is a darknet convolutional block: a square convolution, then either
// batch normalization or a per-channel bias, then an activation.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels] (only without batch norm)
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// Example:
//
//	// 3 -> 16 channels, 3x3 kernel, stride 1, same padding, batch norm, leaky
//	conv := nn.NewConv2D("conv_0", 3, 16, 3, 1, 1, true, nn.Leaky, backend)
//	output := conv.Forward(input) // [1, 16, 416, 416] for a 416x416 input
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	activation  Activation

	weight    *Parameter   // [out_channels, in_channels, kernel, kernel]
	bias      *Parameter   // [out_channels] or nil when batchNorm is set
	batchNorm *BatchNorm2D // nil when the block has no normalization

	act     Module
	backend tensor.Backend
}

// NewConv2D creates a convolutional block with zero-filled parameters.
//
// Parameters:
//   - name: Prefix for parameter names (e.g., "conv_3")
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernelSize: Square kernel dimension
//   - stride: Stride for convolution
//   - padding: Zero padding on every side
//   - batchNorm: Normalize instead of adding a convolution bias
//   - activation: Linear or Leaky
//   - backend: Backend for computation
func NewConv2D(
	name string,
	inChannels, outChannels int,
	kernelSize, stride, padding int,
	batchNorm bool,
	activation Activation,
	backend tensor.Backend,
) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		activation:  activation,
		weight:      NewParameter(name+".weight", tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}),
		backend:     backend,
	}

	if batchNorm {
		c.batchNorm = NewBatchNorm2D(name+".batch_norm", outChannels, backend)
	} else {
		c.bias = NewParameter(name+".bias", tensor.Shape{outChannels})
	}

	if activation == Leaky {
		c.act = NewLeakyReLU(LeakySlope, backend)
	}

	return c
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	output := c.backend.Conv2D(input, c.weight.Tensor(), c.stride, c.padding)

	if c.batchNorm != nil {
		output = c.batchNorm.Forward(output)
	} else {
		output = c.backend.AddChannelBias(output, c.bias.Tensor())
	}

	if c.act != nil {
		output = c.act.Forward(output)
	}

	return output
}

// Parameters returns the parameters in weights-file order: the four batch
// norm vectors or the bias, then the convolution weight.
func (c *Conv2D) Parameters() []*Parameter {
	if c.batchNorm != nil {
		return append(c.batchNorm.Parameters(), c.weight)
	}
	return []*Parameter{c.bias, c.weight}
}

// String returns a string representation of the layer.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, batch_norm=%v, activation=%s)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding, c.batchNorm != nil, c.activation)
}

// Weight returns the convolution kernel.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// Bias returns the convolution bias, nil when the block has batch norm.
func (c *Conv2D) Bias() *Parameter { return c.bias }

// BatchNorm returns the normalization sub-layer, nil when absent.
func (c *Conv2D) BatchNorm() *BatchNorm2D { return c.batchNorm }

// HasBatchNorm reports whether the block normalizes its output.
func (c *Conv2D) HasBatchNorm() bool { return c.batchNorm != nil }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int { return c.inChannels }

// KernelSize returns the square kernel dimension.
func (c *Conv2D) KernelSize() int { return c.kernelSize }

// Stride returns the stride.
func (c *Conv2D) Stride() int { return c.stride }

// Padding returns the padding.
func (c *Conv2D) Padding() int { return c.padding }

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (c *Conv2D) ComputeOutputSize(inputH, inputW int) [2]int {
	outH := (inputH+2*c.padding-c.kernelSize)/c.stride + 1
	outW := (inputW+2*c.padding-c.kernelSize)/c.stride + 1
	return [2]int{outH, outW}
}
