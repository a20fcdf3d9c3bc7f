package tensor

// Backend defines the tensor kernels a detection network needs.
// Backends handle the actual computation; callers are responsible for passing
// shape-compatible operands and backends panic when they do not.
//
// Implementations:
//   - CPU: Pure Go with gonum BLAS (internal/backend/cpu)
type Backend interface {
	// Conv2D convolves [N, C_in, H, W] with kernel [C_out, C_in, K, K].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// AddChannelBias adds bias[c] to every element of channel c (bias shape [C]).
	AddChannelBias(x, bias *RawTensor) *RawTensor

	// BatchNorm2D applies inference-mode batch normalization per channel:
	// (x - mean) / sqrt(variance + eps) * scale + bias.
	BatchNorm2D(x, scale, bias, mean, variance *RawTensor, eps float32) *RawTensor

	// LeakyReLU applies f(x) = x if x > 0 else slope*x.
	LeakyReLU(x *RawTensor, slope float32) *RawTensor

	// Upsample2D repeats every spatial element scale times along H and W
	// (nearest neighbor).
	Upsample2D(x *RawTensor, scale int) *RawTensor

	// Add performs element-wise addition of two tensors of identical shape.
	Add(a, b *RawTensor) *RawTensor

	// Cat concatenates tensors along dim; all other dimensions must agree.
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
