// Package cpu implements the tensor kernels of a detection network on the CPU.
//
// Dense linear algebra goes through gonum's float32 BLAS; per-plane kernels
// (normalization, activation, upsampling) are split across cores with
// internal/parallel.
package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/darknet/internal/parallel"
	"github.com/born-ml/darknet/internal/tensor"
)

// CPUBackend implements tensor.Backend on CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the parallel execution config.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.par = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition. Shapes must be identical; darknet
// shortcut layers never broadcast.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("add: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}

	result := a.Clone()
	n := result.NumElements()
	// result += 1.0 * b
	blas32.Axpy(1,
		blas32.Vector{N: n, Inc: 1, Data: b.Data()},
		blas32.Vector{N: n, Inc: 1, Data: result.Data()},
	)
	return result
}

// AddChannelBias adds bias[c] to every element of channel c.
//
// x: [N, C, H, W], bias: [C].
func (cpu *CPUBackend) AddChannelBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("add_channel_bias: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	N, C, plane := shape[0], shape[1], shape[2]*shape[3]
	if bias.NumElements() != C {
		panic(fmt.Sprintf("add_channel_bias: bias has %d elements, input has %d channels", bias.NumElements(), C))
	}

	result := x.Clone()
	dst := result.Data()
	b := bias.Data()

	parallel.ForPlanes(N, C, func(n, c int) {
		row := dst[(n*C+c)*plane : (n*C+c+1)*plane]
		v := b[c]
		for i := range row {
			row[i] += v
		}
	}, cpu.par)

	return result
}
