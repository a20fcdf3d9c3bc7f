// Package tensor provides the float32 tensor type shared by the graph, the
// forward engine and the weight loader.
package tensor

import (
	"fmt"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	Accelerator
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case Accelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// RawTensor is a dense row-major float32 tensor.
//
// Image tensors use NCHW layout: [batch, channels, height, width].
type RawTensor struct {
	data   []float32
	shape  Shape
	stride []int
	device Device
}

// NewRaw creates a new zero-filled RawTensor with the given shape.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		device: device,
	}, nil
}

// FromSlice wraps data in a RawTensor of the given shape without copying.
func FromSlice(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}

	return &RawTensor{
		data:   data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		device: device,
	}, nil
}

// MustNew is NewRaw that panics on an invalid shape.
func MustNew(shape Shape, device Device) *RawTensor {
	t, err := NewRaw(shape, device)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * 4
}

// Data returns the underlying float32 slice.
// WARNING: Direct access to underlying memory. Writes are visible to every
// view sharing it.
func (r *RawTensor) Data() []float32 {
	return r.data
}

// Clone returns a deep copy with its own buffer.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		device: r.device,
	}
}

// View returns a tensor sharing this tensor's buffer under a new shape.
// The element count must not change.
func (r *RawTensor) View(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("view: incompatible shapes: %v -> %v (different number of elements)",
			r.shape, shape)
	}
	return FromSlice(r.data, shape, r.device)
}

// Fill sets every element to v.
func (r *RawTensor) Fill(v float32) {
	for i := range r.data {
		r.data[i] = v
	}
}

// CopyFrom copies src into the tensor's buffer. Lengths must match exactly.
func (r *RawTensor) CopyFrom(src []float32) error {
	if len(src) != len(r.data) {
		return fmt.Errorf("copy: source has %d elements, tensor %v has %d", len(src), r.shape, len(r.data))
	}
	copy(r.data, src)
	return nil
}

// String returns a short description (shape and device), not the contents.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v, device=%s)", r.shape, r.device)
}
