package cpu

import (
	"fmt"

	"github.com/born-ml/darknet/internal/tensor"
)

// Cat concatenates tensors along the specified dimension.
//
// All tensors must have the same shape except along the concatenation dimension.
// Supports negative dim indexing (-1 = last dimension). Earlier tensors occupy
// the lower indices of dim.
//
// Example:
//
//	a := tensor.MustNew(tensor.Shape{1, 16, 13, 13}, tensor.CPU)
//	b := tensor.MustNew(tensor.Shape{1, 32, 13, 13}, tensor.CPU)
//	c := backend.Cat([]*tensor.RawTensor{a, b}, 1) // Shape: [1, 48, 13, 13]
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)

	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dimension %d out of range for %dD tensor", dim, ndim))
	}

	totalDim := 0
	for i, t := range tensors {
		if !t.Shape().EqualExcept(shape, dim) {
			panic(fmt.Sprintf("cat: tensor %d has shape %v, incompatible with %v along dim %d", i, t.Shape(), shape, dim))
		}
		totalDim += t.Shape()[dim]
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim

	result, err := tensor.NewRaw(outShape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	// Every tensor is a sequence of `outer` contiguous blocks of size[dim]*inner
	// elements; interleave those blocks into the output.
	outer, _, inner := outShape.Split(dim)
	outBlock := totalDim * inner
	dst := result.Data()

	offset := 0
	for _, t := range tensors {
		block := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*outBlock+offset:o*outBlock+offset+block], src[o*block:(o+1)*block])
		}
		offset += block
	}

	return result
}
