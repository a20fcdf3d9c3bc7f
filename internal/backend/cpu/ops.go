package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/darknet/internal/parallel"
	"github.com/born-ml/darknet/internal/tensor"
)

// Upsample2D performs nearest-neighbor upsampling by an integer factor.
//
// Input: [N, C, H, W] -> Output: [N, C, H*scale, W*scale]
// out[n, c, h, w] = in[n, c, h/scale, w/scale].
func (cpu *CPUBackend) Upsample2D(x *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("upsample2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	if scale <= 0 {
		panic(fmt.Sprintf("upsample2d: invalid scale %d", scale))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	HOut, WOut := H*scale, W*scale

	result, err := tensor.NewRaw(tensor.Shape{N, C, HOut, WOut}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("upsample2d: %v", err))
	}

	src := x.Data()
	dst := result.Data()

	parallel.ForPlanes(N, C, func(n, c int) {
		in := src[(n*C+c)*H*W : (n*C+c+1)*H*W]
		out := dst[(n*C+c)*HOut*WOut : (n*C+c+1)*HOut*WOut]
		for h := 0; h < HOut; h++ {
			srcRow := in[(h/scale)*W : (h/scale+1)*W]
			dstRow := out[h*WOut : (h+1)*WOut]
			for w := range dstRow {
				dstRow[w] = srcRow[w/scale]
			}
		}
	}, cpu.par)

	return result
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
