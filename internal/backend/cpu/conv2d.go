package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/darknet/internal/parallel"
	"github.com/born-ml/darknet/internal/tensor"
)

// Conv2D performs 2D convolution using im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm: Im2col
//  1. Transform each image's input patches into rows (im2col)
//  2. Treat the kernel as a [C_out, C_in*K_h*K_w] matrix
//  3. GEMM: kernel @ cols^T -> [C_out, H_out*W_out], written straight into
//     the image's NCHW output slice
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}

	N := inputShape[0]     // batch size
	CIn := inputShape[1]   // input channels
	H := inputShape[2]     // input height
	W := inputShape[3]     // input width
	COut := kernelShape[0] // output channels
	CInK := kernelShape[1] // kernel input channels (must match CIn)
	KH := kernelShape[2]   // kernel height
	KW := kernelShape[3]   // kernel width

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1

	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, COut, HOut, WOut}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	colWidth := CIn * KH * KW
	colHeight := HOut * WOut
	colBuf := make([]float32, colHeight*colWidth)

	inputData := input.Data()
	outputData := output.Data()
	kernelMat := blas32.General{Rows: COut, Cols: colWidth, Stride: colWidth, Data: kernel.Data()}

	for n := 0; n < N; n++ {
		image := inputData[n*CIn*H*W : (n+1)*CIn*H*W]
		cpu.im2col(colBuf, image, CIn, H, W, KH, KW, HOut, WOut, stride, padding)

		cols := blas32.General{Rows: colHeight, Cols: colWidth, Stride: colWidth, Data: colBuf}
		out := blas32.General{
			Rows:   COut,
			Cols:   colHeight,
			Stride: colHeight,
			Data:   outputData[n*COut*colHeight : (n+1)*COut*colHeight],
		}
		blas32.Gemm(blas.NoTrans, blas.Trans, 1, kernelMat, cols, 0, out)
	}

	return output
}

// im2col transforms one image [C, H, W] into a column matrix.
//
// Output: colBuf [H_out * W_out, C * K_h * K_w]
//
// Each row of colBuf corresponds to one output position; out-of-bounds taps
// read as zero (padding).
func (cpu *CPUBackend) im2col(colBuf, image []float32, C, H, W, KH, KW, HOut, WOut, stride, padding int) {
	colWidth := C * KH * KW

	parallel.ForRange(HOut, func(startH, endH int) {
		for outH := startH; outH < endH; outH++ {
			for outW := 0; outW < WOut; outW++ {
				hStart := outH*stride - padding
				wStart := outW*stride - padding
				bufIdx := (outH*WOut + outW) * colWidth

				for c := 0; c < C; c++ {
					for kh := 0; kh < KH; kh++ {
						h := hStart + kh
						for kw := 0; kw < KW; kw++ {
							w := wStart + kw
							if h >= 0 && h < H && w >= 0 && w < W {
								colBuf[bufIdx] = image[c*H*W+h*W+w]
							} else {
								colBuf[bufIdx] = 0
							}
							bufIdx++
						}
					}
				}
			}
		}
	}, cpu.par)
}
