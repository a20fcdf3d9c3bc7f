// Package detect decodes raw YOLO layer outputs into box predictions.
//
// A detection layer's input holds, for every grid cell and every anchor,
// 5+C raw values: tx, ty, tw, th, objectness and C class logits. Decode turns
// them into rows of
//
//	[center_x, center_y, width, height, objectness, class_0 ... class_C-1]
//
// in input-image pixels, one row per (cell, anchor), cells in row-major order
// and anchors in mask order within a cell.
package detect

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/tensor"
)

// ErrNoDetections is returned by a Transform that produced nothing for a
// layer. The engine skips such layers; a pass where every layer returns it
// fails with ErrNoDetections.
var ErrNoDetections = errors.New("no detections")

// ErrLayout is returned when the raw tensor does not hold anchors*(5+classes)
// channels.
var ErrLayout = errors.New("detection layout mismatch")

// Transform decodes one detection layer's raw output.
type Transform interface {
	Transform(raw *tensor.RawTensor, inputDim int, anchors []graph.Anchor, numClasses int, useAccelerator bool) (*tensor.RawTensor, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(raw *tensor.RawTensor, inputDim int, anchors []graph.Anchor, numClasses int, useAccelerator bool) (*tensor.RawTensor, error)

// Transform calls f.
func (f TransformFunc) Transform(raw *tensor.RawTensor, inputDim int, anchors []graph.Anchor, numClasses int, useAccelerator bool) (*tensor.RawTensor, error) {
	return f(raw, inputDim, anchors, numClasses, useAccelerator)
}

// Default is the CPU decoder.
var Default Transform = TransformFunc(Decode)

// Decode converts raw [B, A*(5+C), H, W] into [B, H*W*A, 5+C].
//
// Box centers are sigmoid(t)+cell offset scaled by stride = inputDim/H; sizes
// are exp(t)*anchor; objectness and class scores go through a sigmoid. The
// useAccelerator flag is accepted for interface compatibility; decoding always
// runs on the CPU.
func Decode(raw *tensor.RawTensor, inputDim int, anchors []graph.Anchor, numClasses int, _ bool) (*tensor.RawTensor, error) {
	shape := raw.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: expected 4D input [N,C,H,W], got %v", ErrLayout, shape)
	}
	numAnchors := len(anchors)
	attrs := 5 + numClasses
	B, C, H, W := shape[0], shape[1], shape[2], shape[3]
	if numAnchors == 0 {
		return nil, ErrNoDetections
	}
	if C != numAnchors*attrs {
		return nil, fmt.Errorf("%w: %d channels, want %d anchors * (5 + %d classes) = %d",
			ErrLayout, C, numAnchors, numClasses, numAnchors*attrs)
	}

	stride := float32(inputDim / H)
	cells := H * W
	rows := cells * numAnchors

	out, err := tensor.NewRaw(tensor.Shape{B, rows, attrs}, raw.Device())
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	src := raw.Data()
	dst := out.Data()

	for b := 0; b < B; b++ {
		in := src[b*C*cells : (b+1)*C*cells]
		res := dst[b*rows*attrs : (b+1)*rows*attrs]

		for cell := 0; cell < cells; cell++ {
			cx := float32(cell % W)
			cy := float32(cell / W)

			for a, anchor := range anchors {
				row := res[(cell*numAnchors+a)*attrs : (cell*numAnchors+a+1)*attrs]
				at := func(k int) float32 {
					return in[(a*attrs+k)*cells+cell]
				}

				row[0] = (sigmoid(at(0)) + cx) * stride
				row[1] = (sigmoid(at(1)) + cy) * stride
				row[2] = exp32(at(2)) * float32(anchor.Width)
				row[3] = exp32(at(3)) * float32(anchor.Height)
				for k := 4; k < attrs; k++ {
					row[k] = sigmoid(at(k))
				}
			}
		}
	}

	return out, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}
