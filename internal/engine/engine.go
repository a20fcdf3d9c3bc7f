// Package engine runs a built graph forward.
//
// Layers execute strictly in index order. Every layer's output is kept in an
// arena slot for the rest of the pass because route and shortcut layers may
// read any earlier layer, not just the previous one. Detection layer outputs
// are decoded and concatenated along the box axis into one result tensor.
//
// A pass only reads the graph, so one Engine may serve concurrent Forward
// calls as long as no weights are being loaded at the same time.
package engine

import (
	"errors"
	"fmt"

	"github.com/born-ml/darknet/internal/detect"
	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/tensor"
)

// Engine executes a graph.
type Engine struct {
	graph     *graph.Graph
	transform detect.Transform
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransform replaces the detection decoder.
func WithTransform(t detect.Transform) Option {
	return func(e *Engine) {
		e.transform = t
	}
}

// New creates an engine for g using detect.Default unless overridden.
func New(g *graph.Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:     g,
		transform: detect.Default,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// arena holds one output per layer for the duration of a pass. Slots are
// written once, left to right.
type arena []*tensor.RawTensor

func (a arena) get(i int) *tensor.RawTensor {
	return a[i]
}

func (a arena) put(i int, t *tensor.RawTensor) {
	if a[i] != nil {
		panic(fmt.Sprintf("engine: layer %d output written twice", i))
	}
	a[i] = t
}

// Forward runs input [N, C, H, W] through the graph and returns the decoded
// detections [N, boxes, 5+classes].
//
// useAccelerator is passed through to the detection transform.
//
// Returns ErrNoDetections when no detection layer produced output, and an
// error wrapping ErrShapeMismatch when tensors cannot be combined.
func (e *Engine) Forward(input *tensor.RawTensor, useAccelerator bool) (*tensor.RawTensor, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}

	outputs := make(arena, len(e.graph.Layers))
	pass := &pass{engine: e, outputs: outputs, useAccelerator: useAccelerator}

	x := input
	for i := range e.graph.Layers {
		layer := &e.graph.Layers[i]

		next, err := pass.run(layer, x)
		if err != nil {
			return nil, err
		}
		x = next
		outputs.put(layer.Index, x)
	}

	if pass.detections == nil {
		return nil, ErrNoDetections
	}
	return pass.detections, nil
}

func (e *Engine) checkInput(input *tensor.RawTensor) error {
	shape := input.Shape()
	if len(shape) != 4 {
		return &ShapeError{Layer: -1, Shapes: []tensor.Shape{shape}, Detail: "input must be 4D [N,C,H,W]"}
	}
	if shape[1] != e.graph.Net.Channels {
		return &ShapeError{Layer: -1, Shapes: []tensor.Shape{shape},
			Detail: fmt.Sprintf("network expects %d input channels", e.graph.Net.Channels)}
	}
	return nil
}

// pass is the state of one Forward call.
type pass struct {
	engine         *Engine
	outputs        arena
	useAccelerator bool
	detections     *tensor.RawTensor
}

// run evaluates one layer. Backend kernels panic on shape errors; those are
// reported as ShapeError for the layer.
func (p *pass) run(layer *graph.Layer, x *tensor.RawTensor) (out *tensor.RawTensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &ShapeError{
				Layer:  layer.Index,
				Kind:   layer.Spec.Kind().String(),
				Shapes: []tensor.Shape{x.Shape()},
				Detail: fmt.Sprint(r),
			}
		}
	}()

	backend := p.engine.graph.Backend()

	switch spec := layer.Spec.(type) {
	case *graph.Convolutional, *graph.Upsample:
		return layer.Op.Forward(x), nil

	case *graph.Route:
		targets := spec.Targets(layer.Index)
		if len(targets) == 1 {
			return p.outputs.get(targets[0]), nil
		}
		a, b := p.outputs.get(targets[0]), p.outputs.get(targets[1])
		if !a.Shape().EqualExcept(b.Shape(), 1) {
			return nil, &ShapeError{Layer: layer.Index, Kind: spec.Kind().String(),
				Shapes: []tensor.Shape{a.Shape(), b.Shape()},
				Detail: fmt.Sprintf("cannot concatenate layers %d and %d along channels", targets[0], targets[1])}
		}
		return backend.Cat([]*tensor.RawTensor{a, b}, 1), nil

	case *graph.Shortcut:
		target := spec.Target(layer.Index)
		prev, from := p.outputs.get(layer.Index-1), p.outputs.get(target)
		if !prev.Shape().Equal(from.Shape()) {
			return nil, &ShapeError{Layer: layer.Index, Kind: spec.Kind().String(),
				Shapes: []tensor.Shape{prev.Shape(), from.Shape()},
				Detail: fmt.Sprintf("cannot add layer %d to layer %d", target, layer.Index-1)}
		}
		return backend.Add(prev, from), nil

	case *graph.Detection:
		if err := p.detect(layer, spec, x); err != nil {
			return nil, err
		}
		// The raw tensor flows on so channel bookkeeping stays valid past
		// a detection layer.
		return x, nil

	default:
		return nil, fmt.Errorf("layer %d: unhandled layer spec %T", layer.Index, spec)
	}
}

func (p *pass) detect(layer *graph.Layer, spec *graph.Detection, x *tensor.RawTensor) error {
	net := p.engine.graph.Net
	decoded, err := p.engine.transform.Transform(x, net.Height, spec.Anchors, spec.NumClasses, p.useAccelerator)
	if errors.Is(err, ErrNoDetections) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("layer %d [%s]: %w", layer.Index, spec.Kind(), err)
	}

	if p.detections == nil {
		p.detections = decoded
		return nil
	}
	if !p.detections.Shape().EqualExcept(decoded.Shape(), 1) {
		return &ShapeError{Layer: layer.Index, Kind: spec.Kind().String(),
			Shapes: []tensor.Shape{p.detections.Shape(), decoded.Shape()},
			Detail: "detections cannot be concatenated (class counts differ?)"}
	}
	p.detections = p.engine.graph.Backend().Cat([]*tensor.RawTensor{p.detections, decoded}, 1)
	return nil
}

// Forward is a convenience for New(g).Forward(input, useAccelerator).
func Forward(g *graph.Graph, input *tensor.RawTensor, useAccelerator bool) (*tensor.RawTensor, error) {
	return New(g).Forward(input, useAccelerator)
}
