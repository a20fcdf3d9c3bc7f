// Package darknet runs YOLOv3-style detection networks described by darknet
// .cfg files with pretrained .weights files.
//
// Example usage:
//
//	model, err := darknet.Load("yolov3.cfg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.LoadWeights("yolov3.weights"); err != nil {
//	    log.Fatal(err)
//	}
//
//	input, _ := darknet.NewTensor(pixels, model.InputShape())
//	detections, err := model.Forward(input, false)
//	switch {
//	case errors.Is(err, darknet.ErrNoDetections):
//	    // nothing found
//	case err != nil:
//	    log.Fatal(err)
//	}
//	// detections: [batch, boxes, 5+classes], rows of
//	// center_x, center_y, width, height, objectness, class scores...
//
// A Model may serve concurrent Forward calls. LoadWeights waits for running
// passes and blocks new ones until it returns.
package darknet

import (
	"fmt"
	"io"
	"sync"

	"github.com/born-ml/darknet/internal/backend/cpu"
	"github.com/born-ml/darknet/internal/cfg"
	"github.com/born-ml/darknet/internal/detect"
	"github.com/born-ml/darknet/internal/engine"
	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/parallel"
	"github.com/born-ml/darknet/internal/tensor"
	"github.com/born-ml/darknet/internal/weights"
)

// Tensor is a dense float32 tensor in NCHW layout.
type Tensor = tensor.RawTensor

// Shape is a tensor shape.
type Shape = tensor.Shape

// Block is one [kind] section of a cfg file.
type Block = cfg.Block

// Graph is a built network.
type Graph = graph.Graph

// Anchor is a prior box size in input pixels.
type Anchor = graph.Anchor

// Header is the header of a weights file.
type Header = weights.Header

// Transform decodes the raw output of one detection layer. Return
// ErrNoDetections to contribute nothing for that layer.
type Transform = detect.Transform

// TransformFunc adapts a function to Transform.
type TransformFunc = detect.TransformFunc

// NewTensor wraps data (not copied) as a tensor of the given shape.
func NewTensor(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape, tensor.CPU)
}

// ParseConfig reads cfg text into blocks.
func ParseConfig(r io.Reader) ([]*Block, error) {
	return cfg.Parse(r)
}

type options struct {
	workers   int
	transform Transform
	strict    bool
}

// Option configures a Model.
type Option func(*options)

// WithWorkers limits the CPU kernels to n goroutines. n <= 1 runs everything
// on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithTransform replaces the default YOLO box decoder.
func WithTransform(t Transform) Option {
	return func(o *options) {
		o.transform = t
	}
}

// WithStrictWeights makes LoadWeights reject files with data left after the
// last layer.
func WithStrictWeights() Option {
	return func(o *options) {
		o.strict = true
	}
}

// Model is a built network ready to run.
type Model struct {
	mu     sync.RWMutex
	graph  *graph.Graph
	engine *engine.Engine
	header weights.Header
	opts   options
}

// Load parses the cfg file at path and builds the network. Parameters start
// zeroed until LoadWeights is called.
func Load(path string, opts ...Option) (*Model, error) {
	blocks, err := cfg.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return New(blocks, opts...)
}

// New builds the network described by blocks; blocks[0] is the [net] block.
func New(blocks []*Block, opts ...Option) (*Model, error) {
	o := options{workers: -1}
	for _, opt := range opts {
		opt(&o)
	}

	par := parallel.DefaultConfig()
	if o.workers >= 0 {
		par.NumWorkers = o.workers
		par.Enabled = o.workers > 1
	}

	g, err := graph.Build(blocks, cpu.New(cpu.WithParallel(par)))
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}

	var engineOpts []engine.Option
	if o.transform != nil {
		engineOpts = append(engineOpts, engine.WithTransform(o.transform))
	}

	return &Model{
		graph:  g,
		engine: engine.New(g, engineOpts...),
		opts:   o,
	}, nil
}

// LoadWeights fills the parameters from the weights file at path.
func (m *Model) LoadWeights(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := weights.LoadFile(m.graph, path, m.weightOpts()...)
	if err != nil {
		return err
	}
	m.header = res.Header
	return nil
}

// ReadWeights fills the parameters from a weights stream.
func (m *Model) ReadWeights(r io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := weights.Load(m.graph, r, m.weightOpts()...)
	if err != nil {
		return err
	}
	m.header = res.Header
	return nil
}

func (m *Model) weightOpts() []weights.Option {
	if m.opts.strict {
		return []weights.Option{weights.WithStrict()}
	}
	return nil
}

// SaveWeights writes the current parameters to path in weights file format,
// keeping the header of the last loaded file.
func (m *Model) SaveWeights(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return weights.SaveFile(m.graph, m.header, path)
}

// Forward runs input [N, C, H, W] through the network and returns the
// detections of all detection layers, [N, boxes, 5+classes].
//
// useAccelerator is handed to the detection transform.
func (m *Model) Forward(input *Tensor, useAccelerator bool) (*Tensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine.Forward(input, useAccelerator)
}

// Graph returns the built network.
func (m *Model) Graph() *Graph {
	return m.graph
}

// InputShape returns [batch, channels, height, width] declared by the [net] block.
func (m *Model) InputShape() Shape {
	net := m.graph.Net
	return Shape{net.Batch, net.Channels, net.Height, net.Width}
}

// Header returns the header of the last loaded weights file.
func (m *Model) Header() Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.header
}

// Seen returns the number of training images recorded in the weights file.
func (m *Model) Seen() int64 {
	return m.Header().Seen
}

// Summary describes every layer with its channel counts.
func (m *Model) Summary() string {
	return m.graph.String()
}
