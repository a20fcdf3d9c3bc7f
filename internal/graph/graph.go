// Package graph turns parsed configuration blocks into an executable layer
// graph.
//
// Building resolves every route and shortcut reference to a relative offset
// that points strictly backward and records each layer's output channel
// count, so the input channels of every convolution are known before any
// tensor exists.
package graph

import (
	"fmt"
	"strings"

	"github.com/born-ml/darknet/internal/cfg"
	"github.com/born-ml/darknet/internal/nn"
	"github.com/born-ml/darknet/internal/tensor"
)

// DefaultInputChannels is the channel depth assumed when the network block
// does not declare one.
const DefaultInputChannels = 3

// NetInfo holds the network block's metadata.
type NetInfo struct {
	Height   int // input spatial dimension used to decode detections
	Width    int
	Channels int
	Batch    int
	Block    *cfg.Block
}

// Layer is one built layer.
type Layer struct {
	Index       int
	Spec        LayerSpec
	InChannels  int
	OutChannels int
	Op          nn.Module // nil for route, shortcut and detection layers
}

// Graph is the ordered, index-addressed sequence of layers.
//
// The graph is immutable after Build; only the parameter tensors reachable
// through Op are written, by the weight loader.
type Graph struct {
	Net     NetInfo
	Layers  []Layer
	backend tensor.Backend
}

// Backend returns the backend the layer ops were built for.
func (g *Graph) Backend() tensor.Backend {
	return g.backend
}

// Len returns the number of layers.
func (g *Graph) Len() int {
	return len(g.Layers)
}

// OutputFilters returns the output channel count of every layer, index-aligned
// with Layers.
func (g *Graph) OutputFilters() []int {
	out := make([]int, len(g.Layers))
	for i, l := range g.Layers {
		out[i] = l.OutChannels
	}
	return out
}

// NumParameters returns the total number of scalar parameters, which is also
// the number of floats a matching weights file carries after its header.
func (g *Graph) NumParameters() int {
	n := 0
	for _, l := range g.Layers {
		if l.Op == nil {
			continue
		}
		for _, p := range l.Op.Parameters() {
			n += p.NumElements()
		}
	}
	return n
}

// String renders a one-line-per-layer summary.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "net %dx%dx%d batch=%d\n", g.Net.Width, g.Net.Height, g.Net.Channels, g.Net.Batch)
	fmt.Fprintf(&sb, "%5s  %-52s %6s %6s\n", "layer", "spec", "in", "out")
	for _, l := range g.Layers {
		fmt.Fprintf(&sb, "%5d  %-52s %6d %6d\n", l.Index, l.Spec, l.InChannels, l.OutChannels)
	}
	fmt.Fprintf(&sb, "parameters: %d\n", g.NumParameters())
	return sb.String()
}

// Build constructs the graph for blocks. blocks[0] must be the network block.
func Build(blocks []*cfg.Block, backend tensor.Backend) (*Graph, error) {
	if len(blocks) == 0 {
		return nil, &BuildError{Layer: -1, Err: cfg.ErrMalformedConfig, Detail: "no blocks"}
	}

	net, err := parseNet(blocks[0])
	if err != nil {
		return nil, err
	}

	b := &builder{
		backend:     backend,
		prevFilters: net.Channels,
	}
	g := &Graph{
		Net:     net,
		Layers:  make([]Layer, 0, len(blocks)-1),
		backend: backend,
	}

	for index, block := range blocks[1:] {
		layer, err := b.build(index, block)
		if err != nil {
			return nil, err
		}
		g.Layers = append(g.Layers, layer)

		// Order matters: the next block reads prevFilters as its input depth.
		b.prevFilters = layer.OutChannels
		b.outputFilters = append(b.outputFilters, layer.OutChannels)
	}

	return g, nil
}

func parseNet(block *cfg.Block) (NetInfo, error) {
	fail := func(err error) (NetInfo, error) {
		return NetInfo{}, &BuildError{Layer: -1, Kind: block.Kind, Err: err}
	}

	height, err := block.Int("height")
	if err != nil {
		return fail(err)
	}
	width, err := block.IntDefault("width", height)
	if err != nil {
		return fail(err)
	}
	channels, err := block.IntDefault("channels", DefaultInputChannels)
	if err != nil {
		return fail(err)
	}
	batch, err := block.IntDefault("batch", 1)
	if err != nil {
		return fail(err)
	}
	if height <= 0 || width <= 0 || channels <= 0 || batch <= 0 {
		return NetInfo{}, &BuildError{Layer: -1, Kind: block.Kind, Err: cfg.ErrMalformedConfig,
			Detail: fmt.Sprintf("non-positive input geometry %dx%dx%d batch=%d", width, height, channels, batch)}
	}

	return NetInfo{
		Height:   height,
		Width:    width,
		Channels: channels,
		Batch:    batch,
		Block:    block,
	}, nil
}

type builder struct {
	backend       tensor.Backend
	prevFilters   int
	outputFilters []int
}

func (b *builder) build(index int, block *cfg.Block) (Layer, error) {
	kind, ok := ParseKind(block.Kind)
	if !ok {
		return Layer{}, &BuildError{Layer: index, Kind: block.Kind, Err: ErrUnknownLayerKind}
	}

	layer := Layer{Index: index, InChannels: b.prevFilters}
	var err error

	switch kind {
	case KindConvolutional:
		err = b.convolutional(&layer, block)
	case KindUpsample:
		err = b.upsample(&layer, block)
	case KindRoute:
		err = b.route(&layer, block)
	case KindShortcut:
		err = b.shortcut(&layer, block)
	case KindDetection:
		err = b.detection(&layer, block)
	}
	if err != nil {
		return Layer{}, &BuildError{Layer: index, Kind: block.Kind, Err: err}
	}
	return layer, nil
}

func (b *builder) convolutional(layer *Layer, block *cfg.Block) error {
	filters, err := block.Int("filters")
	if err != nil {
		return err
	}
	size, err := block.Int("size")
	if err != nil {
		return err
	}
	stride, err := block.IntDefault("stride", 1)
	if err != nil {
		return err
	}
	pad, err := block.IntDefault("pad", 0)
	if err != nil {
		return err
	}
	bn, err := block.IntDefault("batch_normalize", 0)
	if err != nil {
		return err
	}
	activation := nn.Linear
	if name, ok := block.Lookup("activation"); ok {
		if activation, err = nn.ParseActivation(name); err != nil {
			return fmt.Errorf("%w: %w", cfg.ErrMalformedConfig, err)
		}
	}
	if filters <= 0 || size <= 0 || stride <= 0 {
		return fmt.Errorf("%w: filters=%d size=%d stride=%d must be positive",
			cfg.ErrMalformedConfig, filters, size, stride)
	}

	padding := 0
	if pad != 0 {
		padding = (size - 1) / 2
	}

	spec := &Convolutional{
		Filters:    filters,
		KernelSize: size,
		Stride:     stride,
		Padding:    padding,
		HasNorm:    bn != 0,
		Activation: activation,
	}
	layer.Spec = spec
	layer.OutChannels = filters
	layer.Op = nn.NewConv2D(fmt.Sprintf("conv_%d", layer.Index),
		b.prevFilters, filters, size, stride, padding, spec.HasNorm, activation, b.backend)
	return nil
}

func (b *builder) upsample(layer *Layer, block *cfg.Block) error {
	stride, err := block.IntDefault("stride", 2)
	if err != nil {
		return err
	}
	if stride <= 0 {
		return fmt.Errorf("%w: stride=%d must be positive", cfg.ErrMalformedConfig, stride)
	}

	layer.Spec = &Upsample{Stride: stride}
	layer.OutChannels = b.prevFilters
	layer.Op = nn.NewUpsample(stride, b.backend)
	return nil
}

func (b *builder) route(layer *Layer, block *cfg.Block) error {
	refs, err := block.Ints("layers")
	if err != nil {
		return err
	}
	if len(refs) < 1 || len(refs) > 2 {
		return fmt.Errorf("%w: route takes 1 or 2 layers, got %d", cfg.ErrMalformedConfig, len(refs))
	}

	rel := make([]int, len(refs))
	channels := 0
	for i, ref := range refs {
		if rel[i], err = b.resolve(layer.Index, ref); err != nil {
			return err
		}
		channels += b.outputFilters[layer.Index+rel[i]]
	}

	layer.Spec = &Route{Refs: rel}
	layer.OutChannels = channels
	return nil
}

func (b *builder) shortcut(layer *Layer, block *cfg.Block) error {
	from, err := block.Int("from")
	if err != nil {
		return err
	}
	rel, err := b.resolve(layer.Index, from)
	if err != nil {
		return err
	}

	layer.Spec = &Shortcut{From: rel}
	layer.OutChannels = b.prevFilters
	return nil
}

func (b *builder) detection(layer *Layer, block *cfg.Block) error {
	mask, err := block.Ints("mask")
	if err != nil {
		return err
	}
	values, err := block.Ints("anchors")
	if err != nil {
		return err
	}
	classes, err := block.Int("classes")
	if err != nil {
		return err
	}
	if len(values)%2 != 0 {
		return fmt.Errorf("%w: anchors must be width,height pairs, got %d values", cfg.ErrMalformedConfig, len(values))
	}
	if classes <= 0 {
		return fmt.Errorf("%w: classes=%d must be positive", cfg.ErrMalformedConfig, classes)
	}

	all := make([]Anchor, 0, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		all = append(all, Anchor{Width: values[i], Height: values[i+1]})
	}
	anchors := make([]Anchor, 0, len(mask))
	for _, m := range mask {
		if m < 0 || m >= len(all) {
			return fmt.Errorf("%w: mask index %d outside %d anchors", cfg.ErrMalformedConfig, m, len(all))
		}
		anchors = append(anchors, all[m])
	}

	layer.Spec = &Detection{Mask: mask, Anchors: anchors, NumClasses: classes}
	// Detection terminates the channel chain; carry the input depth forward.
	layer.OutChannels = b.prevFilters
	return nil
}

// resolve normalizes a configured reference to a relative offset. Non-negative
// values are absolute layer indices, negative values are already relative.
// The target must lie in [0, index).
func (b *builder) resolve(index, ref int) (int, error) {
	rel := ref
	if ref >= 0 {
		rel = ref - index
	}
	target := index + rel
	if target < 0 || target >= index {
		return 0, fmt.Errorf("%w: reference %d resolves to layer %d, want [0, %d)", ErrBadReference, ref, target, index)
	}
	return rel, nil
}
