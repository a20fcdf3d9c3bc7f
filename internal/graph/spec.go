package graph

import (
	"fmt"
	"strings"

	"github.com/born-ml/darknet/internal/nn"
)

// Kind identifies a layer type. Its String form is the configuration block
// name.
type Kind int

// Supported layer kinds.
const (
	KindConvolutional Kind = iota
	KindUpsample
	KindRoute
	KindShortcut
	KindDetection
)

var kindNames = [...]string{
	KindConvolutional: "convolutional",
	KindUpsample:      "upsample",
	KindRoute:         "route",
	KindShortcut:      "shortcut",
	KindDetection:     "yolo",
}

// String returns the configuration block name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a configuration block name to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// LayerSpec is the resolved description of one layer. It is a closed set:
// *Convolutional, *Upsample, *Route, *Shortcut and *Detection.
type LayerSpec interface {
	Kind() Kind
	layerSpec()
}

// Convolutional describes a convolution block.
type Convolutional struct {
	Filters    int
	KernelSize int
	Stride     int
	Padding    int // resolved pixel padding, not the pad flag
	HasNorm    bool
	Activation nn.Activation
}

// Upsample describes nearest-neighbor upsampling by Stride.
type Upsample struct {
	Stride int
}

// Route forwards one earlier output, or concatenates two along channels.
// Refs are relative offsets (always negative once built).
type Route struct {
	Refs []int
}

// Shortcut adds an earlier output to the previous layer's output.
// From is a relative offset (always negative once built).
type Shortcut struct {
	From int
}

// Anchor is a prior box shape in input-image pixels.
type Anchor struct {
	Width  int
	Height int
}

// Detection is a YOLO output layer.
type Detection struct {
	Mask       []int    // indices into the configured anchor list
	Anchors    []Anchor // anchors selected by Mask, in mask order
	NumClasses int
}

func (*Convolutional) Kind() Kind { return KindConvolutional }
func (*Upsample) Kind() Kind      { return KindUpsample }
func (*Route) Kind() Kind         { return KindRoute }
func (*Shortcut) Kind() Kind      { return KindShortcut }
func (*Detection) Kind() Kind     { return KindDetection }

func (*Convolutional) layerSpec() {}
func (*Upsample) layerSpec()      {}
func (*Route) layerSpec()         {}
func (*Shortcut) layerSpec()      {}
func (*Detection) layerSpec()     {}

// Targets returns the absolute indices the route reads, for a route at index.
func (r *Route) Targets(index int) []int {
	out := make([]int, len(r.Refs))
	for i, ref := range r.Refs {
		out[i] = index + ref
	}
	return out
}

// Target returns the absolute index added by a shortcut at index.
func (s *Shortcut) Target(index int) int {
	return index + s.From
}

func (c *Convolutional) String() string {
	return fmt.Sprintf("conv filters=%d size=%d stride=%d pad=%d bn=%v act=%s",
		c.Filters, c.KernelSize, c.Stride, c.Padding, c.HasNorm, c.Activation)
}

func (u *Upsample) String() string {
	return fmt.Sprintf("upsample stride=%d", u.Stride)
}

func (r *Route) String() string {
	parts := make([]string, len(r.Refs))
	for i, ref := range r.Refs {
		parts[i] = fmt.Sprint(ref)
	}
	return "route layers=" + strings.Join(parts, ",")
}

func (s *Shortcut) String() string {
	return fmt.Sprintf("shortcut from=%d", s.From)
}

func (d *Detection) String() string {
	return fmt.Sprintf("yolo anchors=%v classes=%d", d.Anchors, d.NumClasses)
}
