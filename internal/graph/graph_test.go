package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/darknet/internal/backend/cpu"
	"github.com/born-ml/darknet/internal/cfg"
	"github.com/born-ml/darknet/internal/nn"
)

func build(t *testing.T, text string) (*Graph, error) {
	t.Helper()
	blocks, err := cfg.ParseString(text)
	require.NoError(t, err)
	return Build(blocks, cpu.New())
}

func mustBuild(t *testing.T, text string) *Graph {
	t.Helper()
	g, err := build(t, text)
	require.NoError(t, err)
	return g
}

const netBlock = "[net]\nheight=32\nwidth=32\nchannels=3\n"

func conv(filters, size, stride int, bn bool) string {
	b := 0
	if bn {
		b = 1
	}
	return fmt.Sprintf("[convolutional]\nbatch_normalize=%d\nfilters=%d\nsize=%d\nstride=%d\npad=1\nactivation=leaky\n",
		b, filters, size, stride)
}

func TestBuild_ConvThenDetection(t *testing.T) {
	g := mustBuild(t, netBlock+conv(16, 3, 1, true)+
		"[yolo]\nmask=0\nanchors=10,13, 16,30\nclasses=2\n")

	require.Equal(t, 2, g.Len())
	assert.Equal(t, []int{16, 16}, g.OutputFilters())

	c, ok := g.Layers[0].Spec.(*Convolutional)
	require.True(t, ok)
	assert.Equal(t, 1, c.Padding, "pad=1 resolves to (size-1)/2")
	assert.True(t, c.HasNorm)
	assert.Equal(t, nn.Leaky, c.Activation)
	assert.Equal(t, 3, g.Layers[0].InChannels)

	conv2d, ok := g.Layers[0].Op.(*nn.Conv2D)
	require.True(t, ok)
	assert.Equal(t, 3, conv2d.InChannels())
	assert.Equal(t, 16, conv2d.OutChannels())

	d, ok := g.Layers[1].Spec.(*Detection)
	require.True(t, ok)
	assert.Equal(t, []Anchor{{10, 13}}, d.Anchors)
	assert.Equal(t, 2, d.NumClasses)
	assert.Nil(t, g.Layers[1].Op)
}

func TestBuild_RouteSingleReference(t *testing.T) {
	g := mustBuild(t, netBlock+conv(16, 3, 1, true)+
		"[route]\nlayers=-1\n"+
		conv(32, 3, 1, true))

	assert.Equal(t, []int{16, 16, 32}, g.OutputFilters())
	assert.Equal(t, 16, g.Layers[2].InChannels)
	assert.Nil(t, g.Layers[1].Op, "route carries no parameters")

	r := g.Layers[1].Spec.(*Route)
	assert.Equal(t, []int{-1}, r.Refs)
	assert.Equal(t, []int{0}, r.Targets(1))
}

func TestBuild_RouteConcatenationSumsChannels(t *testing.T) {
	g := mustBuild(t, netBlock+
		conv(8, 3, 1, true)+ // 0
		conv(16, 3, 1, true)+ // 1
		conv(4, 1, 1, false)+ // 2
		"[route]\nlayers=-1, 0\n"+ // 3: 4 + 8
		"[route]\nlayers=1,2\n"+ // 4: 16 + 4
		conv(10, 1, 1, false)) // 5

	filters := g.OutputFilters()
	assert.Equal(t, []int{8, 16, 4, 12, 20, 10}, filters)

	for _, idx := range []int{3, 4} {
		r := g.Layers[idx].Spec.(*Route)
		sum := 0
		for _, target := range r.Targets(idx) {
			sum += filters[target]
		}
		assert.Equal(t, sum, filters[idx], "layer %d", idx)
	}

	assert.Equal(t, []int{-1, -3}, g.Layers[3].Spec.(*Route).Refs, "absolute 0 becomes relative -3")
	assert.Equal(t, []int{-3, -2}, g.Layers[4].Spec.(*Route).Refs)
	assert.Equal(t, 20, g.Layers[5].InChannels)
}

func TestBuild_Shortcut(t *testing.T) {
	g := mustBuild(t, netBlock+conv(32, 3, 1, true)+conv(32, 3, 1, true)+
		"[shortcut]\nfrom=-2\nactivation=linear\n")

	assert.Equal(t, []int{32, 32, 32}, g.OutputFilters())
	s := g.Layers[2].Spec.(*Shortcut)
	assert.Equal(t, -2, s.From)
	assert.Equal(t, 0, s.Target(2))
}

func TestBuild_ShortcutAbsoluteReference(t *testing.T) {
	g := mustBuild(t, netBlock+conv(8, 3, 1, true)+conv(8, 3, 1, true)+conv(8, 3, 1, true)+
		"[shortcut]\nfrom=1\n")

	assert.Equal(t, -2, g.Layers[3].Spec.(*Shortcut).From)
}

func TestBuild_UpsampleKeepsChannels(t *testing.T) {
	g := mustBuild(t, netBlock+conv(8, 1, 1, false)+"[upsample]\nstride=2\n")

	assert.Equal(t, []int{8, 8}, g.OutputFilters())
	up, ok := g.Layers[1].Op.(*nn.Upsample)
	require.True(t, ok)
	assert.Equal(t, 2, up.Scale())
}

func TestBuild_DetectionMaskSelectsAnchors(t *testing.T) {
	g := mustBuild(t, netBlock+conv(21, 1, 1, false)+
		"[yolo]\nmask = 3,4,5\nanchors = 10,13,  16,30,  33,23,  30,61,  62,45,  59,119\nclasses=2\nnum=6\n")

	d := g.Layers[1].Spec.(*Detection)
	assert.Equal(t, []int{3, 4, 5}, d.Mask)
	assert.Equal(t, []Anchor{{30, 61}, {62, 45}, {59, 119}}, d.Anchors)
	assert.Equal(t, []int{21, 21}, g.OutputFilters())
}

func TestBuild_NetDefaults(t *testing.T) {
	g := mustBuild(t, "[net]\nheight=64\n"+conv(4, 3, 1, false))

	assert.Equal(t, 64, g.Net.Height)
	assert.Equal(t, 64, g.Net.Width)
	assert.Equal(t, DefaultInputChannels, g.Net.Channels)
	assert.Equal(t, 1, g.Net.Batch)
}

func TestBuild_NumParameters(t *testing.T) {
	g := mustBuild(t, netBlock+conv(16, 3, 1, true)+conv(4, 1, 1, false))

	// bn: 4*16 + weights 16*3*3*3; bias 4 + weights 4*16
	assert.Equal(t, 4*16+16*3*3*3+4+4*16, g.NumParameters())
	assert.Contains(t, g.String(), "parameters: ")
}

// Every reference must resolve into [0, index).
func TestBuild_BadReference(t *testing.T) {
	body := conv(8, 3, 1, true) + conv(8, 3, 1, true) // layers 0, 1

	tests := []struct {
		name  string
		block string
	}{
		{"route before start", "[route]\nlayers=-3\n"},
		{"route to self", "[route]\nlayers=2\n"},
		{"route forward", "[route]\nlayers=5\n"},
		{"route second ref", "[route]\nlayers=-1,-7\n"},
		{"shortcut before start", "[shortcut]\nfrom=-3\n"},
		{"shortcut to self", "[shortcut]\nfrom=2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, netBlock+body+tt.block)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadReference)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, 2, be.Layer)
		})
	}
}

func TestBuild_ResolvedTargetsStayBehind(t *testing.T) {
	for index := 1; index < 6; index++ {
		for ref := -8; ref < 8; ref++ {
			b := &builder{}
			rel, err := b.resolve(index, ref)
			if err != nil {
				assert.ErrorIs(t, err, ErrBadReference)
				continue
			}
			target := index + rel
			assert.GreaterOrEqual(t, target, 0)
			assert.Less(t, target, index)
			assert.Negative(t, rel)
		}
	}
}

func TestBuild_FirstLayerShortcutIsBad(t *testing.T) {
	_, err := build(t, netBlock+"[shortcut]\nfrom=-1\n")
	assert.ErrorIs(t, err, ErrBadReference)
}

func TestBuild_UnknownLayerKind(t *testing.T) {
	_, err := build(t, netBlock+conv(8, 3, 1, true)+"[maxpool]\nsize=2\nstride=2\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLayerKind)

	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Layer)
	assert.Equal(t, "maxpool", be.Kind)
}

func TestBuild_MalformedFields(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing height", "[net]\nchannels=3\n" + conv(8, 3, 1, true)},
		{"zero height", "[net]\nheight=0\n"},
		{"missing filters", netBlock + "[convolutional]\nsize=3\n"},
		{"bad activation", netBlock + "[convolutional]\nfilters=4\nsize=3\nactivation=mish\n"},
		{"route with three refs", netBlock + conv(4, 1, 1, false) + conv(4, 1, 1, false) + conv(4, 1, 1, false) + "[route]\nlayers=-1,-2,-3\n"},
		{"odd anchors", netBlock + conv(4, 1, 1, false) + "[yolo]\nmask=0\nanchors=10,13,16\nclasses=1\n"},
		{"mask outside anchors", netBlock + conv(4, 1, 1, false) + "[yolo]\nmask=2\nanchors=10,13\nclasses=1\n"},
		{"missing classes", netBlock + conv(4, 1, 1, false) + "[yolo]\nmask=0\nanchors=10,13\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, cfg.ErrMalformedConfig)
		})
	}
}

func TestBuild_NoBlocks(t *testing.T) {
	_, err := Build(nil, cpu.New())
	assert.ErrorIs(t, err, cfg.ErrMalformedConfig)
}

func TestKind(t *testing.T) {
	for _, name := range []string{"convolutional", "upsample", "route", "shortcut", "yolo"} {
		k, ok := ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, name, k.String())
	}
	_, ok := ParseKind("net")
	assert.False(t, ok)
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
