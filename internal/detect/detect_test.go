package detect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/tensor"
)

func TestDecode_Shape(t *testing.T) {
	anchors := []graph.Anchor{{10, 13}, {16, 30}, {33, 23}}
	raw := tensor.MustNew(tensor.Shape{2, 3 * (5 + 80), 13, 13}, tensor.CPU)

	out, err := Decode(raw, 416, anchors, 80, false)
	require.NoError(t, err)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 13 * 13 * 3, 85}), "got %v", out.Shape())
}

// With all-zero logits every sigmoid is 0.5 and every exp is 1.
func TestDecode_ZeroLogits(t *testing.T) {
	anchors := []graph.Anchor{{10, 20}, {30, 40}}
	raw := tensor.MustNew(tensor.Shape{1, 2 * 6, 2, 2}, tensor.CPU)

	out, err := Decode(raw, 64, anchors, 1, false)
	require.NoError(t, err)

	data := out.Data()
	stride := float32(32)
	for cell := 0; cell < 4; cell++ {
		cx, cy := float32(cell%2), float32(cell/2)
		for a, anchor := range anchors {
			row := data[(cell*2+a)*6 : (cell*2+a+1)*6]
			assert.InDelta(t, (0.5+cx)*stride, row[0], 1e-5, "cell %d anchor %d x", cell, a)
			assert.InDelta(t, (0.5+cy)*stride, row[1], 1e-5, "cell %d anchor %d y", cell, a)
			assert.InDelta(t, float32(anchor.Width), row[2], 1e-5)
			assert.InDelta(t, float32(anchor.Height), row[3], 1e-5)
			assert.InDelta(t, 0.5, row[4], 1e-6)
			assert.InDelta(t, 0.5, row[5], 1e-6)
		}
	}
}

// Channel a*(5+C)+k of a cell lands in attribute k of that anchor's row.
func TestDecode_ChannelPlacement(t *testing.T) {
	anchors := []graph.Anchor{{1, 1}, {2, 2}}
	attrs := 6
	raw := tensor.MustNew(tensor.Shape{1, 2 * attrs, 1, 2}, tensor.CPU)
	data := raw.Data()

	// anchor 1, width logit, cell 1.
	data[(1*attrs+2)*2+1] = float32(math.Log(3))

	out, err := Decode(raw, 2, anchors, 1, false)
	require.NoError(t, err)

	rows := out.Data()
	// row index = cell*numAnchors + anchor = 1*2 + 1 = 3
	assert.InDelta(t, 6, rows[3*attrs+2], 1e-5, "exp(log 3) * anchor width 2")
	assert.InDelta(t, 1, rows[2*attrs+2], 1e-5, "anchor 0 keeps exp(0) * width 1")
}

func TestDecode_LayoutMismatch(t *testing.T) {
	raw := tensor.MustNew(tensor.Shape{1, 16, 4, 4}, tensor.CPU)

	_, err := Decode(raw, 32, []graph.Anchor{{10, 13}}, 2, false)
	assert.ErrorIs(t, err, ErrLayout)

	_, err = Decode(tensor.MustNew(tensor.Shape{16}, tensor.CPU), 32, []graph.Anchor{{10, 13}}, 2, false)
	assert.ErrorIs(t, err, ErrLayout)
}

func TestDecode_NoAnchors(t *testing.T) {
	raw := tensor.MustNew(tensor.Shape{1, 7, 4, 4}, tensor.CPU)

	_, err := Decode(raw, 32, nil, 2, false)
	assert.ErrorIs(t, err, ErrNoDetections)
}

func TestTransformFunc(t *testing.T) {
	called := false
	var tr Transform = TransformFunc(func(raw *tensor.RawTensor, _ int, _ []graph.Anchor, _ int, accel bool) (*tensor.RawTensor, error) {
		called = accel
		return raw, nil
	})

	raw := tensor.MustNew(tensor.Shape{1}, tensor.CPU)
	out, err := tr.Transform(raw, 0, nil, 0, true)
	require.NoError(t, err)
	assert.Same(t, raw, out)
	assert.True(t, called)
}
