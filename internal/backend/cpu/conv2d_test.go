package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/darknet/internal/tensor"
)

func fromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromSlice(data, shape, tensor.CPU)
	require.NoError(t, err)
	return raw
}

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := fromSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})

	// 1 0
	// 0 1
	kernel := fromSlice(t, []float32{1, 0, 0, 1}, tensor.Shape{1, 1, 2, 2})

	output := backend.Conv2D(input, kernel, 1, 0)

	// out_h = (3 + 2*0 - 2) / 1 + 1 = 2
	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 2, 2}), "got %v", output.Shape())

	// Diagonal sums of every 2x2 patch.
	assert.Equal(t, []float32{6, 8, 12, 14}, output.Data())
}

// TestConv2D_WithPadding checks that "same" padding preserves spatial size.
func TestConv2D_WithPadding(t *testing.T) {
	backend := New()

	input := tensor.MustNew(tensor.Shape{1, 1, 3, 3}, tensor.CPU)
	input.Fill(1)
	kernel := tensor.MustNew(tensor.Shape{1, 1, 3, 3}, tensor.CPU)
	kernel.Fill(1)

	output := backend.Conv2D(input, kernel, 1, 1)
	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 3, 3}), "got %v", output.Shape())

	// Corners see 4 taps, edges 6, the center 9.
	assert.Equal(t, []float32{4, 6, 4, 6, 9, 6, 4, 6, 4}, output.Data())
}

func TestConv2D_Stride2(t *testing.T) {
	backend := New()

	input := tensor.MustNew(tensor.Shape{1, 1, 4, 4}, tensor.CPU)
	for i := range input.Data() {
		input.Data()[i] = float32(i)
	}
	kernel := fromSlice(t, []float32{1}, tensor.Shape{1, 1, 1, 1})

	output := backend.Conv2D(input, kernel, 2, 0)
	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{0, 2, 8, 10}, output.Data())
}

// TestConv2D_MultiChannelBatch checks NCHW placement for several images and filters.
func TestConv2D_MultiChannelBatch(t *testing.T) {
	backend := New()

	// Two images, two channels, 2x2 each.
	input := fromSlice(t, []float32{
		1, 1, 1, 1, // n0 c0
		2, 2, 2, 2, // n0 c1
		3, 3, 3, 3, // n1 c0
		4, 4, 4, 4, // n1 c1
	}, tensor.Shape{2, 2, 2, 2})

	// Filter 0 sums channel 0; filter 1 takes 10x channel 1.
	kernel := fromSlice(t, []float32{
		1, 0,
		0, 10,
	}, tensor.Shape{2, 2, 1, 1})

	output := backend.Conv2D(input, kernel, 1, 0)
	require.True(t, output.Shape().Equal(tensor.Shape{2, 2, 2, 2}))
	assert.Equal(t, []float32{
		1, 1, 1, 1,
		20, 20, 20, 20,
		3, 3, 3, 3,
		40, 40, 40, 40,
	}, output.Data())
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	input := tensor.MustNew(tensor.Shape{1, 3, 4, 4}, tensor.CPU)
	kernel := tensor.MustNew(tensor.Shape{8, 2, 3, 3}, tensor.CPU)

	assert.Panics(t, func() {
		backend.Conv2D(input, kernel, 1, 1)
	})
}
