package cfg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyConfig = `[net]
height=416
channels=3

[convolutional]
batch_normalize=1
filters=32
size=3
stride=1
pad=1
activation=leaky

[route]
layers = -1, 0

[yolo]
mask = 0,1,2
anchors = 10,13,  16,30,  33,23
classes=80
`

func TestParse(t *testing.T) {
	blocks, err := ParseString(tinyConfig)
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	assert.Equal(t, "net", blocks[0].Kind)
	assert.Equal(t, "416", blocks[0].Get("height"))

	conv := blocks[1]
	assert.Equal(t, "convolutional", conv.Kind)
	assert.Equal(t, 6, conv.Len())
	assert.Equal(t, []Field{
		{"batch_normalize", "1"},
		{"filters", "32"},
		{"size", "3"},
		{"stride", "1"},
		{"pad", "1"},
		{"activation", "leaky"},
	}, conv.Fields())

	assert.Equal(t, "-1, 0", blocks[2].Get("layers"))
	assert.Equal(t, "10,13,  16,30,  33,23", blocks[3].Get("anchors"))
}

// Blank lines, comments and surrounding whitespace must not change the result.
func TestParse_WhitespaceAndCommentsInsensitive(t *testing.T) {
	noisy := `
# network
[net]
   height = 416
	channels=3
; darknet also accepts semicolon comments

  [convolutional]
batch_normalize=1
# filters=64
filters   =32
size=3
stride=1
pad=1
activation=leaky
    # indented comment

[route]
layers = -1, 0
[yolo]

mask = 0,1,2
anchors = 10,13,  16,30,  33,23
classes=80


`
	want, err := ParseString(tinyConfig)
	require.NoError(t, err)
	got, err := ParseString(noisy)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestParse_LastWriteWins(t *testing.T) {
	blocks, err := ParseString("[net]\nheight=416\nwidth=320\nheight=608\n")
	require.NoError(t, err)

	assert.Equal(t, "608", blocks[0].Get("height"))
	assert.Equal(t, []Field{{"height", "608"}, {"width", "320"}}, blocks[0].Fields())
}

func TestParse_ValueKeepsLaterSeparators(t *testing.T) {
	blocks, err := ParseString("[net]\npolicy=a=b\n")
	require.NoError(t, err)
	assert.Equal(t, "a=b", blocks[0].Get("policy"))
}

func TestParse_EmptyBlockIsKept(t *testing.T) {
	blocks, err := ParseString("[net]\nheight=1\n[shortcut]\n")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "shortcut", blocks[1].Kind)
	assert.Equal(t, 0, blocks[1].Len())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"field before header", "height=416\n[net]\n", 1},
		{"missing separator", "[net]\nheight 416\n", 2},
		{"empty key", "[net]\n=416\n", 2},
		{"unterminated header", "[net\nheight=416\n", 1},
		{"no headers", "# only a comment\n\n", 2},
		{"empty input", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedConfig)

			var syn *SyntaxError
			require.True(t, errors.As(err, &syn))
			assert.Equal(t, tt.line, syn.Line)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.cfg")
	require.NoError(t, os.WriteFile(path, []byte(tinyConfig), 0o600))

	blocks, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, blocks, 4)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.Error(t, err)
}

func TestBlockAccessors(t *testing.T) {
	b := NewBlock("yolo")
	b.Set("classes", "80")
	b.Set("mask", "0, 1,2")
	b.Set("bad", "x")

	n, err := b.Int("classes")
	require.NoError(t, err)
	assert.Equal(t, 80, n)

	n, err = b.IntDefault("stride", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = b.Int("missing")
	assert.ErrorIs(t, err, ErrMalformedConfig)

	_, err = b.IntDefault("bad", 1)
	assert.ErrorIs(t, err, ErrMalformedConfig)

	ints, err := b.Ints("mask")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, ints)

	_, err = b.Ints("bad")
	assert.ErrorIs(t, err, ErrMalformedConfig)

	assert.Equal(t, "[yolo]\nclasses=80\nmask=0, 1,2\nbad=x\n", b.String())
}
