// Package weights reads and writes darknet .weights files.
//
// A weights file is a 20 byte header followed by little-endian float32 values
// with no framing. The values are assigned to the convolutional layers of a
// graph in layer order; every other layer kind owns no parameters. Within a
// convolutional layer the order is
//
//	with batch norm:    bias, scale, running mean, running variance, weight
//	without batch norm: bias, weight
//
// where each vector has one value per output channel and the weight has
// out*in*k*k values. Nothing in the file says where a layer starts, so a
// weights file is only meaningful together with the cfg it was trained with.
package weights

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/nn"
)

// HeaderSize is the size of the fixed header in bytes.
const HeaderSize = 20

const floatSize = 4

// Header is the fixed prefix of a weights file.
type Header struct {
	Major    int32
	Minor    int32
	Revision int32

	// Seen is the number of images the network was trained on. Older files
	// store it in one 32-bit word followed by a reserved word; newer ones use
	// both words. Reading them as low and high halves covers both.
	Seen int64
}

// String returns the header as "major.minor.revision (seen N)".
func (h Header) String() string {
	return fmt.Sprintf("%d.%d.%d (seen %d)", h.Major, h.Minor, h.Revision, h.Seen)
}

func decodeHeader(b []byte) Header {
	le := binary.LittleEndian
	low := uint64(le.Uint32(b[12:16]))
	high := uint64(le.Uint32(b[16:20]))
	return Header{
		Major:    int32(le.Uint32(b[0:4])),  //nolint:gosec // G115: bit reinterpretation
		Minor:    int32(le.Uint32(b[4:8])),  //nolint:gosec // G115: bit reinterpretation
		Revision: int32(le.Uint32(b[8:12])), //nolint:gosec // G115: bit reinterpretation
		Seen:     int64(high<<32 | low),     //nolint:gosec // G115: bit reinterpretation
	}
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	seen := uint64(h.Seen) //nolint:gosec // G115: bit reinterpretation

	le.PutUint32(b[0:4], uint32(h.Major))     //nolint:gosec // G115: bit reinterpretation
	le.PutUint32(b[4:8], uint32(h.Minor))     //nolint:gosec // G115: bit reinterpretation
	le.PutUint32(b[8:12], uint32(h.Revision)) //nolint:gosec // G115: bit reinterpretation
	le.PutUint32(b[12:16], uint32(seen))
	le.PutUint32(b[16:20], uint32(seen>>32))
	return b
}

// Result describes a completed load.
type Result struct {
	Header Header

	// Consumed is the number of float values assigned to parameters.
	Consumed int

	// Available is the number of whole float values after the header.
	// Consumed < Available is accepted unless WithStrict is set.
	Available int
}

// Unread returns the number of float values left after the last layer.
func (r *Result) Unread() int {
	return r.Available - r.Consumed
}

type options struct {
	strict bool
}

// Option configures Load.
type Option func(*options)

// WithStrict rejects files with data left over after the last layer.
//
// By default such data is ignored. Darknet itself does not check for it and
// published weights sometimes carry a few extra bytes.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// slot is one parameter and where its values live in the file.
type slot struct {
	layer  int
	param  *nn.Parameter
	offset int64 // bytes from the start of the file
}

// Load reads a weights stream into the parameters of g.
//
// The whole stream is read before any parameter is touched. On error the
// graph is left unchanged.
func Load(g *graph.Graph, r io.Reader, opts ...Option) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return load(g, data, opts...)
}

// LoadFile reads the weights file at path into the parameters of g.
func LoadFile(g *graph.Graph, path string, opts ...Option) (*Result, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	res, err := load(g, data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func load(g *graph.Graph, data []byte, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	size := int64(len(data))
	if size < HeaderSize {
		return nil, &LoadError{Layer: -1, Param: "header", Need: HeaderSize, Have: size, Err: ErrTruncatedWeights}
	}
	res := &Result{
		Header:    decodeHeader(data[:HeaderSize]),
		Available: int((size - HeaderSize) / floatSize),
	}

	// Plan every read first so a short file fails before anything is written.
	slots, err := layout(g)
	if err != nil {
		return nil, err
	}
	end := int64(HeaderSize)
	for _, s := range slots {
		need := int64(s.param.NumElements()) * floatSize
		if s.offset+need > size {
			return nil, &LoadError{
				Layer:  s.layer,
				Param:  s.param.Name(),
				Offset: s.offset,
				Need:   need,
				Have:   size - s.offset,
				Err:    ErrTruncatedWeights,
			}
		}
		end = s.offset + need
	}

	if o.strict && end < size {
		return nil, &LoadError{Layer: -1, Offset: end, Have: size - end, Err: ErrLayerMismatch}
	}

	for _, s := range slots {
		dst := s.param.Tensor().Data()
		if _, err := binary.Decode(data[s.offset:], binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("layer %d: %s: %w", s.layer, s.param.Name(), err)
		}
		res.Consumed += len(dst)
	}

	return res, nil
}

// layout returns the parameters of g in file order with their byte offsets.
func layout(g *graph.Graph) ([]slot, error) {
	var slots []slot
	offset := int64(HeaderSize)
	for i := range g.Layers {
		layer := &g.Layers[i]
		params, err := convParams(layer)
		if err != nil {
			return nil, err
		}
		for _, p := range params {
			slots = append(slots, slot{layer: layer.Index, param: p, offset: offset})
			offset += int64(p.NumElements()) * floatSize
		}
	}
	return slots, nil
}

// convParams returns the parameters of a convolutional layer in file order,
// and nothing for every other layer kind.
func convParams(layer *graph.Layer) ([]*nn.Parameter, error) {
	spec, ok := layer.Spec.(*graph.Convolutional)
	if !ok {
		return nil, nil
	}
	conv, ok := layer.Op.(*nn.Conv2D)
	if !ok || conv.HasBatchNorm() != spec.HasNorm {
		return nil, fmt.Errorf("layer %d: convolutional layer has op %T", layer.Index, layer.Op)
	}

	if spec.HasNorm {
		bn := conv.BatchNorm()
		return []*nn.Parameter{bn.Bias(), bn.Scale(), bn.RunningMean(), bn.RunningVar(), conv.Weight()}, nil
	}
	return []*nn.Parameter{conv.Bias(), conv.Weight()}, nil
}

// Save writes header and the parameters of g in the order Load reads them.
// Loading the result into a graph built from the same cfg restores g exactly.
func Save(g *graph.Graph, header Header, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(encodeHeader(header)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	slots, err := layout(g)
	if err != nil {
		return err
	}
	for _, s := range slots {
		if err := binary.Write(bw, binary.LittleEndian, s.param.Tensor().Data()); err != nil {
			return fmt.Errorf("layer %d: failed to write %s: %w", s.layer, s.param.Name(), err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush weights: %w", err)
	}
	return nil
}

// SaveFile writes the weights of g to path.
func SaveFile(g *graph.Graph, header Header, path string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Save(g, header, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
