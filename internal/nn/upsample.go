package nn

import (
	"fmt"

	"github.com/born-ml/darknet/internal/tensor"
)

// Upsample scales feature maps by an integer factor with nearest-neighbor
// interpolation. Channels are unchanged.
type Upsample struct {
	scale   int
	backend tensor.Backend
}

// NewUpsample creates an upsampling layer.
func NewUpsample(scale int, backend tensor.Backend) *Upsample {
	if scale <= 0 {
		panic(fmt.Sprintf("upsample: invalid scale %d", scale))
	}
	return &Upsample{scale: scale, backend: backend}
}

// Forward upsamples [N, C, H, W] to [N, C, H*scale, W*scale].
func (u *Upsample) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return u.backend.Upsample2D(input, u.scale)
}

// Parameters returns nil (Upsample has no parameters).
func (u *Upsample) Parameters() []*Parameter {
	return nil
}

// Scale returns the upsampling factor.
func (u *Upsample) Scale() int { return u.scale }

// String returns a string representation of the layer.
func (u *Upsample) String() string {
	return fmt.Sprintf("Upsample(scale_factor=%d, mode=nearest)", u.scale)
}
