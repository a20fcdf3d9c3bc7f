package cpu

import (
	"fmt"

	"github.com/born-ml/darknet/internal/parallel"
	"github.com/born-ml/darknet/internal/tensor"
)

// LeakyReLU applies f(x) = x if x > 0 else slope*x element-wise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	result := x.Clone()
	data := result.Data()

	parallel.ForRange(len(data), func(start, end int) {
		for i := start; i < end; i++ {
			if data[i] < 0 {
				data[i] *= slope
			}
		}
	}, cpu.par)

	return result
}

// BatchNorm2D applies inference-mode batch normalization with running
// statistics:
//
//	y = (x - mean[c]) / sqrt(variance[c] + eps) * scale[c] + bias[c]
//
// x: [N, C, H, W]; scale, bias, mean, variance: [C].
func (cpu *CPUBackend) BatchNorm2D(x, scale, bias, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: input must be 4D [N,C,H,W], got %dD", len(shape)))
	}
	N, C, plane := shape[0], shape[1], shape[2]*shape[3]
	for name, p := range map[string]*tensor.RawTensor{"scale": scale, "bias": bias, "mean": mean, "variance": variance} {
		if p.NumElements() != C {
			panic(fmt.Sprintf("batchnorm2d: %s has %d elements, input has %d channels", name, p.NumElements(), C))
		}
	}

	// Fold the statistics into one multiply-add per channel.
	mul := make([]float32, C)
	add := make([]float32, C)
	s, b, m, v := scale.Data(), bias.Data(), mean.Data(), variance.Data()
	for c := 0; c < C; c++ {
		mul[c] = s[c] / sqrt32(v[c]+eps)
		add[c] = b[c] - m[c]*mul[c]
	}

	result := x.Clone()
	dst := result.Data()

	parallel.ForPlanes(N, C, func(n, c int) {
		row := dst[(n*C+c)*plane : (n*C+c+1)*plane]
		k, d := mul[c], add[c]
		for i := range row {
			row[i] = row[i]*k + d
		}
	}, cpu.par)

	return result
}
