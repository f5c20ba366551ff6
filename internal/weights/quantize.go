package weights

import (
	"math"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// quantLimit returns the largest magnitude of the symmetric integer range
// for a reduced-precision weight dtype.
func quantLimit(d module.DType) float32 {
	if d == module.DTypeInt4 {
		return 7
	}
	return 127
}

// quantizePerChannel symmetrically quantizes a [rows, cols] weight with one
// scaling factor per output channel. Sub-byte values keep one byte per
// element; nibble packing is left to the kernel toolkit.
func quantizePerChannel(data []float32, rows, cols int, d module.DType) ([]byte, []float32) {
	limit := quantLimit(d)
	packed := make([]byte, len(data))
	scales := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		scale := maxAbs(row) / limit
		if scale == 0 {
			scale = 1
		}
		scales[r] = scale
		for c, v := range row {
			packed[r*cols+c] = byte(quantClamp(v/scale, limit))
		}
	}
	return packed, scales
}

// quantizeGroupwise quantizes with one scaling factor per group of
// contiguous input elements. Scales come back in [groups, rows] order to
// match the groupwise layer parameter layout.
func quantizeGroupwise(data []float32, rows, cols, groupSize int, d module.DType) ([]byte, []float32) {
	limit := quantLimit(d)
	groups := cols / groupSize
	packed := make([]byte, len(data))
	scales := make([]float32, groups*rows)
	for r := 0; r < rows; r++ {
		for g := 0; g < groups; g++ {
			base := r*cols + g*groupSize
			seg := data[base : base+groupSize]
			scale := maxAbs(seg) / limit
			if scale == 0 {
				scale = 1
			}
			scales[g*rows+r] = scale
			for i, v := range seg {
				packed[base+i] = byte(quantClamp(v/scale, limit))
			}
		}
	}
	return packed, scales
}

func maxAbs(v []float32) float32 {
	var m float32
	for _, x := range v {
		if x < 0 {
			x = -x
		}
		if x > m {
			m = x
		}
	}
	return m
}

func quantClamp(v, limit float32) int8 {
	r := float32(math.Round(float64(v)))
	if r > limit {
		r = limit
	}
	if r < -limit {
		r = -limit
	}
	return int8(r)
}
