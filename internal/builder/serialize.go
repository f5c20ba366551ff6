package builder

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/pkg/engine"
)

func engineDType(d module.DType) engine.DType {
	switch d {
	case module.DTypeFloat32:
		return engine.DTypeF32
	case module.DTypeFloat16:
		return engine.DTypeF16
	case module.DTypeBFloat16:
		return engine.DTypeBF16
	case module.DTypeInt8:
		return engine.DTypeI8
	case module.DTypeInt4:
		return engine.DTypeI4
	case module.DTypeFP8:
		return engine.DTypeFP8
	case module.DTypeInt32:
		return engine.DTypeI32
	default:
		return engine.DTypeUnknown
	}
}

// paramBytes renders one parameter for the container. Packed quantized
// payloads pass through as raw bytes; staged float data is narrowed to the
// declared precision. A quantized parameter still holding float staging is
// stored as f32 so the external kernel toolkit has the source data, and an
// empty parameter becomes a zero placeholder of the declared size.
func paramBytes(p *module.Parameter) ([]byte, engine.DType) {
	if p.Raw != nil {
		return p.Raw, engineDType(p.DType)
	}
	if len(p.F32) == 0 {
		return make([]byte, p.NumElements()*p.DType.ByteSize()), engineDType(p.DType)
	}
	switch p.DType {
	case module.DTypeFloat16:
		out := make([]byte, 2*len(p.F32))
		for i, v := range p.F32 {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		}
		return out, engine.DTypeF16
	case module.DTypeBFloat16:
		return bfloat16.EncodeFloat32(p.F32), engine.DTypeBF16
	default:
		out := make([]byte, 4*len(p.F32))
		for i, v := range p.F32 {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out, engine.DTypeF32
	}
}

// sortedParams returns name/parameter pairs in deterministic order.
func sortedParams(params map[string]*module.Parameter) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
