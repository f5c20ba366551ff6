package module

import "fmt"

// DType identifies a tensor element type as understood by the builder.
type DType int

const (
	DTypeFloat32 DType = iota
	DTypeFloat16
	DTypeBFloat16
	DTypeInt8
	DTypeInt4
	DTypeFP8
	DTypeInt32
)

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeFloat16:
		return "float16"
	case DTypeBFloat16:
		return "bfloat16"
	case DTypeInt8:
		return "int8"
	case DTypeInt4:
		return "int4"
	case DTypeFP8:
		return "fp8"
	case DTypeInt32:
		return "int32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ParseDType maps the precision names accepted on the command line to a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", "fp32":
		return DTypeFloat32, nil
	case "float16", "fp16":
		return DTypeFloat16, nil
	case "bfloat16", "bf16":
		return DTypeBFloat16, nil
	case "int8":
		return DTypeInt8, nil
	case "int4":
		return DTypeInt4, nil
	case "fp8":
		return DTypeFP8, nil
	case "int32":
		return DTypeInt32, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// ByteSize returns the storage size of one element, rounded up for sub-byte types.
func (d DType) ByteSize() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat16, DTypeBFloat16:
		return 2
	default:
		return 1
	}
}
