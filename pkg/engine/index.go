package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// TensorIndexVersion is the on-disk version of the tensor index payload.
const TensorIndexVersion uint32 = 1

// DType identifies the tensor element encoding. Values are stable forever;
// new encodings only append.
type DType uint32

const (
	DTypeUnknown DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI8
	DTypeI4
	DTypeFP8
	DTypeI32
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeI8:
		return "i8"
	case DTypeI4:
		return "i4"
	case DTypeFP8:
		return "fp8"
	case DTypeI32:
		return "i32"
	default:
		return "unknown"
	}
}

// TensorEntry locates one tensor payload. Offset is relative to the start
// of the TensorData section.
type TensorEntry struct {
	Name   string
	DType  DType
	Shape  []int
	Offset uint64
	Size   uint64
}

// The index payload is a count followed by length-prefixed entries, all
// little-endian:
//
//	u32 count
//	per entry: u32 nameLen, name bytes, u32 dtype, u32 ndims,
//	           u64 dims..., u64 offset, u64 size
//
// Entries are sorted by name so readers can binary search.

func encodeTensorIndex(entries []TensorEntry) []byte {
	sorted := make([]TensorEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	var scratch [8]byte

	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		buf.Write(scratch[:4])
	}
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:8], v)
		buf.Write(scratch[:8])
	}

	putU32(uint32(len(sorted)))
	for _, e := range sorted {
		putU32(uint32(len(e.Name)))
		buf.WriteString(e.Name)
		putU32(uint32(e.DType))
		putU32(uint32(len(e.Shape)))
		for _, d := range e.Shape {
			putU64(uint64(d))
		}
		putU64(e.Offset)
		putU64(e.Size)
	}
	return buf.Bytes()
}

func decodeTensorIndex(data []byte) ([]TensorEntry, error) {
	pos := 0
	u32 := func() (uint32, error) {
		if pos+4 > len(data) {
			return 0, ErrCorruptFile
		}
		v := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
		return v, nil
	}
	u64 := func() (uint64, error) {
		if pos+8 > len(data) {
			return 0, ErrCorruptFile
		}
		v := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	count, err := u32()
	if err != nil {
		return nil, err
	}
	entries := make([]TensorEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := u32()
		if err != nil {
			return nil, err
		}
		if pos+int(nameLen) > len(data) {
			return nil, fmt.Errorf("%w: tensor name out of bounds", ErrCorruptFile)
		}
		name := string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)

		dtype, err := u32()
		if err != nil {
			return nil, err
		}
		ndims, err := u32()
		if err != nil {
			return nil, err
		}
		shape := make([]int, ndims)
		for d := range shape {
			v, err := u64()
			if err != nil {
				return nil, err
			}
			shape[d] = int(v)
		}
		off, err := u64()
		if err != nil {
			return nil, err
		}
		size, err := u64()
		if err != nil {
			return nil, err
		}
		entries = append(entries, TensorEntry{
			Name: name, DType: DType(dtype), Shape: shape,
			Offset: off, Size: size,
		})
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: trailing bytes after tensor index", ErrCorruptFile)
	}
	return entries, nil
}
