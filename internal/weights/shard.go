package weights

import (
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// shardRows returns the rank's contiguous slice of the leading dimension.
// A 1-D tensor is treated as a column of scalars.
func shardRows(data []float32, shape []int, m module.Mapping) ([]float32, []int, error) {
	if m.TPSize <= 1 {
		return data, shape, nil
	}
	rows := shape[0]
	if rows%m.TPSize != 0 {
		return nil, nil, fmt.Errorf("%w: dim 0 size %d not divisible by tp %d",
			ErrShapeMismatch, rows, m.TPSize)
	}
	stride := len(data) / rows
	per := rows / m.TPSize
	lo, hi := m.Rank*per*stride, (m.Rank+1)*per*stride
	out := append([]int{per}, shape[1:]...)
	return data[lo:hi], out, nil
}

// shardCols returns the rank's slice of the second dimension of a 2-D
// weight, gathering the strided columns into a compact buffer.
func shardCols(data []float32, shape []int, m module.Mapping) ([]float32, []int, error) {
	if m.TPSize <= 1 {
		return data, shape, nil
	}
	if len(shape) != 2 {
		return nil, nil, fmt.Errorf("%w: row shard needs a 2-D tensor, got %v",
			ErrShapeMismatch, shape)
	}
	rows, cols := shape[0], shape[1]
	if cols%m.TPSize != 0 {
		return nil, nil, fmt.Errorf("%w: dim 1 size %d not divisible by tp %d",
			ErrShapeMismatch, cols, m.TPSize)
	}
	per := cols / m.TPSize
	out := make([]float32, rows*per)
	for r := 0; r < rows; r++ {
		copy(out[r*per:(r+1)*per], data[r*cols+m.Rank*per:r*cols+(m.Rank+1)*per])
	}
	return out, []int{rows, per}, nil
}

// splitFused cuts a fused projection into n equal parts along dim 0.
func splitFused(data []float32, shape []int, n int) ([][]float32, []int, error) {
	rows := shape[0]
	if rows%n != 0 {
		return nil, nil, fmt.Errorf("%w: fused dim 0 size %d not divisible by %d",
			ErrShapeMismatch, rows, n)
	}
	stride := len(data) / rows
	per := rows / n
	parts := make([][]float32, n)
	for i := range parts {
		parts[i] = data[i*per*stride : (i+1)*per*stride]
	}
	return parts, append([]int{per}, shape[1:]...), nil
}

// transpose2D converts a [in, out] stored weight to [out, in].
func transpose2D(data []float32, shape []int) ([]float32, []int) {
	rows, cols := shape[0], shape[1]
	out := make([]float32, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return out, []int{cols, rows}
}
