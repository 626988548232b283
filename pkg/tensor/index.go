package tensor

import "fmt"

// Ravel converts a multi-index into a row-major flat index.
func Ravel(idx, shape []int) int {
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("tensor: index %v does not match shape %v", idx, shape))
	}
	flat := 0
	for i, d := range shape {
		if idx[i] < 0 || idx[i] >= d {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, shape))
		}
		flat = flat*d + idx[i]
	}
	return flat
}

// Unravel converts a row-major flat index into a multi-index, writing into
// dst when it has the right length.
func Unravel(flat int, shape []int, dst []int) []int {
	if len(dst) != len(shape) {
		dst = make([]int, len(shape))
	}
	for i := len(shape) - 1; i >= 0; i-- {
		dst[i] = flat % shape[i]
		flat /= shape[i]
	}
	return dst
}

// NdIndex calls fn for every multi-index of shape in row-major order.
// The slice passed to fn is reused between calls.
func NdIndex(shape []int, fn func(idx []int)) {
	n := Size(shape)
	idx := make([]int, len(shape))
	for flat := 0; flat < n; flat++ {
		fn(idx)
		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
}
