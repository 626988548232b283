package tensor

import "fmt"

// Tensordot contracts axes axesA of a with axesB of b. The result carries the
// free axes of a followed by the free axes of b, each in their original order.
func Tensordot(a, b *Dense, axesA, axesB []int) *Dense {
	if len(axesA) != len(axesB) {
		panic(fmt.Sprintf("tensor: contraction axes %v and %v differ in length", axesA, axesB))
	}
	usedA := make([]bool, a.Ndim())
	usedB := make([]bool, b.Ndim())
	k := 1
	for i := range axesA {
		if a.shape[axesA[i]] != b.shape[axesB[i]] {
			panic(fmt.Sprintf("tensor: cannot contract axis %d of %v with axis %d of %v",
				axesA[i], a.shape, axesB[i], b.shape))
		}
		usedA[axesA[i]] = true
		usedB[axesB[i]] = true
		k *= a.shape[axesA[i]]
	}

	var freeA, freeB, outShape []int
	for i, u := range usedA {
		if !u {
			freeA = append(freeA, i)
			outShape = append(outShape, a.shape[i])
		}
	}
	for i, u := range usedB {
		if !u {
			freeB = append(freeB, i)
			outShape = append(outShape, b.shape[i])
		}
	}

	am := a.Transpose(append(append([]int(nil), freeA...), axesA...)...)
	bm := b.Transpose(append(append([]int(nil), axesB...), freeB...)...)
	m := Size(outShape[:len(freeA)])
	n := Size(outShape[len(freeA):])
	out := matmul(am.data, bm.data, m, k, n)
	if outShape == nil {
		outShape = []int{}
	}
	return &Dense{shape: outShape, data: out}
}

// Matmul multiplies a (m×k) by b (k×n).
func Matmul(a, b *Dense) *Dense {
	if a.Ndim() != 2 || b.Ndim() != 2 || a.shape[1] != b.shape[0] {
		panic(fmt.Sprintf("tensor: cannot multiply %v by %v", a.shape, b.shape))
	}
	return &Dense{
		shape: []int{a.shape[0], b.shape[1]},
		data:  matmul(a.data, b.data, a.shape[0], a.shape[1], b.shape[1]),
	}
}

func matmul(a, b []complex128, m, k, n int) []complex128 {
	out := make([]complex128, m*n)
	for i := 0; i < m; i++ {
		row := out[i*n : (i+1)*n]
		for l := 0; l < k; l++ {
			av := a[i*k+l]
			if av == 0 {
				continue
			}
			brow := b[l*n : (l+1)*n]
			for j, bv := range brow {
				row[j] += av * bv
			}
		}
	}
	return out
}

// Outer returns the tensor product of a and b with shape a.shape ++ b.shape.
func Outer(a, b *Dense) *Dense {
	out := make([]complex128, 0, a.Len()*b.Len())
	for _, av := range a.data {
		for _, bv := range b.data {
			out = append(out, av*bv)
		}
	}
	return &Dense{shape: append(a.Shape(), b.shape...), data: out}
}

// Kron returns the Kronecker product of two matrices.
func Kron(a, b *Dense) *Dense {
	if a.Ndim() != 2 || b.Ndim() != 2 {
		panic("tensor: Kron needs matrices")
	}
	return Outer(a, b).Transpose(0, 2, 1, 3).Reshape(a.shape[0]*b.shape[0], a.shape[1]*b.shape[1])
}
