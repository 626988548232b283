// Package tensor provides dense N-dimensional arrays used by the
// matrix-product engine and the measurement layer.
//
// Dense holds complex128 entries in row-major order. Float holds real
// entries (probability arrays, coefficient tables). Opt is a float64 that may
// be undefined and is used wherever an estimate can be missing.
package tensor

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/cmplxs"
)

// Dense is a dense complex tensor stored in row-major order.
type Dense struct {
	shape []int
	data  []complex128
}

// New creates a tensor with the given shape backed by data.
// data is not copied. It panics if len(data) does not match the shape.
func New(shape []int, data []complex128) *Dense {
	if Size(shape) != len(data) {
		panic(fmt.Sprintf("tensor: shape %v needs %d entries, got %d", shape, Size(shape), len(data)))
	}
	return &Dense{shape: append([]int(nil), shape...), data: data}
}

// Zeros creates a zero tensor of the given shape.
func Zeros(shape ...int) *Dense {
	return &Dense{shape: append([]int(nil), shape...), data: make([]complex128, Size(shape))}
}

// Ones creates a tensor of the given shape filled with ones.
func Ones(shape ...int) *Dense {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

// Eye creates the d×d identity matrix.
func Eye(d int) *Dense {
	t := Zeros(d, d)
	for i := 0; i < d; i++ {
		t.data[i*d+i] = 1
	}
	return t
}

// FromReal creates a complex tensor from real entries.
func FromReal(shape []int, re []float64) *Dense {
	data := make([]complex128, len(re))
	for i, v := range re {
		data[i] = complex(v, 0)
	}
	return New(shape, data)
}

// Size returns the number of entries of an array with the given shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Shape returns a copy of the tensor shape.
func (t *Dense) Shape() []int { return append([]int(nil), t.shape...) }

// Ndim returns the number of axes.
func (t *Dense) Ndim() int { return len(t.shape) }

// Dim returns the size of axis i.
func (t *Dense) Dim(i int) int { return t.shape[i] }

// Len returns the number of entries.
func (t *Dense) Len() int { return len(t.data) }

// Data returns the underlying row-major storage.
func (t *Dense) Data() []complex128 { return t.data }

// At returns the entry at the given multi-index.
func (t *Dense) At(idx ...int) complex128 { return t.data[Ravel(idx, t.shape)] }

// Set sets the entry at the given multi-index.
func (t *Dense) Set(v complex128, idx ...int) { t.data[Ravel(idx, t.shape)] = v }

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	return &Dense{shape: t.Shape(), data: append([]complex128(nil), t.data...)}
}

// Reshape returns a tensor sharing storage with t. One entry may be -1, in
// which case it is inferred.
func (t *Dense) Reshape(shape ...int) *Dense {
	shape = append([]int(nil), shape...)
	infer := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if infer >= 0 {
				panic("tensor: more than one inferred dimension")
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			panic(fmt.Sprintf("tensor: cannot reshape %v into %v", t.shape, shape))
		}
		shape[infer] = len(t.data) / known
	}
	if Size(shape) != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v into %v", t.shape, shape))
	}
	return &Dense{shape: shape, data: t.data}
}

// Transpose returns a copy of t with axes permuted: axis i of the result is
// axis perm[i] of t.
func (t *Dense) Transpose(perm ...int) *Dense {
	if len(perm) != len(t.shape) {
		panic(fmt.Sprintf("tensor: permutation %v does not match %d axes", perm, len(t.shape)))
	}
	identity := true
	for i, p := range perm {
		if p != i {
			identity = false
			break
		}
	}
	if identity {
		return t.Clone()
	}
	newShape := make([]int, len(perm))
	for i, p := range perm {
		newShape[i] = t.shape[p]
	}
	oldStrides := strides(t.shape)
	permStrides := make([]int, len(perm))
	for i, p := range perm {
		permStrides[i] = oldStrides[p]
	}
	out := make([]complex128, len(t.data))
	idx := make([]int, len(newShape))
	src := 0
	for dst := range out {
		out[dst] = t.data[src]
		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			src += permStrides[ax]
			if idx[ax] < newShape[ax] {
				break
			}
			src -= permStrides[ax] * newShape[ax]
			idx[ax] = 0
		}
	}
	return &Dense{shape: newShape, data: out}
}

// Conj returns the elementwise complex conjugate.
func (t *Dense) Conj() *Dense {
	out := make([]complex128, len(t.data))
	for i, v := range t.data {
		out[i] = cmplx.Conj(v)
	}
	return &Dense{shape: t.Shape(), data: out}
}

// Scale returns c·t.
func (t *Dense) Scale(c complex128) *Dense {
	out := t.Clone()
	cmplxs.Scale(c, out.data)
	return out
}

// Add returns t + u. Shapes must agree.
func (t *Dense) Add(u *Dense) *Dense {
	mustSameShape(t, u)
	out := t.Clone()
	cmplxs.Add(out.data, u.data)
	return out
}

// Sub returns t - u. Shapes must agree.
func (t *Dense) Sub(u *Dense) *Dense {
	mustSameShape(t, u)
	out := t.Clone()
	cmplxs.Sub(out.data, u.data)
	return out
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 { return cmplxs.Norm(t.data, 2) }

// Inner returns Σ conj(t)·u.
func (t *Dense) Inner(u *Dense) complex128 {
	mustSameShape(t, u)
	return cmplxs.Dot(t.data, u.data)
}

// Sum returns the sum of all entries.
func (t *Dense) Sum() complex128 { return cmplxs.Sum(t.data) }

// SumAxis sums over axis ax.
func (t *Dense) SumAxis(ax int) *Dense {
	outer := Size(t.shape[:ax])
	n := t.shape[ax]
	inner := Size(t.shape[ax+1:])
	newShape := append(append([]int(nil), t.shape[:ax]...), t.shape[ax+1:]...)
	out := make([]complex128, outer*inner)
	for o := 0; o < outer; o++ {
		for k := 0; k < n; k++ {
			base := (o*n + k) * inner
			cmplxs.Add(out[o*inner:(o+1)*inner], t.data[base:base+inner])
		}
	}
	return &Dense{shape: newShape, data: out}
}

// Trace contracts axes ax1 and ax2, which must have equal size.
func (t *Dense) Trace(ax1, ax2 int) *Dense {
	if ax1 == ax2 || t.shape[ax1] != t.shape[ax2] {
		panic(fmt.Sprintf("tensor: cannot trace axes %d and %d of %v", ax1, ax2, t.shape))
	}
	if ax1 > ax2 {
		ax1, ax2 = ax2, ax1
	}
	rest := make([]int, 0, len(t.shape))
	for i := range t.shape {
		if i != ax1 && i != ax2 {
			rest = append(rest, i)
		}
	}
	perm := append(rest, ax1, ax2)
	d := t.shape[ax1]
	moved := t.Transpose(perm...)
	newShape := moved.shape[:len(rest)]
	m := Size(newShape)
	out := make([]complex128, m)
	for i := 0; i < m; i++ {
		block := moved.data[i*d*d : (i+1)*d*d]
		for k := 0; k < d; k++ {
			out[i] += block[k*d+k]
		}
	}
	return &Dense{shape: append([]int(nil), newShape...), data: out}
}

// Slice fixes axis ax to index i and drops the axis.
func (t *Dense) Slice(ax, i int) *Dense {
	outer := Size(t.shape[:ax])
	n := t.shape[ax]
	inner := Size(t.shape[ax+1:])
	newShape := append(append([]int(nil), t.shape[:ax]...), t.shape[ax+1:]...)
	out := make([]complex128, outer*inner)
	for o := 0; o < outer; o++ {
		copy(out[o*inner:(o+1)*inner], t.data[(o*n+i)*inner:(o*n+i+1)*inner])
	}
	return &Dense{shape: newShape, data: out}
}

// Real returns the real parts as a Float and the largest absolute
// imaginary part.
func (t *Dense) Real() (*Float, float64) {
	re := make([]float64, len(t.data))
	maxImag := 0.0
	for i, v := range t.data {
		re[i] = real(v)
		maxImag = math.Max(maxImag, math.Abs(imag(v)))
	}
	return NewFloat(t.shape, re), maxImag
}

// EqualApprox reports whether t and u have the same shape and all entries
// agree within tol.
func (t *Dense) EqualApprox(u *Dense, tol float64) bool {
	if !sameShape(t.shape, u.shape) {
		return false
	}
	return cmplxs.EqualApprox(t.data, u.data, tol)
}

func mustSameShape(t, u *Dense) {
	if !sameShape(t.shape, u.shape) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", t.shape, u.shape))
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}
