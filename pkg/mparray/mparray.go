// Package mparray implements matrix-product arrays: chains of local tensors
// with legs (left, physical..., right) whose contraction along the virtual
// bonds yields a large dense array.
//
// Only the operations needed by the measurement layer are provided. No
// truncation is performed: every operation is exact.
package mparray

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

// ErrShape is returned when local tensors do not fit together.
var ErrShape = errors.New("mparray: inconsistent shape")

// MPArray is an immutable chain of local tensors.
type MPArray struct {
	lt []*tensor.Dense
}

// New builds an MPArray from local tensors with legs (left, phys..., right).
// Neighbouring bond dimensions must agree and the outer bonds must be 1.
func New(lts []*tensor.Dense) (*MPArray, error) {
	if len(lts) == 0 {
		return nil, fmt.Errorf("%w: no sites", ErrShape)
	}
	for i, t := range lts {
		if t.Ndim() < 2 {
			return nil, fmt.Errorf("%w: site %d has %d legs", ErrShape, i, t.Ndim())
		}
		if i > 0 && lts[i-1].Dim(lts[i-1].Ndim()-1) != t.Dim(0) {
			return nil, fmt.Errorf("%w: bond %d has dims %d and %d", ErrShape, i-1,
				lts[i-1].Dim(lts[i-1].Ndim()-1), t.Dim(0))
		}
	}
	last := lts[len(lts)-1]
	if lts[0].Dim(0) != 1 || last.Dim(last.Ndim()-1) != 1 {
		return nil, fmt.Errorf("%w: outer bonds must have dimension 1", ErrShape)
	}
	return &MPArray{lt: append([]*tensor.Dense(nil), lts...)}, nil
}

// Must is New that panics on error.
func Must(lts []*tensor.Dense) *MPArray {
	a, err := New(lts)
	if err != nil {
		panic(err)
	}
	return a
}

// Len returns the number of sites.
func (a *MPArray) Len() int { return len(a.lt) }

// LT returns the local tensor of site i. It must not be modified.
func (a *MPArray) LT(i int) *tensor.Dense { return a.lt[i] }

// LTs returns a copy of the local tensor slice.
func (a *MPArray) LTs() []*tensor.Dense { return append([]*tensor.Dense(nil), a.lt...) }

// Plegs returns the number of physical legs of site i.
func (a *MPArray) Plegs(i int) int { return a.lt[i].Ndim() - 2 }

// Shape returns the physical dimensions of every site.
func (a *MPArray) Shape() [][]int {
	out := make([][]int, len(a.lt))
	for i, t := range a.lt {
		s := t.Shape()
		out[i] = s[1 : len(s)-1]
	}
	return out
}

// Ranks returns the bond dimensions between neighbouring sites.
func (a *MPArray) Ranks() []int {
	out := make([]int, len(a.lt)-1)
	for i := range out {
		out[i] = a.lt[i].Dim(a.lt[i].Ndim() - 1)
	}
	return out
}

// FromArray decomposes a dense array into an MPArray with plegs physical
// legs per site. Axes of arr are in local order: all legs of site 0, then all
// legs of site 1 and so on. The decomposition is exact and uses no
// compression, so bond dimensions equal the size of the remaining array.
func FromArray(arr *tensor.Dense, plegs int) (*MPArray, error) {
	if plegs <= 0 || arr.Ndim() == 0 || arr.Ndim()%plegs != 0 {
		return nil, fmt.Errorf("%w: %d axes cannot be split into sites of %d legs",
			ErrShape, arr.Ndim(), plegs)
	}
	shape := arr.Shape()
	n := len(shape) / plegs
	lts := make([]*tensor.Dense, n)
	left := 1
	for i := 0; i < n; i++ {
		phys := shape[i*plegs : (i+1)*plegs]
		right := tensor.Size(shape[(i+1)*plegs:])
		ltShape := append(append([]int{left}, phys...), right)
		if i == 0 {
			lts[i] = arr.Clone().Reshape(ltShape...)
		} else {
			lts[i] = delta(left, tensor.Size(phys), right).Reshape(ltShape...)
		}
		left = right
	}
	return New(lts)
}

// delta returns T[a, p, b] = 1 if a == p*right + b.
func delta(left, p, right int) *tensor.Dense {
	t := tensor.Zeros(left, p, right)
	data := t.Data()
	for k := 0; k < p; k++ {
		for b := 0; b < right; b++ {
			a := k*right + b
			data[(a*p+k)*right+b] = 1
		}
	}
	return t
}

// FromArrayGlobal is FromArray for arrays in global order: leg 0 of every
// site, then leg 1 of every site and so on.
func FromArrayGlobal(arr *tensor.Dense, plegs int) (*MPArray, error) {
	if plegs <= 0 || arr.Ndim() == 0 || arr.Ndim()%plegs != 0 {
		return nil, fmt.Errorf("%w: %d axes cannot be split into sites of %d legs",
			ErrShape, arr.Ndim(), plegs)
	}
	n := arr.Ndim() / plegs
	perm := make([]int, 0, arr.Ndim())
	for i := 0; i < n; i++ {
		for j := 0; j < plegs; j++ {
			perm = append(perm, j*n+i)
		}
	}
	return FromArray(arr.Transpose(perm...), plegs)
}

// ToArray contracts all bonds and returns the dense array in local order.
func (a *MPArray) ToArray() *tensor.Dense {
	acc := a.lt[0]
	for _, t := range a.lt[1:] {
		acc = tensor.Tensordot(acc, t, []int{acc.Ndim() - 1}, []int{0})
	}
	s := acc.Shape()
	return acc.Reshape(s[1 : len(s)-1]...)
}

// ToArrayGlobal returns the dense array in global order. All sites must have
// the same number of physical legs.
func (a *MPArray) ToArrayGlobal() (*tensor.Dense, error) {
	plegs := a.Plegs(0)
	for i := range a.lt {
		if a.Plegs(i) != plegs {
			return nil, fmt.Errorf("%w: sites have different numbers of legs", ErrShape)
		}
	}
	n := len(a.lt)
	perm := make([]int, 0, n*plegs)
	for j := 0; j < plegs; j++ {
		for i := 0; i < n; i++ {
			perm = append(perm, i*plegs+j)
		}
	}
	return a.ToArray().Transpose(perm...), nil
}

// Outer concatenates chains: the tensor product of the arrays in order.
func Outer(arrays ...*MPArray) *MPArray {
	var lts []*tensor.Dense
	for _, a := range arrays {
		lts = append(lts, a.lt...)
	}
	return &MPArray{lt: lts}
}

// Scale returns c·a.
func (a *MPArray) Scale(c complex128) *MPArray {
	lts := a.LTs()
	lts[0] = lts[0].Scale(c)
	return &MPArray{lt: lts}
}

// Conj returns the elementwise complex conjugate.
func (a *MPArray) Conj() *MPArray {
	lts := make([]*tensor.Dense, len(a.lt))
	for i, t := range a.lt {
		lts[i] = t.Conj()
	}
	return &MPArray{lt: lts}
}

// Dot contracts physical leg axA of every site of a with physical leg axB of
// the same site of b. Negative leg indices count from the last physical leg.
func Dot(a, b *MPArray, axA, axB int) (*MPArray, error) {
	if a.Len() != b.Len() {
		return nil, fmt.Errorf("%w: %d and %d sites", ErrShape, a.Len(), b.Len())
	}
	lts := make([]*tensor.Dense, a.Len())
	for i := range lts {
		ta, tb := a.lt[i], b.lt[i]
		pa, pb := a.Plegs(i), b.Plegs(i)
		ia, ib := axA, axB
		if ia < 0 {
			ia += pa
		}
		if ib < 0 {
			ib += pb
		}
		if ia < 0 || ia >= pa || ib < 0 || ib >= pb || ta.Dim(1+ia) != tb.Dim(1+ib) {
			return nil, fmt.Errorf("%w: cannot contract site %d legs %d and %d", ErrShape, i, axA, axB)
		}
		c := tensor.Tensordot(ta, tb, []int{1 + ia}, []int{1 + ib})
		// c legs: la, freeA(pa-1), ra, lb, freeB(pb-1), rb
		na := pa + 1
		perm := []int{0, na}
		for k := 1; k < na-1; k++ {
			perm = append(perm, k)
		}
		for k := na + 1; k < c.Ndim()-1; k++ {
			perm = append(perm, k)
		}
		perm = append(perm, na-1, c.Ndim()-1)
		c = c.Transpose(perm...)
		s := c.Shape()
		shape := append([]int{s[0] * s[1]}, s[2:len(s)-2]...)
		shape = append(shape, s[len(s)-2]*s[len(s)-1])
		lts[i] = c.Reshape(shape...)
	}
	return New(lts)
}

// PartialTrace traces out pairs of physical legs. axes maps a site to the
// two legs traced there; other sites are left untouched.
func PartialTrace(a *MPArray, axes map[int][2]int) (*MPArray, error) {
	lts := a.LTs()
	for i, ax := range axes {
		if i < 0 || i >= len(lts) {
			return nil, fmt.Errorf("%w: site %d out of range", ErrShape, i)
		}
		t := lts[i]
		if t.Dim(1+ax[0]) != t.Dim(1+ax[1]) {
			return nil, fmt.Errorf("%w: cannot trace legs %v at site %d", ErrShape, ax, i)
		}
		lts[i] = t.Trace(1+ax[0], 1+ax[1])
	}
	return New(lts)
}

// SumLeg sums physical leg leg of every site in sites.
func SumLeg(a *MPArray, sites []int, leg int) *MPArray {
	lts := a.LTs()
	for _, i := range sites {
		lts[i] = lts[i].SumAxis(1 + leg)
	}
	return &MPArray{lt: lts}
}

// Prune contracts sites without physical legs into their neighbours. With
// singletons set, sites whose physical legs all have dimension 1 are
// removed as well. If no site remains, a single site without physical legs
// holding the scalar is returned.
func Prune(a *MPArray, singletons bool) *MPArray {
	prunable := func(t *tensor.Dense) bool {
		if t.Ndim() == 2 {
			return true
		}
		if !singletons {
			return false
		}
		for _, d := range t.Shape()[1 : t.Ndim()-1] {
			if d != 1 {
				return false
			}
		}
		return true
	}
	var out []*tensor.Dense
	var pending *tensor.Dense // (l, r) matrix waiting to be absorbed to the right
	for _, t := range a.lt {
		if prunable(t) {
			m := t.Reshape(t.Dim(0), t.Dim(t.Ndim()-1))
			if pending == nil {
				pending = m
			} else {
				pending = tensor.Matmul(pending, m)
			}
			continue
		}
		if pending != nil {
			t = tensor.Tensordot(pending, t, []int{1}, []int{0})
			pending = nil
		}
		out = append(out, t)
	}
	if pending != nil {
		if len(out) == 0 {
			return &MPArray{lt: []*tensor.Dense{pending}}
		}
		last := out[len(out)-1]
		out[len(out)-1] = tensor.Tensordot(last, pending, []int{last.Ndim() - 1}, []int{0})
	}
	return &MPArray{lt: out}
}

// Inner returns Σ conj(a)·b.
func Inner(a, b *MPArray) (complex128, error) {
	if a.Len() != b.Len() {
		return 0, fmt.Errorf("%w: %d and %d sites", ErrShape, a.Len(), b.Len())
	}
	env := tensor.Ones(1, 1)
	for i := range a.lt {
		ta, tb := a.lt[i].Conj(), b.lt[i]
		if ta.Ndim() != tb.Ndim() {
			return 0, fmt.Errorf("%w: site %d leg count differs", ErrShape, i)
		}
		for k := 1; k < ta.Ndim()-1; k++ {
			if ta.Dim(k) != tb.Dim(k) {
				return 0, fmt.Errorf("%w: site %d physical dims differ", ErrShape, i)
			}
		}
		// env (ra, rb) · conj(a) over ra -> (rb, phys..., ra')
		tmp := tensor.Tensordot(env, ta, []int{0}, []int{0})
		axT := make([]int, 0, tb.Ndim()-1)
		axB := make([]int, 0, tb.Ndim()-1)
		for k := 0; k < tb.Ndim()-1; k++ {
			axT = append(axT, k)
			axB = append(axB, k)
		}
		env = tensor.Tensordot(tmp, tb, axT, axB)
	}
	return env.Data()[0], nil
}

// Norm returns the Frobenius norm.
func Norm(a *MPArray) float64 {
	v, _ := Inner(a, a)
	return math.Sqrt(math.Max(real(v), 0))
}

// NormDist returns the Frobenius norm of a − b.
func NormDist(a, b *MPArray) (float64, error) {
	ab, err := Inner(a, b)
	if err != nil {
		return 0, err
	}
	aa, _ := Inner(a, a)
	bb, _ := Inner(b, b)
	d := real(aa) + real(bb) - 2*real(ab)
	return math.Sqrt(math.Max(d, 0)), nil
}

// Normalized returns a / ‖a‖.
func Normalized(a *MPArray) *MPArray {
	n := Norm(a)
	if n == 0 {
		return a
	}
	return a.Scale(complex(1/n, 0))
}
