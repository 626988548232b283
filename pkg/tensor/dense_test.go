package tensor

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(shape ...int) *Dense {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = complex(float64(i), float64(-i)/2)
	}
	return t
}

func TestRavelUnravel(t *testing.T) {
	shape := []int{2, 3, 4}
	for flat := 0; flat < Size(shape); flat++ {
		idx := Unravel(flat, shape, nil)
		assert.Equal(t, flat, Ravel(idx, shape))
	}
	assert.Equal(t, []int{1, 2, 3}, Unravel(23, shape, nil))
}

func TestReshapeInfer(t *testing.T) {
	a := seq(2, 3, 4)
	b := a.Reshape(6, -1)
	assert.Equal(t, []int{6, 4}, b.Shape())
	assert.Equal(t, a.At(1, 2, 3), b.At(5, 3))
	assert.Panics(t, func() { a.Reshape(5, -1) })
}

func TestTranspose(t *testing.T) {
	a := seq(2, 3, 4)
	b := a.Transpose(2, 0, 1)
	require.Equal(t, []int{4, 2, 3}, b.Shape())
	NdIndex(a.Shape(), func(idx []int) {
		assert.Equal(t, a.At(idx...), b.At(idx[2], idx[0], idx[1]))
	})
}

func TestTensordotMatchesLoops(t *testing.T) {
	a := seq(2, 3, 4)
	b := seq(4, 5, 3)
	c := Tensordot(a, b, []int{1, 2}, []int{2, 0})
	require.Equal(t, []int{2, 5}, c.Shape())
	for i := 0; i < 2; i++ {
		for j := 0; j < 5; j++ {
			var want complex128
			for k := 0; k < 3; k++ {
				for l := 0; l < 4; l++ {
					want += a.At(i, k, l) * b.At(l, j, k)
				}
			}
			assert.InDelta(t, real(want), real(c.At(i, j)), 1e-9)
			assert.InDelta(t, imag(want), imag(c.At(i, j)), 1e-9)
		}
	}
}

func TestTensordotFullContraction(t *testing.T) {
	a := seq(2, 2)
	c := Tensordot(a, a.Conj(), []int{0, 1}, []int{0, 1})
	assert.Equal(t, 0, c.Ndim())
	assert.InDelta(t, a.Norm()*a.Norm(), real(c.Data()[0]), 1e-9)
}

func TestKronAndTrace(t *testing.T) {
	x := New([]int{2, 2}, []complex128{0, 1, 1, 0})
	k := Kron(x, Eye(3))
	assert.Equal(t, []int{6, 6}, k.Shape())
	assert.Equal(t, complex(1, 0), k.At(0, 3))
	assert.Equal(t, complex(0, 0), k.At(0, 4))

	tr := Eye(3).Trace(0, 1)
	assert.Equal(t, complex(3, 0), tr.Data()[0])

	a := seq(2, 3, 2)
	p := a.Trace(0, 2)
	require.Equal(t, []int{3}, p.Shape())
	assert.Equal(t, a.At(0, 1, 0)+a.At(1, 1, 1), p.At(1))
}

func TestSumAxisAndSlice(t *testing.T) {
	a := seq(2, 3)
	s := a.SumAxis(1)
	assert.Equal(t, a.At(1, 0)+a.At(1, 1)+a.At(1, 2), s.At(1))
	sl := a.Slice(1, 2)
	assert.Equal(t, []int{2}, sl.Shape())
	assert.Equal(t, a.At(1, 2), sl.At(1))
}

func TestRealReportsImag(t *testing.T) {
	a := New([]int{2}, []complex128{1 + 1e-3i, 2})
	re, im := a.Real()
	assert.Equal(t, []float64{1, 2}, re.Data())
	assert.InDelta(t, 1e-3, im, 1e-15)
}

func TestOpt(t *testing.T) {
	assert.True(t, math.IsNaN(None().OrNaN()))
	assert.Equal(t, Some(3), Some(1).Add(Some(2)))
	assert.False(t, Some(1).Add(None()).Valid)
	assert.False(t, None().Mul(Some(2)).Valid)

	b, err := json.Marshal([]Opt{Some(0.5), None()})
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5, null]`, string(b))

	of := NewOptFloat(2, 2)
	of.Set(Some(1), 1, 0)
	assert.Equal(t, []bool{false, false, true, false}, of.Defined())
}
