package mparray

import (
	"math/rand/v2"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

// RandomMPA returns an MPArray with standard complex normal entries. phys[i]
// lists the physical dimensions of site i; all inner bonds have dimension
// rank.
func RandomMPA(rng *rand.Rand, phys [][]int, rank int) *MPArray {
	n := len(phys)
	lts := make([]*tensor.Dense, n)
	for i, p := range phys {
		l, r := rank, rank
		if i == 0 {
			l = 1
		}
		if i == n-1 {
			r = 1
		}
		shape := append(append([]int{l}, p...), r)
		t := tensor.Zeros(shape...)
		data := t.Data()
		for k := range data {
			data[k] = complex(rng.NormFloat64(), rng.NormFloat64())
		}
		lts[i] = t
	}
	return Must(lts)
}

// RandomMPS returns a normalized random matrix product state.
func RandomMPS(rng *rand.Rand, nsites, dim, rank int) *MPArray {
	return Normalized(RandomMPA(rng, uniform(nsites, dim), rank))
}

// RandomMPO returns a random (not necessarily positive) operator with legs
// (row, col) per site.
func RandomMPO(rng *rand.Rand, dims []int, rank int) *MPArray {
	phys := make([][]int, len(dims))
	for i, d := range dims {
		phys[i] = []int{d, d}
	}
	return RandomMPA(rng, phys, rank)
}

// RandomPMPS returns a normalized purification with legs (phys, ancilla).
func RandomPMPS(rng *rand.Rand, dims, ancilla []int, rank int) *MPArray {
	phys := make([][]int, len(dims))
	for i, d := range dims {
		phys[i] = []int{d, ancilla[i]}
	}
	return Normalized(RandomMPA(rng, phys, rank))
}

// Eye returns the identity operator on nsites sites of dimension dim as an
// MPArray with legs (row, col).
func Eye(nsites, dim int) *MPArray {
	lts := make([]*tensor.Dense, nsites)
	for i := range lts {
		lts[i] = tensor.Eye(dim).Reshape(1, dim, dim, 1)
	}
	return Must(lts)
}

func uniform(n, d int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = []int{d}
	}
	return out
}
