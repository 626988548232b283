package measurement

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/pkg/mparray"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

const testEps = 1e-10

func newTestRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 42))
}

func randomPure(t *testing.T, rng *rand.Rand, n, d, rank int) PureState {
	t.Helper()
	return PureState{MPA: mparray.RandomMPS(rng, n, d, rank)}
}

func randomPurified(t *testing.T, rng *rand.Rand, n, d, anc, rank int, impl PMPSImpl) PurifiedState {
	t.Helper()
	dims := make([]int, n)
	ancs := make([]int, n)
	for i := range dims {
		dims[i], ancs[i] = d, anc
	}
	return PurifiedState{MPA: mparray.RandomPMPS(rng, dims, ancs, rank), Impl: impl}
}

// densePMF computes tr(E_x ρ) from the dense elements and density matrix.
func densePMF(t *testing.T, p *MPPovm, rho DensityState) *tensor.Dense {
	t.Helper()
	elems, err := p.Elements()
	require.NoError(t, err)
	g, err := rho.MPA.ToArrayGlobal()
	require.NoError(t, err)
	D := tensor.Size(rho.Hdims())
	r := g.Reshape(D, D)
	x := tensor.Size(p.Outdims())
	probs := tensor.Tensordot(elems.Reshape(x, D, D), r, []int{1, 2}, []int{1, 0})
	return probs.Reshape(p.NsOutdims()...)
}

func mustLocal(t *testing.T, build Constructor, d int) *LocalPOVM {
	t.Helper()
	lp, err := build(d)
	require.NoError(t, err)
	return lp
}

// projectors returns v vᴴ for every row of vecs, stacked and reshaped.
func projectors(vecs [][]complex128, shape ...int) *tensor.Dense {
	var data []complex128
	for _, v := range vecs {
		vec := tensor.New([]int{len(v)}, v)
		data = append(data, tensor.Outer(vec, vec.Conj()).Data()...)
	}
	return tensor.New(shape, data)
}
