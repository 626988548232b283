package measurement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

func TestEstPMFFrom_GivenOutcomes(t *testing.T) {
	const nrSites, d, nSamples = 5, 2, 2000
	for _, start := range []int{0, 1} {
		rng := newTestRNG(15)
		psi := randomPure(t, rng, nrSites, d, 3)

		x := FromLocalPOVM(mustLocal(t, XPOVM, d), 1)
		y := FromLocalPOVM(mustLocal(t, YPOVM, d), 1)
		pauli := FromLocalPOVM(mustLocal(t, PauliPOVM, d), 1)
		source := Outer(x, y, x, y, x)
		small, err := Outer(pauli, Eye([]int{d}), pauli, pauli).Embed(nrSites, start, []int{d})
		require.NoError(t, err)

		// X outcomes come first in the Pauli measurement, then Y, then Z.
		given := func(site, k int) bool {
			if site%2 == 0 {
				return k < 2
			}
			return k >= 2 && k < 4
		}
		exact, err := small.PMFAsArray(psi, testEps)
		require.NoError(t, err)

		samples, err := source.Sample(rng, psi, nSamples, MethodCond, 3, testEps)
		require.NoError(t, err)
		est, n, err := small.EstPMFFrom(source, samples, testEps)
		require.NoError(t, err)
		assert.Equal(t, nSamples, n)
		require.Equal(t, exact.Shape(), est.Shape())

		sites := []int{start, start + 2, start + 3}
		var exactSum, estSum float64
		tensor.NdIndex(est.Shape(), func(idx []int) {
			want := given(sites[0], idx[0]) && given(sites[1], idx[1]) && given(sites[2], idx[2])
			v := est.At(idx...)
			assert.Equal(t, want, v.Valid, "start %d index %v", start, idx)
			if v.Valid {
				exactSum += exact.At(idx...)
				estSum += v.Value
				assert.InDelta(t, exact.At(idx...), v.Value, 1/math.Sqrt(nSamples))
			}
		})
		assert.InDelta(t, exactSum, estSum, testEps)
	}
}

func TestEstPMFFrom_NothingDefined(t *testing.T) {
	rng := newTestRNG(16)
	psi := randomPure(t, rng, 2, 2, 2)
	source := FromLocalPOVM(mustLocal(t, YPOVM, 2), 2)
	target := FromLocalPOVM(mustLocal(t, XPOVM, 2), 2)

	samples, err := source.Sample(rng, psi, 10, MethodDirect, 1, testEps)
	require.NoError(t, err)
	est, n, err := target.EstPMFFrom(source, samples, testEps)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	for _, v := range est.Data() {
		assert.False(t, v.Valid)
	}
}
