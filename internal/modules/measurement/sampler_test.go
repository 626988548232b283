package measurement

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xxEyeY measures X on two sites, nothing on the next and Y on the one
// after, starting at site start.
func xxEyeY(t *testing.T, nrSites, start, d int) *MPPovm {
	t.Helper()
	xx := FromLocalPOVM(mustLocal(t, XPOVM, d), 2)
	y := FromLocalPOVM(mustLocal(t, YPOVM, d), 1)
	p, err := Outer(xx, Eye([]int{d}), y).Embed(nrSites, start, []int{d})
	require.NoError(t, err)
	return p
}

func TestSample_EstimatesCloseToExact(t *testing.T) {
	tests := []struct {
		method Method
		nGroup int
	}{
		{MethodDirect, 1},
		{MethodCond, 1},
		{MethodCond, 2},
		{MethodCond, 5},
		{MethodAuto, 3},
	}
	const nSamples = 2000

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.method, tt.nGroup), func(t *testing.T) {
			rng := newTestRNG(10)
			psi := randomPure(t, rng, 5, 2, 3)
			p := xxEyeY(t, 5, 1, 2)

			exact, err := p.PMFAsArray(psi, testEps)
			require.NoError(t, err)
			samples, err := p.Sample(rng, psi, nSamples, tt.method, tt.nGroup, testEps)
			require.NoError(t, err)
			require.Len(t, samples, nSamples)
			for _, s := range samples {
				require.Len(t, s, 3)
			}

			est, err := p.EstPMF(samples, nil, true)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, est.Sum(), testEps)
			bound := 3 / math.Sqrt(nSamples)
			for i, v := range est.Data() {
				assert.InDelta(t, exact.Data()[i], v, bound, "outcome %d", i)
			}
		})
	}
}

func TestSample_MixedStates(t *testing.T) {
	rng := newTestRNG(11)
	p := FromLocalPOVM(mustLocal(t, PauliPOVM, 2), 3)
	for _, impl := range []PMPSImpl{PMPSDefault, PMPSLTR, PMPSSymm} {
		state := randomPurified(t, rng, 3, 2, 2, 2, impl)
		for _, method := range []Method{MethodDirect, MethodCond} {
			samples, err := p.Sample(rng, state, 50, method, 2, testEps)
			require.NoError(t, err)
			require.Len(t, samples, 50)
			_, err = p.EstPMF(samples, nil, false)
			assert.NoError(t, err)
		}
	}

	density := randomPurified(t, rng, 3, 2, 2, 2, PMPSDefault).ToDensity()
	samples, err := p.Sample(rng, density, 20, MethodCond, 1, testEps)
	require.NoError(t, err)
	assert.Len(t, samples, 20)
}

func TestSample_UnmeasuredChain(t *testing.T) {
	rng := newTestRNG(12)
	psi := randomPure(t, rng, 3, 2, 2)
	samples, err := Eye([]int{2, 2, 2}).Sample(rng, psi, 4, MethodCond, 1, testEps)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	for _, s := range samples {
		assert.Empty(t, s)
	}
}

func TestSample_NegativeCount(t *testing.T) {
	rng := newTestRNG(13)
	psi := randomPure(t, rng, 2, 2, 2)
	p := FromLocalPOVM(mustLocal(t, ZPOVM, 2), 2)
	for _, method := range []Method{MethodDirect, MethodCond} {
		_, err := p.Sample(rng, psi, -1, method, 1, testEps)
		assert.ErrorIs(t, err, ErrDimensionMismatch, string(method))
	}

	samples, err := p.Sample(rng, psi, 0, MethodDirect, 1, testEps)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestMethod_ParseAndResolve(t *testing.T) {
	for _, name := range []string{"direct", "cond", "auto"} {
		m, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, Method(name), m)
	}
	_, err := ParseMethod("gibbs")
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	p := FromLocalPOVM(mustLocal(t, ZPOVM, 2), 4)
	assert.Equal(t, MethodDirect, MethodAuto.Resolve(p, 16))
	assert.Equal(t, MethodCond, MethodAuto.Resolve(p, 15))
	assert.Equal(t, MethodCond, MethodCond.Resolve(p, 1<<20))
}
