package measurement

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

func indicators(p *MPPovm) []OutcomeFunc {
	var funs []OutcomeFunc
	tensor.NdIndex(p.NsOutdims(), func(idx []int) {
		funs = append(funs, Indicator{Outcome: toSample(idx)})
	})
	return funs
}

func TestEstimators_AgreeWithExact(t *testing.T) {
	const nSamples = 3000
	rng := newTestRNG(13)
	psi := randomPure(t, rng, 4, 2, 3)
	p := xxEyeY(t, 4, 0, 2)

	exact, err := p.PMFAsArray(psi, testEps)
	require.NoError(t, err)
	vec, err := p.LfunVector(psi, testEps)
	require.NoError(t, err)
	assert.InDeltaSlice(t, exact.Data(), vec.Mean, testEps)
	k := len(vec.Mean)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			want := -vec.Mean[i] * vec.Mean[j]
			if i == j {
				want += vec.Mean[i]
			}
			assert.InDelta(t, want, vec.Cov.At(i, j), testEps)
		}
	}

	samples, err := p.Sample(rng, psi, nSamples, MethodCond, 4, testEps)
	require.NoError(t, err)
	hist, err := p.EstPMF(samples, nil, true)
	require.NoError(t, err)
	est, err := p.EstLfunVector(samples, nil)
	require.NoError(t, err)
	assert.Equal(t, hist.Data(), est.Mean)

	bound := 3 / math.Sqrt(nSamples)
	for i, v := range est.Mean {
		assert.InDelta(t, exact.Data()[i], v, bound)
	}

	// All probabilities sum to one with no spread.
	funs := indicators(p)
	weights := make([]float64, nSamples)
	for i := range weights {
		weights[i] = 1
	}
	sum, err := p.EstLfun(ones(len(funs)), funs, samples, weights)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sum.Value, testEps)
	assert.InDelta(t, 0.0, sum.Variance, testEps)

	exactSum, err := p.Lfun(ones(len(funs)), funs, psi, testEps)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, exactSum.Value, testEps)
	assert.InDelta(t, 0.0, exactSum.Variance, testEps)

	// A sum with varying signs.
	coeff := make([]float64, len(funs))
	for i := range coeff {
		coeff[i] = 1
		if rng.IntN(2) == 0 {
			coeff[i] = -1
		}
	}
	signed, err := p.EstLfun(coeff, funs, samples, nil)
	require.NoError(t, err)
	signedExact, err := p.Lfun(coeff, nil, psi, testEps)
	require.NoError(t, err)
	assert.InDelta(t, signedExact.Value, signed.Value, bound)
	assert.InDelta(t, signedExact.Variance/nSamples, signed.Variance, 3/math.Pow(nSamples, 1.5))

	// Counts used as weights on one sample per outcome give the same
	// estimate.
	counts, err := p.EstPMF(samples, nil, false)
	require.NoError(t, err)
	assert.Equal(t, float64(nSamples), counts.Sum())
	var countSamples [][]uint8
	tensor.NdIndex(p.NsOutdims(), func(idx []int) {
		countSamples = append(countSamples, toSample(idx))
	})
	weighted, err := p.EstLfun(coeff, funs, countSamples, counts.Data())
	require.NoError(t, err)
	assert.InDelta(t, signed.Value, weighted.Value, testEps)
	assert.InDelta(t, signed.Variance, weighted.Variance, testEps)
}

func TestEstLfun_ParallelMatchesSerial(t *testing.T) {
	rng := newTestRNG(14)
	psi := randomPure(t, rng, 3, 2, 2)
	p := FromLocalPOVM(mustLocal(t, PauliPOVM, 2), 3)
	samples, err := p.Sample(rng, psi, 3*momentBatchSize+17, MethodDirect, 1, testEps)
	require.NoError(t, err)

	coeff := make([]float64, p.NumOutcomes())
	for i := range coeff {
		coeff[i] = rng.NormFloat64()
	}
	serial, err := p.EstLfunContext(context.Background(), workers.NewWorkerPool(1), coeff, nil, samples, nil)
	require.NoError(t, err)
	parallel, err := p.EstLfunContext(context.Background(), workers.NewWorkerPool(4), coeff, nil, samples, nil)
	require.NoError(t, err)
	assert.InDelta(t, serial.Value, parallel.Value, 1e-12)
	assert.InDelta(t, serial.Variance, parallel.Variance, 1e-12)

	var m moments
	for _, s := range samples {
		m.add(coeff[ravelSample(s, p.NsOutdims())], 1)
	}
	assert.InDelta(t, m.mean, serial.Value, 1e-12)
}

func TestEstLfun_Errors(t *testing.T) {
	p := FromLocalPOVM(mustLocal(t, ZPOVM, 2), 2)

	_, err := p.EstLfun([]float64{1, 2, 3}, nil, [][]uint8{{0, 1}}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = p.EstLfun(ones(4), nil, [][]uint8{{0, 2}}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = p.EstLfun(ones(4), nil, [][]uint8{{0, 1}}, []float64{1, 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	single, err := p.EstLfun(ones(4), nil, [][]uint8{{0, 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, single.Value)
	assert.True(t, math.IsNaN(single.Variance))
}

func TestMoments_Merge(t *testing.T) {
	values := []float64{1, 4, 2, 8, 5, 7}
	var all, left, right moments
	for i, v := range values {
		all.add(v, 1)
		if i < 2 {
			left.add(v, 1)
		} else {
			right.add(v, 1)
		}
	}
	merged := left.merge(right)
	assert.InDelta(t, all.mean, merged.mean, 1e-12)
	assert.InDelta(t, all.m2, merged.m2, 1e-12)
	assert.Equal(t, all, moments{}.merge(all))
}
