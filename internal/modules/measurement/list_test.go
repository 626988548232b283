package measurement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func globalPauli(t *testing.T, width, nrSites, d int) *MPPovmList {
	t.Helper()
	l, err := PauliMPPs(width, d)
	require.NoError(t, err)
	l, err = l.Repeat(nrSites)
	require.NoError(t, err)
	return l
}

func blockPauli(t *testing.T, width, nrSites, d int) *MPPovmList {
	t.Helper()
	p, err := PauliMPP(width, d)
	require.NoError(t, err)
	l, err := p.Block(nrSites)
	require.NoError(t, err)
	return l
}

func singleList(t *testing.T, mpps ...*MPPovm) *MPPovmList {
	t.Helper()
	l, err := NewMPPovmList(mpps)
	require.NoError(t, err)
	return l
}

func randomCoeff(l *MPPovmList, rng interface{ NormFloat64() float64 }) [][]float64 {
	coeff := make([][]float64, l.Len())
	for i, p := range l.Members() {
		coeff[i] = make([]float64, p.NumOutcomes())
		for k := range coeff[i] {
			coeff[i][k] = rng.NormFloat64() / float64(l.Len())
		}
	}
	return coeff
}

func TestPauliMPPs_Members(t *testing.T) {
	l, err := PauliMPPs(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 9, l.Len())

	l, err = PauliMPPs(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())

	p, err := PauliMPP(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12}, p.Outdims())

	_, err = NewMPPovmList(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = NewMPPovmList([]*MPPovm{p, Eye([]int{2, 2})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMPPovmList_EstPMFFrom(t *testing.T) {
	const nrSites, d, nSamples = 4, 2, 1000
	for _, nonuniform := range []bool{false, true} {
		rng := newTestRNG(17)
		psi := randomPure(t, rng, nrSites, d, 3)

		source := globalPauli(t, 2, nrSites, d)
		if nonuniform {
			x := FromLocalPOVM(mustLocal(t, XPOVM, d), 1)
			y := FromLocalPOVM(mustLocal(t, YPOVM, d), 1)
			source = singleList(t, append(source.Members(), Outer(x, x, x, y))...)
		}
		target := blockPauli(t, 2, nrSites, d)

		samples, err := source.Sample(rng, psi, nSamples, MethodDirect, 1, testEps)
		require.NoError(t, err)
		est, err := target.EstPMFFrom(source, samples, testEps)
		require.NoError(t, err)
		exact, err := target.PMFAsArray(psi, testEps)
		require.NoError(t, err)
		require.Len(t, est, target.Len())

		var all []int
		for m, cross := range est {
			assert.Equal(t, target.Member(m).NsOutdims(), cross.PMF.Shape())
			all = append(all, cross.NSamples...)
			for i, v := range cross.PMF.Data() {
				require.True(t, v.Valid)
				bound := 3 / math.Sqrt(float64(cross.NSamples[i]))
				assert.InDelta(t, exact[m].Data()[i], v.Value, bound)
			}
		}
		uniform := true
		for _, n := range all {
			uniform = uniform && n == all[0]
		}
		assert.Equal(t, !nonuniform, uniform)
	}
}

func TestMPPovmList_LfunFrom(t *testing.T) {
	const nrSites, d = 4, 2
	rng := newTestRNG(18)
	psi := randomPure(t, rng, nrSites, d, 3)

	yAll := singleList(t, FromLocalPOVM(mustLocal(t, YPOVM, d), nrSites))
	xLocal, err := FromLocalPOVM(mustLocal(t, XPOVM, d), 2).Embed(nrSites, 0, []int{d})
	require.NoError(t, err)

	tests := []struct {
		name       string
		source     *MPPovmList
		target     *MPPovmList
		impossible bool
	}{
		{"global to pauli", globalPauli(t, 2, nrSites, d), blockPauli(t, 2, nrSites, d), false},
		{"global to all-y", globalPauli(t, 2, nrSites, d), yAll, false},
		{"pauli to pauli", blockPauli(t, 2, nrSites, d), blockPauli(t, 2, nrSites, d), false},
		{"all-y to local-x", yAll, singleList(t, xLocal), true},
		{"all-y to pauli", yAll, blockPauli(t, 2, nrSites, d), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coeff := randomCoeff(tt.target, rng)
			direct, err := tt.target.Lfun(coeff, nil, psi, testEps)
			require.NoError(t, err)
			from, err := tt.target.LfunFrom(tt.source, coeff, psi, nil, testEps)
			require.NoError(t, err)
			if tt.impossible {
				assert.False(t, from.Value.Valid)
				assert.False(t, from.Variance.Valid)
				assert.True(t, math.IsNaN(from.Value.OrNaN()))
				return
			}
			require.True(t, from.Value.Valid)
			assert.InDelta(t, direct.Value, from.Value.Value, testEps)
			assert.GreaterOrEqual(t, from.Variance.Value, -testEps)
		})
	}
}

func TestMPPovmList_EstLfunFromOnes(t *testing.T) {
	const nrSites, d, nSamples = 4, 2, 200
	rng := newTestRNG(19)
	psi := randomPure(t, rng, nrSites, d, 3)
	source := globalPauli(t, 2, nrSites, d)
	target := blockPauli(t, 2, nrSites, d)

	coeff := make([][]float64, target.Len())
	for i, p := range target.Members() {
		coeff[i] = make([]float64, p.NumOutcomes())
		for k := range coeff[i] {
			coeff[i][k] = 1 / float64(target.Len())
		}
	}
	samples, err := source.Sample(rng, psi, nSamples, MethodDirect, 1, testEps)
	require.NoError(t, err)

	est, err := target.EstLfunFrom(source, coeff, samples, testEps)
	require.NoError(t, err)
	require.True(t, est.Value.Valid)
	assert.InDelta(t, 1.0, est.Value.Value, testEps)
	assert.InDelta(t, 0.0, est.Variance.Value, testEps)

	exact, err := target.LfunFrom(source, coeff, psi, nil, testEps)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, exact.Value.Value, testEps)
	assert.InDelta(t, 0.0, exact.Variance.Value, testEps)
}

func TestMPPovmList_EstLfunFromRandomCoeff(t *testing.T) {
	const nrSites, d, nSamples = 4, 2, 4000
	for _, seed := range []uint64{21, 22} {
		rng := newTestRNG(seed)
		psi := randomPure(t, rng, nrSites, d, 3)

		x := FromLocalPOVM(mustLocal(t, XPOVM, d), 1)
		y := FromLocalPOVM(mustLocal(t, YPOVM, d), 1)
		global := globalPauli(t, 2, nrSites, d)
		source := singleList(t, append(global.Members(), Outer(x, x, x, y))...)
		target := blockPauli(t, 2, nrSites, d)
		coeff := randomCoeff(target, rng)
		nEff := float64(nSamples * source.Len())

		samples, err := source.Sample(rng, psi, nSamples, MethodDirect, 1, testEps)
		require.NoError(t, err)

		exact, err := target.LfunFrom(source, coeff, psi, nil, testEps)
		require.NoError(t, err)
		require.True(t, exact.Value.Valid)
		require.True(t, exact.Variance.Valid)
		direct, err := target.Lfun(coeff, nil, psi, testEps)
		require.NoError(t, err)
		assert.InDelta(t, direct.Value, exact.Value.Value, testEps)

		est, err := target.EstLfunFrom(source, coeff, samples, testEps)
		require.NoError(t, err)
		require.True(t, est.Value.Valid)
		assert.LessOrEqual(t, math.Abs(est.Value.Value-exact.Value.Value), 6/math.Sqrt(nEff))

		// Equal counts per source member: the variance of the mean is the
		// single-sample variance divided by the count.
		meanVar := exact.Variance.Value / nSamples
		assert.LessOrEqual(t, nSamples*math.Abs(est.Variance.Value-meanVar), 1/math.Sqrt(nEff))
	}
}

func TestMPPovmList_FromSelf(t *testing.T) {
	const nrSites, d, nSamples = 3, 2, 300
	rng := newTestRNG(20)
	psi := randomPure(t, rng, nrSites, d, 2)
	l := blockPauli(t, 2, nrSites, d)
	coeff := randomCoeff(l, rng)

	samples, err := l.Sample(rng, psi, nSamples, MethodDirect, 1, testEps)
	require.NoError(t, err)

	from, err := l.EstLfunFrom(l, coeff, samples, testEps)
	require.NoError(t, err)
	direct, err := l.EstLfun(coeff, nil, samples)
	require.NoError(t, err)
	assert.InDelta(t, direct.Value, from.Value.Value, testEps)
	assert.InDelta(t, direct.Variance, from.Variance.Value, testEps)

	exactFrom, err := l.LfunFrom(l, coeff, psi, nil, testEps)
	require.NoError(t, err)
	exact, err := l.Lfun(coeff, nil, psi, testEps)
	require.NoError(t, err)
	assert.InDelta(t, exact.Value, exactFrom.Value.Value, testEps)
	assert.InDelta(t, exact.Variance, exactFrom.Variance.Value, testEps)

	hist, err := l.EstPMF(samples, true)
	require.NoError(t, err)
	cross, err := l.EstPMFFrom(l, samples, testEps)
	require.NoError(t, err)
	for m := range hist {
		for i, v := range cross[m].PMF.Data() {
			assert.InDelta(t, hist[m].Data()[i], v.Value, testEps)
		}
	}
}

func TestMPPovmList_Errors(t *testing.T) {
	l := blockPauli(t, 2, 3, 2)
	_, err := l.EstPMF(nil, true)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = l.SampleCounts(newTestRNG(1), randomPure(t, newTestRNG(2), 3, 2, 2), []int{1}, MethodDirect, 1, testEps)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = l.LfunFrom(l, [][]float64{{1}}, randomPure(t, newTestRNG(3), 3, 2, 2), nil, testEps)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	counts := make([]int, l.Len())
	counts[l.Len()-1] = -1
	_, err = l.SampleCounts(newTestRNG(4), randomPure(t, newTestRNG(5), 3, 2, 2), counts, MethodDirect, 1, testEps)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
