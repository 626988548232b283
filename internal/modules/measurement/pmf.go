package measurement

import (
	"context"
	"iter"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// PMF returns the raw outcome probabilities tr(M_x ρ) with one axis per
// measured site. The result is complex and unvalidated; for operators that
// are not states it need not be a distribution.
func (p *MPPovm) PMF(state State) (*tensor.Dense, error) {
	if err := p.checkState(state); err != nil {
		return nil, err
	}
	var raw *tensor.Dense
	if ps, ok := state.(PurifiedState); ok && ps.Impl != PMPSDefault {
		switch ps.Impl {
		case PMPSLTR:
			raw = p.pmfPurifiedLTR(ps)
		case PMPSSymm:
			raw = p.pmfPurifiedSymm(ps)
		default:
			return nil, &UnsupportedModeError{Kind: "pmps implementation", Value: string(ps.Impl)}
		}
	} else {
		raw = p.contractChain(state)
	}
	return raw.Reshape(p.NsOutdims()...), nil
}

// PMFAsArray returns the validated real distribution over NsOutdims.
//
// It fails with ToleranceExceededError if an imaginary part exceeds eps, an
// entry is below −eps, or the total deviates from one by more than eps.
// Negative entries within tolerance are clipped and the result is
// renormalised.
func (p *MPPovm) PMFAsArray(state State, eps float64) (*tensor.Float, error) {
	raw, err := p.PMF(state)
	if err != nil {
		return nil, err
	}
	return checkPMF(raw, eps)
}

func checkPMF(raw *tensor.Dense, eps float64) (*tensor.Float, error) {
	pmf, maxImag := raw.Real()
	if maxImag > eps {
		return nil, &ToleranceExceededError{Check: "imaginary part", Value: maxImag, Eps: eps}
	}
	data := pmf.Data()
	if lo := floats.Min(data); lo < -eps {
		return nil, &ToleranceExceededError{Check: "smallest probability", Value: lo, Eps: eps}
	}
	if sum := floats.Sum(data); math.Abs(sum-1) > eps {
		return nil, &ToleranceExceededError{Check: "total probability", Value: sum, Eps: eps}
	}
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	floats.Scale(1/floats.Sum(data), data)
	return pmf, nil
}

func (p *MPPovm) checkState(state State) error {
	if state.Len() != p.Len() {
		return dimErr("state has %d sites, measurement has %d", state.Len(), p.Len())
	}
	if !sameInts(state.Hdims(), p.Hdims()) {
		return dimErr("state dimensions %v do not match measurement dimensions %v", state.Hdims(), p.Hdims())
	}
	return nil
}

// contractChain sweeps left to right with an environment (X, L) where X runs
// over the outcomes of the sites seen so far.
func (p *MPPovm) contractChain(state State) *tensor.Dense {
	env := tensor.Ones(1, 1)
	for i := 0; i < p.Len(); i++ {
		t := state.transfer(i, p.mpa.LT(i))
		env = tensor.Tensordot(env, t, []int{1}, []int{1})
		sh := env.Shape()
		env = env.Reshape(sh[0]*sh[1], sh[2])
	}
	return env
}

// pmfPurifiedLTR contracts ket, measurement and bra site by site without
// building the density operator. The environment has legs (X, a, m, ā).
func (p *MPPovm) pmfPurifiedLTR(s PurifiedState) *tensor.Dense {
	env := tensor.Ones(1, 1, 1, 1)
	for i := 0; i < p.Len(); i++ {
		env = ltrStep(env, s.MPA.LT(i), p.mpa.LT(i))
	}
	return env
}

func ltrStep(env, psi, m *tensor.Dense) *tensor.Dense {
	// (X, m, ā, p, anc, a')
	t := tensor.Tensordot(env, psi, []int{1}, []int{0})
	// (X, ā, anc, a', x, r, m')
	t = tensor.Tensordot(t, m, []int{1, 3}, []int{0, 3})
	// (X, a', x, m', ā')
	t = tensor.Tensordot(t, psi.Conj(), []int{1, 5, 2}, []int{0, 1, 2})
	t = t.Transpose(0, 2, 1, 3, 4)
	sh := t.Shape()
	return t.Reshape(sh[0]*sh[1], sh[2], sh[3], sh[4])
}

// pmfPurifiedSymm sweeps from both ends towards the middle bond and joins
// the two environments there.
func (p *MPPovm) pmfPurifiedSymm(s PurifiedState) *tensor.Dense {
	n := p.Len()
	mid := n / 2
	left := tensor.Ones(1, 1, 1, 1)
	for i := 0; i < mid; i++ {
		left = ltrStep(left, s.MPA.LT(i), p.mpa.LT(i))
	}
	// (a, m, ā, Y)
	right := tensor.Ones(1, 1, 1, 1)
	for i := n - 1; i >= mid; i-- {
		psi, m := s.MPA.LT(i), p.mpa.LT(i)
		// (a, p, anc, m', ā', Y)
		t := tensor.Tensordot(psi, right, []int{3}, []int{0})
		// (m, x, r, a, anc, ā', Y)
		t = tensor.Tensordot(m, t, []int{4, 3}, []int{3, 1})
		// (m, x, a, Y, ā)
		t = tensor.Tensordot(t, psi.Conj(), []int{2, 4, 5}, []int{1, 2, 3})
		t = t.Transpose(2, 0, 4, 1, 3)
		sh := t.Shape()
		right = t.Reshape(sh[0], sh[1], sh[2], sh[3]*sh[4])
	}
	return tensor.Tensordot(left, right, []int{1, 2, 3}, []int{0, 1, 2})
}

// Expectations yields the raw pmf of the measurement placed at every start
// site of the state's chain, from left to right.
func (p *MPPovm) Expectations(state State) iter.Seq2[*tensor.Dense, error] {
	return func(yield func(*tensor.Dense, error) bool) {
		n, w := state.Len(), p.Len()
		if w > n {
			yield(nil, dimErr("measurement of %d sites does not fit a chain of %d", w, n))
			return
		}
		for start := 0; start+w <= n; start++ {
			pmf, err := p.windowPMF(state, start)
			if !yield(pmf, err) || err != nil {
				return
			}
		}
	}
}

// ExpectationsParallel computes all window placements on the worker pool.
func (p *MPPovm) ExpectationsParallel(ctx context.Context, state State, pool *workers.WorkerPool) ([]*tensor.Dense, error) {
	n, w := state.Len(), p.Len()
	if w > n {
		return nil, dimErr("measurement of %d sites does not fit a chain of %d", w, n)
	}
	return workers.Map(ctx, pool, n-w+1, func(_ context.Context, start int) (*tensor.Dense, error) {
		return p.windowPMF(state, start)
	})
}

func (p *MPPovm) windowPMF(state State, start int) (*tensor.Dense, error) {
	e, err := p.Embed(state.Len(), start, state.Hdims())
	if err != nil {
		return nil, err
	}
	return e.PMF(state)
}
