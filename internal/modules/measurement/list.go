package measurement

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// MPPovmList is an ordered, immutable collection of measurements on the
// same chain.
type MPPovmList struct {
	mpps []*MPPovm
}

// CrossPMF is the estimate of one member's pmf from another list's samples.
// NSamples holds, per outcome, the number of samples pooled into it.
type CrossPMF struct {
	PMF      *tensor.OptFloat
	NSamples []int
}

// OptEstimate is a scalar estimate that may be undefined.
type OptEstimate struct {
	Value    tensor.Opt `json:"value"`
	Variance tensor.Opt `json:"variance"`
}

// NewMPPovmList validates that all members act on the same chain.
func NewMPPovmList(mpps []*MPPovm) (*MPPovmList, error) {
	if len(mpps) == 0 {
		return nil, dimErr("a measurement list needs at least one member")
	}
	hd := mpps[0].Hdims()
	for i, p := range mpps[1:] {
		if !sameInts(p.Hdims(), hd) {
			return nil, dimErr("member %d has dimensions %v, member 0 has %v", i+1, p.Hdims(), hd)
		}
	}
	return &MPPovmList{mpps: append([]*MPPovm(nil), mpps...)}, nil
}

// Members returns the measurements in order.
func (l *MPPovmList) Members() []*MPPovm { return append([]*MPPovm(nil), l.mpps...) }

// Len returns the number of members.
func (l *MPPovmList) Len() int { return len(l.mpps) }

// Member returns member i.
func (l *MPPovmList) Member(i int) *MPPovm { return l.mpps[i] }

// Repeat tiles every member along nrSites sites.
func (l *MPPovmList) Repeat(nrSites int) (*MPPovmList, error) {
	out := make([]*MPPovm, len(l.mpps))
	for i, p := range l.mpps {
		r, err := p.Repeat(nrSites)
		if err != nil {
			return nil, fmt.Errorf("failed to repeat member %d: %w", i, err)
		}
		out[i] = r
	}
	return NewMPPovmList(out)
}

// Block embeds every member at every start site of a chain of nrSites
// sites. Members are grouped by start site.
func (l *MPPovmList) Block(nrSites int) (*MPPovmList, error) {
	width := l.mpps[0].Len()
	hd := l.mpps[0].Hdims()
	var out []*MPPovm
	for start := 0; start+width <= nrSites; start++ {
		for i, p := range l.mpps {
			if p.Len() != width {
				return nil, dimErr("member %d has %d sites, member 0 has %d", i, p.Len(), width)
			}
			e, err := p.Embed(nrSites, start, hd[:1])
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return NewMPPovmList(out)
}

// PauliMPP returns the Pauli measurement on width sites of dimension d.
func PauliMPP(width, d int) (*MPPovm, error) {
	lp, err := PauliPOVM(d)
	if err != nil {
		return nil, err
	}
	return FromLocalPOVM(lp, width), nil
}

// PauliMPPs returns all products of single-site Pauli parts on width sites,
// in row-major order of the part indices.
func PauliMPPs(width, d int) (*MPPovmList, error) {
	parts, err := PauliParts(d)
	if err != nil {
		return nil, err
	}
	dims := make([]int, width)
	for i := range dims {
		dims[i] = len(parts)
	}
	var mpps []*MPPovm
	tensor.NdIndex(dims, func(idx []int) {
		lps := make([]*LocalPOVM, width)
		for i, k := range idx {
			lps[i] = parts[k]
		}
		mpps = append(mpps, FromKron(lps...))
	})
	return NewMPPovmList(mpps)
}

// Sample draws n samples from every member.
func (l *MPPovmList) Sample(rng *rand.Rand, state State, n int, method Method, nGroup int, eps float64) ([][][]uint8, error) {
	counts := make([]int, len(l.mpps))
	for i := range counts {
		counts[i] = n
	}
	return l.SampleCounts(rng, state, counts, method, nGroup, eps)
}

// SampleCounts draws counts[i] samples from member i.
func (l *MPPovmList) SampleCounts(rng *rand.Rand, state State, counts []int, method Method, nGroup int, eps float64) ([][][]uint8, error) {
	if len(counts) != len(l.mpps) {
		return nil, dimErr("got %d sample counts for %d members", len(counts), len(l.mpps))
	}
	for i, n := range counts {
		if n < 0 {
			return nil, dimErr("sample count of member %d must be non-negative, got %d", i, n)
		}
	}
	out := make([][][]uint8, len(l.mpps))
	for i, p := range l.mpps {
		s, err := p.Sample(rng, state, counts[i], method, nGroup, eps)
		if err != nil {
			return nil, fmt.Errorf("failed to sample member %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// PMFAsArray returns the validated pmf of every member.
func (l *MPPovmList) PMFAsArray(state State, eps float64) ([]*tensor.Float, error) {
	out := make([]*tensor.Float, len(l.mpps))
	for i, p := range l.mpps {
		pmf, err := p.PMFAsArray(state, eps)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = pmf
	}
	return out, nil
}

// EstPMF returns the histogram of every member's samples.
func (l *MPPovmList) EstPMF(samples [][][]uint8, normalize bool) ([]*tensor.Float, error) {
	if err := l.checkSampleSets(samples); err != nil {
		return nil, err
	}
	out := make([]*tensor.Float, len(l.mpps))
	for i, p := range l.mpps {
		est, err := p.EstPMF(samples[i], nil, normalize)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = est
	}
	return out, nil
}

// Lfun sums the exact expectations and single-sample variances of the
// members' functions. coeff[i] and funs[i] belong to member i; funs may be
// nil.
func (l *MPPovmList) Lfun(coeff [][]float64, funs [][]OutcomeFunc, state State, eps float64) (Estimate, error) {
	if len(coeff) != len(l.mpps) || (funs != nil && len(funs) != len(l.mpps)) {
		return Estimate{}, dimErr("need one coefficient set per member")
	}
	var total Estimate
	for i, p := range l.mpps {
		var f []OutcomeFunc
		if funs != nil {
			f = funs[i]
		}
		e, err := p.Lfun(coeff[i], f, state, eps)
		if err != nil {
			return Estimate{}, fmt.Errorf("member %d: %w", i, err)
		}
		total.Value += e.Value
		total.Variance += e.Variance
	}
	return total, nil
}

// EstLfun sums the members' sample estimates and variances of the mean.
func (l *MPPovmList) EstLfun(coeff [][]float64, funs [][]OutcomeFunc, samples [][][]uint8) (Estimate, error) {
	if len(coeff) != len(l.mpps) || (funs != nil && len(funs) != len(l.mpps)) {
		return Estimate{}, dimErr("need one coefficient set per member")
	}
	if err := l.checkSampleSets(samples); err != nil {
		return Estimate{}, err
	}
	var total Estimate
	for i, p := range l.mpps {
		var f []OutcomeFunc
		if funs != nil {
			f = funs[i]
		}
		e, err := p.EstLfun(coeff[i], f, samples[i], nil)
		if err != nil {
			return Estimate{}, fmt.Errorf("member %d: %w", i, err)
		}
		total.Value += e.Value
		total.Variance += e.Variance
	}
	return total, nil
}

// PackSamples packs every member's samples.
func (l *MPPovmList) PackSamples(samples [][][]uint8) ([][][]uint64, error) {
	if err := l.checkSampleSets(samples); err != nil {
		return nil, err
	}
	out := make([][][]uint64, len(l.mpps))
	for i, p := range l.mpps {
		packed, err := p.PackSamples(samples[i])
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = packed
	}
	return out, nil
}

// UnpackSamples reverses PackSamples.
func (l *MPPovmList) UnpackSamples(packed [][][]uint64) ([][][]uint8, error) {
	if len(packed) != len(l.mpps) {
		return nil, dimErr("got %d sample sets for %d members", len(packed), len(l.mpps))
	}
	out := make([][][]uint8, len(l.mpps))
	for i, p := range l.mpps {
		s, err := p.UnpackSamples(packed[i])
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func (l *MPPovmList) checkSampleSets(samples [][][]uint8) error {
	if len(samples) != len(l.mpps) {
		return dimErr("got %d sample sets for %d members", len(samples), len(l.mpps))
	}
	return nil
}

// links computes the cross links from every source member to every member
// of l: links[t][s].
func (l *MPPovmList) links(source *MPPovmList, eps float64) ([][]*crossLink, error) {
	out := make([][]*crossLink, len(l.mpps))
	for t, target := range l.mpps {
		out[t] = make([]*crossLink, len(source.mpps))
		for s, src := range source.mpps {
			link, err := newCrossLink(target, src, eps)
			if err != nil {
				return nil, fmt.Errorf("failed to match member %d against source %d: %w", t, s, err)
			}
			out[t][s] = link
		}
	}
	return out, nil
}

// pooledCounts returns N_i = Σ n_s over the sources defining outcome i of
// target t.
func pooledCounts(links []*crossLink, n []float64, outcomes int) []float64 {
	out := make([]float64, outcomes)
	for s, link := range links {
		for i := 0; i < outcomes; i++ {
			if link.defines(i) {
				out[i] += n[s]
			}
		}
	}
	return out
}

// EstPMFFrom estimates every member's pmf from samples of source. Each
// outcome pools the estimates of all source members defining it, weighted
// by their sample counts.
func (l *MPPovmList) EstPMFFrom(source *MPPovmList, samples [][][]uint8, eps float64) ([]CrossPMF, error) {
	if err := source.checkSampleSets(samples); err != nil {
		return nil, err
	}
	for s, src := range source.mpps {
		if err := src.checkSamples(samples[s], nil); err != nil {
			return nil, fmt.Errorf("source %d: %w", s, err)
		}
	}
	links, err := l.links(source, eps)
	if err != nil {
		return nil, err
	}
	n := make([]float64, len(samples))
	for s := range samples {
		n[s] = float64(len(samples[s]))
	}

	out := make([]CrossPMF, len(l.mpps))
	for t, target := range l.mpps {
		outcomes := target.NumOutcomes()
		pooled := pooledCounts(links[t], n, outcomes)
		sums := make([]float64, outcomes)
		for s, link := range links[t] {
			if !link.anyDefined() {
				continue
			}
			for i, v := range link.weighted(link.counts(samples[s])) {
				if v.Valid {
					sums[i] += v.Value
				}
			}
		}
		pmf := tensor.NewOptFloat(target.NsOutdims()...)
		nsam := make([]int, outcomes)
		for i := range sums {
			nsam[i] = int(pooled[i])
			if pooled[i] > 0 {
				pmf.Data()[i] = tensor.Some(sums[i] / pooled[i])
			}
		}
		out[t] = CrossPMF{PMF: pmf, NSamples: nsam}
	}
	return out, nil
}

// lfunEstimator expresses Σ_t Σ_i coeff[t][i]·p_t(i) as one outcome
// function per source member. It returns ok = false if an outcome with
// non-zero coefficient is not defined by any source.
func (l *MPPovmList) lfunEstimator(source *MPPovmList, coeff [][]float64, n []float64, eps float64) ([][]OutcomeFunc, bool, error) {
	if len(coeff) != len(l.mpps) {
		return nil, false, dimErr("got %d coefficient sets for %d members", len(coeff), len(l.mpps))
	}
	links, err := l.links(source, eps)
	if err != nil {
		return nil, false, err
	}
	funs := make([][]OutcomeFunc, len(source.mpps))
	for t, target := range l.mpps {
		outcomes := target.NumOutcomes()
		if len(coeff[t]) != outcomes {
			return nil, false, dimErr("member %d has %d outcomes, got %d coefficients", t, outcomes, len(coeff[t]))
		}
		pooled := pooledCounts(links[t], n, outcomes)
		for i, c := range coeff[t] {
			if c != 0 && pooled[i] == 0 {
				return nil, false, nil
			}
		}
		for s, link := range links[t] {
			if !link.anyDefined() {
				continue
			}
			scale := make([]float64, outcomes)
			for i := range scale {
				if link.defines(i) {
					scale[i] = n[s] / pooled[i]
				}
			}
			funs[s] = append(funs[s], link.table(coeff[t], scale))
		}
	}
	return funs, true, nil
}

// LfunFrom returns the exact expectation and single-sample variance of the
// estimator of Σ_t Σ_i coeff[t][i]·p_t(i) built from samples of source.
// nSamples gives the number of samples per source member; nil means equal
// counts. The result is undefined if the estimator does not exist.
func (l *MPPovmList) LfunFrom(source *MPPovmList, coeff [][]float64, state State, nSamples []int, eps float64) (OptEstimate, error) {
	n := make([]float64, source.Len())
	for s := range n {
		n[s] = 1
		if nSamples != nil {
			n[s] = float64(nSamples[s])
		}
	}
	funs, ok, err := l.lfunEstimator(source, coeff, n, eps)
	if err != nil || !ok {
		return OptEstimate{}, err
	}
	var value, variance float64
	for s, src := range source.mpps {
		if len(funs[s]) == 0 {
			continue
		}
		e, err := src.Lfun(ones(len(funs[s])), funs[s], state, eps)
		if err != nil {
			return OptEstimate{}, fmt.Errorf("source %d: %w", s, err)
		}
		value += e.Value
		variance += e.Variance
	}
	return OptEstimate{Value: tensor.Some(value), Variance: tensor.Some(variance)}, nil
}

// EstLfunFrom estimates Σ_t Σ_i coeff[t][i]·p_t(i) from samples of source.
// The variance is the sum of the members' variances of the mean.
func (l *MPPovmList) EstLfunFrom(source *MPPovmList, coeff [][]float64, samples [][][]uint8, eps float64) (OptEstimate, error) {
	return l.EstLfunFromContext(context.Background(), defaultPool(), source, coeff, samples, eps)
}

// EstLfunFromContext is EstLfunFrom with sample batches reduced on pool.
func (l *MPPovmList) EstLfunFromContext(ctx context.Context, pool *workers.WorkerPool, source *MPPovmList, coeff [][]float64, samples [][][]uint8, eps float64) (OptEstimate, error) {
	if err := source.checkSampleSets(samples); err != nil {
		return OptEstimate{}, err
	}
	n := make([]float64, len(samples))
	for s := range samples {
		n[s] = float64(len(samples[s]))
	}
	funs, ok, err := l.lfunEstimator(source, coeff, n, eps)
	if err != nil || !ok {
		return OptEstimate{}, err
	}
	var value, variance float64
	for s, src := range source.mpps {
		if len(funs[s]) == 0 {
			continue
		}
		e, err := src.EstLfunContext(ctx, pool, ones(len(funs[s])), funs[s], samples[s], nil)
		if err != nil {
			return OptEstimate{}, fmt.Errorf("source %d: %w", s, err)
		}
		value += e.Value
		variance += e.Variance
	}
	return OptEstimate{Value: tensor.Some(value), Variance: tensor.Some(variance)}, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
