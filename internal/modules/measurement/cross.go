package measurement

import (
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// crossLink relates the outcomes of a target measurement to the outcomes of
// a source measurement restricted to the target's measured sites.
type crossLink struct {
	// cols[k] is the source sample column of the k-th measured target
	// site, or −1 if the source does not measure it.
	cols  []int
	bdims []int
	// groups[i] lists the reduced source outcomes matching target outcome i.
	groups [][]int
	// invSum[i] is Σ 1/c over groups[i].
	invSum []float64
}

func newCrossLink(target, source *MPPovm, eps float64) (*crossLink, error) {
	m, err := target.MatchElems(source, eps)
	if err != nil {
		return nil, err
	}
	srcCol := make(map[int]int)
	for k, s := range source.NsOutPos() {
		srcCol[s] = k
	}
	support := target.NsOutPos()
	link := &crossLink{
		cols:  make([]int, len(support)),
		bdims: m.Shape[m.SmallAxes:],
	}
	for k, s := range support {
		col, ok := srcCol[s]
		if !ok {
			col = -1
		}
		link.cols[k] = col
	}

	nA := tensor.Size(m.Shape[:m.SmallAxes])
	nB := tensor.Size(link.bdims)
	pref := m.Prefactors.Data()
	link.groups = make([][]int, nA)
	link.invSum = make([]float64, nA)
	for i := 0; i < nA; i++ {
		for j := 0; j < nB; j++ {
			if !m.Matched[i*nB+j] {
				continue
			}
			link.groups[i] = append(link.groups[i], j)
			link.invSum[i] += 1 / pref[i*nB+j].Value
		}
	}
	return link, nil
}

func (l *crossLink) defines(i int) bool { return len(l.groups[i]) > 0 }

func (l *crossLink) anyDefined() bool {
	for i := range l.groups {
		if l.defines(i) {
			return true
		}
	}
	return false
}

// reduce returns the reduced source outcome index of a source sample.
func (l *crossLink) reduce(sample []uint8) int {
	flat := 0
	for k, col := range l.cols {
		v := 0
		if col >= 0 {
			v = int(sample[col])
		}
		flat = flat*l.bdims[k] + v
	}
	return flat
}

// counts returns the histogram of reduced source outcomes.
func (l *crossLink) counts(samples [][]uint8) []float64 {
	out := make([]float64, tensor.Size(l.bdims))
	for _, s := range samples {
		out[l.reduce(s)]++
	}
	return out
}

// weighted returns n·est(i) = Σ_J counts_j / Σ_J 1/c_j for every target
// outcome, or None where the source defines no estimate.
func (l *crossLink) weighted(counts []float64) []tensor.Opt {
	out := make([]tensor.Opt, len(l.groups))
	for i, g := range l.groups {
		if len(g) == 0 {
			continue
		}
		sum := 0.0
		for _, j := range g {
			sum += counts[j]
		}
		out[i] = tensor.Some(sum / l.invSum[i])
	}
	return out
}

// table returns a CoeffTable over reduced source outcomes holding
// Σ_i coeff[i]·scale[i] / Σ_J(i) 1/c over all target outcomes i matched by
// each reduced outcome.
func (l *crossLink) table(coeff, scale []float64) CoeffTable {
	values := make([]float64, tensor.Size(l.bdims))
	for i, g := range l.groups {
		if len(g) == 0 || coeff[i] == 0 {
			continue
		}
		w := coeff[i] * scale[i] / l.invSum[i]
		for _, j := range g {
			values[j] += w
		}
	}
	return CoeffTable{Positions: append([]int(nil), l.cols...), Dims: l.bdims, Coeff: values}
}

// EstPMFFrom estimates the outcome probabilities of p from samples of
// source. Outcome i is estimated by Σ_J counts_j / (n·Σ_J 1/c_j) over the
// source outcomes J matching it with prefactors c_j; outcomes without a
// match are undefined. The returned count is the number of samples that
// contributed, which is zero if no outcome is defined.
func (p *MPPovm) EstPMFFrom(source *MPPovm, samples [][]uint8, eps float64) (*tensor.OptFloat, int, error) {
	if err := source.checkSamples(samples, nil); err != nil {
		return nil, 0, err
	}
	link, err := newCrossLink(p, source, eps)
	if err != nil {
		return nil, 0, err
	}
	out := tensor.NewOptFloat(p.NsOutdims()...)
	if len(samples) == 0 || !link.anyDefined() {
		return out, 0, nil
	}
	n := float64(len(samples))
	data := out.Data()
	for i, v := range link.weighted(link.counts(samples)) {
		if v.Valid {
			data[i] = tensor.Some(v.Value / n)
		}
	}
	return out, len(samples), nil
}
