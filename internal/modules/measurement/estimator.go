package measurement

import (
	"context"
	"runtime"

	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// momentBatchSize is the number of samples reduced by one job.
const momentBatchSize = 4096

// OutcomeFunc is a real function of one outcome sample.
type OutcomeFunc interface {
	Eval(sample []uint8) float64
}

// Indicator is 1 on one outcome and 0 elsewhere.
type Indicator struct {
	Outcome []uint8
}

// Eval implements OutcomeFunc.
func (f Indicator) Eval(sample []uint8) float64 {
	if len(sample) != len(f.Outcome) {
		return 0
	}
	for i, v := range sample {
		if v != f.Outcome[i] {
			return 0
		}
	}
	return 1
}

// CoeffTable looks up a coefficient by the sample entries at Positions,
// read as a row-major index into an array of shape Dims. A nil Positions
// selects every entry. Positions equal to −1 read as outcome 0.
type CoeffTable struct {
	Positions []int
	Dims      []int
	Coeff     []float64
}

// Eval implements OutcomeFunc.
func (f CoeffTable) Eval(sample []uint8) float64 {
	flat := 0
	if f.Positions == nil {
		for i, d := range f.Dims {
			flat = flat*d + int(sample[i])
		}
		return f.Coeff[flat]
	}
	for i, pos := range f.Positions {
		v := 0
		if pos >= 0 {
			v = int(sample[pos])
		}
		flat = flat*f.Dims[i] + v
	}
	return f.Coeff[flat]
}

// EstPMF returns the histogram of samples over NsOutdims. weights gives the
// weight of every sample (nil means 1). With normalize the histogram is
// divided by the total weight.
func (p *MPPovm) EstPMF(samples [][]uint8, weights []float64, normalize bool) (*tensor.Float, error) {
	if err := p.checkSamples(samples, weights); err != nil {
		return nil, err
	}
	dims := p.NsOutdims()
	hist := tensor.FloatZeros(dims...)
	data := hist.Data()
	total := 0.0
	for k, s := range samples {
		w := 1.0
		if weights != nil {
			w = weights[k]
		}
		data[ravelSample(s, dims)] += w
		total += w
	}
	if normalize && total != 0 {
		for i := range data {
			data[i] /= total
		}
	}
	return hist, nil
}

func (p *MPPovm) checkSamples(samples [][]uint8, weights []float64) error {
	if weights != nil && len(weights) != len(samples) {
		return dimErr("got %d weights for %d samples", len(weights), len(samples))
	}
	dims := p.NsOutdims()
	for k, s := range samples {
		if len(s) != len(dims) {
			return dimErr("sample %d has %d entries, want %d", k, len(s), len(dims))
		}
		for i, v := range s {
			if int(v) >= dims[i] {
				return dimErr("sample %d entry %d is %d, site has %d outcomes", k, i, v, dims[i])
			}
		}
	}
	return nil
}

func ravelSample(s []uint8, dims []int) int {
	flat := 0
	for i, d := range dims {
		flat = flat*d + int(s[i])
	}
	return flat
}

// moments holds the total weight, weighted mean and weighted sum of squared
// deviations of a batch of values.
type moments struct {
	w, mean, m2 float64
}

func (m *moments) add(v, w float64) {
	if w == 0 {
		return
	}
	m.w += w
	delta := v - m.mean
	m.mean += w / m.w * delta
	m.m2 += w * delta * (v - m.mean)
}

// merge combines two batches with the pairwise update of Chan et al.
func (m moments) merge(o moments) moments {
	if o.w == 0 {
		return m
	}
	if m.w == 0 {
		return o
	}
	w := m.w + o.w
	delta := o.mean - m.mean
	return moments{
		w:    w,
		mean: m.mean + delta*o.w/w,
		m2:   m.m2 + o.m2 + delta*delta*m.w*o.w/w,
	}
}

// varianceOfMean returns M2/(W−1)/W, or NaN for W <= 1.
func (m moments) varianceOfMean() float64 {
	if m.w <= 1 {
		return nan()
	}
	return m.m2 / (m.w - 1) / m.w
}

// reduceMoments evaluates value for every sample in parallel batches.
func reduceMoments(ctx context.Context, pool *workers.WorkerPool, n int, value func(k int) (v, w float64)) (moments, error) {
	nBatches := (n + momentBatchSize - 1) / momentBatchSize
	parts, err := workers.Map(ctx, pool, nBatches, func(_ context.Context, b int) (moments, error) {
		var m moments
		for k := b * momentBatchSize; k < min((b+1)*momentBatchSize, n); k++ {
			m.add(value(k))
		}
		return m, nil
	})
	if err != nil {
		return moments{}, err
	}
	var total moments
	for _, m := range parts {
		total = total.merge(m)
	}
	return total, nil
}

func defaultPool() *workers.WorkerPool {
	return workers.NewWorkerPool(runtime.GOMAXPROCS(0))
}
