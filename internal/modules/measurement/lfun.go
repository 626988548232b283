package measurement

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Estimate is a scalar estimate with its variance.
type Estimate struct {
	Value    float64 `json:"value"`
	Variance float64 `json:"variance"`
}

// VectorEstimate is an estimate of all outcome probabilities with their
// covariance matrix.
type VectorEstimate struct {
	Mean []float64
	Cov  *mat.SymDense
}

// Lfun returns the exact expectation and single-sample variance of
// f(x) = Σ_k coeff[k]·funs[k](x) under the outcome distribution of state.
// With funs nil, f(x) = coeff[x] for the outcome x in row-major order.
func (p *MPPovm) Lfun(coeff []float64, funs []OutcomeFunc, state State, eps float64) (Estimate, error) {
	pmf, err := p.PMFAsArray(state, eps)
	if err != nil {
		return Estimate{}, err
	}
	values, err := p.outcomeValues(coeff, funs)
	if err != nil {
		return Estimate{}, err
	}
	return exactMoments(pmf.Data(), values), nil
}

// LfunVector returns the exact pmf and the single-sample covariance
// diag(p) − p pᵀ of the outcome indicators.
func (p *MPPovm) LfunVector(state State, eps float64) (*VectorEstimate, error) {
	pmf, err := p.PMFAsArray(state, eps)
	if err != nil {
		return nil, err
	}
	return multinomial(pmf.Data(), 1), nil
}

// EstLfun estimates the expectation of f(x) = Σ_k coeff[k]·funs[k](x) from
// samples and returns the variance of the sample mean. weights gives the
// weight of every sample (nil means 1).
func (p *MPPovm) EstLfun(coeff []float64, funs []OutcomeFunc, samples [][]uint8, weights []float64) (Estimate, error) {
	return p.EstLfunContext(context.Background(), defaultPool(), coeff, funs, samples, weights)
}

// EstLfunContext is EstLfun with batches reduced on pool.
func (p *MPPovm) EstLfunContext(ctx context.Context, pool *workers.WorkerPool, coeff []float64, funs []OutcomeFunc, samples [][]uint8, weights []float64) (Estimate, error) {
	if err := p.checkSamples(samples, weights); err != nil {
		return Estimate{}, err
	}
	eval, err := p.sampleFunc(coeff, funs)
	if err != nil {
		return Estimate{}, err
	}
	m, err := reduceMoments(ctx, pool, len(samples), func(k int) (float64, float64) {
		w := 1.0
		if weights != nil {
			w = weights[k]
		}
		return eval(samples[k]), w
	})
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Value: m.mean, Variance: m.varianceOfMean()}, nil
}

// EstLfunVector estimates all outcome probabilities and the covariance of
// the estimate. The mean equals EstPMF(samples, weights, true).
func (p *MPPovm) EstLfunVector(samples [][]uint8, weights []float64) (*VectorEstimate, error) {
	pmf, err := p.EstPMF(samples, weights, true)
	if err != nil {
		return nil, err
	}
	total := float64(len(samples))
	if weights != nil {
		total = floats.Sum(weights)
	}
	return multinomial(pmf.Data(), total-1), nil
}

// multinomial returns mean p and covariance (diag(p) − p pᵀ)/div.
func multinomial(p []float64, div float64) *VectorEstimate {
	n := len(p)
	cov := mat.NewSymDense(n, nil)
	if div > 0 {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := -p[i] * p[j]
				if i == j {
					v += p[i]
				}
				cov.SetSym(i, j, v/div)
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				cov.SetSym(i, j, nan())
			}
		}
	}
	return &VectorEstimate{Mean: append([]float64(nil), p...), Cov: cov}
}

// outcomeValues evaluates f on every outcome in row-major order.
func (p *MPPovm) outcomeValues(coeff []float64, funs []OutcomeFunc) ([]float64, error) {
	eval, err := p.sampleFunc(coeff, funs)
	if err != nil {
		return nil, err
	}
	dims := p.NsOutdims()
	values := make([]float64, 0, tensor.Size(dims))
	tensor.NdIndex(dims, func(idx []int) {
		values = append(values, eval(toSample(idx)))
	})
	return values, nil
}

func (p *MPPovm) sampleFunc(coeff []float64, funs []OutcomeFunc) (func([]uint8) float64, error) {
	dims := p.NsOutdims()
	if funs == nil {
		if len(coeff) != tensor.Size(dims) {
			return nil, dimErr("got %d coefficients for %d outcomes", len(coeff), tensor.Size(dims))
		}
		return func(s []uint8) float64 { return coeff[ravelSample(s, dims)] }, nil
	}
	if len(coeff) != len(funs) {
		return nil, dimErr("got %d coefficients for %d functions", len(coeff), len(funs))
	}
	return func(s []uint8) float64 {
		v := 0.0
		for k, f := range funs {
			if coeff[k] != 0 {
				v += coeff[k] * f.Eval(s)
			}
		}
		return v
	}, nil
}

func exactMoments(pmf, values []float64) Estimate {
	mean := floats.Dot(pmf, values)
	second := 0.0
	for i, v := range values {
		second += pmf[i] * v * v
	}
	return Estimate{Value: mean, Variance: second - mean*mean}
}

func nan() float64 { return math.NaN() }
