package measurement

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

const (
	// icTolerance is the largest entry of L·P − I for which a POVM is
	// considered informationally complete.
	icTolerance = 1e-8
	// pinvRcond is the relative singular value cutoff of the pseudo-inverse.
	pinvRcond = 1e-10
)

// LocalPOVM is an ordered set of d×d operators acting on one site.
//
// Elements need not be positive, Hermitian or complete; those properties are
// only checked on request.
type LocalPOVM struct {
	elements []*tensor.Dense
	dim      int
	probMap  *tensor.Dense // (n, d*d)
	invMap   *tensor.Dense // (d*d, n)
	ic       bool
}

// NewLocalPOVM validates the elements and precomputes the probability map,
// its pseudo-inverse and the informational completeness flag.
func NewLocalPOVM(elements []*tensor.Dense) (*LocalPOVM, error) {
	if len(elements) == 0 {
		return nil, dimErr("a local POVM needs at least one element")
	}
	d := elements[0].Dim(0)
	elems := make([]*tensor.Dense, len(elements))
	for i, e := range elements {
		if e.Ndim() != 2 || e.Dim(0) != d || e.Dim(1) != d {
			return nil, dimErr("element %d has shape %v, want [%d %d]", i, e.Shape(), d, d)
		}
		elems[i] = e.Clone()
	}

	n := len(elems)
	pmap := tensor.Zeros(n, d*d)
	for k, e := range elems {
		row := pmap.Data()[k*d*d : (k+1)*d*d]
		for r := 0; r < d; r++ {
			for c := 0; c < d; c++ {
				// row k is vec(E_kᵀ): P·vec(ρ) = Σ E[c,r] ρ[r,c] = tr(E ρ)
				row[r*d+c] = e.At(c, r)
			}
		}
	}

	inv := pseudoInverse(pmap)
	recons := tensor.Matmul(inv, pmap)
	ic := maxAbsDiff(recons, tensor.Eye(d*d)) <= icTolerance

	return &LocalPOVM{elements: elems, dim: d, probMap: pmap, invMap: inv, ic: ic}, nil
}

// Len returns the number of elements.
func (p *LocalPOVM) Len() int { return len(p.elements) }

// Dim returns the local Hilbert space dimension.
func (p *LocalPOVM) Dim() int { return p.dim }

// Element returns element k.
func (p *LocalPOVM) Element(k int) *tensor.Dense { return p.elements[k].Clone() }

// Elements returns a copy of all elements.
func (p *LocalPOVM) Elements() []*tensor.Dense {
	out := make([]*tensor.Dense, len(p.elements))
	for i, e := range p.elements {
		out[i] = e.Clone()
	}
	return out
}

// Stacked returns the elements as one (n, d, d) tensor.
func (p *LocalPOVM) Stacked() *tensor.Dense {
	d := p.dim
	data := make([]complex128, 0, len(p.elements)*d*d)
	for _, e := range p.elements {
		data = append(data, e.Data()...)
	}
	return tensor.New([]int{len(p.elements), d, d}, data)
}

// ProbabilityMap returns the n × d² matrix mapping vec(ρ) to probabilities.
func (p *LocalPOVM) ProbabilityMap() *tensor.Dense { return p.probMap.Clone() }

// LinearInversionMap returns the Moore–Penrose pseudo-inverse of the
// probability map.
func (p *LocalPOVM) LinearInversionMap() *tensor.Dense { return p.invMap.Clone() }

// InformationallyComplete reports whether linear inversion reconstructs
// every operator.
func (p *LocalPOVM) InformationallyComplete() bool { return p.ic }

// Probabilities returns tr(E_k ρ) for every element.
func (p *LocalPOVM) Probabilities(rho *tensor.Dense) ([]complex128, error) {
	if rho.Ndim() != 2 || rho.Dim(0) != p.dim || rho.Dim(1) != p.dim {
		return nil, dimErr("operator has shape %v, want [%d %d]", rho.Shape(), p.dim, p.dim)
	}
	return tensor.Matmul(p.probMap, rho.Reshape(p.dim*p.dim, 1)).Data(), nil
}

// CheckCompleteness verifies Σ_k E_k = 1 within eps.
func (p *LocalPOVM) CheckCompleteness(eps float64) error {
	sum := tensor.Zeros(p.dim, p.dim)
	for _, e := range p.elements {
		sum = sum.Add(e)
	}
	if diff := maxAbsDiff(sum, tensor.Eye(p.dim)); diff > eps {
		return &ToleranceExceededError{Check: "completeness", Value: diff, Eps: eps}
	}
	return nil
}

// Scale returns the POVM with every element multiplied by w.
func (p *LocalPOVM) Scale(w float64) *LocalPOVM {
	elems := make([]*tensor.Dense, len(p.elements))
	for i, e := range p.elements {
		elems[i] = e.Scale(complex(w, 0))
	}
	out, _ := NewLocalPOVM(elems)
	return out
}

// Concat returns the POVM whose elements are those of all parts in order.
func Concat(parts ...*LocalPOVM) (*LocalPOVM, error) {
	var elems []*tensor.Dense
	for _, part := range parts {
		elems = append(elems, part.elements...)
	}
	return NewLocalPOVM(elems)
}

// pseudoInverse computes the Moore–Penrose pseudo-inverse of a complex
// matrix through the SVD of its real embedding [[Re, −Im], [Im, Re]].
func pseudoInverse(a *tensor.Dense) *tensor.Dense {
	m, n := a.Dim(0), a.Dim(1)
	emb := mat.NewDense(2*m, 2*n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			emb.Set(i, j, real(v))
			emb.Set(i, n+j, -imag(v))
			emb.Set(m+i, j, imag(v))
			emb.Set(m+i, n+j, real(v))
		}
	}

	var svd mat.SVD
	if !svd.Factorize(emb, mat.SVDThin) {
		panic("measurement: SVD did not converge")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := 0.0
	if len(values) > 0 {
		cutoff = pinvRcond * values[0]
	}
	// pinv = V Σ⁺ Uᵀ, shape (2n, 2m)
	for k, s := range values {
		inv := 0.0
		if s > cutoff {
			inv = 1 / s
		}
		for r := 0; r < 2*n; r++ {
			v.Set(r, k, v.At(r, k)*inv)
		}
	}
	var pinv mat.Dense
	pinv.Mul(&v, u.T())

	out := tensor.Zeros(n, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.Set(complex(pinv.At(i, j), pinv.At(n+i, j)), i, j)
		}
	}
	return out
}

func maxAbsDiff(a, b *tensor.Dense) float64 {
	out := 0.0
	for i, v := range a.Data() {
		out = math.Max(out, cmplx.Abs(v-b.Data()[i]))
	}
	return out
}
