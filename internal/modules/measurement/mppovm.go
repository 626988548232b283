// Package measurement implements multi-site measurements (POVMs) in
// matrix-product form: exact outcome probabilities on matrix-product states,
// outcome sampling, and estimators for probabilities and linear functions of
// them, including estimation from samples taken with a related measurement.
package measurement

import (
	"fmt"

	"github.com/aristath/mpmeasure/pkg/mparray"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// MPPovm is a measurement on a chain of sites. Every local tensor has the
// legs (left, outcome, row, col, right).
type MPPovm struct {
	mpa *mparray.MPArray
}

// NewMPPovm wraps an MPArray whose sites carry (outcome, row, col) legs.
func NewMPPovm(mpa *mparray.MPArray) (*MPPovm, error) {
	for i := 0; i < mpa.Len(); i++ {
		if mpa.Plegs(i) != 3 {
			return nil, dimErr("site %d has %d physical legs, want 3", i, mpa.Plegs(i))
		}
		lt := mpa.LT(i)
		if lt.Dim(2) != lt.Dim(3) {
			return nil, dimErr("site %d has non-square operator legs %d x %d", i, lt.Dim(2), lt.Dim(3))
		}
	}
	return &MPPovm{mpa: mpa}, nil
}

// FromLocalPOVM returns the width-fold tensor product of lp.
func FromLocalPOVM(lp *LocalPOVM, width int) *MPPovm {
	lps := make([]*LocalPOVM, width)
	for i := range lps {
		lps[i] = lp
	}
	return FromKron(lps...)
}

// FromKron returns the tensor product of the given local POVMs.
func FromKron(lps ...*LocalPOVM) *MPPovm {
	lts := make([]*tensor.Dense, len(lps))
	for i, lp := range lps {
		lts[i] = lp.Stacked().Reshape(1, lp.Len(), lp.Dim(), lp.Dim(), 1)
	}
	return &MPPovm{mpa: mparray.Must(lts)}
}

// FromArrayGlobal builds a POVM from a dense array in global leg order:
// outcome legs of all sites, then row legs, then column legs.
func FromArrayGlobal(arr *tensor.Dense) (*MPPovm, error) {
	mpa, err := mparray.FromArrayGlobal(arr, 3)
	if err != nil {
		return nil, &DimensionMismatchError{Message: "cannot decompose POVM array", Err: err}
	}
	return NewMPPovm(mpa)
}

// Eye returns the trivial measurement with a single identity outcome on
// sites with the given dimensions.
func Eye(dims []int) *MPPovm {
	lts := make([]*tensor.Dense, len(dims))
	for i, d := range dims {
		lts[i] = tensor.Eye(d).Reshape(1, 1, d, d, 1)
	}
	return &MPPovm{mpa: mparray.Must(lts)}
}

// Outer returns the measurement on the concatenated chains.
func Outer(ps ...*MPPovm) *MPPovm {
	mpas := make([]*mparray.MPArray, len(ps))
	for i, p := range ps {
		mpas[i] = p.mpa
	}
	return &MPPovm{mpa: mparray.Outer(mpas...)}
}

// MPA returns the underlying MPArray.
func (p *MPPovm) MPA() *mparray.MPArray { return p.mpa }

// Len returns the number of sites.
func (p *MPPovm) Len() int { return p.mpa.Len() }

// Outdims returns the number of outcomes of every site.
func (p *MPPovm) Outdims() []int {
	out := make([]int, p.Len())
	for i := range out {
		out[i] = p.mpa.LT(i).Dim(1)
	}
	return out
}

// Hdims returns the Hilbert space dimension of every site.
func (p *MPPovm) Hdims() []int {
	out := make([]int, p.Len())
	for i := range out {
		out[i] = p.mpa.LT(i).Dim(2)
	}
	return out
}

// NsOutPos returns the sites with more than one outcome.
func (p *MPPovm) NsOutPos() []int {
	var out []int
	for i, d := range p.Outdims() {
		if d > 1 {
			out = append(out, i)
		}
	}
	return out
}

// Support is NsOutPos.
func (p *MPPovm) Support() []int { return p.NsOutPos() }

// NsOutdims returns the outcome shape restricted to NsOutPos.
func (p *MPPovm) NsOutdims() []int {
	var out []int
	for _, d := range p.Outdims() {
		if d > 1 {
			out = append(out, d)
		}
	}
	if out == nil {
		out = []int{}
	}
	return out
}

// NumOutcomes returns the number of joint outcomes.
func (p *MPPovm) NumOutcomes() int { return tensor.Size(p.NsOutdims()) }

// Embed places the measurement on sites [start, start+Len()) of a chain of
// nrSites sites and measures the identity elsewhere. localDims holds either
// one dimension for all sites or one per site.
func (p *MPPovm) Embed(nrSites, start int, localDims []int) (*MPPovm, error) {
	dims, err := broadcastDims(localDims, nrSites)
	if err != nil {
		return nil, err
	}
	width := p.Len()
	if start < 0 || start+width > nrSites {
		return nil, dimErr("cannot place %d sites at %d on a chain of %d", width, start, nrSites)
	}
	for i, d := range p.Hdims() {
		if dims[start+i] != d {
			return nil, dimErr("site %d has dimension %d, chain has %d", i, d, dims[start+i])
		}
	}
	parts := []*MPPovm{}
	if start > 0 {
		parts = append(parts, Eye(dims[:start]))
	}
	parts = append(parts, p)
	if start+width < nrSites {
		parts = append(parts, Eye(dims[start+width:]))
	}
	return Outer(parts...), nil
}

// Repeat tiles the measurement along nrSites sites. If nrSites is not a
// multiple of Len(), the last copy is truncated, which requires a bond of
// dimension 1 at the cut.
func (p *MPPovm) Repeat(nrSites int) (*MPPovm, error) {
	width := p.Len()
	reps, rem := nrSites/width, nrSites%width
	if reps == 0 && rem == 0 {
		return nil, dimErr("cannot repeat onto %d sites", nrSites)
	}
	parts := make([]*MPPovm, 0, reps+1)
	for i := 0; i < reps; i++ {
		parts = append(parts, p)
	}
	if rem > 0 {
		if p.mpa.Ranks()[rem-1] != 1 {
			return nil, dimErr("cannot cut %d-site measurement after site %d: bond dimension %d",
				width, rem-1, p.mpa.Ranks()[rem-1])
		}
		head, err := mparray.New(p.mpa.LTs()[:rem])
		if err != nil {
			return nil, fmt.Errorf("failed to truncate measurement: %w", err)
		}
		parts = append(parts, &MPPovm{mpa: head})
	}
	return Outer(parts...), nil
}

// Block returns the measurement embedded at every possible start site of a
// chain of nrSites sites with the same local dimensions.
func (p *MPPovm) Block(nrSites int) (*MPPovmList, error) {
	hd := p.Hdims()
	for _, d := range hd[1:] {
		if d != hd[0] {
			return nil, dimErr("block needs equal local dimensions, got %v", hd)
		}
	}
	if nrSites < p.Len() {
		return nil, dimErr("cannot place %d sites on a chain of %d", p.Len(), nrSites)
	}
	mpps := make([]*MPPovm, 0, nrSites-p.Len()+1)
	for start := 0; start+p.Len() <= nrSites; start++ {
		e, err := p.Embed(nrSites, start, hd[:1])
		if err != nil {
			return nil, err
		}
		mpps = append(mpps, e)
	}
	return NewMPPovmList(mpps)
}

// Elements returns all elements as a dense array of shape
// Outdims() ++ [D, D], where D is the total Hilbert space dimension.
func (p *MPPovm) Elements() (*tensor.Dense, error) {
	g, err := p.mpa.ToArrayGlobal()
	if err != nil {
		return nil, fmt.Errorf("failed to contract measurement: %w", err)
	}
	D := tensor.Size(p.Hdims())
	return g.Reshape(append(p.Outdims(), D, D)...), nil
}

// reducedTo returns the measurement restricted to sites: outcomes of every
// other site are summed and its operator legs are traced and divided by the
// dimension. The result has one site per entry of sites with legs
// (outcome, row, col).
func (p *MPPovm) reducedTo(sites []int) *mparray.MPArray {
	keep := make(map[int]bool, len(sites))
	for _, s := range sites {
		keep[s] = true
	}
	lts := p.mpa.LTs()
	for i, lt := range lts {
		if keep[i] {
			continue
		}
		d := lt.Dim(2)
		lts[i] = lt.SumAxis(1).Trace(1, 2).Scale(complex(1/float64(d), 0))
	}
	return mparray.Prune(mparray.Must(lts), false)
}

func broadcastDims(localDims []int, n int) ([]int, error) {
	switch len(localDims) {
	case 1:
		dims := make([]int, n)
		for i := range dims {
			dims[i] = localDims[0]
		}
		return dims, nil
	case n:
		return append([]int(nil), localDims...), nil
	default:
		return nil, dimErr("got %d local dimensions for %d sites", len(localDims), n)
	}
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
