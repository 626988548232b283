package measurement

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/cmplxs"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Match relates the elements of a measurement A to those of a measurement B
// that has support on at least the sites A measures.
//
// The array axes are A's measured outcomes followed by B's outcomes on the
// same sites. Where an entry is matched, the reduced element of A equals
// Prefactors times the reduced element of B.
type Match struct {
	Shape      []int
	SmallAxes  int
	Matched    []bool
	Prefactors *tensor.OptFloat
}

// At returns the match flag and prefactor at a multi-index.
func (m *Match) At(idx ...int) (bool, tensor.Opt) {
	return m.Matched[tensor.Ravel(idx, m.Shape)], m.Prefactors.At(idx...)
}

// MatchElems finds elements of p that are positive multiples of elements of
// big after both are reduced to p's measured sites. Outcomes of other sites
// are summed and their operators are traced and divided by the dimension.
//
// A pair (A, B) matches when |⟨B, A⟩| >= (1 − eps)·‖A‖·‖B‖, both norms exceed
// eps, and c = ⟨B, A⟩/‖B‖² is real and positive; the prefactor is c.
func (p *MPPovm) MatchElems(big *MPPovm, eps float64) (*Match, error) {
	if p.Len() != big.Len() {
		return nil, dimErr("cannot match %d sites against %d", p.Len(), big.Len())
	}
	if !sameInts(p.Hdims(), big.Hdims()) {
		return nil, dimErr("local dimensions %v and %v differ", p.Hdims(), big.Hdims())
	}
	support := p.NsOutPos()
	a, err := reducedDense(p, support)
	if err != nil {
		return nil, err
	}
	b, err := reducedDense(big, support)
	if err != nil {
		return nil, err
	}

	bigOut := big.Outdims()
	bdims := make([]int, len(support))
	for i, s := range support {
		bdims[i] = bigOut[s]
	}
	shape := append(p.NsOutdims(), bdims...)
	nA, nB, width := a.Dim(0), b.Dim(0), a.Dim(1)

	rowsA := rows(a, nA, width)
	rowsB := rows(b, nB, width)
	normsA := make([]float64, nA)
	for i, r := range rowsA {
		normsA[i] = cmplxs.Norm(r, 2)
	}
	normsB := make([]float64, nB)
	for j, r := range rowsB {
		normsB[j] = cmplxs.Norm(r, 2)
	}

	m := &Match{
		Shape:      shape,
		SmallAxes:  len(p.NsOutdims()),
		Matched:    make([]bool, nA*nB),
		Prefactors: tensor.NewOptFloat(shape...),
	}
	pref := m.Prefactors.Data()
	for i := 0; i < nA; i++ {
		if normsA[i] <= eps {
			continue
		}
		for j := 0; j < nB; j++ {
			if normsB[j] <= eps {
				continue
			}
			o := cmplxs.Dot(rowsB[j], rowsA[i])
			if cmplx.Abs(o) < (1-eps)*normsA[i]*normsB[j] {
				continue
			}
			c := o / complex(normsB[j]*normsB[j], 0)
			if real(c) <= 0 || math.Abs(imag(c)) > eps*cmplx.Abs(c) {
				continue
			}
			m.Matched[i*nB+j] = true
			pref[i*nB+j] = tensor.Some(real(c))
		}
	}
	return m, nil
}

// reducedDense returns the elements of p reduced to sites as a matrix with
// one row per joint outcome on sites.
func reducedDense(p *MPPovm, sites []int) (*tensor.Dense, error) {
	red := p.reducedTo(sites)
	g, err := red.ToArrayGlobal()
	if err != nil {
		return nil, fmt.Errorf("failed to contract reduced measurement: %w", err)
	}
	outcomes := 1
	for i := 0; i < red.Len() && red.Plegs(i) == 3; i++ {
		outcomes *= red.LT(i).Dim(1)
	}
	return g.Reshape(outcomes, -1), nil
}

func rows(t *tensor.Dense, n, width int) [][]complex128 {
	out := make([][]complex128, n)
	for i := range out {
		out[i] = t.Data()[i*width : (i+1)*width]
	}
	return out
}
