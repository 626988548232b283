package measurement

import (
	"github.com/aristath/mpmeasure/pkg/mparray"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Mode names a state representation.
type Mode string

const (
	ModeMPS  Mode = "mps"
	ModeMPDO Mode = "mpdo"
	ModePMPS Mode = "pmps"
)

// PMPSImpl selects the contraction used for purified states.
type PMPSImpl string

const (
	PMPSDefault PMPSImpl = "default"
	PMPSLTR     PMPSImpl = "pmps-ltr"
	PMPSSymm    PMPSImpl = "pmps-symm"
)

// ParsePMPSImpl validates an implementation name. The empty string selects
// the default.
func ParsePMPSImpl(s string) (PMPSImpl, error) {
	switch PMPSImpl(s) {
	case "", PMPSDefault:
		return PMPSDefault, nil
	case PMPSLTR, PMPSSymm:
		return PMPSImpl(s), nil
	}
	return "", &UnsupportedModeError{Kind: "pmps implementation", Value: s}
}

// State is a quantum state in matrix-product form. The set of
// implementations is closed: PureState, DensityState and PurifiedState.
type State interface {
	Mode() Mode
	Len() int
	Hdims() []int
	// transfer contracts site i with measurement tensor m (legs
	// (left, outcome, row, col, right)) and returns T[x, L, R], where L and
	// R combine the state and measurement bonds.
	transfer(i int, m *tensor.Dense) *tensor.Dense
}

// PureState is a matrix product state |ψ⟩ with legs (left, phys, right).
type PureState struct {
	MPA *mparray.MPArray
}

// DensityState is a matrix product operator ρ with legs
// (left, row, col, right).
type DensityState struct {
	MPA *mparray.MPArray
}

// PurifiedState is a purification with legs (left, phys, ancilla, right)
// describing ρ = Tr_anc |ψ⟩⟨ψ|.
type PurifiedState struct {
	MPA  *mparray.MPArray
	Impl PMPSImpl
}

// NewState wraps mpa as a state of the given mode, validating its legs.
func NewState(mode Mode, mpa *mparray.MPArray, impl PMPSImpl) (State, error) {
	want := map[Mode]int{ModeMPS: 1, ModeMPDO: 2, ModePMPS: 2}
	plegs, ok := want[mode]
	if !ok {
		return nil, &UnsupportedModeError{Kind: "mode", Value: string(mode)}
	}
	for i := 0; i < mpa.Len(); i++ {
		if mpa.Plegs(i) != plegs {
			return nil, dimErr("%s site %d has %d physical legs, want %d", mode, i, mpa.Plegs(i), plegs)
		}
		if mode == ModeMPDO && mpa.LT(i).Dim(1) != mpa.LT(i).Dim(2) {
			return nil, dimErr("mpdo site %d is not square", i)
		}
	}
	switch mode {
	case ModeMPS:
		return PureState{MPA: mpa}, nil
	case ModeMPDO:
		return DensityState{MPA: mpa}, nil
	default:
		impl, err := ParsePMPSImpl(string(impl))
		if err != nil {
			return nil, err
		}
		return PurifiedState{MPA: mpa, Impl: impl}, nil
	}
}

func (s PureState) Mode() Mode   { return ModeMPS }
func (s PureState) Len() int     { return s.MPA.Len() }
func (s PureState) Hdims() []int { return physDims(s.MPA) }

func (s DensityState) Mode() Mode   { return ModeMPDO }
func (s DensityState) Len() int     { return s.MPA.Len() }
func (s DensityState) Hdims() []int { return physDims(s.MPA) }

func (s PurifiedState) Mode() Mode   { return ModePMPS }
func (s PurifiedState) Len() int     { return s.MPA.Len() }
func (s PurifiedState) Hdims() []int { return physDims(s.MPA) }

func physDims(mpa *mparray.MPArray) []int {
	out := make([]int, mpa.Len())
	for i := range out {
		out[i] = mpa.LT(i).Dim(1)
	}
	return out
}

// p(x) = Σ M[r,c] ψ[c] conj(ψ[r])
func (s PureState) transfer(i int, m *tensor.Dense) *tensor.Dense {
	psi := s.MPA.LT(i)
	// (m, x, r, m', a1, a2)
	tmp := tensor.Tensordot(m, psi, []int{3}, []int{1})
	// (a1', a2', m, x, m', a1, a2)
	t := tensor.Tensordot(psi.Conj(), tmp, []int{1}, []int{2})
	t = t.Transpose(3, 5, 2, 0, 6, 4, 1)
	sh := t.Shape()
	return t.Reshape(sh[0], sh[1]*sh[2]*sh[3], sh[4]*sh[5]*sh[6])
}

// p(x) = Σ M[r,c] ρ[c,r]
func (s DensityState) transfer(i int, m *tensor.Dense) *tensor.Dense {
	return densityTransfer(s.MPA.LT(i), m)
}

func densityTransfer(rho, m *tensor.Dense) *tensor.Dense {
	// (m, x, m', b, b')
	t := tensor.Tensordot(m, rho, []int{2, 3}, []int{2, 1})
	// (x, m, b, m', b')
	t = t.Transpose(1, 0, 3, 2, 4)
	sh := t.Shape()
	return t.Reshape(sh[0], sh[1]*sh[2], sh[3]*sh[4])
}

// Purified states use the density transfer of the local operator
// Σ_anc ψ[r,anc] conj(ψ[c,anc]).
func (s PurifiedState) transfer(i int, m *tensor.Dense) *tensor.Dense {
	return densityTransfer(purifiedSite(s.MPA.LT(i)), m)
}

// purifiedSite returns the local MPO tensor (a ā, r, c, a' ā') of a purified
// site (a, phys, anc, a').
func purifiedSite(psi *tensor.Dense) *tensor.Dense {
	// (a, p, a', ā, p̄, ā')
	t := tensor.Tensordot(psi, psi.Conj(), []int{2}, []int{2})
	t = t.Transpose(0, 3, 1, 4, 2, 5)
	sh := t.Shape()
	return t.Reshape(sh[0]*sh[1], sh[2], sh[3], sh[4]*sh[5])
}

// ToDensity returns the density operator of a purified state as an MPO.
func (s PurifiedState) ToDensity() DensityState {
	lts := make([]*tensor.Dense, s.MPA.Len())
	for i := range lts {
		lts[i] = purifiedSite(s.MPA.LT(i))
	}
	return DensityState{MPA: mparray.Must(lts)}
}

// ToDensity returns |ψ⟩⟨ψ| as an MPO.
func (s PureState) ToDensity() DensityState {
	lts := make([]*tensor.Dense, s.MPA.Len())
	for i := range lts {
		psi := s.MPA.LT(i)
		// (a, r, a', ā, c, ā')
		t := tensor.Outer(psi, psi.Conj()).Transpose(0, 3, 1, 4, 2, 5)
		sh := t.Shape()
		lts[i] = t.Reshape(sh[0]*sh[1], sh[2], sh[3], sh[4]*sh[5])
	}
	return DensityState{MPA: mparray.Must(lts)}
}
