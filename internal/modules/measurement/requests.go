package measurement

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/mpmeasure/pkg/mparray"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Layout names how a catalog measurement is placed on the chain.
type Layout string

const (
	LayoutEmbed  Layout = "embed"
	LayoutRepeat Layout = "repeat"
	LayoutBlock  Layout = "block"
)

// POVMSpec describes a measurement built from the catalog.
type POVMSpec struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Start  int    `json:"start,omitempty"`
	Layout Layout `json:"layout,omitempty"`
	// Split replaces the mixed Pauli measurement by all products of its
	// parts.
	Split bool `json:"split,omitempty"`
}

// TensorSpec is a dense complex tensor in row-major order.
type TensorSpec struct {
	Shape []int     `json:"shape"`
	Re    []float64 `json:"re"`
	Im    []float64 `json:"im,omitempty"`
}

// StateSpec describes a state either by explicit local tensors or as a
// seeded random state.
type StateSpec struct {
	Mode    Mode         `json:"mode"`
	Impl    PMPSImpl     `json:"impl,omitempty"`
	Tensors []TensorSpec `json:"tensors,omitempty"`
	Sites   int          `json:"sites,omitempty"`
	Dim     int          `json:"dim,omitempty"`
	Ancilla int          `json:"ancilla,omitempty"`
	Rank    int          `json:"rank,omitempty"`
	Seed    uint64       `json:"seed,omitempty"`
}

// Build constructs the state.
func (s StateSpec) Build() (State, error) {
	var mpa *mparray.MPArray
	if len(s.Tensors) > 0 {
		lts := make([]*tensor.Dense, len(s.Tensors))
		for i, ts := range s.Tensors {
			t, err := ts.Dense()
			if err != nil {
				return nil, fmt.Errorf("tensor %d: %w", i, err)
			}
			lts[i] = t
		}
		var err error
		mpa, err = mparray.New(lts)
		if err != nil {
			return nil, &DimensionMismatchError{Message: "invalid state tensors", Err: err}
		}
	} else {
		if s.Sites <= 0 || s.Dim <= 0 {
			return nil, dimErr("random state needs sites and dim, got %d and %d", s.Sites, s.Dim)
		}
		rank := max(s.Rank, 1)
		rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
		dims := make([]int, s.Sites)
		for i := range dims {
			dims[i] = s.Dim
		}
		switch s.Mode {
		case ModeMPS:
			mpa = mparray.RandomMPS(rng, s.Sites, s.Dim, rank)
		case ModeMPDO:
			// a purification traced out is a positive operator with unit trace
			anc := make([]int, s.Sites)
			for i := range anc {
				anc[i] = max(s.Ancilla, 1)
			}
			mpa = PurifiedState{MPA: mparray.RandomPMPS(rng, dims, anc, rank)}.ToDensity().MPA
		case ModePMPS:
			anc := make([]int, s.Sites)
			for i := range anc {
				anc[i] = max(s.Ancilla, 1)
			}
			mpa = mparray.RandomPMPS(rng, dims, anc, rank)
		default:
			return nil, &UnsupportedModeError{Kind: "mode", Value: string(s.Mode)}
		}
	}
	return NewState(s.Mode, mpa, s.Impl)
}

// Dense converts the spec into a tensor.
func (t TensorSpec) Dense() (*tensor.Dense, error) {
	n := tensor.Size(t.Shape)
	if len(t.Re) != n || (t.Im != nil && len(t.Im) != n) {
		return nil, dimErr("shape %v needs %d entries", t.Shape, n)
	}
	data := make([]complex128, n)
	for i := range data {
		im := 0.0
		if t.Im != nil {
			im = t.Im[i]
		}
		data[i] = complex(t.Re[i], im)
	}
	return tensor.New(t.Shape, data), nil
}

// Build constructs the measurement list on a chain with the given local
// dimensions. Only the dimension of the first site is used to build the
// local measurement; all sites covered must share it.
func (s POVMSpec) Build(catalog *Catalog, hdims []int) (*MPPovmList, error) {
	if len(hdims) == 0 {
		return nil, dimErr("empty chain")
	}
	width := s.Width
	if width <= 0 {
		width = 1
	}
	d := hdims[min(s.Start, len(hdims)-1)]
	var base *MPPovmList
	if s.Split {
		if s.Name != "pauli" {
			return nil, &UnsupportedModeError{Kind: "split measurement", Value: s.Name}
		}
		l, err := PauliMPPs(width, d)
		if err != nil {
			return nil, err
		}
		base = l
	} else {
		lp, err := catalog.Build(s.Name, d)
		if err != nil {
			return nil, err
		}
		base, err = NewMPPovmList([]*MPPovm{FromLocalPOVM(lp, width)})
		if err != nil {
			return nil, err
		}
	}

	switch s.Layout {
	case "", LayoutEmbed:
		out := make([]*MPPovm, base.Len())
		for i, p := range base.mpps {
			e, err := p.Embed(len(hdims), s.Start, hdims)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return NewMPPovmList(out)
	case LayoutRepeat:
		return base.Repeat(len(hdims))
	case LayoutBlock:
		return base.Block(len(hdims))
	}
	return nil, &UnsupportedModeError{Kind: "layout", Value: string(s.Layout)}
}
