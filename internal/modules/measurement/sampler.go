package measurement

import (
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Method selects the sampling algorithm.
type Method string

const (
	// MethodDirect draws from the full joint distribution.
	MethodDirect Method = "direct"
	// MethodCond draws groups of sites from conditional distributions.
	MethodCond Method = "cond"
	// MethodAuto picks direct when the joint distribution is small.
	MethodAuto Method = "auto"
)

// DirectOutcomeLimit is the largest number of joint outcomes for which
// MethodAuto samples directly.
const DirectOutcomeLimit = 1 << 16

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodDirect, MethodCond, MethodAuto:
		return Method(s), nil
	}
	return "", &UnsupportedModeError{Kind: "sampling method", Value: s}
}

// Resolve maps MethodAuto to a concrete method for p given the largest
// number of joint outcomes that may be held in memory.
func (m Method) Resolve(p *MPPovm, limit int) Method {
	if m != MethodAuto {
		return m
	}
	if p.NumOutcomes() <= limit {
		return MethodDirect
	}
	return MethodCond
}

// Sample draws n outcomes. Each sample has one entry per measured site.
//
// MethodCond processes nGroup measured sites at a time, strictly left to
// right; values of nGroup below 1 are treated as 1.
func (p *MPPovm) Sample(rng *rand.Rand, state State, n int, method Method, nGroup int, eps float64) ([][]uint8, error) {
	if n < 0 {
		return nil, dimErr("sample count must be non-negative, got %d", n)
	}
	if err := p.checkState(state); err != nil {
		return nil, err
	}
	for _, d := range p.Outdims() {
		if d > math.MaxUint8+1 {
			return nil, dimErr("site with %d outcomes cannot be stored in uint8 samples", d)
		}
	}
	switch method.Resolve(p, DirectOutcomeLimit) {
	case MethodDirect:
		return p.sampleDirect(rng, state, n, eps)
	case MethodCond:
		return p.sampleCond(rng, state, n, max(nGroup, 1), eps)
	}
	return nil, &UnsupportedModeError{Kind: "sampling method", Value: string(method)}
}

func (p *MPPovm) sampleDirect(rng *rand.Rand, state State, n int, eps float64) ([][]uint8, error) {
	pmf, err := p.PMFAsArray(state, eps)
	if err != nil {
		return nil, err
	}
	dims := p.NsOutdims()
	cat := distuv.NewCategorical(pmf.Data(), rng)
	idx := make([]int, len(dims))
	out := make([][]uint8, n)
	for k := range out {
		tensor.Unravel(int(cat.Rand()), dims, idx)
		out[k] = toSample(idx)
	}
	return out, nil
}

func (p *MPPovm) sampleCond(rng *rand.Rand, state State, n, nGroup int, eps float64) ([][]uint8, error) {
	nsites := p.Len()
	transfers := make([]*tensor.Dense, nsites)
	summed := make([]*tensor.Dense, nsites)
	for i := range transfers {
		transfers[i] = state.transfer(i, p.mpa.LT(i))
		summed[i] = transfers[i].SumAxis(0)
	}

	// right[i] contracts sites i.. with all outcomes summed
	right := make([]*tensor.Dense, nsites+1)
	right[nsites] = tensor.Ones(1, 1)
	for i := nsites - 1; i >= 0; i-- {
		right[i] = tensor.Matmul(summed[i], right[i+1])
	}
	total := right[0].Data()[0]
	if math.Abs(imag(total)) > eps || math.Abs(real(total)-1) > eps {
		return nil, &ToleranceExceededError{Check: "total probability", Value: cmplx.Abs(total), Eps: eps}
	}

	pos := p.NsOutPos()
	outdims := p.Outdims()
	out := make([][]uint8, n)
	for k := range out {
		sample := make([]uint8, 0, len(pos))
		left := tensor.Ones(1, 1)
		site := 0
		for g := 0; g < len(pos); g += nGroup {
			group := pos[g:min(g+nGroup, len(pos))]
			for ; site < group[0]; site++ {
				left = tensor.Matmul(left, summed[site])
			}
			// joint: (X, R) over the outcomes of the group
			joint := left
			var gdims []int
			for ; site <= group[len(group)-1]; site++ {
				if outdims[site] == 1 {
					joint = tensor.Matmul(joint, summed[site])
					continue
				}
				joint = tensor.Tensordot(joint, transfers[site], []int{1}, []int{1})
				sh := joint.Shape()
				joint = joint.Reshape(sh[0]*sh[1], sh[2])
				gdims = append(gdims, outdims[site])
			}
			probs, _ := tensor.Matmul(joint, right[site]).Real()
			weights := probs.Data()
			for i, v := range weights {
				if v < 0 {
					weights[i] = 0
				}
			}
			if floats.Sum(weights) <= 0 {
				return nil, &ToleranceExceededError{Check: "conditional probability mass", Value: floats.Sum(weights), Eps: eps}
			}
			idx := int(distuv.NewCategorical(weights, rng).Rand())
			sample = append(sample, toSample(tensor.Unravel(idx, gdims, nil))...)

			left = joint.Slice(0, idx).Reshape(1, joint.Dim(1))
			if scale := cmplx.Abs(cmplxs.MaxAbs(left.Data())); scale > 0 {
				left = left.Scale(complex(1/scale, 0))
			}
		}
		out[k] = sample
	}
	return out, nil
}

func toSample(idx []int) []uint8 {
	s := make([]uint8, len(idx))
	for i, v := range idx {
		s[i] = uint8(v)
	}
	return s
}
