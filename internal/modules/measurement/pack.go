package measurement

import (
	"math"
)

// packLayout groups adjacent sample columns into uint64 cells. cells[k]
// lists the columns stored in cell k, first column most significant.
type packLayout struct {
	dims  []int
	cells [][]int
}

func newPackLayout(dims []int) packLayout {
	layout := packLayout{dims: dims}
	var cur []int
	radix := uint64(1)
	for col, d := range dims {
		if len(cur) > 0 && radix > math.MaxUint64/uint64(d) {
			layout.cells = append(layout.cells, cur)
			cur, radix = nil, 1
		}
		cur = append(cur, col)
		radix *= uint64(d)
	}
	if len(cur) > 0 {
		layout.cells = append(layout.cells, cur)
	}
	return layout
}

// PackSamples stores each sample as mixed-radix uint64 cells. Adjacent
// columns share a cell while the product of their outcome counts fits in
// 64 bits.
func (p *MPPovm) PackSamples(samples [][]uint8) ([][]uint64, error) {
	if err := p.checkSamples(samples, nil); err != nil {
		return nil, err
	}
	layout := newPackLayout(p.NsOutdims())
	out := make([][]uint64, len(samples))
	for k, s := range samples {
		row := make([]uint64, len(layout.cells))
		for c, cols := range layout.cells {
			var v uint64
			for _, col := range cols {
				v = v*uint64(layout.dims[col]) + uint64(s[col])
			}
			row[c] = v
		}
		out[k] = row
	}
	return out, nil
}

// UnpackSamples reverses PackSamples.
func (p *MPPovm) UnpackSamples(packed [][]uint64) ([][]uint8, error) {
	layout := newPackLayout(p.NsOutdims())
	out := make([][]uint8, len(packed))
	for k, row := range packed {
		if len(row) != len(layout.cells) {
			return nil, dimErr("packed sample %d has %d cells, want %d", k, len(row), len(layout.cells))
		}
		s := make([]uint8, len(layout.dims))
		for c, cols := range layout.cells {
			v := row[c]
			for i := len(cols) - 1; i >= 0; i-- {
				d := uint64(layout.dims[cols[i]])
				s[cols[i]] = uint8(v % d)
				v /= d
			}
			if v != 0 {
				return nil, dimErr("packed sample %d cell %d is out of range", k, c)
			}
		}
		out[k] = s
	}
	return out, nil
}
