package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Float is a dense real array stored in row-major order.
type Float struct {
	shape []int
	data  []float64
}

// NewFloat wraps data with the given shape. data is not copied.
func NewFloat(shape []int, data []float64) *Float {
	if Size(shape) != len(data) {
		panic(fmt.Sprintf("tensor: shape %v needs %d entries, got %d", shape, Size(shape), len(data)))
	}
	return &Float{shape: append([]int(nil), shape...), data: data}
}

// FloatZeros creates a zero real array.
func FloatZeros(shape ...int) *Float {
	return &Float{shape: append([]int(nil), shape...), data: make([]float64, Size(shape))}
}

// Shape returns a copy of the array shape.
func (f *Float) Shape() []int { return append([]int(nil), f.shape...) }

// Len returns the number of entries.
func (f *Float) Len() int { return len(f.data) }

// Data returns the underlying row-major storage.
func (f *Float) Data() []float64 { return f.data }

// At returns the entry at the given multi-index.
func (f *Float) At(idx ...int) float64 { return f.data[Ravel(idx, f.shape)] }

// Set sets the entry at the given multi-index.
func (f *Float) Set(v float64, idx ...int) { f.data[Ravel(idx, f.shape)] = v }

// Clone returns a deep copy.
func (f *Float) Clone() *Float {
	return &Float{shape: f.Shape(), data: append([]float64(nil), f.data...)}
}

// Reshape returns an array sharing storage with f.
func (f *Float) Reshape(shape ...int) *Float {
	if Size(shape) != len(f.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v into %v", f.shape, shape))
	}
	return &Float{shape: append([]int(nil), shape...), data: f.data}
}

// Sum returns the sum of all entries.
func (f *Float) Sum() float64 { return floats.Sum(f.data) }

// Complex converts f into a complex tensor.
func (f *Float) Complex() *Dense { return FromReal(f.shape, f.data) }

// EqualApprox reports whether f and g have the same shape and agree within tol.
func (f *Float) EqualApprox(g *Float, tol float64) bool {
	if !sameShape(f.shape, g.shape) {
		return false
	}
	return floats.EqualApprox(f.data, g.data, tol)
}

// Opt is a float64 that may be undefined.
type Opt struct {
	Value float64
	Valid bool
}

// Some returns a defined Opt.
func Some(v float64) Opt { return Opt{Value: v, Valid: true} }

// None returns an undefined Opt.
func None() Opt { return Opt{} }

// OrNaN returns the value, or NaN if undefined.
func (o Opt) OrNaN() float64 {
	if !o.Valid {
		return math.NaN()
	}
	return o.Value
}

// Add returns o + p; undefined if either is undefined.
func (o Opt) Add(p Opt) Opt {
	if !o.Valid || !p.Valid {
		return None()
	}
	return Some(o.Value + p.Value)
}

// Mul returns o · p; undefined if either is undefined.
func (o Opt) Mul(p Opt) Opt {
	if !o.Valid || !p.Valid {
		return None()
	}
	return Some(o.Value * p.Value)
}

// MarshalJSON encodes an undefined value as null.
func (o Opt) MarshalJSON() ([]byte, error) {
	if !o.Valid || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%g", o.Value)), nil
}

// OptFloat is a real array whose entries may be undefined.
type OptFloat struct {
	shape []int
	data  []Opt
}

// NewOptFloat creates an all-undefined array of the given shape.
func NewOptFloat(shape ...int) *OptFloat {
	return &OptFloat{shape: append([]int(nil), shape...), data: make([]Opt, Size(shape))}
}

// Shape returns a copy of the array shape.
func (o *OptFloat) Shape() []int { return append([]int(nil), o.shape...) }

// Data returns the underlying row-major storage.
func (o *OptFloat) Data() []Opt { return o.data }

// At returns the entry at the given multi-index.
func (o *OptFloat) At(idx ...int) Opt { return o.data[Ravel(idx, o.shape)] }

// Set sets the entry at the given multi-index.
func (o *OptFloat) Set(v Opt, idx ...int) { o.data[Ravel(idx, o.shape)] = v }

// Defined reports which entries are defined.
func (o *OptFloat) Defined() []bool {
	out := make([]bool, len(o.data))
	for i, v := range o.data {
		out[i] = v.Valid
	}
	return out
}

// Values returns the entries with undefined ones replaced by NaN.
func (o *OptFloat) Values() []float64 {
	out := make([]float64, len(o.data))
	for i, v := range o.data {
		out[i] = v.OrNaN()
	}
	return out
}
