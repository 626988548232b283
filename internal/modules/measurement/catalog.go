package measurement

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aristath/mpmeasure/pkg/tensor"
)

// Constructor builds a local POVM for a given local dimension.
type Constructor func(dim int) (*LocalPOVM, error)

// CatalogEntry describes a named local POVM family.
type CatalogEntry struct {
	Name        string
	Description string
	MinDim      int
	New         Constructor
}

// Catalog holds the named local POVM families and provides lookup by name.
type Catalog struct {
	entries map[string]*CatalogEntry
	mu      sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*CatalogEntry)}
}

// DefaultCatalog returns a catalog holding the X, Y, Z and Pauli families.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(&CatalogEntry{Name: "x", Description: "real superpositions of basis pairs", MinDim: 2, New: XPOVM})
	c.Register(&CatalogEntry{Name: "y", Description: "imaginary superpositions of basis pairs", MinDim: 2, New: YPOVM})
	c.Register(&CatalogEntry{Name: "z", Description: "computational basis", MinDim: 1, New: ZPOVM})
	c.Register(&CatalogEntry{Name: "pauli", Description: "mixture of the X, Y (and Z for qubits) families", MinDim: 2, New: PauliPOVM})
	return c
}

// Register adds an entry. An entry with the same name is replaced.
func (c *Catalog) Register(e *CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[e.Name] = e
}

// Get returns an entry by name, or nil if not found.
func (c *Catalog) Get(name string) *CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[name]
}

// Has returns true if an entry with the given name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.entries[name]
	return exists
}

// Build constructs the named POVM for dimension dim.
func (c *Catalog) Build(name string, dim int) (*LocalPOVM, error) {
	e := c.Get(name)
	if e == nil {
		return nil, &UnsupportedModeError{Kind: "povm", Value: name}
	}
	if dim < e.MinDim {
		return nil, dimErr("povm %q needs dimension >= %d, got %d", name, e.MinDim, dim)
	}
	return e.New(dim)
}

// Names returns all registered names in alphabetical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered entries.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// XPOVM returns the projectors onto (|i⟩ ± |j⟩)/√2 for all i < j, divided by
// d − 1 so that they sum to the identity.
func XPOVM(d int) (*LocalPOVM, error) {
	return pairPOVM(d, 1)
}

// YPOVM returns the projectors onto (|i⟩ ± i|j⟩)/√2 for all i < j, divided
// by d − 1.
func YPOVM(d int) (*LocalPOVM, error) {
	return pairPOVM(d, 1i)
}

// ZPOVM returns the projectors onto the computational basis.
func ZPOVM(d int) (*LocalPOVM, error) {
	elems := make([]*tensor.Dense, d)
	for i := range elems {
		e := tensor.Zeros(d, d)
		e.Set(1, i, i)
		elems[i] = e
	}
	return NewLocalPOVM(elems)
}

func pairPOVM(d int, phase complex128) (*LocalPOVM, error) {
	if d < 2 {
		return nil, dimErr("pair POVM needs dimension >= 2, got %d", d)
	}
	norm := complex(1/float64(d-1), 0)
	var elems []*tensor.Dense
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			for _, sign := range []complex128{1, -1} {
				vec := tensor.Zeros(d)
				vec.Set(complex(1/math.Sqrt2, 0), i)
				vec.Set(sign*phase*complex(1/math.Sqrt2, 0), j)
				elems = append(elems, projector(vec).Scale(norm))
			}
		}
	}
	return NewLocalPOVM(elems)
}

func projector(vec *tensor.Dense) *tensor.Dense {
	return tensor.Outer(vec, vec.Conj())
}

// PauliParts returns the complete POVMs mixed by PauliPOVM: X, Y and Z for
// qubits, X and Y otherwise.
func PauliParts(d int) ([]*LocalPOVM, error) {
	x, err := XPOVM(d)
	if err != nil {
		return nil, err
	}
	y, err := YPOVM(d)
	if err != nil {
		return nil, err
	}
	if d > 2 {
		return []*LocalPOVM{x, y}, nil
	}
	z, err := ZPOVM(d)
	if err != nil {
		return nil, err
	}
	return []*LocalPOVM{x, y, z}, nil
}

// PauliPOVM returns the equal-weight mixture of PauliParts. It is
// informationally complete for every d >= 2.
func PauliPOVM(d int) (*LocalPOVM, error) {
	parts, err := PauliParts(d)
	if err != nil {
		return nil, err
	}
	w := 1 / float64(len(parts))
	scaled := make([]*LocalPOVM, len(parts))
	for i, p := range parts {
		scaled[i] = p.Scale(w)
	}
	out, err := Concat(scaled...)
	if err != nil {
		return nil, fmt.Errorf("failed to build pauli povm: %w", err)
	}
	return out, nil
}
