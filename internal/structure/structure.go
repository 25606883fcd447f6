package structure

import (
	"fmt"
)

// Structure is a single reference atomic configuration. It is immutable
// once loaded; the Store owns it for the lifetime of a run.
type Structure struct {
	Na     int       // atom count
	Type   []int     // per-atom element type index, length Na
	Pos    []float64 // positions, atom-major (x y z per atom), length 3*Na
	Box    [9]float64
	Energy float64   // reference total energy
	Force  []float64 // reference forces, atom-major, length 3*Na
	Virial [6]float64
	// HasVirial marks whether the reference virial was present in the
	// dataset; structures without it are excluded from virial scoring.
	HasVirial bool
}

// Validate checks internal consistency of a loaded structure
func (s *Structure) Validate() error {
	if s.Na <= 0 {
		return fmt.Errorf("structure has no atoms")
	}
	if len(s.Type) != s.Na {
		return fmt.Errorf("type table has %d entries, expected %d", len(s.Type), s.Na)
	}
	if len(s.Pos) != 3*s.Na {
		return fmt.Errorf("position buffer has %d entries, expected %d", len(s.Pos), 3*s.Na)
	}
	if len(s.Force) != 3*s.Na {
		return fmt.Errorf("force buffer has %d entries, expected %d", len(s.Force), 3*s.Na)
	}
	return nil
}

// Store holds all reference structures for the lifetime of a run
type Store struct {
	structures []*Structure
	totalAtoms int
}

// NewStore validates and wraps a set of loaded structures
func NewStore(structures []*Structure) (*Store, error) {
	if len(structures) == 0 {
		return nil, fmt.Errorf("at least one structure is required")
	}
	total := 0
	for i, s := range structures {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("structure %d: %w", i, err)
		}
		total += s.Na
	}
	return &Store{structures: structures, totalAtoms: total}, nil
}

// Count returns the number of structures in the store
func (st *Store) Count() int {
	return len(st.structures)
}

// TotalAtoms returns the sum of atom counts over all structures
func (st *Store) TotalAtoms() int {
	return st.totalAtoms
}

// At returns the structure at index i
func (st *Store) At(i int) *Structure {
	return st.structures[i]
}

// Slice returns the structures in [n1, n2)
func (st *Store) Slice(n1, n2 int) ([]*Structure, error) {
	if n1 < 0 || n2 > len(st.structures) || n1 >= n2 {
		return nil, fmt.Errorf("invalid structure range [%d, %d) for store of %d", n1, n2, len(st.structures))
	}
	return st.structures[n1:n2], nil
}
