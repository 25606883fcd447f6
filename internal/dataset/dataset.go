package dataset

import (
	"fmt"
)

// Dataset is one batch of structures materialized for one device. All
// property buffers are structure-of-arrays: the component axis has
// stride N (per-atom buffers) or Nc (per-structure buffers), never
// interleaved per atom. A Dataset is built once and mutated in place by
// repeated evaluations; it is never resized.
type Dataset struct {
	Device int // owning device index

	N  int // total atom count
	Nc int // structure count

	Na    []int // per-structure atom counts, length Nc
	NaSum []int // exclusive prefix sums of Na, length Nc

	Type []int     // per-atom element type index, length N
	Pos  []float64 // positions, SoA with stride N, length 3N
	Box  []float64 // per-structure 3x3 boxes, row-major, length 9*Nc

	// Reference properties, untouched by evaluators.
	EnergyRef []float64 // per-structure total energies, length Nc
	ForceRef  []float64 // SoA with stride N, length 3N
	VirialRef []float64 // SoA with stride Nc, length 6*Nc
	HasVirial []bool    // length Nc

	// Prediction buffers, overwritten by every evaluation.
	Energy []float64 // per-atom energies, length N
	Force  []float64 // SoA with stride N, length 3N
	Virial []float64 // per-atom virials, SoA with stride N, length 6N

	// Scaler holds the per-component descriptor normalization constants,
	// filled once by the warm-up evaluation.
	Scaler []float64

	// Uniform neighbor capacity bounds, the global maximum over every
	// dataset of the run (training batches and the held-out set).
	MaxNNRadial  int
	MaxNNAngular int

	// Per-dataset maxima observed during construction, before the
	// global bounds are applied.
	localNNRadial  int
	localNNAngular int
}

// CheckShapes verifies the internal layout invariants
func (ds *Dataset) CheckShapes() error {
	if ds.Nc <= 0 || ds.N <= 0 {
		return fmt.Errorf("dataset is empty (Nc=%d, N=%d)", ds.Nc, ds.N)
	}
	if len(ds.Na) != ds.Nc || len(ds.NaSum) != ds.Nc {
		return fmt.Errorf("atom count tables have lengths %d/%d, expected %d", len(ds.Na), len(ds.NaSum), ds.Nc)
	}
	if ds.NaSum[ds.Nc-1]+ds.Na[ds.Nc-1] != ds.N {
		return fmt.Errorf("offset table does not close: NaSum[last]+Na[last]=%d, N=%d",
			ds.NaSum[ds.Nc-1]+ds.Na[ds.Nc-1], ds.N)
	}
	if len(ds.Type) != ds.N || len(ds.Pos) != 3*ds.N || len(ds.Box) != 9*ds.Nc {
		return fmt.Errorf("geometry buffers have inconsistent lengths")
	}
	if len(ds.EnergyRef) != ds.Nc || len(ds.ForceRef) != 3*ds.N || len(ds.VirialRef) != 6*ds.Nc {
		return fmt.Errorf("reference buffers have inconsistent lengths")
	}
	if len(ds.Energy) != ds.N || len(ds.Force) != 3*ds.N || len(ds.Virial) != 6*ds.N {
		return fmt.Errorf("prediction buffers have inconsistent lengths")
	}
	return nil
}

// StructureEnergy returns the predicted total energy of structure c,
// the sum of its per-atom contributions. Valid only after the owning
// device's evaluation has been joined.
func (ds *Dataset) StructureEnergy(c int) float64 {
	sum := 0.0
	for a := ds.NaSum[c]; a < ds.NaSum[c]+ds.Na[c]; a++ {
		sum += ds.Energy[a]
	}
	return sum
}

// StructureVirial returns predicted virial component k (0..5) of
// structure c, the sum of its per-atom contributions.
func (ds *Dataset) StructureVirial(c, k int) float64 {
	sum := 0.0
	for a := ds.NaSum[c]; a < ds.NaSum[c]+ds.Na[c]; a++ {
		sum += ds.Virial[k*ds.N+a]
	}
	return sum
}
