package fitness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/structure"
)

func TestRmseIdenticalBuffersIsExactlyZero(t *testing.T) {
	x := []float64{1.0, -2.5, 3.141592653589793, 1e-30, 7e12}
	assert.Equal(t, 0.0, Rmse(x, x))

	y := append([]float64(nil), x...)
	assert.Equal(t, 0.0, Rmse(x, y))
}

func TestRmseKnownValue(t *testing.T) {
	// residuals 3 and 4, mean square 12.5, rmse 3.5355...
	pred := []float64{3.0, 0.0}
	ref := []float64{0.0, 4.0}
	assert.InDelta(t, 3.5355339059327378, Rmse(pred, ref), 1e-15)
}

func TestRmseEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Rmse(nil, nil))
}

// twoStructureDataset builds a minimal dataset of two structures with
// atom counts naA and naB and binary-exact reference values.
func twoStructureDataset(t *testing.T, naA, naB int, refA, refB float64, virials bool) *dataset.Dataset {
	t.Helper()
	structures := []*structure.Structure{
		testStructure(naA, refA, virials),
		testStructure(naB, refB, virials),
	}
	store, err := structure.NewStore(structures)
	require.NoError(t, err)
	ds, err := dataset.Build(store, dataset.Range{Start: 0, End: 2}, 0, 6.0, 3.0)
	require.NoError(t, err)
	return ds
}

func TestEnergyRMSEPerAtomNormalization(t *testing.T) {
	ds := twoStructureDataset(t, 2, 4, -3.25, 1.5, false)

	// Predicted totals off by exactly 0.5 per atom in both structures.
	for a := 0; a < ds.N; a++ {
		ds.Energy[a] = 0.5
	}
	ds.Energy[ds.NaSum[0]] += ds.EnergyRef[0]
	ds.Energy[ds.NaSum[1]] += ds.EnergyRef[1]

	assert.Equal(t, 0.5, EnergyRMSE(ds))
}

func TestForceRMSEPoolsAllComponents(t *testing.T) {
	ds := twoStructureDataset(t, 2, 4, -3.25, 1.5, false)

	copy(ds.Force, ds.ForceRef)
	assert.Equal(t, 0.0, ForceRMSE(ds))

	// A single component off by 3 over 3N=18 components.
	ds.Force[0] += 3.0
	assert.InDelta(t, 0.7071067811865476, ForceRMSE(ds), 1e-15)
}

func TestVirialRMSEExactZero(t *testing.T) {
	ds := twoStructureDataset(t, 2, 3, -3.25, 1.5, true)

	// Whole reference component into the structure's first atom slot.
	for c := 0; c < ds.Nc; c++ {
		for k := 0; k < 6; k++ {
			ds.Virial[k*ds.N+ds.NaSum[c]] = ds.VirialRef[k*ds.Nc+c]
		}
	}
	assert.Equal(t, 0.0, VirialRMSE(ds))
}

func TestVirialRMSESkipsMissingReferences(t *testing.T) {
	ds := twoStructureDataset(t, 2, 3, -3.25, 1.5, false)
	// Garbage predictions must not count when no structure has a
	// reference virial.
	for i := range ds.Virial {
		ds.Virial[i] = 1e6
	}
	assert.Equal(t, 0.0, VirialRMSE(ds))
}
