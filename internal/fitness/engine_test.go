package fitness

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/device"
	"github.com/mlpotfit/fitting-core/internal/structure"
)

// testStructure places na atoms along x in a 20 Angstrom cube with
// binary-exact reference properties.
func testStructure(na int, energy float64, virial bool) *structure.Structure {
	s := &structure.Structure{
		Na:     na,
		Type:   make([]int, na),
		Pos:    make([]float64, 3*na),
		Box:    [9]float64{20, 0, 0, 0, 20, 0, 0, 0, 20},
		Energy: energy,
		Force:  make([]float64, 3*na),
	}
	for a := 0; a < na; a++ {
		s.Pos[3*a] = 2.5 * float64(a)
		s.Pos[3*a+1] = 1.0
		s.Pos[3*a+2] = 1.0
		s.Force[3*a] = 0.25 * float64(a+1)
		s.Force[3*a+1] = -0.5
		s.Force[3*a+2] = 0.125
	}
	if virial {
		s.HasVirial = true
		s.Virial = [6]float64{1.0, 2.0, -0.5, 0.25, 0.75, -1.5}
	}
	return s
}

func testStore(t *testing.T, na []int, refs []float64, virials bool) *structure.Store {
	t.Helper()
	require.Equal(t, len(na), len(refs))
	structures := make([]*structure.Structure, len(na))
	for i := range na {
		structures[i] = testStructure(na[i], refs[i], virials)
	}
	store, err := structure.NewStore(structures)
	require.NoError(t, err)
	return store
}

// buildSets materializes one training batch per structure plus a
// held-out copy of the same structures, replicated per device.
func buildSets(t *testing.T, store *structure.Store, deviceCount int) ([][]*dataset.Dataset, []*dataset.Dataset) {
	t.Helper()
	ranges := make([]dataset.Range, store.Count())
	for i := range ranges {
		ranges[i] = dataset.Range{Start: i, End: i + 1}
	}
	train, test, err := dataset.BuildAll(context.Background(), store, store, ranges, deviceCount, 6.0, 3.0)
	require.NoError(t, err)
	return train, test
}

func newTestPool(t *testing.T, count int) *device.Pool {
	t.Helper()
	pool, err := device.NewPool(count)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// copyRefsModel reproduces every reference property exactly. The whole
// per-structure value goes into the structure's first atom slot so the
// accumulated sums are bitwise equal to the references.
type copyRefsModel struct{}

func (copyRefsModel) Evaluate(params []float64, ds *dataset.Dataset, warmup bool) error {
	if warmup && ds.Scaler == nil {
		ds.Scaler = []float64{1.0, 0.5, 0.25}
	}
	for i := range ds.Energy {
		ds.Energy[i] = 0
	}
	for i := range ds.Virial {
		ds.Virial[i] = 0
	}
	copy(ds.Force, ds.ForceRef)
	for c := 0; c < ds.Nc; c++ {
		ds.Energy[ds.NaSum[c]] = ds.EnergyRef[c]
		for k := 0; k < 6; k++ {
			ds.Virial[k*ds.N+ds.NaSum[c]] = ds.VirialRef[k*ds.Nc+c]
		}
	}
	return nil
}

// offsetModel is copyRefsModel plus a constant per-atom energy shift
type offsetModel struct {
	shift float64
}

func (m offsetModel) Evaluate(params []float64, ds *dataset.Dataset, warmup bool) error {
	if err := (copyRefsModel{}).Evaluate(params, ds, warmup); err != nil {
		return err
	}
	for i := range ds.Energy {
		ds.Energy[i] += m.shift
	}
	return nil
}

type evalCall struct {
	marker int
	device int
	warmup bool
}

// recordingModel tags each call with params[0] so dispatch can be
// reconstructed after the fact.
type recordingModel struct {
	mu    sync.Mutex
	calls []evalCall
	fail  int // marker that triggers an error, 0 for none
}

var errKernel = errors.New("kernel fault")

func (m *recordingModel) Evaluate(params []float64, ds *dataset.Dataset, warmup bool) error {
	if warmup && ds.Scaler == nil {
		ds.Scaler = []float64{1.0}
	}
	marker := int(params[0])
	m.mu.Lock()
	m.calls = append(m.calls, evalCall{marker: marker, device: ds.Device, warmup: warmup})
	m.mu.Unlock()
	if m.fail != 0 && marker == m.fail {
		return errKernel
	}
	return nil
}

func (m *recordingModel) scoring() []evalCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []evalCall
	for _, c := range m.calls {
		if !c.warmup {
			out = append(out, c)
		}
	}
	return out
}

func TestNewEngineValidation(t *testing.T) {
	pool := newTestPool(t, 2)
	store := testStore(t, []int{2, 3}, []float64{-1.0, 1.0}, false)
	train, test := buildSets(t, store, 2)

	_, err := NewEngine(nil, pool, train, test, Weights{}, 4)
	assert.Error(t, err)

	_, err = NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 0)
	assert.Error(t, err)

	_, err = NewEngine(copyRefsModel{}, pool, nil, test, Weights{}, 4)
	assert.Error(t, err)

	_, err = NewEngine(copyRefsModel{}, pool, [][]*dataset.Dataset{train[0][:1]}, test, Weights{}, 4)
	assert.ErrorContains(t, err, "one per device")

	_, err = NewEngine(copyRefsModel{}, pool, train, test[:1], Weights{}, 4)
	assert.ErrorContains(t, err, "one per device")

	_, err = NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
	assert.NoError(t, err)
}

func TestEvaluateBeforeWarmUp(t *testing.T) {
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2}, []float64{-1.0}, false)
	train, test := buildSets(t, store, 1)
	engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
	require.NoError(t, err)

	_, err = engine.Evaluate([][]float64{make([]float64, 4)})
	var warmup *WarmupError
	require.ErrorAs(t, err, &warmup)
}

func TestWarmUpRunsOnce(t *testing.T) {
	pool := newTestPool(t, 2)
	store := testStore(t, []int{2, 3}, []float64{-1.0, 1.0}, false)
	train, test := buildSets(t, store, 2)
	engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
	require.NoError(t, err)

	assert.Equal(t, 0, engine.Generation())
	require.NoError(t, engine.WarmUp())
	assert.Equal(t, 1, engine.Generation())

	var warmup *WarmupError
	require.ErrorAs(t, engine.WarmUp(), &warmup)
}

func TestWarmUpMaterializesScalers(t *testing.T) {
	store := testStore(t, []int{2, 3}, []float64{-1.0, 1.0}, false)

	build := func() *Engine {
		pool := newTestPool(t, 2)
		train, test := buildSets(t, store, 2)
		engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
		require.NoError(t, err)
		require.NoError(t, engine.WarmUp())
		return engine
	}
	a := build()
	b := build()

	for b2 := 0; b2 < a.NumBatches(); b2++ {
		for d := 0; d < 2; d++ {
			assert.NotEmpty(t, a.TrainDataset(b2, d).Scaler)
		}
	}
	// Identical inputs produce identical scalers across runs.
	assert.Equal(t, a.TestDataset(0).Scaler, b.TestDataset(0).Scaler)
	assert.Equal(t, a.TrainDataset(0, 0).Scaler, b.TrainDataset(0, 0).Scaler)
}

func TestBatchRotation(t *testing.T) {
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2, 2, 2}, []float64{-1.0, 0.0, 1.0}, false)
	train, test := buildSets(t, store, 1)
	engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
	require.NoError(t, err)
	require.Equal(t, 3, engine.NumBatches())

	for g := 0; g < 20; g++ {
		assert.Equal(t, engine.BatchFor(g), engine.BatchFor(g+engine.NumBatches()))
	}

	require.NoError(t, engine.WarmUp())
	population := [][]float64{make([]float64, 4)}
	var visited []int
	for i := 0; i < 6; i++ {
		results, err := engine.Evaluate(population)
		require.NoError(t, err)
		visited = append(visited, results[0].Batch)
	}
	assert.Equal(t, []int{1, 2, 0, 1, 2, 0}, visited)
}

func TestEvaluateDimensionError(t *testing.T) {
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2}, []float64{-1.0}, false)
	train, test := buildSets(t, store, 1)
	engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{}, 4)
	require.NoError(t, err)
	require.NoError(t, engine.WarmUp())

	_, err = engine.Evaluate([][]float64{make([]float64, 4), make([]float64, 3)})
	var dim *DimensionError
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 1, dim.Individual)
	assert.Equal(t, 3, dim.Got)
	assert.Equal(t, 4, dim.Want)

	_, err = engine.Evaluate(nil)
	assert.Error(t, err)
}

func TestEvaluateDispatchCoverage(t *testing.T) {
	model := &recordingModel{}
	pool := newTestPool(t, 2)
	store := testStore(t, []int{2, 3}, []float64{-1.0, 1.0}, false)
	train, test := buildSets(t, store, 2)
	engine, err := NewEngine(model, pool, train, test, Weights{}, 4)
	require.NoError(t, err)
	require.NoError(t, engine.WarmUp())

	// Five individuals across two devices: chunks of two, one trailing.
	population := make([][]float64, 5)
	for i := range population {
		population[i] = []float64{float64(i + 10), 0, 0, 0}
	}
	results, err := engine.Evaluate(population)
	require.NoError(t, err)
	require.Len(t, results, 5)

	calls := model.scoring()
	require.Len(t, calls, 5)
	seen := make(map[int]int)
	for _, c := range calls {
		i := c.marker - 10
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, 5)
		seen[i]++
		assert.Equal(t, i%2, c.device, "individual %d", i)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, seen[i], "individual %d evaluated exactly once", i)
	}
	for i, r := range results {
		assert.Equal(t, i, r.Individual)
		assert.Equal(t, i%2, r.Device)
	}
}

func TestEvaluateExactReproductionIsZeroFitness(t *testing.T) {
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2, 3}, []float64{-3.25, 1.5}, true)
	train, test := buildSets(t, store, 1)
	engine, err := NewEngine(copyRefsModel{}, pool, train, test, Weights{Energy: 1, Force: 1, Virial: 1}, 4)
	require.NoError(t, err)
	require.NoError(t, engine.WarmUp())

	population := [][]float64{
		make([]float64, 4),
		make([]float64, 4),
		make([]float64, 4),
	}
	for g := 0; g < engine.NumBatches(); g++ {
		results, err := engine.Evaluate(population)
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, 0.0, r.Energy)
			assert.Equal(t, 0.0, r.Force)
			assert.Equal(t, 0.0, r.Virial)
		}
	}
}

func TestEvaluateUniformEnergyOffset(t *testing.T) {
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2, 4}, []float64{-3.25, 1.5}, false)
	ranges := []dataset.Range{{Start: 0, End: 2}}
	train, test, err := dataset.BuildAll(context.Background(), store, store, ranges, 1, 6.0, 3.0)
	require.NoError(t, err)

	engine, err := NewEngine(offsetModel{shift: 0.5}, pool, train, test, Weights{Energy: 2, Force: 1, Virial: 1}, 4)
	require.NoError(t, err)
	require.NoError(t, engine.WarmUp())

	results, err := engine.Evaluate([][]float64{make([]float64, 4)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Per-atom shift of 0.5 means every per-structure residual is
	// exactly 0.5 per atom, so the weighted energy term is 2*0.5.
	assert.Equal(t, 1.0, results[0].Energy)
	assert.Equal(t, 0.0, results[0].Force)
	assert.Equal(t, 0.0, results[0].Virial)
}

func TestEvaluateErrorNamesIndividualAndDevice(t *testing.T) {
	model := &recordingModel{fail: 13}
	pool := newTestPool(t, 2)
	store := testStore(t, []int{2, 3}, []float64{-1.0, 1.0}, false)
	train, test := buildSets(t, store, 2)
	engine, err := NewEngine(model, pool, train, test, Weights{}, 4)
	require.NoError(t, err)
	require.NoError(t, engine.WarmUp())

	population := make([][]float64, 5)
	for i := range population {
		population[i] = []float64{float64(i + 10), 0, 0, 0}
	}
	_, err = engine.Evaluate(population)
	require.Error(t, err)
	require.ErrorIs(t, err, errKernel)
	assert.ErrorContains(t, err, "individual 3")
	assert.ErrorContains(t, err, "device 1")
	assert.ErrorContains(t, err, "batch 1")
}

func TestWarmUpErrorNamesBatchAndDevice(t *testing.T) {
	model := &recordingModel{fail: 1} // ones vector marker
	pool := newTestPool(t, 1)
	store := testStore(t, []int{2}, []float64{-1.0}, false)
	train, test := buildSets(t, store, 1)
	engine, err := NewEngine(model, pool, train, test, Weights{}, 4)
	require.NoError(t, err)

	err = engine.WarmUp()
	require.ErrorIs(t, err, errKernel)
	assert.ErrorContains(t, err, "warm-up failed")
	assert.Equal(t, 0, engine.Generation())
}
