package fitness

import (
	"fmt"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/device"
	"github.com/mlpotfit/fitting-core/internal/potential"
	"github.com/mlpotfit/fitting-core/pkg/logger"
	"github.com/mlpotfit/fitting-core/pkg/utils"
)

// Weights are the externally configured per-property fitness weights
type Weights struct {
	Energy float64
	Force  float64
	Virial float64
}

// Result is the fitness triple for one individual. The three values
// are handed to the external selection operator as-is; no combination
// or ranking policy is applied here. NaN predictions propagate into
// these values and must be treated as worst-possible fitness by the
// selection operator.
type Result struct {
	Individual int
	Batch      int
	Device     int
	Energy     float64
	Force      float64
	Virial     float64
}

// DimensionError indicates an individual of the wrong vector length
type DimensionError struct {
	Individual int
	Got        int
	Want       int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("individual %d has %d variables, expected %d", e.Individual, e.Got, e.Want)
}

// WarmupError indicates Evaluate was called before WarmUp, or WarmUp
// was called twice.
type WarmupError struct {
	Reason string
}

func (e *WarmupError) Error() string {
	return "warm-up: " + e.Reason
}

// Engine orchestrates population fitness evaluation: batch rotation,
// multi-device dispatch and RMSE scoring. The train datasets are
// indexed [batch][device]; each device owns physically distinct
// Dataset instances, so no individual's evaluation can corrupt
// another's.
type Engine struct {
	model   potential.Model
	pool    *device.Pool
	train   [][]*dataset.Dataset
	test    []*dataset.Dataset
	weights Weights
	numVars int

	numBatches int
	generation int
}

// NewEngine validates dataset shapes against the device pool and
// builds an engine positioned before warm-up (generation 0).
func NewEngine(model potential.Model, pool *device.Pool, train [][]*dataset.Dataset, test []*dataset.Dataset, weights Weights, numVars int) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("evaluation model is required")
	}
	if numVars <= 0 {
		return nil, fmt.Errorf("number of variables must be positive, got %d", numVars)
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("at least one training batch is required")
	}
	for b, perDevice := range train {
		if len(perDevice) != pool.Size() {
			return nil, fmt.Errorf("training batch %d has %d datasets, expected one per device (%d)", b, len(perDevice), pool.Size())
		}
		for d, ds := range perDevice {
			if ds == nil {
				return nil, fmt.Errorf("training batch %d is missing its dataset for device %d", b, d)
			}
			if err := ds.CheckShapes(); err != nil {
				return nil, fmt.Errorf("training batch %d, device %d: %w", b, d, err)
			}
		}
	}
	if len(test) != pool.Size() {
		return nil, fmt.Errorf("held-out set has %d datasets, expected one per device (%d)", len(test), pool.Size())
	}
	for d, ds := range test {
		if ds == nil {
			return nil, fmt.Errorf("held-out set is missing its dataset for device %d", d)
		}
		if err := ds.CheckShapes(); err != nil {
			return nil, fmt.Errorf("held-out set, device %d: %w", d, err)
		}
	}
	return &Engine{
		model:      model,
		pool:       pool,
		train:      train,
		test:       test,
		weights:    weights,
		numVars:    numVars,
		numBatches: len(train),
	}, nil
}

// NumBatches returns the number of training batches
func (e *Engine) NumBatches() int {
	return e.numBatches
}

// Generation returns the next generation to be evaluated; 0 means
// warm-up has not run yet.
func (e *Engine) Generation() int {
	return e.generation
}

// BatchFor returns the batch evaluated at a scoring generation. The
// mapping is a fixed round-robin rotation with period NumBatches.
func (e *Engine) BatchFor(generation int) int {
	return generation % e.numBatches
}

// WarmUp runs generation 0: an all-ones parameter vector is evaluated
// against every training batch and the full held-out set on every
// device. This materializes the descriptor scalers and validates
// buffer shapes; no fitness vector is produced.
func (e *Engine) WarmUp() error {
	if e.generation != 0 {
		return &WarmupError{Reason: "already performed"}
	}

	ones := make([]float64, e.numVars)
	for i := range ones {
		ones[i] = 1.0
	}

	type pending struct {
		task  *device.Task
		batch int // -1 for the held-out set
		dev   int
	}
	var tasks []pending
	for b, perDevice := range e.train {
		for d, ds := range perDevice {
			ds := ds
			tasks = append(tasks, pending{
				task:  e.pool.Device(d).Submit(func() error { return e.model.Evaluate(ones, ds, true) }),
				batch: b,
				dev:   d,
			})
		}
	}
	for d, ds := range e.test {
		ds := ds
		tasks = append(tasks, pending{
			task:  e.pool.Device(d).Submit(func() error { return e.model.Evaluate(ones, ds, true) }),
			batch: -1,
			dev:   d,
		})
	}
	for _, p := range tasks {
		if err := p.task.Wait(); err != nil {
			if p.batch < 0 {
				return fmt.Errorf("warm-up failed for the held-out set on device %d: %w", p.dev, err)
			}
			return fmt.Errorf("warm-up failed for batch %d on device %d: %w", p.batch, p.dev, err)
		}
	}

	e.generation = 1
	logger.Info("warm-up complete",
		"batches", e.numBatches,
		"devices", e.pool.Size(),
		"variables", e.numVars)
	return nil
}

// Evaluate scores one generation of the population against the current
// batch. The population is split into consecutive chunks of up to
// deviceCount individuals; within a chunk, individual chunkStart+d runs
// on device d. The host joins each chunk before issuing the next, so
// at most one individual is in flight per device.
func (e *Engine) Evaluate(population [][]float64) ([]Result, error) {
	if e.generation == 0 {
		return nil, &WarmupError{Reason: "required before evaluation"}
	}
	if len(population) == 0 {
		return nil, fmt.Errorf("population is empty")
	}
	for i, individual := range population {
		if len(individual) != e.numVars {
			return nil, &DimensionError{Individual: i, Got: len(individual), Want: e.numVars}
		}
	}

	batchID := e.BatchFor(e.generation)
	devCount := e.pool.Size()
	results := make([]Result, len(population))

	for start := 0; start < len(population); start += devCount {
		width := utils.Min(devCount, len(population)-start)
		tasks := make([]*device.Task, width)
		for d := 0; d < width; d++ {
			params := population[start+d]
			ds := e.train[batchID][d]
			tasks[d] = e.pool.Device(d).Submit(func() error {
				return e.model.Evaluate(params, ds, false)
			})
		}
		// Predictions are read only after the owning task is joined.
		for d := 0; d < width; d++ {
			i := start + d
			if err := tasks[d].Wait(); err != nil {
				return nil, fmt.Errorf("evaluation failed for individual %d on device %d (generation %d, batch %d): %w",
					i, d, e.generation, batchID, err)
			}
			ds := e.train[batchID][d]
			results[i] = Result{
				Individual: i,
				Batch:      batchID,
				Device:     d,
				Energy:     e.weights.Energy * EnergyRMSE(ds),
				Force:      e.weights.Force * ForceRMSE(ds),
				Virial:     e.weights.Virial * VirialRMSE(ds),
			}
		}
	}

	e.generation++
	return results, nil
}

// TrainDataset returns the device-resident dataset for a batch
func (e *Engine) TrainDataset(batch, dev int) *dataset.Dataset {
	return e.train[batch][dev]
}

// TestDataset returns the device-resident held-out dataset
func (e *Engine) TestDataset(dev int) *dataset.Dataset {
	return e.test[dev]
}
