package report

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/device"
	"github.com/mlpotfit/fitting-core/internal/fitness"
	"github.com/mlpotfit/fitting-core/internal/metrics"
	"github.com/mlpotfit/fitting-core/internal/potential"
	"github.com/mlpotfit/fitting-core/internal/storage"
	"github.com/mlpotfit/fitting-core/pkg/config"
	"github.com/mlpotfit/fitting-core/pkg/logger"
	"github.com/mlpotfit/fitting-core/pkg/utils"
)

// trainDumpFactor: the full training-set dump fires every this many
// checkpoint cadences.
const trainDumpFactor = 10

// Reporter periodically re-evaluates the elite individual, corrects its
// energy bias, and writes the snapshot, dump files, loss log and run
// history. It is purely observational: it never advances optimization
// state, and all of its evaluations run on device 0.
type Reporter struct {
	def     potential.Definition
	model   potential.Model
	pool    *device.Pool
	train   [][]*dataset.Dataset
	test    []*dataset.Dataset
	weights fitness.Weights
	lambda1 float64
	lambda2 float64
	cadence int
	outDir  string
	history *metrics.History
	store   storage.Store
	runID   string
}

// NewReporter wires a reporter from the run configuration. The train
// and test datasets are the same device-resident instances the fitness
// engine uses; the reporter only touches the device-0 copies, and only
// between generations.
func NewReporter(cfg *config.Config, def potential.Definition, model potential.Model, pool *device.Pool, train [][]*dataset.Dataset, test []*dataset.Dataset, history *metrics.History, store storage.Store, runID string) (*Reporter, error) {
	if cfg.Fitting.CheckpointEvery <= 0 {
		return nil, fmt.Errorf("checkpoint cadence must be positive, got %d", cfg.Fitting.CheckpointEvery)
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("reporter needs training and held-out datasets")
	}
	return &Reporter{
		def:   def,
		model: model,
		pool:  pool,
		train: train,
		test:  test,
		weights: fitness.Weights{
			Energy: cfg.Fitting.LambdaEnergy,
			Force:  cfg.Fitting.LambdaForce,
			Virial: cfg.Fitting.LambdaVirial,
		},
		lambda1: cfg.Fitting.Lambda1,
		lambda2: cfg.Fitting.Lambda2,
		cadence: cfg.Fitting.CheckpointEvery,
		outDir:  cfg.Output.Dir,
		history: history,
		store:   store,
		runID:   runID,
	}, nil
}

// Cadence returns the checkpoint cadence in generations
func (r *Reporter) Cadence() int {
	return r.cadence
}

// ShouldFire reports whether a checkpoint is due after the zero-indexed
// generation: with cadence C it fires at generations C-1, 2C-1, ...
func (r *Reporter) ShouldFire(generation int) bool {
	return (generation+1)%r.cadence == 0
}

// ShouldDumpTrain reports whether the extended training-set dump is due
// after the zero-indexed generation: every 10x the cadence.
func (r *Reporter) ShouldDumpTrain(generation int) bool {
	return (generation+1)%(trainDumpFactor*r.cadence) == 0
}

// Checkpoint re-evaluates the elite against its current batch, corrects
// its energy bias on a serialized copy (the caller's elite is never
// mutated), re-evaluates the corrected copy on the held-out set, and
// writes snapshot, dumps, loss log and run history.
func (r *Reporter) Checkpoint(ctx context.Context, generation, batchID int, elite []float64) error {
	if batchID < 0 || batchID >= len(r.train) {
		return fmt.Errorf("batch %d out of range [0, %d)", batchID, len(r.train))
	}
	trainDS := r.train[batchID][0]
	testDS := r.test[0]

	if err := r.evaluate(elite, trainDS); err != nil {
		return fmt.Errorf("checkpoint at generation %d: elite re-evaluation on batch %d: %w", generation, batchID, err)
	}
	trainRMSE := metrics.PropertyRMSE{
		Energy: r.weights.Energy * fitness.EnergyRMSE(trainDS),
		Force:  r.weights.Force * fitness.ForceRMSE(trainDS),
		Virial: r.weights.Virial * fitness.VirialRMSE(trainDS),
	}

	// An additive energy offset cancels exactly through the trailing
	// bias parameter, so the mean residual is subtracted from it on a
	// copy of the elite.
	bias := energyBias(trainDS)
	corrected := append([]float64(nil), elite...)
	corrected[len(corrected)-1] -= bias

	if err := r.evaluate(corrected, testDS); err != nil {
		return fmt.Errorf("checkpoint at generation %d: held-out evaluation: %w", generation, err)
	}
	testRMSE := metrics.PropertyRMSE{
		Energy: r.weights.Energy * fitness.EnergyRMSE(testDS),
		Force:  r.weights.Force * fitness.ForceRMSE(testDS),
		Virial: r.weights.Virial * fitness.VirialRMSE(testDS),
	}

	snapshotPath := filepath.Join(r.outDir, "nep.txt")
	if err := WriteSnapshotFile(snapshotPath, r.def, testDS.MaxNNRadial, testDS.MaxNNAngular, corrected, testDS.Scaler); err != nil {
		return fmt.Errorf("checkpoint at generation %d: %w", generation, err)
	}

	if err := writeDumpSet(r.outDir, "test", testDS); err != nil {
		return fmt.Errorf("checkpoint at generation %d: %w", generation, err)
	}

	if r.ShouldDumpTrain(generation) {
		if err := r.dumpTrainingSet(generation, corrected); err != nil {
			return err
		}
	}

	l1 := r.lambda1 * meanAbs(corrected)
	l2 := r.lambda2 * math.Sqrt(meanSq(corrected))
	total := l1 + l2 + trainRMSE.Energy + trainRMSE.Force + trainRMSE.Virial

	loss := metrics.GenerationLoss{
		Generation: generation,
		Total:      total,
		L1:         l1,
		L2:         l2,
		Train:      trainRMSE,
		Test:       testRMSE,
	}
	if err := r.appendLoss(loss); err != nil {
		return fmt.Errorf("checkpoint at generation %d: %w", generation, err)
	}
	r.history.Append(loss)

	rec := storage.CheckpointRecord{
		ID:         uuid.NewString(),
		RunID:      r.runID,
		Generation: generation,
		Total:      total,
		L1:         l1,
		L2:         l2,
		TrainRMSE:  [3]float64{trainRMSE.Energy, trainRMSE.Force, trainRMSE.Virial},
		TestRMSE:   [3]float64{testRMSE.Energy, testRMSE.Force, testRMSE.Virial},
		Elite:      corrected,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.SaveCheckpoint(ctx, rec); err != nil {
		return fmt.Errorf("checkpoint at generation %d: save run history: %w", generation, err)
	}

	logger.Info("checkpoint written",
		"generation", generation,
		"batch", batchID,
		"total", total,
		"train_energy_rmse", trainRMSE.Energy,
		"test_energy_rmse", testRMSE.Energy)
	return nil
}

// dumpTrainingSet re-evaluates every training batch with the corrected
// elite and dumps predictions for the entire training set in batch
// order.
func (r *Reporter) dumpTrainingSet(generation int, corrected []float64) error {
	sets := make([]*dataset.Dataset, len(r.train))
	for b := range r.train {
		ds := r.train[b][0]
		if err := r.evaluate(corrected, ds); err != nil {
			return fmt.Errorf("checkpoint at generation %d: training dump, batch %d: %w", generation, b, err)
		}
		sets[b] = ds
	}
	if err := writeDumpSet(r.outDir, "train", sets...); err != nil {
		return fmt.Errorf("checkpoint at generation %d: %w", generation, err)
	}
	return nil
}

// evaluate runs the model on device 0 and joins before returning, so
// the dataset's predictions are safe to read afterwards.
func (r *Reporter) evaluate(params []float64, ds *dataset.Dataset) error {
	return r.pool.Device(0).Submit(func() error {
		return r.model.Evaluate(params, ds, false)
	}).Wait()
}

// appendLoss appends one fixed-width line to the loss log
func (r *Reporter) appendLoss(loss metrics.GenerationLoss) error {
	path := filepath.Join(r.outDir, "loss.out")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open loss log %s: %w", path, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%-8d%-11.5f%-11.5f%-11.5f%-11.5f%-11.5f%-11.5f%-11.5f%-11.5f%-11.5f\n",
		loss.Generation, loss.Total, loss.L1, loss.L2,
		loss.Train.Energy, loss.Train.Force, loss.Train.Virial,
		loss.Test.Energy, loss.Test.Force, loss.Test.Virial)
	if err != nil {
		return fmt.Errorf("failed to append loss log %s: %w", path, err)
	}
	return nil
}

// energyBias returns the mean per-atom energy residual over the batch
func energyBias(ds *dataset.Dataset) float64 {
	residuals := make([]float64, ds.Nc)
	for c := 0; c < ds.Nc; c++ {
		residuals[c] = (ds.StructureEnergy(c) - ds.EnergyRef[c]) / float64(ds.Na[c])
	}
	return utils.Mean(residuals)
}

func meanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v)
	}
	return sum / float64(len(values))
}

func meanSq(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return sum / float64(len(values))
}
