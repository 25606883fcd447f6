package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/internal/device"
	"github.com/mlpotfit/fitting-core/internal/fitness"
	"github.com/mlpotfit/fitting-core/internal/metrics"
	"github.com/mlpotfit/fitting-core/internal/potential"
	_ "github.com/mlpotfit/fitting-core/internal/potential/pair"
	"github.com/mlpotfit/fitting-core/internal/report"
	"github.com/mlpotfit/fitting-core/internal/storage"
	"github.com/mlpotfit/fitting-core/internal/structure"
	"github.com/mlpotfit/fitting-core/pkg/config"
	"github.com/mlpotfit/fitting-core/pkg/logger"
	"github.com/mlpotfit/fitting-core/pkg/utils"
)

func main() {
	configPath := flag.String("config", "fit.yaml", "path to the run configuration file")
	textLog := flag.Bool("text-log", false, "log as text instead of JSON")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *textLog {
		logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))
	} else {
		logger.SetDefault(logger.New(cfg.LogLevel, os.Stdout))
	}

	if err := run(cfg); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	def := potential.DefinitionFromConfig(&cfg.Potential)
	model, err := potential.New(def)
	if err != nil {
		return err
	}

	trainStructs, err := structure.LoadFile(cfg.Data.TrainFile, cfg.Potential.Elements)
	if err != nil {
		return err
	}
	trainStore, err := structure.NewStore(trainStructs)
	if err != nil {
		return fmt.Errorf("training set: %w", err)
	}
	testStructs, err := structure.LoadFile(cfg.Data.TestFile, cfg.Potential.Elements)
	if err != nil {
		return err
	}
	testStore, err := structure.NewStore(testStructs)
	if err != nil {
		return fmt.Errorf("held-out set: %w", err)
	}

	ranges, effective, err := dataset.Partition(trainStore.Count(), cfg.Fitting.BatchSize)
	if err != nil {
		return err
	}
	logger.Info("batch partition computed",
		"structures", trainStore.Count(),
		"batches", len(ranges),
		"effective_batch_size", effective)

	pool, err := device.NewPool(cfg.Fitting.DeviceCount)
	if err != nil {
		return err
	}
	defer pool.Close()

	trainSets, testSets, err := dataset.BuildAll(ctx, trainStore, testStore, ranges,
		cfg.Fitting.DeviceCount, cfg.Potential.CutoffRadial, cfg.Potential.CutoffAngular)
	if err != nil {
		return err
	}
	logger.Info("datasets built",
		"train_atoms", trainStore.TotalAtoms(),
		"test_atoms", testStore.TotalAtoms(),
		"max_nn_radial", testSets[0].MaxNNRadial,
		"max_nn_angular", testSets[0].MaxNNAngular)

	weights := fitness.Weights{
		Energy: cfg.Fitting.LambdaEnergy,
		Force:  cfg.Fitting.LambdaForce,
		Virial: cfg.Fitting.LambdaVirial,
	}
	numVars := def.ParamCount()
	engine, err := fitness.NewEngine(model, pool, trainSets, testSets, weights, numVars)
	if err != nil {
		return err
	}

	store, err := storage.New(&cfg.Output)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize run store: %w", err)
	}
	defer store.Close()

	history := metrics.NewHistory()
	runID := utils.GenerateRunID()
	reporter, err := report.NewReporter(cfg, def, model, pool, trainSets, testSets, history, store, runID)
	if err != nil {
		return err
	}

	if err := engine.WarmUp(); err != nil {
		return err
	}

	return optimize(ctx, cfg, engine, reporter, runID, numVars)
}

// optimize drives the generation loop. The GA selection/mutation
// operators are external collaborators; this driver keeps a minimal
// random-search population so the binary runs end-to-end, tracking the
// elite by the sum of its fitness triple. NaN fitness is treated as
// worst-possible, per the engine's contract.
func optimize(ctx context.Context, cfg *config.Config, engine *fitness.Engine, reporter *report.Reporter, runID string, numVars int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	population := make([][]float64, cfg.Fitting.PopulationSize)
	for i := range population {
		population[i] = make([]float64, numVars)
		for j := range population[i] {
			population[i][j] = rng.Float64()*2 - 1
		}
	}
	elite := append([]float64(nil), population[0]...)
	eliteScore := math.Inf(1)

	start := time.Now()
	for gen := 0; gen < cfg.Fitting.Generations; gen++ {
		select {
		case <-ctx.Done():
			logger.Warn("run interrupted", "run_id", runID, "generation", gen)
			return ctx.Err()
		default:
		}

		results, err := engine.Evaluate(population)
		if err != nil {
			return err
		}

		for _, res := range results {
			score := res.Energy + res.Force + res.Virial
			if !math.IsNaN(score) && score < eliteScore {
				eliteScore = score
				elite = append(elite[:0], population[res.Individual]...)
			}
		}

		if reporter.ShouldFire(gen) {
			if err := reporter.Checkpoint(ctx, gen, results[0].Batch, elite); err != nil {
				return err
			}
		}

		// Resample the population around the current elite.
		for i := range population {
			if i == 0 {
				copy(population[i], elite)
				continue
			}
			for j := range population[i] {
				population[i][j] = elite[j] + 0.1*rng.NormFloat64()
			}
		}
	}

	logger.Info("run complete",
		"run_id", runID,
		"generations", cfg.Fitting.Generations,
		"elite_score", eliteScore,
		"duration", time.Since(start))
	return nil
}
