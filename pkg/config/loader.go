package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Data.TrainFile == "" {
		return fmt.Errorf("data.train_file cannot be empty")
	}
	if cfg.Data.TestFile == "" {
		return fmt.Errorf("data.test_file cannot be empty")
	}

	if err := validatePotential(&cfg.Potential); err != nil {
		return fmt.Errorf("potential validation failed: %w", err)
	}

	if err := validateFitting(&cfg.Fitting); err != nil {
		return fmt.Errorf("fitting validation failed: %w", err)
	}

	if err := validateOutput(&cfg.Output); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	return nil
}

// validatePotential validates the potential hyperparameters
func validatePotential(p *PotentialConfig) error {
	if p.Family == "" {
		return fmt.Errorf("family cannot be empty")
	}

	if len(p.Elements) == 0 {
		return fmt.Errorf("at least one element must be defined")
	}
	seen := make(map[string]bool)
	for _, el := range p.Elements {
		if el == "" {
			return fmt.Errorf("element symbol cannot be empty")
		}
		if seen[el] {
			return fmt.Errorf("duplicate element symbol: %s", el)
		}
		seen[el] = true
	}

	if p.CutoffRadial <= 0 {
		return fmt.Errorf("cutoff_radial must be positive, got %f", p.CutoffRadial)
	}
	if p.CutoffAngular <= 0 {
		return fmt.Errorf("cutoff_angular must be positive, got %f", p.CutoffAngular)
	}
	if p.CutoffAngular > p.CutoffRadial {
		return fmt.Errorf("cutoff_angular %f cannot exceed cutoff_radial %f", p.CutoffAngular, p.CutoffRadial)
	}

	if p.NMaxRadial < 0 {
		return fmt.Errorf("n_max_radial cannot be negative, got %d", p.NMaxRadial)
	}
	if p.NMaxAngular < 0 {
		return fmt.Errorf("n_max_angular cannot be negative, got %d", p.NMaxAngular)
	}
	if p.BasisSizeRadial <= 0 {
		return fmt.Errorf("basis_size_radial must be positive, got %d", p.BasisSizeRadial)
	}
	if p.BasisSizeAngular <= 0 {
		return fmt.Errorf("basis_size_angular must be positive, got %d", p.BasisSizeAngular)
	}
	if p.LMax3 <= 0 {
		return fmt.Errorf("l_max_3body must be positive, got %d", p.LMax3)
	}
	if p.LMax4 < 0 {
		return fmt.Errorf("l_max_4body cannot be negative, got %d", p.LMax4)
	}
	if p.HiddenNeurons <= 0 {
		return fmt.Errorf("hidden_neurons must be positive, got %d", p.HiddenNeurons)
	}

	if p.ZBL != nil {
		if p.ZBL.InnerCutoff <= 0 {
			return fmt.Errorf("zbl inner_cutoff must be positive, got %f", p.ZBL.InnerCutoff)
		}
		if p.ZBL.OuterCutoff <= p.ZBL.InnerCutoff {
			return fmt.Errorf("zbl outer_cutoff %f must exceed inner_cutoff %f", p.ZBL.OuterCutoff, p.ZBL.InnerCutoff)
		}
	}

	return nil
}

// validateFitting validates the fitting loop configuration
func validateFitting(f *FittingConfig) error {
	if f.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", f.BatchSize)
	}
	if f.DeviceCount <= 0 {
		return fmt.Errorf("device_count must be positive, got %d", f.DeviceCount)
	}
	if f.PopulationSize <= 0 {
		return fmt.Errorf("population_size must be positive, got %d", f.PopulationSize)
	}
	if f.Generations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", f.Generations)
	}
	if f.LambdaEnergy < 0 {
		return fmt.Errorf("lambda_energy cannot be negative, got %f", f.LambdaEnergy)
	}
	if f.LambdaForce < 0 {
		return fmt.Errorf("lambda_force cannot be negative, got %f", f.LambdaForce)
	}
	if f.LambdaVirial < 0 {
		return fmt.Errorf("lambda_virial cannot be negative, got %f", f.LambdaVirial)
	}
	if f.Lambda1 < 0 {
		return fmt.Errorf("lambda_1 cannot be negative, got %f", f.Lambda1)
	}
	if f.Lambda2 < 0 {
		return fmt.Errorf("lambda_2 cannot be negative, got %f", f.Lambda2)
	}
	if f.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint_every must be positive, got %d", f.CheckpointEvery)
	}
	return nil
}

// validateOutput validates the output configuration
func validateOutput(o *OutputConfig) error {
	switch o.Store {
	case "memory":
	case "sqlite":
		if o.StorePath == "" {
			return fmt.Errorf("store_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid store: %s (must be memory or sqlite)", o.Store)
	}
	return nil
}
