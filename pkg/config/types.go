package config

// Config represents the main fitting run configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Data      DataConfig      `yaml:"data"`
	Potential PotentialConfig `yaml:"potential"`
	Fitting   FittingConfig   `yaml:"fitting"`
	Output    OutputConfig    `yaml:"output"`
}

// DataConfig points at the reference datasets
type DataConfig struct {
	TrainFile string `yaml:"train_file"`
	TestFile  string `yaml:"test_file"`
}

// PotentialConfig describes the potential family and its fixed hyperparameters
type PotentialConfig struct {
	Family           string   `yaml:"family"` // e.g. "nep3"
	Elements         []string `yaml:"elements"`
	CutoffRadial     float64  `yaml:"cutoff_radial"`
	CutoffAngular    float64  `yaml:"cutoff_angular"`
	NMaxRadial       int      `yaml:"n_max_radial"`
	NMaxAngular      int      `yaml:"n_max_angular"`
	BasisSizeRadial  int      `yaml:"basis_size_radial"`
	BasisSizeAngular int      `yaml:"basis_size_angular"`
	LMax3            int      `yaml:"l_max_3body"`
	LMax4            int      `yaml:"l_max_4body"`
	HiddenNeurons    int      `yaml:"hidden_neurons"`
	ZBL              *ZBL     `yaml:"zbl,omitempty"`
}

// ZBL enables the short-range repulsive correction between two cutoffs
type ZBL struct {
	InnerCutoff float64 `yaml:"inner_cutoff"`
	OuterCutoff float64 `yaml:"outer_cutoff"`
}

// FittingConfig controls the population evaluation loop
type FittingConfig struct {
	BatchSize       int     `yaml:"batch_size"`
	DeviceCount     int     `yaml:"device_count"`
	PopulationSize  int     `yaml:"population_size"`
	Generations     int     `yaml:"generations"`
	LambdaEnergy    float64 `yaml:"lambda_energy"`
	LambdaForce     float64 `yaml:"lambda_force"`
	LambdaVirial    float64 `yaml:"lambda_virial"`
	Lambda1         float64 `yaml:"lambda_1"`
	Lambda2         float64 `yaml:"lambda_2"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
}

// OutputConfig controls where snapshots, dumps and run history go
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Store     string `yaml:"store"` // memory or sqlite
	StorePath string `yaml:"store_path,omitempty"`
}

// DefaultCheckpointEvery is the checkpoint cadence applied when unset
const DefaultCheckpointEvery = 100

// ApplyDefaults fills unset optional fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Fitting.CheckpointEvery == 0 {
		c.Fitting.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.Store == "" {
		c.Output.Store = "memory"
	}
}
