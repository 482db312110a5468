// Package config holds the training run configuration. Almost
// everything is a fixed constant of the pipeline; only the data URL,
// the output directory, and the offline switch vary between runs.
package config

import (
	"os"
	"time"
)

// EnvTrainingDataURL overrides the fetch URL when set.
const EnvTrainingDataURL = "TRAINING_DATA_URL"

type Config struct {
	Data     DataConfig
	Features FeaturesConfig
	Training TrainingConfig
	Output   OutputConfig
}

type DataConfig struct {
	URL     string
	Timeout time.Duration

	// Offline trains from the latest stored snapshot instead of
	// fetching.
	Offline bool

	// SnapshotPath is the SQLite file snapshots are kept in. Empty
	// disables snapshotting.
	SnapshotPath string
}

// FeaturesConfig fixes the feature space. These values are part of the
// serving contract: the exported vocabulary only reproduces identical
// vectors if the runtime uses the same settings.
type FeaturesConfig struct {
	NgramMin    int
	NgramMax    int
	MaxFeatures int
}

type TrainingConfig struct {
	MinSamplesPerClass int
	MinTotalSamples    int
	MinModelRows       int

	TestFraction float64
	Seed         int64

	Alpha   float64
	MaxIter int
	Tol     float64

	ManualWeight    float64
	AutomaticWeight float64
}

type OutputConfig struct {
	Dir string
}

func defaults() Config {
	return Config{
		Data: DataConfig{
			URL:          "http://localhost:3000/api/ml/training-data",
			Timeout:      30 * time.Second,
			SnapshotPath: "models/categorizer/snapshots.db",
		},
		Features: FeaturesConfig{
			NgramMin:    2,
			NgramMax:    4,
			MaxFeatures: 5000,
		},
		Training: TrainingConfig{
			MinSamplesPerClass: 3,
			MinTotalSamples:    50,
			MinModelRows:       10,
			TestFraction:       0.2,
			Seed:               42,
			Alpha:              1e-4,
			MaxIter:            1000,
			Tol:                1e-3,
			ManualWeight:       3.0,
			AutomaticWeight:    1.0,
		},
		Output: OutputConfig{
			Dir: "models/categorizer",
		},
	}
}

// Load returns the run configuration: defaults with environment
// overrides applied.
func Load() Config {
	cfg := defaults()
	if url := os.Getenv(EnvTrainingDataURL); url != "" {
		cfg.Data.URL = url
	}
	return cfg
}
