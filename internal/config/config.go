// Package config defines the configuration structures for famsim. No I/O or
// parsing logic lives here, only plain data types and validation.
package config

import (
	"github.com/turtacn/famsim/internal/domain/fingerprint"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/famsim/internal/infrastructure/storage/minio"
	"github.com/turtacn/famsim/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// InputConfig lists the input tables and arrays.
type InputConfig struct {
	FamilyFile       string `mapstructure:"family_file"`
	TargetFile       string `mapstructure:"target_file"`
	LigandTargetFile string `mapstructure:"ligand_target_file"`
	ActivityFile     string `mapstructure:"activity_file"`
	AssayFile        string `mapstructure:"assay_file"`
	SimilarityFile   string `mapstructure:"similarity_file"`
	SimilarityIDFile string `mapstructure:"similarity_id_file"`

	// FingerprintFile is only read when aggregation.validate is set.
	FingerprintFile     string `mapstructure:"fingerprint_file"`
	FingerprintEncoding string `mapstructure:"fingerprint_encoding"` // "hex" | "bits"
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// LigandTargets also writes the derived ligand2target.tsv.
	LigandTargets bool `mapstructure:"ligand_targets"`
}

// ClusteringConfig is the inclusive depth range swept by every stage.
type ClusteringConfig struct {
	MinDepth int `mapstructure:"min_depth"`
	MaxDepth int `mapstructure:"max_depth"`
}

// SimilarityConfig guards the size of the loaded similarity space.
type SimilarityConfig struct {
	MaxCompounds int `mapstructure:"max_compounds"`
}

// AggregationConfig selects the group kinds and the optional cross-check.
type AggregationConfig struct {
	ByTarget  bool    `mapstructure:"by_target"`
	ByAssay   bool    `mapstructure:"by_assay"`
	Validate  bool    `mapstructure:"validate"`
	Metric    string  `mapstructure:"metric"` // "tanimoto" | "dice"
	Tolerance float64 `mapstructure:"tolerance"`

	// SkipMissing drops grouped ligands that have no row in the similarity
	// space. When false such ligands fail the run with SIM_002.
	SkipMissing bool `mapstructure:"skip_missing"`
}

// SweepConfig describes an evenly spaced threshold sweep.
type SweepConfig struct {
	Start float64 `mapstructure:"start"`
	Stop  float64 `mapstructure:"stop"`
	Num   int     `mapstructure:"num"`
}

// ProbabilityConfig holds the thresholds. A sweep with Num > 0 takes
// precedence over the explicit list.
type ProbabilityConfig struct {
	Thresholds []float64   `mapstructure:"thresholds"`
	Sweep      SweepConfig `mapstructure:"sweep"`
}

// WorkerConfig bounds how many depths are processed at once.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// MetricsConfig configures the registry and where it is written.
type MetricsConfig struct {
	Enabled   bool                       `mapstructure:"enabled"`
	Textfile  string                     `mapstructure:"textfile"`
	Collector prometheus.CollectorConfig `mapstructure:",squash"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Log         logging.LogConfig `mapstructure:"log"`
	Input       InputConfig       `mapstructure:"input"`
	Output      OutputConfig      `mapstructure:"output"`
	Clustering  ClusteringConfig  `mapstructure:"clustering"`
	Similarity  SimilarityConfig  `mapstructure:"similarity"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Probability ProbabilityConfig `mapstructure:"probability"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	MinIO       minio.MinIOConfig `mapstructure:"minio"`
}

// Depths returns the configured depths in ascending order.
func (c *Config) Depths() []int {
	if c.Clustering.MaxDepth < c.Clustering.MinDepth {
		return nil
	}
	out := make([]int, 0, c.Clustering.MaxDepth-c.Clustering.MinDepth+1)
	for d := c.Clustering.MinDepth; d <= c.Clustering.MaxDepth; d++ {
		out = append(out, d)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeValidation, "config: "+format, args...)
}

// Validate performs semantic validation of the fully-populated Config. Input
// paths are checked by the stage that needs them, not here.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Output.Dir == "" {
		return invalid("output.dir is required")
	}

	if c.Clustering.MinDepth < 0 {
		return invalid("clustering.min_depth must be ≥ 0, got %d", c.Clustering.MinDepth)
	}
	if c.Clustering.MaxDepth < c.Clustering.MinDepth {
		return invalid("clustering.max_depth %d is below min_depth %d", c.Clustering.MaxDepth, c.Clustering.MinDepth)
	}

	if c.Similarity.MaxCompounds < 0 {
		return invalid("similarity.max_compounds must be ≥ 0, got %d", c.Similarity.MaxCompounds)
	}

	switch fingerprint.Metric(c.Aggregation.Metric) {
	case fingerprint.MetricTanimoto, fingerprint.MetricDice:
	default:
		return invalid("aggregation.metric %q is invalid; expected tanimoto|dice", c.Aggregation.Metric)
	}
	if c.Aggregation.Tolerance < 0 {
		return invalid("aggregation.tolerance must be ≥ 0, got %g", c.Aggregation.Tolerance)
	}
	if c.Aggregation.Validate && c.Input.FingerprintFile == "" {
		return invalid("aggregation.validate requires input.fingerprint_file")
	}
	switch fingerprint.Encoding(c.Input.FingerprintEncoding) {
	case fingerprint.EncodingHex, fingerprint.EncodingBitString:
	default:
		return invalid("input.fingerprint_encoding %q is invalid; expected hex|bits", c.Input.FingerprintEncoding)
	}

	if c.Probability.Sweep.Num < 0 {
		return invalid("probability.sweep.num must be ≥ 0, got %d", c.Probability.Sweep.Num)
	}
	if c.Probability.Sweep.Num == 0 && len(c.Probability.Thresholds) == 0 {
		return invalid("probability.thresholds must not be empty")
	}

	if c.Worker.Concurrency < 1 {
		return invalid("worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	if c.Metrics.Enabled && c.Metrics.Collector.Namespace == "" {
		return invalid("metrics.namespace is required when metrics are enabled")
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return invalid("minio.endpoint is required when publishing is enabled")
		}
		if c.MinIO.Bucket == "" {
			return invalid("minio.bucket is required when publishing is enabled")
		}
	}
	return nil
}
