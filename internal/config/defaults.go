package config

import (
	"time"

	"github.com/turtacn/famsim/internal/domain/fingerprint"
	"github.com/turtacn/famsim/internal/domain/probability"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel  = logging.LevelInfo
	DefaultLogFormat = "json"

	DefaultOutputDir = "results"

	DefaultMinDepth = 1
	DefaultMaxDepth = 8

	DefaultFingerprintEncoding = string(fingerprint.EncodingHex)
	DefaultMetric              = string(fingerprint.MetricTanimoto)

	DefaultWorkerConcurrency = 1

	DefaultMetricsNamespace = "famsim"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "famsim-results"
	DefaultMinIORegion   = "us-east-1"
)

// ApplyDefaults fills every zero-value field in cfg with the default. Fields
// that have already been set are left unchanged so that explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Input / Output ────────────────────────────────────────────────────────
	if cfg.Input.FingerprintEncoding == "" {
		cfg.Input.FingerprintEncoding = DefaultFingerprintEncoding
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}

	// ── Clustering ────────────────────────────────────────────────────────────
	// A zero min depth is a valid explicit value, so only the pair (0, 0)
	// is treated as unset.
	if cfg.Clustering.MinDepth == 0 && cfg.Clustering.MaxDepth == 0 {
		cfg.Clustering.MinDepth = DefaultMinDepth
		cfg.Clustering.MaxDepth = DefaultMaxDepth
	}

	// ── Similarity ────────────────────────────────────────────────────────────
	if cfg.Similarity.MaxCompounds == 0 {
		cfg.Similarity.MaxCompounds = similarity.DefaultMaxCompounds
	}

	// ── Aggregation ───────────────────────────────────────────────────────────
	if cfg.Aggregation.Metric == "" {
		cfg.Aggregation.Metric = DefaultMetric
	}
	if cfg.Aggregation.Tolerance == 0 {
		cfg.Aggregation.Tolerance = fingerprint.DefaultTolerance
	}

	// ── Probability ───────────────────────────────────────────────────────────
	if len(cfg.Probability.Thresholds) == 0 {
		cfg.Probability.Thresholds = append([]float64(nil), probability.DefaultThresholds...)
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Collector.Namespace == "" {
		cfg.Metrics.Collector.Namespace = DefaultMetricsNamespace
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.MinIO.ConnectTimeout == 0 {
		cfg.MinIO.ConnectTimeout = 10 * time.Second
	}
}

// NewDefaultConfig returns a Config populated only with defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
