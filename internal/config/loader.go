package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/famsim/pkg/errors"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "FAMSIM"

// envKeys lists every leaf key so that AutomaticEnv can see overrides for
// keys absent from the config file.
var envKeys = []string{
	"log.level", "log.format",
	"input.family_file", "input.target_file", "input.ligand_target_file",
	"input.activity_file", "input.assay_file", "input.similarity_file",
	"input.similarity_id_file", "input.fingerprint_file", "input.fingerprint_encoding",
	"output.dir", "output.ligand_targets",
	"clustering.min_depth", "clustering.max_depth",
	"similarity.max_compounds",
	"aggregation.by_target", "aggregation.by_assay", "aggregation.validate",
	"aggregation.metric", "aggregation.tolerance", "aggregation.skip_missing",
	"probability.thresholds", "probability.sweep.start", "probability.sweep.stop", "probability.sweep.num",
	"worker.concurrency",
	"metrics.enabled", "metrics.textfile", "metrics.namespace", "metrics.subsystem",
	"minio.enabled", "minio.endpoint", "minio.access_key_id", "minio.secret_access_key",
	"minio.use_ssl", "minio.region", "minio.bucket", "minio.prefix", "minio.connect_timeout",
}

// newViper builds a Viper instance with YAML file type, the FAMSIM_ env
// prefix and a "." → "_" key replacer, so "clustering.max_depth" resolves to
// FAMSIM_CLUSTERING_MAX_DEPTH.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges FAMSIM_* environment
// overrides, applies defaults and validates the result. An empty configPath
// loads from the environment only.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: failed to read config file").
			WithDetailf("file=%s", configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from FAMSIM_* environment variables and
// defaults, with no config file.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: failed to unmarshal configuration")
	}

	// ApplyDefaults cannot tell an explicit depth range of 0..0 (root only)
	// from an absent one, so keep whatever the file or environment said.
	explicit := cfg.Clustering
	ApplyDefaults(cfg)
	if v.IsSet("clustering.min_depth") || v.IsSet("clustering.max_depth") {
		cfg.Clustering = explicit
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
