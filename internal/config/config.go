// Package config handles application configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
	"github.com/YuminosukeSato/airq/sklearn/tree"
)

// Config holds all service settings. Values come from defaults, then an
// optional YAML file, then AIRQ_* environment variables.
type Config struct {
	DataPath        string        `yaml:"data_path"`
	Sentinel        string        `yaml:"sentinel"`
	ModelPath       string        `yaml:"model_path"` // optional gob snapshot of the trained model
	HTTPAddr        string        `yaml:"http_addr"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RetrainInterval time.Duration `yaml:"retrain_interval"` // 0 disables the limit
	Forest          ForestConfig  `yaml:"forest"`
}

// ForestConfig holds the random forest hyperparameters.
type ForestConfig struct {
	NEstimators     int    `yaml:"n_estimators"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"min_samples_leaf"`
	MaxFeatures     string `yaml:"max_features"`
	Bootstrap       bool   `yaml:"bootstrap"`
	RandomState     int64  `yaml:"random_state"`
	NJobs           int    `yaml:"n_jobs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataPath:        "Data.csv",
		Sentinel:        "NA ",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  32 << 20,
		RetrainInterval: time.Minute,
		Forest: ForestConfig{
			NEstimators:     500,
			MaxDepth:        20,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
			MaxFeatures:     "sqrt",
			Bootstrap:       true,
			RandomState:     42,
			NJobs:           -1,
		},
	}
}

// LoadDotEnv loads variables from .env style files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "stat %s", p)
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load env file %s", p)
		}
	}
	return nil
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"AIRQ_DATA_PATH":    &cfg.DataPath,
		"AIRQ_MODEL_PATH":   &cfg.ModelPath,
		"AIRQ_HTTP_ADDR":    &cfg.HTTPAddr,
		"AIRQ_LOG_LEVEL":    &cfg.LogLevel,
		"AIRQ_LOG_FORMAT":   &cfg.LogFormat,
		"AIRQ_MAX_FEATURES": &cfg.Forest.MaxFeatures,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	// An explicitly empty sentinel is meaningful, so only presence counts.
	if v, ok := os.LookupEnv("AIRQ_SENTINEL"); ok {
		cfg.Sentinel = v
	}

	ints := map[string]*int{
		"AIRQ_N_ESTIMATORS":      &cfg.Forest.NEstimators,
		"AIRQ_MAX_DEPTH":         &cfg.Forest.MaxDepth,
		"AIRQ_MIN_SAMPLES_SPLIT": &cfg.Forest.MinSamplesSplit,
		"AIRQ_MIN_SAMPLES_LEAF":  &cfg.Forest.MinSamplesLeaf,
		"AIRQ_N_JOBS":            &cfg.Forest.NJobs,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return errors.Newf("invalid %s: %q", key, v)
			}
			*dst = n
		}
	}

	if v := os.Getenv("AIRQ_RANDOM_STATE"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.Newf("invalid AIRQ_RANDOM_STATE: %q", v)
		}
		cfg.Forest.RandomState = n
	}
	if v := os.Getenv("AIRQ_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.Newf("invalid AIRQ_MAX_UPLOAD_BYTES: %q", v)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("AIRQ_BOOTSTRAP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Newf("invalid AIRQ_BOOTSTRAP: %q", v)
		}
		cfg.Forest.Bootstrap = b
	}
	durations := map[string]*time.Duration{
		"AIRQ_SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
		"AIRQ_RETRAIN_INTERVAL": &cfg.RetrainInterval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return errors.Newf("invalid %s: %q", key, v)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return errors.NewValidationError("data_path", "is required", c.DataPath)
	}
	if c.HTTPAddr == "" {
		return errors.NewValidationError("http_addr", "is required", c.HTTPAddr)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", "must be debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console", "text":
	default:
		return errors.NewValidationError("log_format", "must be json or console", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.NewValidationError("shutdown_timeout", "must be positive", c.ShutdownTimeout)
	}
	if c.RetrainInterval < 0 {
		return errors.NewValidationError("retrain_interval", "must not be negative", c.RetrainInterval)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.NewValidationError("max_upload_bytes", "must be positive", c.MaxUploadBytes)
	}
	if c.Forest.NEstimators < 1 {
		return errors.NewValidationError("forest.n_estimators", "must be >= 1", c.Forest.NEstimators)
	}
	return c.Forest.TreeParams().Validate()
}

// TreeParams returns the per-tree hyperparameters.
func (f ForestConfig) TreeParams() tree.Params {
	return tree.Params{
		Criterion:       "squared_error",
		MaxDepth:        f.MaxDepth,
		MinSamplesSplit: f.MinSamplesSplit,
		MinSamplesLeaf:  f.MinSamplesLeaf,
		MaxFeatures:     f.MaxFeatures,
		RandomState:     f.RandomState,
	}
}
