// Package config loads the YAML configuration of a synthesis run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides Oracle.APIKey when set.
const EnvAPIKey = "OPENAI_API_KEY"

// Config is the full configuration. Safe to read concurrently once loaded.
type Config struct {
	Oracle    OracleConfig    `yaml:"oracle"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Graph     GraphConfig     `yaml:"graph"`
	Walk      WalkConfig      `yaml:"walk"`
	Augment   AugmentConfig   `yaml:"augment"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Export    ExportConfig    `yaml:"export"`
	Log       LogConfig       `yaml:"log"`
}

// OracleConfig configures the model backend and the call guard.
type OracleConfig struct {
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Temperature       float32       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// NormalizeConfig configures the schema normalizer.
type NormalizeConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxExamples int           `yaml:"max_examples"`
}

// GraphConfig configures the dependency graph builder.
type GraphConfig struct {
	MaxCandidates int    `yaml:"max_candidates"`
	Concurrency   int    `yaml:"concurrency"`
	Seed          uint64 `yaml:"seed"`
	// SnapshotDir enables the badger graph cache when set.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// WalkConfig configures the path walker.
type WalkConfig struct {
	MaxSteps     int    `yaml:"max_steps"`
	WalksPerNode int    `yaml:"walks_per_node"`
	Seed         uint64 `yaml:"seed"`
	// TagAffinity biases walks toward tools sharing tags. 0 walks uniformly.
	TagAffinity float64 `yaml:"tag_affinity"`
}

// AugmentConfig holds the augmentation probabilities.
type AugmentConfig struct {
	Merge     float64 `yaml:"merge"`
	Insert    float64 `yaml:"insert"`
	Long      float64 `yaml:"long"`
	Split     float64 `yaml:"split"`
	MaxSplits int     `yaml:"max_splits"`
}

// PipelineConfig configures path execution.
type PipelineConfig struct {
	Workers            int    `yaml:"workers"`
	ArgumentAttempts   int    `yaml:"argument_attempts"`
	MaxUnresolvedTurns int    `yaml:"max_unresolved_turns"`
	Seed               uint64 `yaml:"seed"`
}

// SandboxConfig overrides the sandbox defaults. Empty fields keep them.
type SandboxConfig struct {
	Categories      map[string]string `yaml:"categories"`
	IdentityArgs    []string          `yaml:"identity_args"`
	TransientFields []string          `yaml:"transient_fields"`
}

// ExportConfig selects outputs. Both may be set.
type ExportConfig struct {
	JSONL  string `yaml:"jsonl"`
	SQLite string `yaml:"sqlite"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
			Burst:       1,
		},
		Normalize: NormalizeConfig{Concurrency: 8, Timeout: 60 * time.Second, MaxExamples: 4},
		Graph:     GraphConfig{MaxCandidates: 30, Concurrency: 8, Seed: 42},
		Walk:      WalkConfig{MaxSteps: 4, WalksPerNode: 3, Seed: 42},
		Augment:   AugmentConfig{Merge: 0.3, Insert: 0.5, Long: 0.3, Split: 0.15, MaxSplits: 1},
		Pipeline:  PipelineConfig{Workers: 4, ArgumentAttempts: 2, MaxUnresolvedTurns: 1, Seed: 42},
		Export:    ExportConfig{JSONL: "paths.jsonl"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.Oracle.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	probability := func(name string, p float64) {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, p))
		}
	}
	positive := func(name string, n int) {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	nonNegative := func(name string, n int) {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, n))
		}
	}

	probability("augment.merge", c.Augment.Merge)
	probability("augment.insert", c.Augment.Insert)
	probability("augment.long", c.Augment.Long)
	probability("augment.split", c.Augment.Split)
	nonNegative("augment.max_splits", c.Augment.MaxSplits)

	positive("oracle.max_attempts", c.Oracle.MaxAttempts)
	positive("normalize.concurrency", c.Normalize.Concurrency)
	nonNegative("normalize.max_examples", c.Normalize.MaxExamples)
	positive("graph.max_candidates", c.Graph.MaxCandidates)
	positive("graph.concurrency", c.Graph.Concurrency)
	nonNegative("walk.max_steps", c.Walk.MaxSteps)
	positive("walk.walks_per_node", c.Walk.WalksPerNode)
	positive("pipeline.workers", c.Pipeline.Workers)
	positive("pipeline.argument_attempts", c.Pipeline.ArgumentAttempts)
	nonNegative("pipeline.max_unresolved_turns", c.Pipeline.MaxUnresolvedTurns)

	if c.Oracle.Model == "" {
		errs = append(errs, errors.New("oracle.model must be set"))
	}
	if c.Oracle.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("oracle.requests_per_second must not be negative, got %v", c.Oracle.RequestsPerSecond))
	}
	if c.Walk.TagAffinity < 0 {
		errs = append(errs, fmt.Errorf("walk.tag_affinity must not be negative, got %v", c.Walk.TagAffinity))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
