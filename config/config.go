// Package config loads the ACM runtime's recognized configuration options
// (spec §6) from YAML, applying the spec's defaults. Grounded on the
// teacher pack's YAML-struct-plus-defaults loading style (see
// codeready-toolchain-tarsy/pkg/config/loader.go's Initialize/load/validate
// pipeline), narrowed to this runtime's much smaller option set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acmrt/acm/model"
)

// Retry mirrors model.RetryPolicy's YAML shape.
type Retry struct {
	Attempts int               `yaml:"attempts"`
	Backoff  model.BackoffKind `yaml:"backoff"`
	BaseMs   int               `yaml:"baseMs"`
	Jitter   bool              `yaml:"jitter"`
}

// Config is the recognized set of configuration options (spec §6).
type Config struct {
	CheckpointInterval int    `yaml:"checkpointInterval"`
	MaxContextTokens   int    `yaml:"maxContextTokens"`
	MaxQueryRounds     int    `yaml:"maxQueryRounds"`
	Retry              Retry  `yaml:"retry"`
	RunID              string `yaml:"runId"`
}

// WithDefaults applies the spec's documented defaults for every unset field.
func (c Config) WithDefaults() Config {
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 1
	}
	if c.MaxQueryRounds <= 0 {
		c.MaxQueryRounds = 25
	}
	c.Retry = Retry(model.RetryPolicy(c.Retry).WithDefaults())
	return c
}

// RetryPolicy converts the config's retry section into a model.RetryPolicy.
func (c Config) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		Attempts: c.Retry.Attempts,
		Backoff:  c.Retry.Backoff,
		BaseMs:   c.Retry.BaseMs,
		Jitter:   c.Retry.Jitter,
	}
}

// Load reads and parses a YAML configuration file, applying defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return c.WithDefaults(), nil
}
