// Package config loads the daemon configuration from YAML with
// environment overrides for secrets and the listen address.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "30s" or "2m" into a
// time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full daemon configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// AnthropicKey enables the live generator. Empty runs the
	// deterministic fallback.
	AnthropicKey string `yaml:"anthropic_key"`

	// Model selects the Claude model. Empty uses the default.
	Model string `yaml:"model"`

	Dream struct {
		// Frequency is the minimum interval between automatic cycles.
		Frequency Duration `yaml:"frequency"`

		// ConsolidationThreshold is the importance ceiling for
		// consolidation candidates.
		ConsolidationThreshold float64 `yaml:"consolidation_threshold"`

		// OptimizationEnabled turns on early cycle termination.
		OptimizationEnabled bool `yaml:"optimization_enabled"`

		// OptimizationFloor is the minimum stage value.
		OptimizationFloor float64 `yaml:"optimization_floor"`
	} `yaml:"dream"`

	Emotion struct {
		// ThoughtFrequency is the mean interval between background
		// thoughts.
		ThoughtFrequency Duration `yaml:"thought_frequency"`
	} `yaml:"emotion"`

	Embedding struct {
		// Enabled turns on the semantic similarity index.
		Enabled bool `yaml:"enabled"`

		// Dimensions is the embedding vector size.
		Dimensions int `yaml:"dimensions"`

		// CacheSize bounds the embedding cache entry count.
		CacheSize int64 `yaml:"cache_size"`
	} `yaml:"embedding"`
}

// Default returns the standard configuration.
func Default() Config {
	var c Config
	c.Addr = ":8080"
	c.Dream.Frequency = Duration(60 * time.Second)
	c.Dream.ConsolidationThreshold = 0.4
	c.Dream.OptimizationEnabled = true
	c.Dream.OptimizationFloor = 0.3
	c.Emotion.ThoughtFrequency = Duration(7 * time.Second)
	c.Embedding.Enabled = true
	c.Embedding.Dimensions = 384
	c.Embedding.CacheSize = 4096
	return c
}

// Load reads the config file at path, falling back to defaults when
// the file does not exist. Environment variables ANTHROPIC_API_KEY and
// REVERIE_ADDR override the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return c, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return c, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.AnthropicKey = key
	}
	if addr := os.Getenv("REVERIE_ADDR"); addr != "" {
		c.Addr = addr
	}
	return c, nil
}
