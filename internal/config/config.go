package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BatchSize           int     `yaml:"batch_size"`
	Features            int     `yaml:"features"`
	NSamples            int     `yaml:"n_samples"`
	MaxExamplesPerBatch *int    `yaml:"max_examples_per_batch,omitempty"`
	Aggregation         string  `yaml:"aggregation"`
	NoiseScale          float64 `yaml:"noise_scale"`
	Seed                uint64  `yaml:"seed"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
	OutputPath  string `yaml:"output_path"`
}

func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size: %d (must be positive)", c.BatchSize)
	}
	if c.Features <= 0 {
		return fmt.Errorf("invalid features: %d (must be positive)", c.Features)
	}
	if c.NSamples <= 0 {
		return fmt.Errorf("invalid n_samples: %d (must be positive)", c.NSamples)
	}
	// An out-of-range max_examples_per_batch is clamped with a warning at run
	// time, so it is not rejected here.
	switch c.GetAggregation() {
	case "sum", "max":
	default:
		return fmt.Errorf("invalid aggregation: %q (must be sum or max)", c.Aggregation)
	}
	if c.NoiseScale < 0 {
		return fmt.Errorf("invalid noise_scale: %f (must be non-negative)", c.NoiseScale)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log_format: %q (must be json or console)", c.LogFormat)
	}
	return nil
}

func (c *Config) GetAggregation() string {
	a := strings.ToLower(c.Aggregation)
	if a == "add" {
		return "sum"
	}
	return a
}

// HasCap reports whether a sub-batch limit is configured.
func (c *Config) HasCap() bool {
	return c.MaxExamplesPerBatch != nil
}

func Default() Config {
	return Config{
		BatchSize:   4,
		Features:    8,
		NSamples:    16,
		Aggregation: "sum",
		NoiseScale:  0.1,
		Seed:        42,
		LogLevel:    "info",
		LogFormat:   "console",
	}
}

// Load reads a YAML file over Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
