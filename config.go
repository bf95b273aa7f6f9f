package stepflow

import (
	"fmt"
	"strings"
)

// SuiteConfig holds the runner settings of a Suite. Every field can come
// from stepflow.yaml, stepflow.toml or STEPFLOW_* environment variables.
type SuiteConfig struct {
	Name          string         `yaml:"name" toml:"name" env:"NAME" default:"stepflow"`
	Paths         []string       `yaml:"paths" toml:"paths" env:"PATHS" default:"features"`
	Tags          string         `yaml:"tags" toml:"tags" env:"TAGS"`
	Format        string         `yaml:"format" toml:"format" env:"FORMAT" default:"pretty"`
	Concurrency   int            `yaml:"concurrency" toml:"concurrency" env:"CONCURRENCY" default:"1"`
	Strict        bool           `yaml:"strict" toml:"strict" env:"STRICT"`
	Randomize     int64          `yaml:"randomize" toml:"randomize" env:"RANDOMIZE"`
	StopOnFailure bool           `yaml:"stopOnFailure" toml:"stop_on_failure" env:"STOP_ON_FAILURE"`
	NoColors      bool           `yaml:"noColors" toml:"no_colors" env:"NO_COLORS"`
	Log           LogConfig      `yaml:"log" toml:"log"`
	World         map[string]any `yaml:"world" toml:"world"`
}

// Setup normalizes the loaded values.
func (c *SuiteConfig) Setup() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	c.Format = strings.TrimSpace(c.Format)
	c.Tags = strings.TrimSpace(c.Tags)
	return nil
}

// LoadSuiteConfig builds a SuiteConfig from feeders, or from DefaultFeeders
// when none are given.
func LoadSuiteConfig(logger Logger, fs ...Feeder) (*SuiteConfig, error) {
	if len(fs) == 0 {
		fs = DefaultFeeders()
	}

	cfg := &SuiteConfig{}
	builder := NewConfig()
	if logger != nil {
		builder.SetVerboseDebug(true, logger)
	}
	for _, f := range fs {
		builder.AddFeeder(f)
	}
	builder.AddStructKey("suite", cfg)

	if err := builder.Feed(); err != nil {
		return nil, err
	}
	return cfg, nil
}
