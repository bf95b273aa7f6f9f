package feeders

import (
	"errors"
	"testing"
)

type envSettings struct {
	Name        string   `env:"NAME"`
	Concurrency int      `env:"CONCURRENCY"`
	Randomize   int64    `env:"RANDOMIZE"`
	Strict      bool     `env:"STRICT"`
	Ratio       float64  `env:"RATIO"`
	Paths       []string `env:"PATHS"`
	Ports       []int    `env:"PORTS"`
	Skipped     string   `env:"-"`
	Untagged    string
	Log         struct {
		Level string `env:"LOG_LEVEL"`
	}
}

func TestEnvFeeder_Feed(t *testing.T) {
	t.Setenv("STEPFLOW_NAME", "env-suite")
	t.Setenv("STEPFLOW_CONCURRENCY", "4")
	t.Setenv("STEPFLOW_RANDOMIZE", "1234567890123")
	t.Setenv("STEPFLOW_STRICT", "true")
	t.Setenv("STEPFLOW_RATIO", "0.5")
	t.Setenv("STEPFLOW_PATHS", "features/a, features/b,")
	t.Setenv("STEPFLOW_PORTS", "80,443")
	t.Setenv("STEPFLOW_LOG_LEVEL", "debug")
	t.Setenv("STEPFLOW_UNTAGGED", "ignored")

	cfg := envSettings{Untagged: "kept"}
	if err := NewAffixedEnvFeeder("STEPFLOW_", "").Feed(&cfg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Name != "env-suite" {
		t.Errorf("Expected Name 'env-suite', got '%s'", cfg.Name)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Expected Concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.Randomize != 1234567890123 {
		t.Errorf("Expected Randomize 1234567890123, got %d", cfg.Randomize)
	}
	if !cfg.Strict {
		t.Error("Expected Strict to be true")
	}
	if cfg.Ratio != 0.5 {
		t.Errorf("Expected Ratio 0.5, got %v", cfg.Ratio)
	}
	if len(cfg.Paths) != 2 || cfg.Paths[0] != "features/a" || cfg.Paths[1] != "features/b" {
		t.Errorf("Expected two trimmed paths, got %v", cfg.Paths)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[1] != 443 {
		t.Errorf("Expected ports [80 443], got %v", cfg.Ports)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected nested Log.Level 'debug', got '%s'", cfg.Log.Level)
	}
	if cfg.Untagged != "kept" {
		t.Errorf("Expected untagged field to be left alone, got '%s'", cfg.Untagged)
	}
}

func TestEnvFeeder_AbsentVariablesLeaveFieldsAlone(t *testing.T) {
	cfg := envSettings{Name: "default", Concurrency: 1}

	if err := NewAffixedEnvFeeder("STEPFLOW_ABSENT_", "_X").Feed(&cfg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Name != "default" || cfg.Concurrency != 1 {
		t.Errorf("Expected defaults to survive, got %+v", cfg)
	}
}

func TestEnvFeeder_Suffix(t *testing.T) {
	t.Setenv("NAME_CI", "from-suffix")
	logger := &mockLogger{}

	feeder := NewAffixedEnvFeeder("", "_CI").WithPriority(20)
	feeder.SetVerboseDebug(true, logger)

	var cfg envSettings
	if err := feeder.Feed(&cfg); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Name != "from-suffix" {
		t.Errorf("Expected Name 'from-suffix', got '%s'", cfg.Name)
	}
	if !logger.contains("NAME_CI") {
		t.Errorf("Expected the variable name in debug output, got %v", logger.messages)
	}
}

func TestEnvFeeder_Errors(t *testing.T) {
	var cfg envSettings
	if err := NewEnvFeeder().Feed(cfg); !errors.Is(err, ErrNotPointerToStruct) {
		t.Errorf("Expected ErrNotPointerToStruct, got %v", err)
	}

	t.Setenv("CONCURRENCY", "many")
	err := NewEnvFeeder().Feed(&cfg)
	if !errors.Is(err, ErrEnvConversion) {
		t.Fatalf("Expected ErrEnvConversion, got %v", err)
	}
}
