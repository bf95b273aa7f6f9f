package stepflow

import (
	"os"

	"github.com/CrisisTextLine/stepflow/feeders"
)

// Feeder defines the interface for configuration feeders that provide configuration data.
type Feeder interface {
	// Feed gets a struct and feeds it using configuration data.
	Feed(structure any) error
}

// VerboseAwareFeeder provides functionality for verbose debug logging during configuration feeding
type VerboseAwareFeeder interface {
	// SetVerboseDebug enables or disables verbose debug logging
	SetVerboseDebug(enabled bool, logger interface{ Debug(msg string, args ...any) })
}

// PrioritizedFeeder extends the Feeder interface with priority control.
// Feeders with higher priority values are applied later, so they override
// values set by lower priority feeders. Feeders with equal priority are
// applied in the order they were added.
//
//	feeders.NewYamlFeeder("stepflow.yaml").WithPriority(10)
//	feeders.NewAffixedEnvFeeder("STEPFLOW_", "").WithPriority(20)
type PrioritizedFeeder interface {
	Feeder
	// Priority returns the priority value for this feeder.
	Priority() int
}

// EnvPrefix is the prefix of the environment variables read by DefaultFeeders.
const EnvPrefix = "STEPFLOW_"

// DefaultFeeders returns the feeders used when a suite is built without
// explicit ones: stepflow.yaml and stepflow.toml in the working directory,
// when present, overridden by STEPFLOW_* environment variables.
func DefaultFeeders() []Feeder {
	fs := []Feeder{}
	if _, err := os.Stat("stepflow.yaml"); err == nil {
		fs = append(fs, feeders.NewYamlFeeder("stepflow.yaml").WithPriority(10))
	}
	if _, err := os.Stat("stepflow.toml"); err == nil {
		fs = append(fs, feeders.NewTomlFeeder("stepflow.toml").WithPriority(10))
	}
	return append(fs, feeders.NewAffixedEnvFeeder(EnvPrefix, "").WithPriority(20))
}
