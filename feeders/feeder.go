// Package feeders provides configuration feeders that populate suite
// configuration structs from YAML files, TOML files and environment variables.
package feeders

import (
	"errors"
	"fmt"
	"os"
)

// Static errors for err113 compliance
var (
	ErrNotPointerToStruct = errors.New("target must be a non-nil pointer to a struct")
	ErrFileNotFound       = errors.New("configuration file not found")
	ErrEnvConversion      = errors.New("cannot convert environment variable")
)

// DebugLogger is the minimal logger feeders write verbose output to.
type DebugLogger interface {
	Debug(msg string, args ...any)
}

// base carries the priority and verbose debug state shared by every feeder.
type base struct {
	priority     int
	verboseDebug bool
	logger       DebugLogger
}

// Priority returns the priority value for this feeder. Higher values are
// applied later and override lower ones.
func (b *base) Priority() int {
	return b.priority
}

// SetVerboseDebug enables or disables verbose debug logging
func (b *base) SetVerboseDebug(enabled bool, logger interface{ Debug(msg string, args ...any) }) {
	b.verboseDebug = enabled
	b.logger = logger
}

func (b *base) debug(msg string, args ...any) {
	if b.verboseDebug && b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

// readFile returns the file contents, or nil when optional and missing.
func readFile(path string, optional bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		if optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return nil, fmt.Errorf("reading %s: %w", path, err)
}
