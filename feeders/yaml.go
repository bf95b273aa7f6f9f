package feeders

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YamlFeeder populates a struct from a YAML file using `yaml` tags.
type YamlFeeder struct {
	base
	Path     string
	optional bool
}

// NewYamlFeeder creates a feeder for the YAML file at path.
func NewYamlFeeder(path string) *YamlFeeder {
	return &YamlFeeder{Path: path}
}

// WithPriority sets the priority of this feeder.
func (f *YamlFeeder) WithPriority(priority int) *YamlFeeder {
	f.priority = priority
	return f
}

// Optional makes a missing file a no-op instead of an error.
func (f *YamlFeeder) Optional() *YamlFeeder {
	f.optional = true
	return f
}

// Feed decodes the file into structure.
func (f *YamlFeeder) Feed(structure any) error {
	f.debug("YamlFeeder: Starting feed process", "filePath", f.Path, "structureType", fmt.Sprintf("%T", structure))

	data, err := readFile(f.Path, f.optional)
	if err != nil {
		f.debug("YamlFeeder: Failed to read file", "filePath", f.Path, "error", err)
		return err
	}
	if data == nil {
		f.debug("YamlFeeder: Optional file not present, skipping", "filePath", f.Path)
		return nil
	}

	if err := yaml.Unmarshal(data, structure); err != nil {
		f.debug("YamlFeeder: Failed to decode file", "filePath", f.Path, "error", err)
		return fmt.Errorf("yaml feeder: %s: %w", f.Path, err)
	}

	f.debug("YamlFeeder: Feed completed successfully", "filePath", f.Path)
	return nil
}
