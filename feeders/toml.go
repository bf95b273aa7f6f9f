package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder populates a struct from a TOML file using `toml` tags.
type TomlFeeder struct {
	base
	Path     string
	optional bool
}

// NewTomlFeeder creates a feeder for the TOML file at path.
func NewTomlFeeder(path string) *TomlFeeder {
	return &TomlFeeder{Path: path}
}

// WithPriority sets the priority of this feeder.
func (f *TomlFeeder) WithPriority(priority int) *TomlFeeder {
	f.priority = priority
	return f
}

// Optional makes a missing file a no-op instead of an error.
func (f *TomlFeeder) Optional() *TomlFeeder {
	f.optional = true
	return f
}

// Feed decodes the file into structure.
func (f *TomlFeeder) Feed(structure any) error {
	f.debug("TomlFeeder: Starting feed process", "filePath", f.Path, "structureType", fmt.Sprintf("%T", structure))

	data, err := readFile(f.Path, f.optional)
	if err != nil {
		f.debug("TomlFeeder: Failed to read file", "filePath", f.Path, "error", err)
		return err
	}
	if data == nil {
		f.debug("TomlFeeder: Optional file not present, skipping", "filePath", f.Path)
		return nil
	}

	md, err := toml.Decode(string(data), structure)
	if err != nil {
		f.debug("TomlFeeder: Failed to decode file", "filePath", f.Path, "error", err)
		return fmt.Errorf("toml feeder: %s: %w", f.Path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		f.debug("TomlFeeder: Keys without a matching field", "filePath", f.Path, "keys", fmt.Sprint(undecoded))
	}

	f.debug("TomlFeeder: Feed completed successfully", "filePath", f.Path)
	return nil
}
