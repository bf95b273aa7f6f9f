package stepflow

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/golobby/cast"
)

// Configuration errors
var (
	ErrConfigFeederError          = errors.New("config feeder error")
	ErrConfigSetupError           = errors.New("config setup error")
	ErrConfigRequiredFieldMissing = errors.New("required config field is missing")
	ErrConfigInvalidDefault       = errors.New("invalid default value")
	ErrConfigNotPointerToStruct   = errors.New("config target must be a pointer to a struct")
)

// ConfigSetup is an interface that configs can implement
// to perform additional setup after being populated by feeders
type ConfigSetup interface {
	Setup() error
}

// Config represents a configuration builder that combines multiple feeders
// and applies them to one or more struct targets.
type Config struct {
	// Feeders contains all the registered configuration feeders
	Feeders []Feeder
	// StructKeys maps struct identifiers to their configuration objects.
	StructKeys map[string]any
	// VerboseDebug enables detailed logging during configuration processing
	VerboseDebug bool
	// Logger is used for verbose debug logging
	Logger Logger
}

// NewConfig creates a new configuration builder.
//
//	cfg := stepflow.NewConfig()
//	cfg.AddFeeder(feeders.NewYamlFeeder("stepflow.yaml"))
//	cfg.AddStructKey("suite", &suiteConfig)
//	err := cfg.Feed()
func NewConfig() *Config {
	return &Config{
		Feeders:    make([]Feeder, 0),
		StructKeys: make(map[string]any),
	}
}

// SetVerboseDebug enables or disables verbose debug logging
func (c *Config) SetVerboseDebug(enabled bool, logger Logger) *Config {
	c.VerboseDebug = enabled
	c.Logger = logger

	for _, feeder := range c.Feeders {
		if verboseFeeder, ok := feeder.(VerboseAwareFeeder); ok {
			verboseFeeder.SetVerboseDebug(enabled, logger)
		}
	}
	return c
}

// AddFeeder adds a configuration feeder
func (c *Config) AddFeeder(feeder Feeder) *Config {
	c.Feeders = append(c.Feeders, feeder)

	if c.VerboseDebug && c.Logger != nil {
		if verboseFeeder, ok := feeder.(VerboseAwareFeeder); ok {
			verboseFeeder.SetVerboseDebug(true, c.Logger)
		}
	}
	return c
}

// AddStructKey adds a structure with a key to the configuration
func (c *Config) AddStructKey(key string, target any) *Config {
	c.StructKeys[key] = target
	return c
}

func (c *Config) debug(msg string, args ...any) {
	if c.VerboseDebug && c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}

// orderedFeeders returns the feeders sorted by ascending priority, keeping
// insertion order among equal priorities.
func (c *Config) orderedFeeders() []Feeder {
	ordered := append([]Feeder(nil), c.Feeders...)
	sort.SliceStable(ordered, func(a, b int) bool {
		return feederPriority(ordered[a]) < feederPriority(ordered[b])
	})
	return ordered
}

func feederPriority(f Feeder) int {
	if pf, ok := f.(PrioritizedFeeder); ok {
		return pf.Priority()
	}
	return 0
}

// Feed applies defaults, every feeder in priority order, required-field
// validation and finally ConfigSetup to each struct key.
func (c *Config) Feed() error {
	c.debug("Starting config feed process", "structKeysCount", len(c.StructKeys), "feedersCount", len(c.Feeders))

	if len(c.StructKeys) == 0 {
		c.debug("No struct keys configured - skipping feed process")
		return nil
	}

	keys := make([]string, 0, len(c.StructKeys))
	for key := range c.StructKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	feeders := c.orderedFeeders()
	for _, key := range keys {
		target := c.StructKeys[key]
		c.debug("Processing struct key", "key", key, "targetType", reflect.TypeOf(target))

		if err := ApplyDefaults(target); err != nil {
			return fmt.Errorf("config defaults for %s: %w", key, err)
		}

		for i, f := range feeders {
			c.debug("Applying feeder to struct", "key", key, "feederIndex", i, "feederType", fmt.Sprintf("%T", f), "priority", feederPriority(f))
			if err := f.Feed(target); err != nil {
				c.debug("Feeder Feed method failed", "key", key, "feederType", fmt.Sprintf("%T", f), "error", err)
				return fmt.Errorf("%w: %s: %w", ErrConfigFeederError, key, err)
			}
		}

		if err := ValidateRequired(target); err != nil {
			c.debug("Config validation failed", "key", key, "error", err)
			return fmt.Errorf("config validation error for %s: %w", key, err)
		}

		if setupable, ok := target.(ConfigSetup); ok {
			c.debug("Calling Setup for config", "key", key)
			if err := setupable.Setup(); err != nil {
				return fmt.Errorf("%w for %s: %w", ErrConfigSetupError, key, err)
			}
		}
	}

	c.debug("Config feed process completed successfully")
	return nil
}

// ApplyDefaults sets every zero-valued field tagged `default:"..."`.
// Slice defaults are comma separated.
func ApplyDefaults(target any) error {
	rv, err := structValue(target)
	if err != nil {
		return err
	}
	return walkFields(rv, "", func(path string, field reflect.StructField, fv reflect.Value) error {
		def, ok := field.Tag.Lookup("default")
		if !ok || !fv.IsZero() {
			return nil
		}
		if fv.Kind() == reflect.Slice {
			parts := strings.Split(def, ",")
			slice := reflect.MakeSlice(fv.Type(), 0, len(parts))
			for _, p := range parts {
				v, err := cast.FromType(strings.TrimSpace(p), fv.Type().Elem())
				if err != nil {
					return fmt.Errorf("%w for %s: %w", ErrConfigInvalidDefault, path, err)
				}
				slice = reflect.Append(slice, reflect.ValueOf(v).Convert(fv.Type().Elem()))
			}
			fv.Set(slice)
			return nil
		}
		v, err := cast.FromType(def, fv.Type())
		if err != nil {
			return fmt.Errorf("%w for %s: %w", ErrConfigInvalidDefault, path, err)
		}
		fv.Set(reflect.ValueOf(v).Convert(fv.Type()))
		return nil
	})
}

// ValidateRequired reports every field tagged `required:"true"` that is still zero.
func ValidateRequired(target any) error {
	rv, err := structValue(target)
	if err != nil {
		return err
	}
	var missing []string
	_ = walkFields(rv, "", func(path string, field reflect.StructField, fv reflect.Value) error {
		if field.Tag.Get("required") == "true" && fv.IsZero() {
			missing = append(missing, path)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

func structValue(target any) (reflect.Value, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w, got %T", ErrConfigNotPointerToStruct, target)
	}
	return rv.Elem(), nil
}

// walkFields visits every exported leaf field, descending into nested structs.
func walkFields(rv reflect.Value, prefix string, visit func(path string, field reflect.StructField, fv reflect.Value) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		path := prefix + field.Name
		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := walkFields(fv, path+".", visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(path, field, fv); err != nil {
			return err
		}
	}
	return nil
}
