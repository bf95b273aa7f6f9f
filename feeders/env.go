package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder populates struct fields tagged `env:"NAME"` from environment
// variables. Nested structs are walked. Prefix and Suffix, when set, are
// added around every variable name, so with Prefix "STEPFLOW_" the tag
// `env:"TAGS"` reads STEPFLOW_TAGS.
type EnvFeeder struct {
	base
	Prefix string
	Suffix string
}

// NewEnvFeeder creates a feeder reading variables by their bare tag names.
func NewEnvFeeder() *EnvFeeder {
	return &EnvFeeder{}
}

// NewAffixedEnvFeeder creates a feeder reading prefix+NAME+suffix.
func NewAffixedEnvFeeder(prefix, suffix string) *EnvFeeder {
	return &EnvFeeder{Prefix: prefix, Suffix: suffix}
}

// WithPriority sets the priority of this feeder.
func (f *EnvFeeder) WithPriority(priority int) *EnvFeeder {
	f.priority = priority
	return f
}

// Feed sets every tagged field whose variable is present. Absent variables
// leave the field untouched.
func (f *EnvFeeder) Feed(structure any) error {
	f.debug("EnvFeeder: Starting feed process", "structureType", fmt.Sprintf("%T", structure), "prefix", f.Prefix, "suffix", f.Suffix)

	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("env feeder: %w, got %T", ErrNotPointerToStruct, structure)
	}

	if err := f.feedStruct(rv.Elem()); err != nil {
		f.debug("EnvFeeder: Feed failed", "error", err)
		return err
	}

	f.debug("EnvFeeder: Feed completed successfully")
	return nil
}

func (f *EnvFeeder) feedStruct(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)

		name, tagged := field.Tag.Lookup("env")
		if !tagged {
			if fv.Kind() == reflect.Struct {
				if err := f.feedStruct(fv); err != nil {
					return err
				}
			}
			continue
		}
		if name == "" || name == "-" {
			continue
		}

		envName := f.Prefix + name + f.Suffix
		value, ok := os.LookupEnv(envName)
		f.debug("EnvFeeder: Looking up variable", "field", field.Name, "envVar", envName, "found", ok)
		if !ok {
			continue
		}

		if err := setField(fv, value); err != nil {
			return fmt.Errorf("%w %s into field %s: %w", ErrEnvConversion, envName, field.Name, err)
		}
		f.debug("EnvFeeder: Field populated", "field", field.Name, "envVar", envName)
	}
	return nil
}

// setField converts value to the field's type. Slices take a comma
// separated list.
func setField(fv reflect.Value, value string) error {
	if fv.Kind() == reflect.Slice {
		parts := []string{}
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		slice := reflect.MakeSlice(fv.Type(), len(parts), len(parts))
		for i, p := range parts {
			if err := setField(slice.Index(i), p); err != nil {
				return err
			}
		}
		fv.Set(slice)
		return nil
	}

	converted, err := cast.FromType(value, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(reflect.ValueOf(converted).Convert(fv.Type()))
	return nil
}
