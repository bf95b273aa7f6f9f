package stepflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cucumber/godog"
)

// Registration and execution errors
var (
	// ErrMissingBinding is returned when no binding is visible for a step under the scenario's tags.
	ErrMissingBinding = errors.New("missing step binding")

	// ErrAmbiguousBinding is returned when more than one binding matches a step under the scenario's tags.
	ErrAmbiguousBinding = errors.New("ambiguous step binding")

	// ErrCyclicDependency is returned when a binding class depends on itself through its constructor graph.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrUndefinedDependency is returned when a declared dependency cannot be resolved to a constructible type.
	ErrUndefinedDependency = errors.New("undefined dependency")

	// ErrConflictingExternalObject is returned when an external object of the same type is added twice.
	ErrConflictingExternalObject = errors.New("conflicting external object")

	// ErrContextNotProvided is returned when a provided context type was never populated for the scenario.
	ErrContextNotProvided = errors.New("context type was not provided")

	// ErrDisposeFailed wraps faults raised while disposing scenario objects.
	ErrDisposeFailed = errors.New("dispose failed")

	// ErrInvalidBinding is returned when a bound method or constructor has an unsupported signature.
	ErrInvalidBinding = errors.New("invalid binding")

	// ErrIncompatibleSignature is returned when two bindings share a pattern but not an argument list.
	ErrIncompatibleSignature = errors.New("incompatible step signature")

	// ErrNoScenarioContext is returned when a dispatcher runs outside a scenario started by the installer.
	ErrNoScenarioContext = errors.New("no scenario context in scope")
)

// MissingBindingError describes a step pattern with no visible binding.
type MissingBindingError struct {
	Pattern string
	Kind    BindingKind
	Tags    []string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("%s: no %s binding for '%s' in tag scope [%s]",
		ErrMissingBinding, e.Kind, e.Pattern, strings.Join(e.Tags, ", "))
}

func (e *MissingBindingError) Unwrap() error {
	return ErrMissingBinding
}

// AmbiguousBindingError lists every candidate that matched a step pattern.
type AmbiguousBindingError struct {
	Pattern    string
	Candidates []*StepBinding
}

func (e *AmbiguousBindingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ambiguous step definitions for '%s':\n", e.Pattern)
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\t\t%s (%s)\n", c.Method, c.Callsite)
	}
	return b.String()
}

// Unwrap reports both the adapter sentinel and godog's own ambiguity error so
// that the runner marks the step as ambiguous.
func (e *AmbiguousBindingError) Unwrap() []error {
	return []error{ErrAmbiguousBinding, godog.ErrAmbiguous}
}

// CyclicDependencyError carries the dependency path that closes the cycle.
type CyclicDependencyError struct {
	Path []reflect.Type
}

func (e *CyclicDependencyError) Error() string {
	names := make([]string, len(e.Path))
	for i, t := range e.Path {
		names[i] = typeName(t)
	}
	return fmt.Sprintf("%s: cycle: %s", ErrCyclicDependency, strings.Join(names, " → "))
}

func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

// UndefinedDependencyError names the binding class and the unresolved dependency slot.
type UndefinedDependencyError struct {
	Target     reflect.Type
	Index      int
	Dependency reflect.Type
}

func (e *UndefinedDependencyError) Error() string {
	dep := "<nil>"
	if e.Dependency != nil {
		dep = typeName(e.Dependency)
	}
	return fmt.Sprintf("%s: %s dependency #%d (%s) is neither a registered binding class, a provided context type nor a pointer to a struct; "+
		"check for a missing Bind call or a package initialization order problem",
		ErrUndefinedDependency, typeName(e.Target), e.Index, dep)
}

func (e *UndefinedDependencyError) Unwrap() error {
	return ErrUndefinedDependency
}

// IsErrAmbiguousBinding reports whether err is an ambiguous-binding failure.
func IsErrAmbiguousBinding(err error) bool {
	return errors.Is(err, ErrAmbiguousBinding)
}

// IsErrMissingBinding reports whether err is a missing-binding failure.
func IsErrMissingBinding(err error) bool {
	return errors.Is(err, ErrMissingBinding)
}

// IsErrCyclicDependency reports whether err is a cyclic-dependency fault.
func IsErrCyclicDependency(err error) bool {
	return errors.Is(err, ErrCyclicDependency)
}

// IsErrUndefinedDependency reports whether err is an undefined-dependency fault.
func IsErrUndefinedDependency(err error) bool {
	return errors.Is(err, ErrUndefinedDependency)
}

// registrationError reports the faults that keep a run from starting.
func registrationError(err error) error {
	return fmt.Errorf("binding registration failed: %w", err)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
