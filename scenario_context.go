package stepflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// ScenarioContext owns the binding class instances of one running scenario.
// Each class is constructed at most once per scenario, on first use, and
// every instance is disposed when the scenario ends.
type ScenarioContext struct {
	id       string
	info     *ScenarioInfo
	registry *Registry
	logger   Logger
	events   *EventBus

	mu         sync.Mutex
	active     map[reflect.Type]any
	order      []reflect.Type
	provided   map[reflect.Type]any
	activating []reflect.Type
	disposed   bool
	disposeErr error
}

// NewScenarioContext creates a context for the scenario described by info.
// Only *ScenarioInfo is provided; the installer populates the rest.
func NewScenarioContext(registry *Registry, info *ScenarioInfo) *ScenarioContext {
	return newScenarioContext(registry, info, nopLogger{}, nil)
}

func newScenarioContext(registry *Registry, info *ScenarioInfo, logger Logger, events *EventBus) *ScenarioContext {
	if info == nil {
		info = NewScenarioInfo("", nil, "", "")
	}
	sc := &ScenarioContext{
		id:       uuid.NewString(),
		info:     info,
		registry: registry,
		logger:   logger,
		events:   events,
		active:   make(map[reflect.Type]any),
		provided: make(map[reflect.Type]any),
	}
	sc.provide(info)
	return sc
}

// ID uniquely identifies this scenario run.
func (sc *ScenarioContext) ID() string {
	return sc.id
}

// ScenarioInfo returns the scenario description.
func (sc *ScenarioContext) ScenarioInfo() *ScenarioInfo {
	return sc.info
}

// provide stores a value of a provided context type.
func (sc *ScenarioContext) provide(obj any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.provided[reflect.TypeOf(obj)] = obj
}

// ContextInstance returns the value populated for a provided context type.
func (sc *ScenarioContext) ContextInstance(t reflect.Type) (any, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.contextInstanceLocked(t)
}

func (sc *ScenarioContext) contextInstanceLocked(t reflect.Type) (any, error) {
	if obj, ok := sc.provided[t]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrContextNotProvided, typeName(t))
}

// ContextValue returns the provided context value or active instance of type T.
func ContextValue[T any](sc *ScenarioContext) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if obj, ok := sc.active[t]; ok {
		return obj.(T), nil
	}
	obj, err := sc.contextInstanceLocked(t)
	if err != nil {
		return zero, err
	}
	return obj.(T), nil
}

// AddExternalObject makes obj available as a dependency of its concrete type.
// When that type was declared with Registry.ProvideContextType, obj fills the
// provided slot. Adding a second object of the same type is an error.
// External objects are disposed with the scenario like any activated instance.
func (sc *ScenarioContext) AddExternalObject(obj any) error {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	_, isActive := sc.active[t]
	_, isProvided := sc.provided[t]
	if isActive || isProvided {
		return fmt.Errorf("%w: an object of type %s is already present", ErrConflictingExternalObject, typeName(t))
	}
	if sc.registry != nil && sc.registry.IsProvidedContextType(t) {
		sc.provided[t] = obj
	}
	sc.active[t] = obj
	sc.order = append(sc.order, t)
	return nil
}

// GetOrActivateBindingClass returns the scenario's instance of target,
// constructing it and its dependencies depth-first when it does not exist yet.
// contextTypes are the target's declared dependencies in constructor order.
//
// Constructors and event observers run without the context's lock held, so
// they may read the scenario context.
func (sc *ScenarioContext) GetOrActivateBindingClass(target reflect.Type, contextTypes []reflect.Type) (any, error) {
	return sc.activate(target, contextTypes)
}

func (sc *ScenarioContext) activate(target reflect.Type, contextTypes []reflect.Type) (any, error) {
	sc.mu.Lock()
	if sc.disposed {
		sc.mu.Unlock()
		return nil, fmt.Errorf("scenario %q is already disposed", sc.info.Title)
	}
	if obj, ok := sc.active[target]; ok {
		sc.mu.Unlock()
		return obj, nil
	}
	if idx := indexOfType(sc.activating, target); idx >= 0 {
		path := append(append([]reflect.Type(nil), sc.activating[idx:]...), target)
		sc.mu.Unlock()
		return nil, &CyclicDependencyError{Path: path}
	}
	sc.activating = append(sc.activating, target)
	sc.mu.Unlock()
	defer sc.doneActivating(target)

	args := make([]any, len(contextTypes))
	for i, dep := range contextTypes {
		obj, err := sc.resolve(target, i, dep)
		if err != nil {
			return nil, err
		}
		args[i] = obj
	}

	activator, ok := sc.registry.activator(target)
	if !ok {
		if !isPointerToStruct(target) || len(contextTypes) > 0 {
			return nil, fmt.Errorf("%w: %s was never bound and cannot be zero-constructed", ErrUndefinedDependency, typeName(target))
		}
		activator = zeroActivator(target)
	}

	obj, err := activator(args)
	if err != nil {
		return nil, fmt.Errorf("activating %s: %w", typeName(target), err)
	}

	sc.mu.Lock()
	if existing, ok := sc.active[target]; ok {
		sc.mu.Unlock()
		return existing, nil
	}
	sc.active[target] = obj
	sc.order = append(sc.order, target)
	sc.mu.Unlock()

	sc.logger.Debug("Binding class activated", "scenario", sc.info.Title, "type", typeName(target))
	sc.events.emit(context.Background(), EventTypeBindingActivated, map[string]any{
		"scenarioId": sc.id,
		"type":       typeName(target),
	})
	return obj, nil
}

func (sc *ScenarioContext) doneActivating(target reflect.Type) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for i := len(sc.activating) - 1; i >= 0; i-- {
		if sc.activating[i] == target {
			sc.activating = append(sc.activating[:i], sc.activating[i+1:]...)
			return
		}
	}
}

func (sc *ScenarioContext) resolve(target reflect.Type, index int, dep reflect.Type) (any, error) {
	if dep == nil {
		return nil, &UndefinedDependencyError{Target: target, Index: index}
	}
	if sc.registry.IsProvidedContextType(dep) {
		return sc.ContextInstance(dep)
	}

	sc.mu.Lock()
	obj, ok := sc.active[dep]
	sc.mu.Unlock()
	if ok {
		return obj, nil
	}

	if sc.registry.isBindingClass(dep) || isPointerToStruct(dep) {
		return sc.activate(dep, sc.registry.ContextTypesForTarget(dep))
	}
	return nil, &UndefinedDependencyError{Target: target, Index: index, Dependency: dep}
}

func zeroActivator(t reflect.Type) Activator {
	return func([]any) (any, error) {
		return reflect.New(t.Elem()).Interface(), nil
	}
}

// Dispose releases every instance in reverse activation order. Instances may
// implement Dispose(context.Context) error, Dispose() error or Dispose().
// A failing or panicking instance does not stop the others; all faults are
// returned joined. Only the first call does any work.
func (sc *ScenarioContext) Dispose(ctx context.Context) error {
	sc.mu.Lock()
	if sc.disposed {
		sc.mu.Unlock()
		return sc.disposeErr
	}
	sc.disposed = true
	order := append([]reflect.Type(nil), sc.order...)
	active := sc.active
	sc.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		if err := disposeInstance(ctx, active[t]); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrDisposeFailed, typeName(t), err)
			sc.logger.Error("Failed to dispose scenario object", "scenario", sc.info.Title, "type", typeName(t), "error", err)
			sc.events.emit(ctx, EventTypeDisposeFailed, map[string]any{
				"scenarioId": sc.id,
				"type":       typeName(t),
				"error":      err.Error(),
			})
			errs = append(errs, err)
		}
	}

	sc.mu.Lock()
	sc.disposeErr = errors.Join(errs...)
	sc.active = make(map[reflect.Type]any)
	sc.order = nil
	sc.mu.Unlock()

	sc.events.emit(ctx, EventTypeScenarioDisposed, map[string]any{
		"scenarioId": sc.id,
		"scenario":   sc.info.Title,
		"instances":  len(order),
		"failed":     len(errs),
	})
	return sc.disposeErr
}

func disposeInstance(ctx context.Context, obj any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch d := obj.(type) {
	case interface{ Dispose(context.Context) error }:
		return d.Dispose(ctx)
	case interface{ Dispose() error }:
		return d.Dispose()
	case interface{ Dispose() }:
		d.Dispose()
	}
	return nil
}
