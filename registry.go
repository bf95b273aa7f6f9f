package stepflow

import (
	"errors"
	"reflect"
	"sync"
)

// Activator builds a binding class instance from its already resolved
// dependencies, given in declaration order.
type Activator func(deps []any) (any, error)

// targetBinding is the metadata kept per binding class.
type targetBinding struct {
	stepBindings []*StepBinding
	contextTypes []reflect.Type
	activator    Activator
}

// Registry indexes every registered binding by step pattern and by owning
// class. It is written while binding classes register, normally during
// package initialization, and read concurrently while scenarios run.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]map[string][]*StepBinding
	targets  map[reflect.Type]*targetBinding
	order    []reflect.Type
	provided map[reflect.Type]struct{}
	errs     []error
}

// NewRegistry creates an empty registry that already knows the built-in
// provided context types.
func NewRegistry() *Registry {
	r := &Registry{
		bindings: make(map[string]map[string][]*StepBinding),
		targets:  make(map[reflect.Type]*targetBinding),
		provided: make(map[reflect.Type]struct{}),
	}
	for _, t := range builtinContextTypes {
		r.provided[t] = struct{}{}
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry used by Bind.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// target returns the class entry, creating it on first use. Callers hold mu.
func (r *Registry) target(t reflect.Type) *targetBinding {
	tb, ok := r.targets[t]
	if !ok {
		tb = &targetBinding{}
		r.targets[t] = tb
		r.order = append(r.order, t)
	}
	return tb
}

// RegisterContextTypes records the ordered dependency list of a binding
// class. A nil list is ignored; any other list replaces the previous one.
func (r *Registry) RegisterContextTypes(target reflect.Type, contextTypes []reflect.Type) {
	if contextTypes == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.target(target).contextTypes = contextTypes
}

// RegisterActivator records the factory used to construct a binding class.
func (r *Registry) RegisterActivator(target reflect.Type, activator Activator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.target(target).activator = activator
}

// RegisterStepBinding indexes b under its pattern and under its owning class.
// A binding equal to one already indexed (same callsite and pattern) is skipped.
func (r *Registry) RegisterStepBinding(b *StepBinding) {
	if b.Tag == "" {
		b.Tag = AnyTag
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := b.Pattern.String()

	tagMap, ok := r.bindings[key]
	if !ok {
		tagMap = make(map[string][]*StepBinding)
		r.bindings[key] = tagMap
	}
	if !containsBinding(tagMap[b.Tag], b) {
		tagMap[b.Tag] = append(tagMap[b.Tag], b)
	}

	tb := r.target(b.Target)
	if !containsBinding(tb.stepBindings, b) {
		tb.stepBindings = append(tb.stepBindings, b)
	}
}

func containsBinding(list []*StepBinding, b *StepBinding) bool {
	for _, existing := range list {
		if sameBinding(existing, b) {
			return true
		}
	}
	return false
}

// ContextTypesForTarget returns the declared dependencies of a class, or an
// empty list when none were declared.
func (r *Registry) ContextTypesForTarget(target reflect.Type) []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tb, ok := r.targets[target]; ok && tb.contextTypes != nil {
		return tb.contextTypes
	}
	return []reflect.Type{}
}

// StepBindingsForTarget returns every binding owned by a class.
func (r *Registry) StepBindingsForTarget(target reflect.Type) []*StepBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tb, ok := r.targets[target]; ok {
		return append([]*StepBinding(nil), tb.stepBindings...)
	}
	return []*StepBinding{}
}

// StepBindings returns the bindings registered under pattern whose tag is in
// tags. When none match it falls back to the untagged bindings, so a binding
// without a tag still applies to scenarios whose tags select nothing.
func (r *Registry) StepBindings(pattern string, tags []string) []*StepBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tagMap, ok := r.bindings[pattern]
	if !ok {
		return []*StepBinding{}
	}

	if matched := mapTagsToBindings(uniqueTags(tags), tagMap); len(matched) > 0 {
		return matched
	}
	return mapTagsToBindings([]string{AnyTag}, tagMap)
}

// bindingsForPattern returns every binding under pattern regardless of tag.
func (r *Registry) bindingsForPattern(pattern string) []*StepBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*StepBinding{}
	for _, list := range r.bindings[pattern] {
		out = append(out, list...)
	}
	return out
}

func mapTagsToBindings(tags []string, tagMap map[string][]*StepBinding) []*StepBinding {
	out := []*StepBinding{}
	for _, tag := range tags {
		out = append(out, tagMap[tag]...)
	}
	return out
}

// Targets returns the registered binding classes in registration order.
func (r *Registry) Targets() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]reflect.Type(nil), r.order...)
}

func (r *Registry) activator(target reflect.Type) (Activator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tb, ok := r.targets[target]
	if !ok || tb.activator == nil {
		return nil, false
	}
	return tb.activator, true
}

// isBindingClass reports whether target was registered through Bind.
func (r *Registry) isBindingClass(target reflect.Type) bool {
	_, ok := r.activator(target)
	return ok
}

// ProvideContextType declares t as supplied from outside at scenario start
// rather than constructed on demand.
func (r *Registry) ProvideContextType(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.provided[t] = struct{}{}
}

// IsProvidedContextType reports whether t is supplied at scenario start.
func (r *Registry) IsProvidedContextType(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.provided[t]
	return ok
}

func (r *Registry) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs = append(r.errs, err)
}

// Err returns every fault recorded while binding classes registered, or nil.
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return errors.Join(r.errs...)
}
