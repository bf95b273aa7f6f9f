package stepflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	tagexpressions "github.com/cucumber/tag-expressions/go/v6"
)

// Class registers the steps and hooks of binding class T. It is returned by
// Bind and is meant to be chained at package level:
//
//	var _ = stepflow.Bind[Steps](NewSteps).
//		Given(`^an input (\d+)$`, (*Steps).AnInput).
//		After((*Steps).Check, stepflow.WithTag("@basic"))
//
// Registration never panics. Faults are kept on the class and on the
// registry, and the installer refuses to run while any are present.
type Class[T any] struct {
	registry *Registry
	target   reflect.Type
	errs     []error
}

// Bind registers T with the default registry. constructor is either nil, in
// which case T is zero-constructed, or a function whose parameters are the
// dependencies of T and which returns *T or (*T, error).
func Bind[T any](constructor any) *Class[T] {
	return BindTo[T](DefaultRegistry(), constructor)
}

// BindTo is Bind against an explicit registry.
func BindTo[T any](registry *Registry, constructor any) *Class[T] {
	c := &Class[T]{
		registry: registry,
		target:   reflect.TypeFor[*T](),
	}

	if c.target.Elem().Kind() != reflect.Struct {
		c.fail(fmt.Errorf("%w: binding class %s is not a struct", ErrInvalidBinding, typeName(c.target.Elem())))
		return c
	}

	deps, activator, err := constructorActivator(c.target, constructor)
	if err != nil {
		c.fail(err)
		return c
	}

	registry.RegisterContextTypes(c.target, deps)
	registry.RegisterActivator(c.target, activator)

	if err := registry.ValidateDependencies(c.target); err != nil {
		c.fail(err)
	}
	return c
}

// constructorActivator derives the dependency list and the factory of target
// from its constructor.
func constructorActivator(target reflect.Type, constructor any) ([]reflect.Type, Activator, error) {
	if constructor == nil {
		return []reflect.Type{}, zeroActivator(target), nil
	}

	fn := reflect.ValueOf(constructor)
	ft := fn.Type()
	if ft.Kind() != reflect.Func || ft.IsVariadic() {
		return nil, nil, fmt.Errorf("%w: constructor of %s must be a non-variadic func, got %T", ErrInvalidBinding, typeName(target), constructor)
	}

	switch {
	case ft.NumOut() == 1 && ft.Out(0) == target:
	case ft.NumOut() == 2 && ft.Out(0) == target && ft.Out(1) == errorType:
	default:
		return nil, nil, fmt.Errorf("%w: constructor of %s must return %s or (%s, error)", ErrInvalidBinding, typeName(target), target, target)
	}

	deps := make([]reflect.Type, ft.NumIn())
	for i := range deps {
		deps[i] = ft.In(i)
	}

	activator := func(args []any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			if a == nil {
				in[i] = reflect.Zero(deps[i])
				continue
			}
			in[i] = reflect.ValueOf(a)
		}

		out := fn.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		if out[0].IsNil() {
			return nil, fmt.Errorf("constructor of %s returned nil", typeName(target))
		}
		return out[0].Interface(), nil
	}
	return deps, activator, nil
}

func (c *Class[T]) fail(err error) {
	c.errs = append(c.errs, err)
	c.registry.recordError(err)
}

// Err returns every fault recorded while registering this class.
func (c *Class[T]) Err() error {
	return errors.Join(c.errs...)
}

// Target returns the class identity, *T.
func (c *Class[T]) Target() reflect.Type {
	return c.target
}

// Given binds method to a Given step matching pattern.
func (c *Class[T]) Given(pattern any, method any, opts ...BindingOption) *Class[T] {
	return c.step(KindGiven, pattern, method, CaptureCallsite(0), opts)
}

// When binds method to a When step matching pattern.
func (c *Class[T]) When(pattern any, method any, opts ...BindingOption) *Class[T] {
	return c.step(KindWhen, pattern, method, CaptureCallsite(0), opts)
}

// Then binds method to a Then step matching pattern.
func (c *Class[T]) Then(pattern any, method any, opts ...BindingOption) *Class[T] {
	return c.step(KindThen, pattern, method, CaptureCallsite(0), opts)
}

// Before runs method before every scenario, or only before scenarios matching
// the tag expression given with WithTag.
func (c *Class[T]) Before(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindBefore, method, CaptureCallsite(0), opts)
}

// After runs method after every matching scenario, before its objects are disposed.
func (c *Class[T]) After(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindAfter, method, CaptureCallsite(0), opts)
}

// BeforeAll runs method once before the first scenario, on an instance that
// lives for the whole run.
func (c *Class[T]) BeforeAll(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindBeforeAll, method, CaptureCallsite(0), opts)
}

// AfterAll runs method once after the last scenario.
func (c *Class[T]) AfterAll(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindAfterAll, method, CaptureCallsite(0), opts)
}

// BeforeStep runs method before every step of matching scenarios.
func (c *Class[T]) BeforeStep(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindBeforeStep, method, CaptureCallsite(0), opts)
}

// AfterStep runs method after every step of matching scenarios.
func (c *Class[T]) AfterStep(method any, opts ...BindingOption) *Class[T] {
	return c.hook(KindAfterStep, method, CaptureCallsite(0), opts)
}

func applyBindingOptions(opts []BindingOption) bindingOptions {
	var o bindingOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Class[T]) step(kind BindingKind, pattern any, method any, cs Callsite, opts []BindingOption) *Class[T] {
	o := applyBindingOptions(opts)

	p, err := NewStepPattern(pattern)
	if err != nil {
		c.fail(fmt.Errorf("%s at %s: %w", kind, cs, err))
		return c
	}
	if p.IsZero() {
		c.fail(fmt.Errorf("%w: %s step at %s has an empty pattern", ErrInvalidBinding, kind, cs))
		return c
	}
	if strings.ContainsAny(strings.TrimSpace(o.tag), " \t") {
		c.fail(fmt.Errorf("%w: %s step at %s: step tags must be a single tag, got %q", ErrInvalidBinding, kind, cs, o.tag))
		return c
	}

	sig, err := analyzeStep(c.target, method)
	if err != nil {
		c.fail(fmt.Errorf("%s step '%s' at %s: %w", kind, p, cs, err))
		return c
	}

	b := &StepBinding{
		Pattern:        p,
		Kind:           kind,
		Target:         c.target,
		Method:         sig.name,
		Func:           sig.fn,
		ArgsLength:     len(sig.params),
		Tag:            o.tag,
		Timeout:        o.timeout,
		WrapperOptions: o.wrapperOptions,
		Callsite:       cs,
		sig:            sig,
	}

	for _, existing := range c.registry.bindingsForPattern(p.String()) {
		if existing.Kind != kind || sameBinding(existing, b) {
			continue
		}
		if !sameWire(existing.sig, sig) {
			c.fail(fmt.Errorf("%w: %s step '%s' at %s takes %s but %s at %s takes %s",
				ErrIncompatibleSignature, kind, p, cs, sig, existing.Method, existing.Callsite, existing.sig))
			return c
		}
	}

	c.registry.RegisterStepBinding(b)
	return c
}

func (c *Class[T]) hook(kind BindingKind, method any, cs Callsite, opts []BindingOption) *Class[T] {
	o := applyBindingOptions(opts)

	sig, err := analyzeHook(c.target, method)
	if err != nil {
		c.fail(fmt.Errorf("%s hook at %s: %w", kind, cs, err))
		return c
	}

	b := &StepBinding{
		Kind:           kind,
		Target:         c.target,
		Method:         sig.name,
		Func:           sig.fn,
		Tag:            o.tag,
		Timeout:        o.timeout,
		WrapperOptions: o.wrapperOptions,
		Callsite:       cs,
		sig:            sig,
	}

	if o.tag != "" && o.tag != AnyTag {
		expr, err := parseTagExpression(o.tag)
		if err != nil {
			c.fail(fmt.Errorf("%w: %s hook %s at %s: tag expression %q: %w", ErrInvalidBinding, kind, sig.name, cs, o.tag, err))
			return c
		}
		b.tagExpr = expr
	}

	c.registry.RegisterStepBinding(b)
	return c
}

// parseTagExpression parses expr. The parser panics on some malformed input,
// such as a dangling operator; that is reported as an error.
func parseTagExpression(expr string) (e tagexpressions.Evaluatable, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("malformed tag expression: %v", r)
		}
	}()
	return tagexpressions.Parse(expr)
}
