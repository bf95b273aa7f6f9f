package stepflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cucumber/godog"
)

// DefinitionWrapper decorates every bound step and hook invocation. The
// binding's WrapperOptions are available as b.WrapperOptions.
type DefinitionWrapper func(b *StepBinding, next Invocation) Invocation

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) InstallerOption {
	return func(i *Installer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithEventBus reports lifecycle events to bus.
func WithEventBus(bus *EventBus) InstallerOption {
	return func(i *Installer) {
		i.events = bus
	}
}

// WithWorldParameters sets the value every scenario receives as *WorldParameters.
func WithWorldParameters(value any) InstallerOption {
	return func(i *Installer) {
		i.world = value
	}
}

// WithDefinitionWrapper installs a wrapper around every invocation.
func WithDefinitionWrapper(w DefinitionWrapper) InstallerOption {
	return func(i *Installer) {
		i.wrapper = w
	}
}

// ScenarioObjects supplies external objects to a scenario as it starts,
// typically through sc.AddExternalObject. An error fails the scenario before
// its first step.
type ScenarioObjects func(ctx context.Context, sc *ScenarioContext) error

// WithScenarioObjects runs fn at the start of every scenario, after the
// provided context types are populated.
func WithScenarioObjects(fn ScenarioObjects) InstallerOption {
	return func(i *Installer) {
		i.objects = fn
	}
}

// Installer registers the bindings of a Registry with godog and dispatches
// every step and hook to the right binding class instance.
type Installer struct {
	registry *Registry
	logger   Logger
	events   *EventBus
	world    any
	wrapper  DefinitionWrapper
	objects  ScenarioObjects

	suiteMu   sync.Mutex
	suite     *ScenarioContext
	suiteErrs []error
}

// NewInstaller creates an installer over registry, or over the default
// registry when registry is nil.
func NewInstaller(registry *Registry, opts ...InstallerOption) *Installer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	i := &Installer{
		registry: registry,
		logger:   defaultLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.events == nil {
		i.events = NewEventBus(i.logger)
	}
	return i
}

// Registry returns the registry the installer reads.
func (i *Installer) Registry() *Registry {
	return i.registry
}

// Events returns the bus lifecycle events are reported to.
func (i *Installer) Events() *EventBus {
	return i.events
}

// Validate returns the faults recorded while binding classes registered.
func (i *Installer) Validate() error {
	return i.registry.Err()
}

// SuiteErr returns faults raised by BeforeAll and AfterAll hooks during the
// last run, or nil.
func (i *Installer) SuiteErr() error {
	i.suiteMu.Lock()
	defer i.suiteMu.Unlock()

	return errors.Join(i.suiteErrs...)
}

func (i *Installer) mustBeValid() {
	if err := i.Validate(); err != nil {
		i.logger.Error("Binding registration failed", "error", err)
		panic(registrationError(err))
	}
}

type stepKey struct {
	pattern string
	kind    BindingKind
}

// InitializeScenario is a godog ScenarioInitializer. It panics with the
// registration faults when there are any, before the scenario starts.
func (i *Installer) InitializeScenario(sc *godog.ScenarioContext) {
	i.mustBeValid()

	sc.Before(i.beginScenario)

	registered := make(map[stepKey]bool)
	var hooks []*StepBinding

	for _, target := range i.registry.Targets() {
		for _, b := range i.registry.StepBindingsForTarget(target) {
			switch {
			case b.Kind.IsStepDefinition():
				key := stepKey{pattern: b.Pattern.String(), kind: b.Kind}
				if registered[key] {
					continue
				}
				registered[key] = true
				i.registerStep(sc, b)
			case b.Kind.IsHook() && !b.Kind.IsSuiteHook():
				hooks = append(hooks, b)
			}
		}
	}

	for _, b := range hooks {
		i.registerHook(sc, b)
	}

	sc.After(i.endScenario)
}

// InitializeTestSuite is a godog TestSuiteInitializer. It runs BeforeAll and
// AfterAll hooks against a context that lives for the whole run. Like
// InitializeScenario it panics on registration faults, so godog.TestSuite.Run
// never reaches the first scenario.
func (i *Installer) InitializeTestSuite(ts *godog.TestSuiteContext) {
	i.mustBeValid()

	ts.BeforeSuite(i.beginSuite)

	var afterAll []*StepBinding
	for _, target := range i.registry.Targets() {
		for _, b := range i.registry.StepBindingsForTarget(target) {
			if !b.Kind.IsSuiteHook() {
				continue
			}
			if b.Tag != "" && b.Tag != AnyTag {
				i.logger.Warn("Tag ignored on suite hook", "hook", b.Method, "kind", b.Kind.String(), "tag", b.Tag)
			}
			if b.Kind == KindBeforeAll {
				ts.BeforeSuite(func() { i.runSuiteHook(b) })
			} else {
				afterAll = append(afterAll, b)
			}
		}
	}

	for _, b := range afterAll {
		ts.AfterSuite(func() { i.runSuiteHook(b) })
	}
	ts.AfterSuite(i.endSuite)
}

func (i *Installer) registerStep(sc *godog.ScenarioContext, b *StepBinding) {
	fn := i.stepDispatcher(b)

	switch b.Kind {
	case KindGiven:
		sc.Given(b.Pattern.Expr(), fn)
	case KindWhen:
		sc.When(b.Pattern.Expr(), fn)
	case KindThen:
		sc.Then(b.Pattern.Expr(), fn)
	}
}

func (i *Installer) registerHook(sc *godog.ScenarioContext, b *StepBinding) {
	switch b.Kind {
	case KindBefore:
		sc.Before(func(ctx context.Context, pickle *godog.Scenario) (context.Context, error) {
			return i.dispatchHook(ctx, b, hookArgs{scenario: pickle})
		})
	case KindAfter:
		sc.After(func(ctx context.Context, pickle *godog.Scenario, err error) (context.Context, error) {
			return i.dispatchHook(ctx, b, hookArgs{scenario: pickle, err: err})
		})
	case KindBeforeStep:
		sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
			return i.dispatchHook(ctx, b, hookArgs{step: st})
		})
	case KindAfterStep:
		sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
			return i.dispatchHook(ctx, b, hookArgs{step: st, status: status, err: err})
		})
	}
}

// stepDispatcher builds the function godog calls for every step text that
// matches b's pattern. Its parameters mirror the bound method, so godog does
// the argument conversion; the binding to invoke is chosen per call from the
// scenario's tags.
func (i *Installer) stepDispatcher(b *StepBinding) any {
	in := append([]reflect.Type{contextType}, b.sig.wire...)
	fnType := reflect.FuncOf(in, []reflect.Type{contextType, errorType}, false)

	pattern := b.Pattern.String()
	kind := b.Kind

	return reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		ctx, _ := args[0].Interface().(context.Context)
		rctx, err := i.dispatchStep(ctx, pattern, kind, args[1:])
		return []reflect.Value{reflect.ValueOf(&rctx).Elem(), errorValue(err)}
	}).Interface()
}

func errorValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errorType)
	}
	return reflect.ValueOf(&err).Elem()
}

// resolveStep applies the ambiguity policy to the bindings visible for
// pattern under the scenario's tags.
func (i *Installer) resolveStep(pattern string, kind BindingKind, tags []string) (*StepBinding, error) {
	candidates := bindingsOfKind(i.registry.StepBindings(pattern, tags), kind)
	if len(candidates) == 0 {
		// tagged bindings of another kind must not hide untagged ones of this kind
		candidates = bindingsOfKind(i.registry.StepBindings(pattern, []string{AnyTag}), kind)
	}

	switch len(candidates) {
	case 0:
		return nil, &MissingBindingError{Pattern: pattern, Kind: kind, Tags: tags}
	case 1:
		return candidates[0], nil
	default:
		return nil, &AmbiguousBindingError{Pattern: pattern, Candidates: candidates}
	}
}

func (i *Installer) dispatchStep(ctx context.Context, pattern string, kind BindingKind, args []reflect.Value) (context.Context, error) {
	sc, err := scenarioContextFrom(ctx)
	if err != nil {
		return ctx, err
	}
	info := sc.ScenarioInfo()

	b, err := i.resolveStep(pattern, kind, info.Tags)
	if err != nil {
		i.stepFailed(ctx, sc, pattern, err)
		return ctx, err
	}

	obj, err := sc.GetOrActivateBindingClass(b.Target, i.registry.ContextTypesForTarget(b.Target))
	if err != nil {
		i.stepFailed(ctx, sc, pattern, err)
		return ctx, err
	}

	i.events.emit(ctx, EventTypeStepResolved, map[string]any{
		"scenarioId": sc.ID(),
		"pattern":    pattern,
		"binding":    typeName(b.Target) + "." + b.Method,
		"callsite":   b.Callsite.String(),
	})

	bindScenarioLog(ctx, sc)
	rctx, err := i.run(ctx, b, func(ctx context.Context) (context.Context, error) {
		return b.sig.invoke(ctx, obj, args)
	})
	rctx = flushAttachments(rctx, sc)
	if err != nil {
		i.stepFailed(rctx, sc, pattern, err)
	}
	return rctx, err
}

func (i *Installer) stepFailed(ctx context.Context, sc *ScenarioContext, pattern string, err error) {
	i.logger.Debug("Step failed", "scenario", sc.ScenarioInfo().Title, "pattern", pattern, "error", err)
	i.events.emit(ctx, EventTypeStepFailed, map[string]any{
		"scenarioId": sc.ID(),
		"pattern":    pattern,
		"error":      err.Error(),
	})
}

// dispatchHook runs hook b for the current scenario unless its tag
// expression rules the scenario out.
func (i *Installer) dispatchHook(ctx context.Context, b *StepBinding, a hookArgs) (context.Context, error) {
	sc, err := scenarioContextFrom(ctx)
	if err != nil {
		return ctx, err
	}
	a.info = sc.ScenarioInfo()

	if b.tagExpr != nil && !b.tagExpr.Evaluate(a.info.Tags) {
		return ctx, nil
	}

	rctx, err := i.invokeHook(ctx, sc, b, a)
	return flushAttachments(rctx, sc), err
}

func (i *Installer) invokeHook(ctx context.Context, sc *ScenarioContext, b *StepBinding, a hookArgs) (context.Context, error) {
	obj, err := sc.GetOrActivateBindingClass(b.Target, i.registry.ContextTypesForTarget(b.Target))
	if err != nil {
		return ctx, err
	}

	i.events.emit(ctx, EventTypeHookInvoked, map[string]any{
		"scenarioId": sc.ID(),
		"kind":       b.Kind.String(),
		"binding":    typeName(b.Target) + "." + b.Method,
	})

	bindScenarioLog(ctx, sc)
	return i.run(ctx, b, func(ctx context.Context) (context.Context, error) {
		return b.sig.invoke(ctx, obj, b.sig.hookValues(ctx, a))
	})
}

// run applies the definition wrapper and the binding's timeout to call. The
// deadline only bounds the context the bound method sees; the context handed
// back to the runner never carries it.
func (i *Installer) run(ctx context.Context, b *StepBinding, call Invocation) (rctx context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			rctx, err = ctx, fmt.Errorf("%s.%s panicked: %v", typeName(b.Target), b.Method, r)
		}
	}()

	if i.wrapper != nil {
		call = i.wrapper(b, call)
	}

	if b.Timeout <= 0 {
		return call(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	started := time.Now()
	rctx, err = call(tctx)
	if tctx.Err() != nil {
		i.logger.Warn("Binding exceeded its timeout", "binding", b.Method, "timeout", b.Timeout, "elapsed", time.Since(started))
	}

	if rctx == nil || rctx == tctx {
		return ctx, err
	}
	return context.WithoutCancel(rctx), err
}

// bindScenarioLog points the scenario's log at the context of the step
// about to run.
func bindScenarioLog(ctx context.Context, sc *ScenarioContext) {
	if log, err := ContextValue[*ScenarioLog](sc); err == nil {
		log.bind(ctx)
	}
}

func flushAttachments(ctx context.Context, sc *ScenarioContext) context.Context {
	att, err := ContextValue[*Attachments](sc)
	if err != nil {
		return ctx
	}
	return att.flush(ctx)
}

func bindingsOfKind(bindings []*StepBinding, kind BindingKind) []*StepBinding {
	var out []*StepBinding
	for _, b := range bindings {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}
