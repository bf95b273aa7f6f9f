package stepflow

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sharedWorld struct {
	values map[string]int
}

type worldReader struct{ world *sharedWorld }

type worldWriter struct{ world *sharedWorld }

type wideClass struct{ deps []any }

type disposeLog struct{ order []string }

type disposerA struct {
	log      *disposeLog
	disposed int
}

func (d *disposerA) Dispose() { d.disposed++; d.log.order = append(d.log.order, "A") }

type disposerB struct {
	log *disposeLog
	a   *disposerA
}

func (d *disposerB) Dispose(context.Context) error {
	d.log.order = append(d.log.order, "B")
	return errors.New("b failed")
}

type disposerC struct {
	log *disposeLog
	b   *disposerB
}

func (d *disposerC) Dispose() error {
	d.log.order = append(d.log.order, "C")
	panic("c exploded")
}

type failingCtor struct{}

func bindSharedWorld(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, BindTo[sharedWorld](r, func() *sharedWorld {
		return &sharedWorld{values: map[string]int{}}
	}).Err())
	require.NoError(t, BindTo[worldReader](r, func(w *sharedWorld) *worldReader { return &worldReader{world: w} }).Err())
	require.NoError(t, BindTo[worldWriter](r, func(w *sharedWorld) *worldWriter { return &worldWriter{world: w} }).Err())
	return r
}

func activate[T any](t *testing.T, sc *ScenarioContext) *T {
	t.Helper()
	target := reflect.TypeFor[*T]()
	obj, err := sc.GetOrActivateBindingClass(target, sc.registry.ContextTypesForTarget(target))
	require.NoError(t, err)
	return obj.(*T)
}

func TestScenarioContext_MemoizesWithinScenario(t *testing.T) {
	r := bindSharedWorld(t)
	sc := NewScenarioContext(r, NewScenarioInfo("memo", nil, "", ""))

	writer := activate[worldWriter](t, sc)
	reader := activate[worldReader](t, sc)

	assert.Same(t, writer.world, reader.world, "shared dependency is constructed once")
	assert.Same(t, writer, activate[worldWriter](t, sc))
	assert.Same(t, writer.world, activate[sharedWorld](t, sc))
}

func TestScenarioContext_IsolatesScenarios(t *testing.T) {
	r := bindSharedWorld(t)

	first := NewScenarioContext(r, NewScenarioInfo("first", nil, "", ""))
	activate[worldWriter](t, first).world.values["seen"]++
	require.NoError(t, first.Dispose(context.Background()))

	second := NewScenarioContext(r, NewScenarioInfo("second", nil, "", ""))
	w := activate[worldWriter](t, second)

	assert.Equal(t, 0, w.world.values["seen"])
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestScenarioContext_UnboundedDependencyArity(t *testing.T) {
	r := NewRegistry()
	target := reflect.TypeFor[*wideClass]()

	deps := make([]reflect.Type, 0, 12)
	for i := 0; i < 6; i++ {
		deps = append(deps, reflect.TypeFor[*sharedWorld](), reflect.TypeFor[*chainLeaf]())
	}
	r.RegisterContextTypes(target, deps)
	r.RegisterActivator(target, func(args []any) (any, error) {
		return &wideClass{deps: args}, nil
	})

	sc := NewScenarioContext(r, nil)
	obj, err := sc.GetOrActivateBindingClass(target, deps)
	require.NoError(t, err)

	wide := obj.(*wideClass)
	require.Len(t, wide.deps, 12)
	for i := 2; i < 12; i++ {
		assert.Same(t, wide.deps[i%2], wide.deps[i])
	}
}

func TestScenarioContext_ProvidesScenarioInfo(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, BindTo[needsInfo](r, func(info *ScenarioInfo) *needsInfo { return &needsInfo{info: info} }).Err())

	info := NewScenarioInfo("provided", []string{"smoke"}, "a.feature", "p1")
	sc := NewScenarioContext(r, info)

	assert.Same(t, info, activate[needsInfo](t, sc).info)

	got, err := ContextValue[*ScenarioInfo](sc)
	require.NoError(t, err)
	assert.Same(t, info, got)
}

func TestScenarioContext_ContextNotProvided(t *testing.T) {
	sc := NewScenarioContext(NewRegistry(), nil)

	_, err := sc.ContextInstance(reflect.TypeFor[*Attachments]())
	assert.ErrorIs(t, err, ErrContextNotProvided)

	_, err = ContextValue[*WorldParameters](sc)
	assert.ErrorIs(t, err, ErrContextNotProvided)
}

func TestScenarioContext_AddExternalObject(t *testing.T) {
	r := bindSharedWorld(t)
	sc := NewScenarioContext(r, nil)

	external := &sharedWorld{values: map[string]int{"preset": 7}}
	require.NoError(t, sc.AddExternalObject(external))

	assert.Same(t, external, activate[worldReader](t, sc).world)

	err := sc.AddExternalObject(&sharedWorld{})
	assert.ErrorIs(t, err, ErrConflictingExternalObject)

	assert.NoError(t, sc.AddExternalObject(nil))
}

type externalClock struct{ now string }

type clockUser struct{ clock *externalClock }

func TestScenarioContext_ExternalObjectFillsProvidedType(t *testing.T) {
	r := NewRegistry()
	r.ProvideContextType(reflect.TypeFor[*externalClock]())
	require.NoError(t, BindTo[clockUser](r, func(c *externalClock) *clockUser { return &clockUser{clock: c} }).Err())

	sc := NewScenarioContext(r, nil)
	_, err := sc.GetOrActivateBindingClass(reflect.TypeFor[*clockUser](), r.ContextTypesForTarget(reflect.TypeFor[*clockUser]()))
	require.ErrorIs(t, err, ErrContextNotProvided, "nothing supplied the clock yet")

	clock := &externalClock{now: "noon"}
	require.NoError(t, sc.AddExternalObject(clock))

	assert.Same(t, clock, activate[clockUser](t, sc).clock)
	got, err := ContextValue[*externalClock](sc)
	require.NoError(t, err)
	assert.Same(t, clock, got)

	assert.ErrorIs(t, sc.AddExternalObject(&externalClock{}), ErrConflictingExternalObject)
	assert.ErrorIs(t, sc.AddExternalObject(NewScenarioInfo("other", nil, "", "")), ErrConflictingExternalObject,
		"built-in provided types are already present")
}

func TestScenarioContext_CallbacksMayReadContext(t *testing.T) {
	r := NewRegistry()
	bus := NewEventBus(nopLogger{})
	var sc *ScenarioContext
	var seenByObserver *ScenarioInfo

	require.NoError(t, bus.RegisterObserver(NewFunctionalObserver("reader", func(context.Context, cloudevents.Event) error {
		info, err := ContextValue[*ScenarioInfo](sc)
		seenByObserver = info
		return err
	}), EventTypeBindingActivated))
	require.NoError(t, BindTo[worldReader](r, func() *worldReader {
		info, err := ContextValue[*ScenarioInfo](sc)
		if err != nil {
			return nil
		}
		return &worldReader{world: &sharedWorld{values: map[string]int{info.Title: 1}}}
	}).Err())

	sc = newScenarioContext(r, NewScenarioInfo("reentrant", nil, "", ""), nopLogger{}, bus)

	done := make(chan *worldReader, 1)
	go func() {
		obj, err := sc.GetOrActivateBindingClass(reflect.TypeFor[*worldReader](), nil)
		if err != nil {
			done <- nil
			return
		}
		done <- obj.(*worldReader)
	}()

	select {
	case reader := <-done:
		require.NotNil(t, reader)
		assert.Equal(t, 1, reader.world.values["reentrant"])
		require.NotNil(t, seenByObserver)
		assert.Equal(t, "reentrant", seenByObserver.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("activation did not finish; the scenario context is still locked during callbacks")
	}
}

func TestScenarioContext_ConstructorError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, BindTo[failingCtor](r, func() (*failingCtor, error) { return nil, boom }).Err())

	sc := NewScenarioContext(r, nil)
	_, err := sc.GetOrActivateBindingClass(reflect.TypeFor[*failingCtor](), nil)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "activating *stepflow.failingCtor")
}

func TestScenarioContext_RuntimeCycleGuard(t *testing.T) {
	r := NewRegistry()
	a, b := reflect.TypeFor[*cycleA](), reflect.TypeFor[*cycleB]()
	noop := func([]any) (any, error) { return nil, errors.New("unreachable") }
	r.RegisterContextTypes(a, []reflect.Type{b})
	r.RegisterActivator(a, noop)
	r.RegisterContextTypes(b, []reflect.Type{a})
	r.RegisterActivator(b, noop)

	sc := NewScenarioContext(r, nil)
	_, err := sc.GetOrActivateBindingClass(a, r.ContextTypesForTarget(a))

	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestScenarioContext_UnboundInterfaceDependency(t *testing.T) {
	r := NewRegistry()
	target := reflect.TypeFor[*needsReader]()
	r.RegisterContextTypes(target, []reflect.Type{reflect.TypeFor[error]()})
	r.RegisterActivator(target, func([]any) (any, error) { return &needsReader{}, nil })

	sc := NewScenarioContext(r, nil)
	_, err := sc.GetOrActivateBindingClass(target, r.ContextTypesForTarget(target))

	assert.True(t, IsErrUndefinedDependency(err))
}

func TestScenarioContext_DisposeReverseOrderAndFaults(t *testing.T) {
	r := NewRegistry()
	log := &disposeLog{}
	require.NoError(t, BindTo[disposerA](r, func() *disposerA { return &disposerA{log: log} }).Err())
	require.NoError(t, BindTo[disposerB](r, func(a *disposerA) *disposerB { return &disposerB{log: log, a: a} }).Err())
	require.NoError(t, BindTo[disposerC](r, func(b *disposerB) *disposerC { return &disposerC{log: log, b: b} }).Err())

	var events []cloudevents.Event
	bus := NewEventBus(nil)
	require.NoError(t, bus.RegisterObserver(NewFunctionalObserver("collector", func(_ context.Context, e cloudevents.Event) error {
		events = append(events, e)
		return nil
	})))

	logger := quietMockLogger()
	sc := newScenarioContext(r, NewScenarioInfo("dispose", nil, "", ""), logger, bus)
	c := activate[disposerC](t, sc)

	err := sc.Dispose(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, log.order)
	assert.ErrorIs(t, err, ErrDisposeFailed)
	assert.Contains(t, err.Error(), "c exploded")
	assert.Contains(t, err.Error(), "b failed")
	assert.Equal(t, 1, c.b.a.disposed)

	again := sc.Dispose(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, 1, c.b.a.disposed, "dispose runs once")

	_, err = sc.GetOrActivateBindingClass(reflect.TypeFor[*disposerA](), nil)
	assert.Error(t, err, "a disposed context activates nothing")

	logger.AssertCalled(t, "Error", "Failed to dispose scenario object", mock.Anything)

	var types []string
	for _, e := range events {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		EventTypeBindingActivated,
		EventTypeBindingActivated,
		EventTypeBindingActivated,
		EventTypeDisposeFailed,
		EventTypeDisposeFailed,
		EventTypeScenarioDisposed,
	}, types)

	data, err := EventData(events[len(events)-1])
	require.NoError(t, err)
	assert.EqualValues(t, 3, data["instances"])
	assert.EqualValues(t, 2, data["failed"])
}
