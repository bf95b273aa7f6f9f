package stepflow

import (
	"context"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindingSteps struct {
	count int
	name  string
}

func (s *bindingSteps) Count(n int) { s.count += n }

func (s *bindingSteps) Named(name string) { s.name = name }

func (s *bindingSteps) Reset(ctx context.Context) {}

func (s *bindingSteps) Check(sc *godog.Scenario, err error) error { return err }

func (s bindingSteps) ByValue(n int) error { return nil }

func (s *bindingSteps) Channel(ch chan int) {}

func (s *bindingSteps) Variadic(ns ...int) {}

func (s *bindingSteps) TooMany() (int, int, error) { return 0, 0, nil }

func (s *bindingSteps) WrongResult() int { return 0 }

func (s *bindingSteps) WithTable(t *godog.Table) {}

type otherSteps struct{}

func (o *otherSteps) Count(n int) {}

type unitCount int

func (s *bindingSteps) Units(n unitCount) { s.count += int(n) }

func TestBind_RegistersStepsAndHooks(t *testing.T) {
	r := NewRegistry()

	c := BindTo[bindingSteps](r, nil).
		Given(`^count (\d+)$`, (*bindingSteps).Count).
		When(regexp.MustCompile(`^named (\w+)$`), (*bindingSteps).Named, WithTag("named"), WithTimeout(time.Second)).
		Then(`^by value (\d+)$`, bindingSteps.ByValue).
		Before((*bindingSteps).Reset).
		After((*bindingSteps).Check, WithTag("@basic"))

	require.NoError(t, c.Err())
	assert.Equal(t, reflect.TypeFor[*bindingSteps](), c.Target())

	bindings := r.StepBindingsForTarget(c.Target())
	require.Len(t, bindings, 5)

	given := bindings[0]
	assert.Equal(t, KindGiven, given.Kind)
	assert.Equal(t, "Count", given.Method)
	assert.Equal(t, 1, given.ArgsLength)
	assert.Equal(t, AnyTag, given.Tag)
	assert.Equal(t, "binding_test.go", filepath.Base(given.Callsite.File))
	assert.Positive(t, given.Callsite.Line)

	when := bindings[1]
	assert.Equal(t, `^named (\w+)$`, when.Pattern.String())
	assert.Equal(t, "@named", when.Tag)
	assert.Equal(t, time.Second, when.Timeout)
	assert.Greater(t, when.Callsite.Line, given.Callsite.Line)

	assert.Equal(t, "ByValue", bindings[2].Method)
	assert.True(t, bindings[2].sig.byValue)

	before := bindings[3]
	assert.Equal(t, KindBefore, before.Kind)
	assert.Equal(t, MatchAllPattern, before.Pattern.String())
	assert.Nil(t, before.tagExpr)

	after := bindings[4]
	assert.Equal(t, "@basic", after.Tag)
	require.NotNil(t, after.tagExpr)
	assert.True(t, after.tagExpr.Evaluate([]string{"@basic", "@other"}))
	assert.False(t, after.tagExpr.Evaluate([]string{"@other"}))

	assert.Len(t, r.StepBindings(MatchAllPattern, []string{"@basic"}), 1)
}

func TestBind_SameCallsiteRegistersOnce(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 3; i++ {
		BindTo[bindingSteps](r, nil).Given(`^count (\d+)$`, (*bindingSteps).Count)
	}

	assert.Len(t, r.StepBindingsForTarget(reflect.TypeFor[*bindingSteps]()), 1)
	assert.Len(t, r.StepBindings(`^count (\d+)$`, nil), 1)
}

func TestBind_NamedParameterTypes(t *testing.T) {
	r := NewRegistry()

	c := BindTo[bindingSteps](r, nil).
		Given(`^units (\d+)$`, (*bindingSteps).Units).
		Given(`^a table$`, (*bindingSteps).WithTable)

	require.NoError(t, c.Err())
	b := r.StepBindingsForTarget(c.Target())[0]
	assert.Equal(t, []reflect.Type{reflect.TypeFor[int]()}, b.sig.wire)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[unitCount]()}, b.sig.params)
}

func TestBind_Faults(t *testing.T) {
	tests := []struct {
		name    string
		bind    func(r *Registry) error
		wantErr error
		message string
	}{
		{
			name:    "non struct class",
			bind:    func(r *Registry) error { return BindTo[int](r, nil).Err() },
			wantErr: ErrInvalidBinding,
			message: "is not a struct",
		},
		{
			name: "constructor with wrong result",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, func() *otherSteps { return nil }).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "must return *stepflow.bindingSteps",
		},
		{
			name:    "constructor is not a func",
			bind:    func(r *Registry) error { return BindTo[bindingSteps](r, "nope").Err() },
			wantErr: ErrInvalidBinding,
		},
		{
			name: "method of another class",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x$`, (*otherSteps).Count).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "is not a method expression of *stepflow.bindingSteps",
		},
		{
			name: "nil method",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x$`, nil).Err()
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "unsupported parameter",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x$`, (*bindingSteps).Channel).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "unsupported type chan int",
		},
		{
			name: "variadic step",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x$`, (*bindingSteps).Variadic).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "variadic",
		},
		{
			name: "too many results",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x$`, (*bindingSteps).TooMany).Err()
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "wrong result type",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Then(`^x$`, (*bindingSteps).WrongResult).Err()
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "empty pattern",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given("", (*bindingSteps).Count).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "empty pattern",
		},
		{
			name: "invalid regular expression",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^(unclosed$`, (*bindingSteps).Count).Err()
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "tag expression on a step",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Given(`^x (\d+)$`, (*bindingSteps).Count, WithTag("@a or @b")).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "single tag",
		},
		{
			name: "hook with step parameters",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).Before((*bindingSteps).Count).Err()
			},
			wantErr: ErrInvalidBinding,
		},
		{
			name: "malformed hook tag expression",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).After((*bindingSteps).Check, WithTag("@a and")).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "tag expression",
		},
		{
			name: "dangling or in step hook tag expression",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).BeforeStep((*bindingSteps).Reset, WithTag("@a or")).Err()
			},
			wantErr: ErrInvalidBinding,
			message: "tag expression",
		},
		{
			name: "incompatible signature under one pattern",
			bind: func(r *Registry) error {
				return BindTo[bindingSteps](r, nil).
					Given(`^value (\w+)$`, (*bindingSteps).Named, WithTag("@a")).
					Given(`^value (\w+)$`, (*bindingSteps).Count, WithTag("@b")).
					Err()
			},
			wantErr: ErrIncompatibleSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()

			err := tt.bind(r)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
			assert.ErrorIs(t, r.Err(), tt.wantErr)
		})
	}
}

func TestBind_SameWireAcrossKindsIsAllowed(t *testing.T) {
	r := NewRegistry()

	c := BindTo[bindingSteps](r, nil).
		Given(`^value (\w+)$`, (*bindingSteps).Named).
		Then(`^value (\w+)$`, (*bindingSteps).Count)

	assert.NoError(t, c.Err(), "the signature check only compares bindings of one kind")
}

func TestBind_KindsOnOneLineAreKept(t *testing.T) {
	r := NewRegistry()

	c := BindTo[bindingSteps](r, nil).Given(`^x (\d+)$`, (*bindingSteps).Count).When(`^x (\d+)$`, (*bindingSteps).Count)
	require.NoError(t, c.Err())

	bindings := r.StepBindingsForTarget(c.Target())
	require.Len(t, bindings, 2)
	assert.Equal(t, bindings[0].Callsite, bindings[1].Callsite)
	assert.Equal(t, KindGiven, bindings[0].Kind)
	assert.Equal(t, KindWhen, bindings[1].Kind)
	assert.Len(t, r.StepBindings(`^x (\d+)$`, nil), 2)
}

func TestBind_DefaultRegistry(t *testing.T) {
	type defaultRegistered struct{}

	c := Bind[defaultRegistered](nil)

	require.NoError(t, c.Err())
	assert.Contains(t, DefaultRegistry().Targets(), c.Target())
}
