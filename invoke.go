package stepflow

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/cucumber/godog"
)

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	scenarioType     = reflect.TypeOf((*godog.Scenario)(nil))
	stepType         = reflect.TypeOf((*godog.Step)(nil))
	stepStatusType   = reflect.TypeOf(godog.StepResultStatus(0))
	scenarioInfoType = reflect.TypeOf((*ScenarioInfo)(nil))
	docStringType    = reflect.TypeOf((*godog.DocString)(nil))
	tableType        = reflect.TypeOf((*godog.Table)(nil))
	bytesType        = reflect.TypeOf([]byte(nil))
)

// Invocation runs one bound method with the receiver and arguments already resolved.
type Invocation func(ctx context.Context) (context.Context, error)

// methodSignature is the analysed shape of a bound method expression.
type methodSignature struct {
	fn         reflect.Value
	name       string
	byValue    bool
	takesCtx   bool
	params     []reflect.Type
	wire       []reflect.Type
	returnsCtx bool
	returnsErr bool
}

func (s *methodSignature) String() string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", s.name, strings.Join(names, ", "))
}

// analyzeMethod checks that method is a method expression of target (either
// (*T).M or T.M) and that its results are something the runner accepts.
func analyzeMethod(target reflect.Type, method any) (*methodSignature, error) {
	if method == nil {
		return nil, fmt.Errorf("%w: nil method for %s", ErrInvalidBinding, typeName(target))
	}
	fn := reflect.ValueOf(method)
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: expected a method expression of %s, got %T", ErrInvalidBinding, typeName(target), method)
	}

	sig := &methodSignature{fn: fn, name: funcName(fn)}

	if ft.NumIn() == 0 || (ft.In(0) != target && ft.In(0) != target.Elem()) {
		return nil, fmt.Errorf("%w: %s is not a method expression of %s", ErrInvalidBinding, sig.name, typeName(target))
	}
	sig.byValue = ft.In(0) == target.Elem()

	switch ft.NumOut() {
	case 0:
	case 1:
		switch ft.Out(0) {
		case errorType:
			sig.returnsErr = true
		case contextType:
			sig.returnsCtx = true
		default:
			return nil, fmt.Errorf("%w: %s must return error or context.Context, got %s", ErrInvalidBinding, sig.name, ft.Out(0))
		}
	case 2:
		if ft.Out(0) != contextType || ft.Out(1) != errorType {
			return nil, fmt.Errorf("%w: %s must return (context.Context, error), got (%s, %s)", ErrInvalidBinding, sig.name, ft.Out(0), ft.Out(1))
		}
		sig.returnsCtx, sig.returnsErr = true, true
	default:
		return nil, fmt.Errorf("%w: %s returns %d values", ErrInvalidBinding, sig.name, ft.NumOut())
	}

	for i := 1; i < ft.NumIn(); i++ {
		sig.params = append(sig.params, ft.In(i))
	}
	return sig, nil
}

// analyzeStep additionally requires every parameter after an optional leading
// context.Context to be convertible from a matched step argument.
func analyzeStep(target reflect.Type, method any) (*methodSignature, error) {
	sig, err := analyzeMethod(target, method)
	if err != nil {
		return nil, err
	}
	if sig.fn.Type().IsVariadic() {
		return nil, fmt.Errorf("%w: step method %s is variadic", ErrInvalidBinding, sig.name)
	}

	if len(sig.params) > 0 && sig.params[0] == contextType {
		sig.takesCtx = true
		sig.params = sig.params[1:]
	}
	for i, p := range sig.params {
		w, ok := wireType(p)
		if !ok {
			return nil, fmt.Errorf("%w: step method %s parameter %d has unsupported type %s", ErrInvalidBinding, sig.name, i, p)
		}
		sig.wire = append(sig.wire, w)
	}
	return sig, nil
}

// analyzeHook additionally requires every parameter to be a value the hook
// dispatcher can supply.
func analyzeHook(target reflect.Type, method any) (*methodSignature, error) {
	sig, err := analyzeMethod(target, method)
	if err != nil {
		return nil, err
	}
	for i, p := range sig.params {
		switch p {
		case contextType, scenarioType, stepType, errorType, stepStatusType, scenarioInfoType:
		default:
			return nil, fmt.Errorf("%w: hook method %s parameter %d has unsupported type %s", ErrInvalidBinding, sig.name, i, p)
		}
	}
	return sig, nil
}

// wireType maps a step parameter type to the type the runner converts matched
// text into. Named types are converted from their underlying kind.
func wireType(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.String:
		return reflect.TypeOf(""), true
	case reflect.Int:
		return reflect.TypeOf(int(0)), true
	case reflect.Int8:
		return reflect.TypeOf(int8(0)), true
	case reflect.Int16:
		return reflect.TypeOf(int16(0)), true
	case reflect.Int32:
		return reflect.TypeOf(int32(0)), true
	case reflect.Int64:
		return reflect.TypeOf(int64(0)), true
	case reflect.Uint:
		return reflect.TypeOf(uint(0)), true
	case reflect.Uint8:
		return reflect.TypeOf(uint8(0)), true
	case reflect.Uint16:
		return reflect.TypeOf(uint16(0)), true
	case reflect.Uint32:
		return reflect.TypeOf(uint32(0)), true
	case reflect.Uint64:
		return reflect.TypeOf(uint64(0)), true
	case reflect.Float32:
		return reflect.TypeOf(float32(0)), true
	case reflect.Float64:
		return reflect.TypeOf(float64(0)), true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesType, true
		}
	case reflect.Pointer:
		if t == docStringType || t == tableType {
			return t, true
		}
	}
	return nil, false
}

// sameWire reports whether two step signatures receive the same arguments.
func sameWire(a, b *methodSignature) bool {
	if len(a.wire) != len(b.wire) {
		return false
	}
	for i := range a.wire {
		if a.wire[i] != b.wire[i] {
			return false
		}
	}
	return true
}

// invoke calls the method on recv. args are positional values that are
// converted to the declared parameter types.
func (s *methodSignature) invoke(ctx context.Context, recv any, args []reflect.Value) (context.Context, error) {
	rv := reflect.ValueOf(recv)
	if s.byValue {
		rv = rv.Elem()
	}

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, rv)
	if s.takesCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, a := range args {
		if a.Type() != s.params[i] {
			a = a.Convert(s.params[i])
		}
		in = append(in, a)
	}

	out := s.fn.Call(in)

	var err error
	switch {
	case s.returnsCtx && s.returnsErr:
		if c, ok := out[0].Interface().(context.Context); ok && c != nil {
			ctx = c
		}
		err, _ = out[1].Interface().(error)
	case s.returnsCtx:
		if c, ok := out[0].Interface().(context.Context); ok && c != nil {
			ctx = c
		}
	case s.returnsErr:
		err, _ = out[0].Interface().(error)
	}
	return ctx, err
}

// hookArgs carries everything a hook method may ask for.
type hookArgs struct {
	scenario *godog.Scenario
	step     *godog.Step
	err      error
	status   godog.StepResultStatus
	info     *ScenarioInfo
}

// hookValues resolves hook parameters by type. The context parameter is
// handled by invokeHook so that a deadline can be applied to it.
func (s *methodSignature) hookValues(ctx context.Context, a hookArgs) []reflect.Value {
	values := make([]reflect.Value, len(s.params))
	for i, p := range s.params {
		var v any
		switch p {
		case contextType:
			v = ctx
		case scenarioType:
			v = a.scenario
		case stepType:
			v = a.step
		case errorType:
			v = a.err
		case stepStatusType:
			v = a.status
		case scenarioInfoType:
			v = a.info
		}
		if v == nil || (reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil()) {
			values[i] = reflect.Zero(p)
			continue
		}
		values[i] = reflect.ValueOf(v)
		if p.Kind() == reflect.Interface {
			iv := reflect.New(p).Elem()
			iv.Set(values[i])
			values[i] = iv
		}
	}
	return values
}

// funcName returns the bare method name of a method expression.
func funcName(fn reflect.Value) string {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return "<unknown>"
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
