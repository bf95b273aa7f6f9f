package stepflow

import (
	"fmt"
	"reflect"
	"regexp"
	"time"

	tagexpressions "github.com/cucumber/tag-expressions/go/v6"
)

// StepPattern is the expression a step binding is registered under: either
// a regular expression source string or a compiled *regexp.Regexp. Matching
// itself is left to the runner.
type StepPattern struct {
	expr any
}

// NewStepPattern validates expr and wraps it.
func NewStepPattern(expr any) (StepPattern, error) {
	switch e := expr.(type) {
	case nil:
		return StepPattern{}, nil
	case string:
		if e == "" {
			return StepPattern{}, nil
		}
		if _, err := regexp.Compile(e); err != nil {
			return StepPattern{}, fmt.Errorf("%w: step pattern %q: %w", ErrInvalidBinding, e, err)
		}
		return StepPattern{expr: e}, nil
	case *regexp.Regexp:
		if e == nil {
			return StepPattern{}, nil
		}
		return StepPattern{expr: e}, nil
	default:
		return StepPattern{}, fmt.Errorf("%w: step pattern must be a string or *regexp.Regexp, got %T", ErrInvalidBinding, expr)
	}
}

// IsZero reports whether no pattern was given, as is the case for hooks.
func (p StepPattern) IsZero() bool {
	return p.expr == nil
}

// Expr returns the value to hand to the runner's registration function.
func (p StepPattern) Expr() any {
	return p.expr
}

// String returns the index key of the pattern.
func (p StepPattern) String() string {
	switch e := p.expr.(type) {
	case string:
		return e
	case *regexp.Regexp:
		return e.String()
	default:
		return MatchAllPattern
	}
}

// StepBinding describes one bound method. It is created at registration time
// and never changes afterwards.
type StepBinding struct {
	Pattern        StepPattern
	Kind           BindingKind
	Target         reflect.Type
	Method         string
	Func           reflect.Value
	ArgsLength     int
	Tag            string
	Timeout        time.Duration
	WrapperOptions any
	Callsite       Callsite

	sig     *methodSignature
	tagExpr tagexpressions.Evaluatable
}

func (b *StepBinding) String() string {
	return fmt.Sprintf("%s %s.%s [%s] (%s)", b.Kind, typeName(b.Target), b.Method, b.Pattern, b.Callsite)
}

// sameBinding is the registry's deduplication identity: callsite, pattern
// and kind. Hooks all share the match-all pattern, so they are also told
// apart by method.
func sameBinding(a, b *StepBinding) bool {
	if a.Callsite != b.Callsite || a.Pattern.String() != b.Pattern.String() || a.Kind != b.Kind {
		return false
	}
	if a.Kind.IsHook() {
		return a.Method == b.Method
	}
	return true
}

// BindingOption configures a single step or hook registration.
type BindingOption func(*bindingOptions)

type bindingOptions struct {
	tag            string
	timeout        time.Duration
	wrapperOptions any
}

// WithTag scopes the binding to scenarios carrying tag. A bare tag is
// normalized to its "@" form. Hook tags may be full tag expressions such as
// "@smoke and not @slow".
func WithTag(tag string) BindingOption {
	return func(o *bindingOptions) {
		o.tag = NormalizeTag(tag)
	}
}

// WithTimeout attaches a deadline to the context handed to the bound method.
func WithTimeout(d time.Duration) BindingOption {
	return func(o *bindingOptions) {
		o.timeout = d
	}
}

// WithWrapperOptions passes an opaque value to the installer's definition wrapper.
func WithWrapperOptions(v any) BindingOption {
	return func(o *bindingOptions) {
		o.wrapperOptions = v
	}
}
