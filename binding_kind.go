package stepflow

// BindingKind identifies what a binding is registered as with the runner.
type BindingKind int

// Binding kinds. Given, When and Then are step definitions; the rest are hooks.
const (
	KindGiven BindingKind = iota + 1
	KindWhen
	KindThen
	KindBefore
	KindAfter
	KindBeforeAll
	KindAfterAll
	KindBeforeStep
	KindAfterStep
)

var bindingKindNames = map[BindingKind]string{
	KindGiven:      "given",
	KindWhen:       "when",
	KindThen:       "then",
	KindBefore:     "before",
	KindAfter:      "after",
	KindBeforeAll:  "beforeAll",
	KindAfterAll:   "afterAll",
	KindBeforeStep: "beforeStep",
	KindAfterStep:  "afterStep",
}

func (k BindingKind) String() string {
	if name, ok := bindingKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsStepDefinition reports whether k is Given, When or Then.
func (k BindingKind) IsStepDefinition() bool {
	return k == KindGiven || k == KindWhen || k == KindThen
}

// IsHook reports whether k is one of the hook kinds.
func (k BindingKind) IsHook() bool {
	return k >= KindBefore && k <= KindAfterStep
}

// IsSuiteHook reports whether k runs once per test run rather than per scenario.
func (k BindingKind) IsSuiteHook() bool {
	return k == KindBeforeAll || k == KindAfterAll
}

// IsStepHook reports whether k runs around every step.
func (k BindingKind) IsStepHook() bool {
	return k == KindBeforeStep || k == KindAfterStep
}
