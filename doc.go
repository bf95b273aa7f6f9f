// Package stepflow binds methods of Go structs to godog step definitions and
// hooks, and manages the struct instances each scenario uses.
//
// A binding class is registered once, at package initialization:
//
//	type Steps struct {
//		world *World
//		seen  int
//	}
//
//	func NewSteps(w *World) *Steps { return &Steps{world: w} }
//
//	var _ = stepflow.Bind[Steps](NewSteps).
//		Given(`^an input (\d+)$`, (*Steps).AnInput).
//		Before((*Steps).Reset, stepflow.WithTag("@basic")).
//		After((*Steps).Check, stepflow.WithTag("@basic"))
//
// The constructor's parameters are the class's dependencies. Within a
// scenario every class, and every dependency, is constructed at most once and
// shared by all steps that need it; at the end of the scenario instances are
// disposed in reverse order of construction.
//
// Several bindings may share a pattern when they are scoped to different tags
// with WithTag. For each step the binding whose tag the scenario carries is
// chosen; untagged bindings apply when no tagged one does. More than one
// visible binding is reported as an ambiguous step.
//
// An Installer wires a Registry into godog:
//
//	installer := stepflow.NewInstaller(nil)
//	godog.TestSuite{
//		TestSuiteInitializer: installer.InitializeTestSuite,
//		ScenarioInitializer:  installer.InitializeScenario,
//		Options:              &godog.Options{Paths: []string{"features"}},
//	}.Run()
//
// Both initializers panic with the registration faults, if any, before the
// first scenario starts. Suite.Run checks them first and returns them as an
// error instead.
//
// Suite does the same from a SuiteConfig loaded from stepflow.yaml,
// stepflow.toml or STEPFLOW_* environment variables.
package stepflow
