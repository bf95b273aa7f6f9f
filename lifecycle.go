package stepflow

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

type scenarioContextKey struct{}

// WithScenarioContext stores sc in ctx. The installer does this at the start
// of every scenario; step and hook dispatchers read it back.
func WithScenarioContext(ctx context.Context, sc *ScenarioContext) context.Context {
	return context.WithValue(ctx, scenarioContextKey{}, sc)
}

// ScenarioContextFrom returns the scenario context stored in ctx.
func ScenarioContextFrom(ctx context.Context) (*ScenarioContext, bool) {
	sc, ok := ctx.Value(scenarioContextKey{}).(*ScenarioContext)
	return sc, ok && sc != nil
}

func scenarioContextFrom(ctx context.Context) (*ScenarioContext, error) {
	sc, ok := ScenarioContextFrom(ctx)
	if !ok {
		return nil, ErrNoScenarioContext
	}
	return sc, nil
}

// beginScenario is the first Before hook the installer registers. It creates
// the scenario context and populates the provided context types.
func (i *Installer) beginScenario(ctx context.Context, pickle *godog.Scenario) (context.Context, error) {
	info := scenarioInfoFromPickle(pickle)
	sc := newScenarioContext(i.registry, info, i.logger, i.events)

	sc.provide(&WorldParameters{Value: i.world})
	sc.provide(&ScenarioLog{ctx: ctx, logger: i.logger, info: info})
	sc.provide(&Attachments{})

	i.logger.Debug("Scenario started", "scenario", info.Title, "tags", info.Tags, "id", sc.ID())
	i.events.emit(ctx, EventTypeScenarioStarted, map[string]any{
		"scenarioId": sc.ID(),
		"scenario":   info.Title,
		"tags":       info.Tags,
		"feature":    info.FeatureURI,
	})

	ctx = WithScenarioContext(ctx, sc)
	if i.objects != nil {
		if err := i.objects(ctx, sc); err != nil {
			i.logger.Warn("Scenario objects failed", "scenario", info.Title, "error", err)
			return ctx, fmt.Errorf("scenario %q: external objects: %w", info.Title, err)
		}
	}
	return ctx, nil
}

// endScenario is the last After hook the installer registers, so user After
// hooks still see live objects. Dispose faults are reported but do not fail
// the scenario.
func (i *Installer) endScenario(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
	sc, ok := ScenarioContextFrom(ctx)
	if !ok {
		return ctx, nil
	}

	if att, err := ContextValue[*Attachments](sc); err == nil {
		ctx = att.flush(ctx)
	}

	if err := sc.Dispose(ctx); err != nil {
		i.logger.Warn("Scenario disposed with errors", "scenario", sc.ScenarioInfo().Title, "error", err)
	}
	return ctx, nil
}

// beginSuite creates the context shared by BeforeAll and AfterAll hooks.
func (i *Installer) beginSuite() {
	i.suiteMu.Lock()
	defer i.suiteMu.Unlock()

	info := NewScenarioInfo(suiteScenarioTitle, nil, "", "")
	sc := newScenarioContext(i.registry, info, i.logger, i.events)
	sc.provide(&WorldParameters{Value: i.world})
	sc.provide(&ScenarioLog{ctx: context.Background(), logger: i.logger, info: info})

	i.suite = sc
	i.suiteErrs = nil
}

// endSuite disposes the suite context after the last AfterAll hook.
func (i *Installer) endSuite() {
	i.suiteMu.Lock()
	sc := i.suite
	i.suite = nil
	i.suiteMu.Unlock()

	if sc == nil {
		return
	}
	if err := sc.Dispose(context.Background()); err != nil {
		i.recordSuiteError(err)
	}
}

// runSuiteHook invokes a BeforeAll or AfterAll hook. godog suite hooks cannot
// fail, so faults are logged and kept for SuiteErr.
func (i *Installer) runSuiteHook(b *StepBinding) {
	i.suiteMu.Lock()
	sc := i.suite
	i.suiteMu.Unlock()

	if sc == nil {
		i.recordSuiteError(fmt.Errorf("%s hook %s ran outside the suite: %w", b.Kind, b.Method, ErrNoScenarioContext))
		return
	}

	ctx := WithScenarioContext(context.Background(), sc)
	if _, err := i.invokeHook(ctx, sc, b, hookArgs{info: sc.ScenarioInfo()}); err != nil {
		i.recordSuiteError(fmt.Errorf("%s hook %s.%s: %w", b.Kind, typeName(b.Target), b.Method, err))
	}
}

func (i *Installer) recordSuiteError(err error) {
	i.logger.Error("Suite hook failed", "error", err)

	i.suiteMu.Lock()
	defer i.suiteMu.Unlock()
	i.suiteErrs = append(i.suiteErrs, err)
}

const suiteScenarioTitle = "suite"
