package stepflow

import (
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func recovered(f func()) (r any) {
	defer func() { r = recover() }()
	f()
	return nil
}

func TestInstaller_InitializersRefuseRegistrationFaults(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, BindTo[cycleA](r, func(b *cycleB) *cycleA { return &cycleA{b: b} }).Err())
	require.Error(t, BindTo[cycleB](r, func(a *cycleA) *cycleB { return &cycleB{a: a} }).Err())

	initializers := map[string]func(*Installer){
		"scenario": func(i *Installer) { i.InitializeScenario(&godog.ScenarioContext{}) },
		"suite":    func(i *Installer) { i.InitializeTestSuite(&godog.TestSuiteContext{}) },
	}

	for name, initialize := range initializers {
		t.Run(name, func(t *testing.T) {
			logger := new(MockLogger)
			logger.On("Error", "Binding registration failed", mock.Anything).Return().Once()
			installer := NewInstaller(r, WithLogger(logger))

			p := recovered(func() { initialize(installer) })

			require.NotNil(t, p, "initialization must not continue")
			err, ok := p.(error)
			require.True(t, ok)
			assert.ErrorIs(t, err, ErrCyclicDependency)
			assert.Contains(t, err.Error(), "binding registration failed")
			logger.AssertExpectations(t)
		})
	}
}

func TestInstaller_ValidRegistryInitializes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, BindTo[bindingSteps](r, nil).Given(`^count (\d+)$`, (*bindingSteps).Count).Err())
	installer := NewInstaller(r, WithLogger(nopLogger{}))

	assert.NotPanics(t, func() {
		installer.InitializeTestSuite(&godog.TestSuiteContext{})
	})
	assert.NoError(t, installer.Validate())
}
