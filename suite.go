package stepflow

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// Suite runs godog over the bindings of an Installer using a SuiteConfig.
type Suite struct {
	installer *Installer
	config    *SuiteConfig
	testingT  *testing.T
	output    io.Writer
	features  []godog.Feature
	ctx       context.Context
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithInstaller runs the suite over installer instead of one built from the
// default registry.
func WithInstaller(installer *Installer) SuiteOption {
	return func(s *Suite) {
		s.installer = installer
	}
}

// WithSuiteConfig replaces the configuration.
func WithSuiteConfig(cfg *SuiteConfig) SuiteOption {
	return func(s *Suite) {
		s.config = cfg
	}
}

// WithTestingT runs every scenario as a subtest of t.
func WithTestingT(t *testing.T) SuiteOption {
	return func(s *Suite) {
		s.testingT = t
	}
}

// WithOutput sends formatter output to w.
func WithOutput(w io.Writer) SuiteOption {
	return func(s *Suite) {
		s.output = w
	}
}

// WithFeature adds an in-memory feature file. When any are given the
// configured paths are not read.
func WithFeature(name string, contents string) SuiteOption {
	return func(s *Suite) {
		s.features = append(s.features, godog.Feature{Name: name, Contents: []byte(contents)})
	}
}

// WithDefaultContext sets the context every scenario starts from.
func WithDefaultContext(ctx context.Context) SuiteOption {
	return func(s *Suite) {
		s.ctx = ctx
	}
}

// NewSuite creates a suite. Without WithSuiteConfig, the configuration is
// the zero SuiteConfig with defaults applied.
func NewSuite(opts ...SuiteOption) *Suite {
	s := &Suite{}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = &SuiteConfig{}
		_ = ApplyDefaults(s.config)
	}
	if s.installer == nil {
		s.installer = NewInstaller(nil,
			WithLogger(NewLoggerFromConfig(os.Stderr, s.config.Log)),
			WithWorldParameters(s.config.World),
		)
	}
	return s
}

// Installer returns the installer the suite runs.
func (s *Suite) Installer() *Installer {
	return s.installer
}

// Options returns the godog options derived from the configuration.
func (s *Suite) Options() godog.Options {
	opts := godog.Options{
		Format:         s.config.Format,
		Tags:           s.config.Tags,
		Concurrency:    s.config.Concurrency,
		Strict:         s.config.Strict,
		Randomize:      s.config.Randomize,
		StopOnFailure:  s.config.StopOnFailure,
		NoColors:       s.config.NoColors,
		Output:         s.output,
		TestingT:       s.testingT,
		DefaultContext: s.ctx,
	}
	if len(s.features) > 0 {
		opts.FeatureContents = s.features
	} else {
		opts.Paths = s.config.Paths
	}
	return opts
}

// Run validates the registered bindings and runs the suite. It returns
// godog's exit status. Registration faults stop the run before any scenario
// starts; faults in BeforeAll or AfterAll hooks are returned after it.
func (s *Suite) Run() (int, error) {
	if err := s.installer.Validate(); err != nil {
		return 1, registrationError(err)
	}

	opts := s.Options()
	status := godog.TestSuite{
		Name:                 s.config.Name,
		TestSuiteInitializer: s.installer.InitializeTestSuite,
		ScenarioInitializer:  s.installer.InitializeScenario,
		Options:              &opts,
	}.Run()

	if err := s.installer.SuiteErr(); err != nil {
		if status == 0 {
			status = 1
		}
		return status, err
	}
	return status, nil
}
