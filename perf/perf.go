package perf

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/engine"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

type (
	// TestConfig is a load test configuration as read from a file.
	TestConfig = config.TestConfig

	// Duration is a configuration duration; integers in files mean seconds.
	Duration = config.Duration

	RequestConfig    = config.RequestConfig
	PacingConfig     = config.PacingConfig
	ThresholdsConfig = config.ThresholdsConfig

	// Result contains the summary and threshold outcomes of a run.
	Result = engine.Result

	// ThresholdResult contains the result of a single threshold evaluation.
	ThresholdResult = engine.ThresholdResult

	// Summary is the aggregated view of a run.
	Summary = metrics.Summary

	// Progress is a live view of a running test.
	Progress = engine.Progress

	// Outcome describes what an iteration did.
	Outcome = performance.Outcome

	// IterationFunc is the work performed by one iteration of a VU.
	IterationFunc = performance.IterationFunc

	// ConfigError is returned by NewRunner for an invalid configuration.
	ConfigError = performance.ConfigError
)

// ErrAborted is returned with a partial result when the run context was
// cancelled before the deadline.
var ErrAborted = performance.ErrAborted

// LoadConfig loads a test configuration from a YAML or JSON file.
func LoadConfig(path string) (*TestConfig, error) {
	return config.LoadConfig(path)
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	engine []engine.Option
}

// WithLogger sets the logger used by the run.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *runnerOptions) {
		o.engine = append(o.engine, engine.WithLogger(log))
	}
}

// WithIteration replaces the configured HTTP request with fn.
func WithIteration(fn IterationFunc) Option {
	return func(o *runnerOptions) {
		o.engine = append(o.engine, engine.WithIteration(fn))
	}
}

// Runner provides a high-level API for running one load test.
//
// For programmatic test execution, create a Runner and call Run:
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	runner, _ := perf.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and prepares a run. Defaults are applied to cfg.
func NewRunner(cfg *TestConfig, opts ...Option) (*Runner, error) {
	var o runnerOptions
	for _, opt := range opts {
		opt(&o)
	}

	eng, err := engine.New(cfg, o.engine...)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run executes the test. A Runner can be run once.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.engine.Run(ctx)
}

// Progress returns live statistics; it may be called while Run executes.
func (r *Runner) Progress() Progress {
	return r.engine.Live()
}

// RunTest runs cfg with the default HTTP workload.
func RunTest(ctx context.Context, cfg *TestConfig) (*Result, error) {
	runner, err := NewRunner(cfg)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}
