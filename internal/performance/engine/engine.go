// Package engine turns a test configuration into a scheduled run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
	"github.com/wesleyorama2/surge/internal/performance/workload"
)

// Engine is the orchestrator of one load test.
//
// It coordinates:
//   - Conversion of the file configuration into a run configuration
//   - The HTTP workload executed by every VU
//   - The Scheduler that owns the run
//   - Threshold evaluation on the final summary
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	eng, _ := engine.New(cfg)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config    *config.TestConfig
	runConfig performance.TestConfig

	log       logrus.FieldLogger
	clock     clockwork.Clock
	observers []performance.Observer

	iterate   performance.IterationFunc
	workload  *workload.HTTPGet
	scheduler *performance.Scheduler

	mu        sync.RWMutex
	startTime time.Time
}

// Result contains the complete test results.
type Result struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Summary *metrics.Summary `json:"summary"`

	// Threshold evaluation; Passed is true when no threshold failed
	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// Progress is a live view of a running test.
type Progress struct {
	State      performance.RunState
	Elapsed    time.Duration
	Duration   time.Duration
	ActiveVUs  int
	Iterations int64
	Errors     int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger passed to the scheduler.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock sets the time source of the run.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithObserver registers an observer that sees every admitted result.
func WithObserver(o performance.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithIteration replaces the HTTP workload with fn. The request must
// still be valid.
func WithIteration(fn performance.IterationFunc) Option {
	return func(e *Engine) {
		e.iterate = fn
	}
}

// New creates an engine for cfg. Defaults are applied to cfg and it is
// validated; the returned error is a *performance.ConfigError on failure,
// which also unwraps to the *config.ValidationErrors it was built from.
func New(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		config: cfg,
		log:    logrus.StandardLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, configError(err)
	}
	e.runConfig = RunConfig(cfg)

	if e.iterate == nil {
		w, err := workload.NewHTTPGet(RequestSpec(cfg), ClientConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
		e.workload = w
		e.iterate = w.Iterate
	}

	schedOpts := []performance.Option{
		performance.WithClock(e.clock),
		performance.WithLogger(e.log),
	}
	for _, o := range e.observers {
		schedOpts = append(schedOpts, performance.WithObserver(o))
	}
	e.scheduler = performance.NewScheduler(e.runConfig, e.iterate, schedOpts...)

	return e, nil
}

// runFields are the fields the scheduler itself validates.
var runFields = map[string]bool{"vus": true, "duration": true, "gracePeriod": true}

// configError reports err as a *performance.ConfigError, naming the first
// run-level field when there is one.
func configError(err error) *performance.ConfigError {
	var verrs *config.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs.Errors) == 0 {
		return &performance.ConfigError{Message: err.Error(), Err: err}
	}

	first := verrs.Errors[0]
	for _, ve := range verrs.Errors {
		if runFields[ve.Field] {
			first = ve
			break
		}
	}
	return &performance.ConfigError{Field: first.Field, Message: first.Message, Err: err}
}

// Run executes the test and evaluates thresholds.
//
// A nil Result is returned only when no summary exists. When the run was
// aborted the Result is returned together with performance.ErrAborted.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	e.startTime = e.clock.Now()
	e.mu.Unlock()

	if e.workload != nil {
		defer e.workload.Close()
	}

	e.log.WithFields(logrus.Fields{
		"name":     e.config.Name,
		"vus":      e.runConfig.VUs,
		"duration": e.runConfig.Duration,
		"grace":    e.runConfig.GracePeriod,
	}).Debug("starting test")

	summary, err := e.scheduler.Run(ctx)
	if summary == nil {
		return nil, err
	}

	thresholds := evaluateThresholds(e.config.Thresholds, summary)
	result := &Result{
		Name:        e.config.Name,
		Description: e.config.Description,
		Summary:     summary,
		Passed:      true,
		Thresholds:  thresholds,
	}
	for _, tr := range thresholds {
		if !tr.Passed {
			result.Passed = false
			break
		}
	}

	return result, err
}

// Config returns the test configuration after defaults were applied.
func (e *Engine) Config() *config.TestConfig {
	return e.config
}

// RunConfiguration returns the configuration handed to the scheduler.
func (e *Engine) RunConfiguration() performance.TestConfig {
	return e.runConfig
}

// Live returns the current progress of the run.
func (e *Engine) Live() Progress {
	snap := e.scheduler.Snapshot()
	p := Progress{
		State:      e.scheduler.State(),
		Duration:   e.runConfig.Duration,
		ActiveVUs:  e.scheduler.ActiveVUs(),
		Iterations: snap.Count,
		Errors:     snap.ErrorCount,
	}

	e.mu.RLock()
	if !e.startTime.IsZero() {
		p.Elapsed = e.clock.Since(e.startTime)
	}
	e.mu.RUnlock()
	return p
}

// RunConfig converts the file configuration into a run configuration.
func RunConfig(cfg *config.TestConfig) performance.TestConfig {
	rc := performance.TestConfig{
		Duration:    time.Duration(cfg.Duration),
		VUs:         cfg.VUs,
		Tags:        cfg.Tags,
		GracePeriod: performance.DefaultGracePeriod,
	}
	if cfg.GracePeriod != nil {
		rc.GracePeriod = time.Duration(*cfg.GracePeriod)
	}

	if p := cfg.Pacing; p != nil {
		rc.Pacing = performance.Pacing{
			Type:     performance.PacingType(p.Type),
			Duration: time.Duration(p.Duration),
			Min:      time.Duration(p.Min),
			Max:      time.Duration(p.Max),
		}
	}
	return rc
}

// RequestSpec converts the request configuration into a workload spec.
func RequestSpec(cfg *config.TestConfig) workload.RequestSpec {
	req := cfg.Request
	spec := workload.RequestSpec{
		Name:         req.Name,
		Method:       req.Method,
		URL:          req.URL,
		Headers:      req.Headers,
		Timeout:      time.Duration(req.Timeout),
		ExpectStatus: req.ExpectStatus,
		ThinkTime:    time.Duration(req.ThinkTime),
	}
	for _, c := range req.Checks {
		spec.Checks = append(spec.Checks, workload.Check{Path: c.Path, Equals: c.Equals, Exists: c.Exists})
	}
	return spec
}

// ClientConfig derives the HTTP client configuration from settings.
func ClientConfig(cfg *config.TestConfig) workload.ClientConfig {
	cc := workload.DefaultClientConfig()
	cc.Timeout = cfg.Settings.Timeout.GetDuration(cc.Timeout)
	if cfg.Settings.MaxIdleConnsPerHost > 0 {
		cc.MaxIdleConnsPerHost = cfg.Settings.MaxIdleConnsPerHost
	}
	cc.MaxConnsPerHost = cfg.Settings.MaxConnectionsPerHost
	cc.InsecureSkipVerify = cfg.Settings.InsecureSkipVerify
	if cfg.Settings.UserAgent != "" {
		cc.UserAgent = cfg.Settings.UserAgent
	}
	cc.Headers = cfg.Settings.Headers

	// One idle connection per VU keeps the pool warm
	if cfg.VUs > cc.MaxIdleConnsPerHost {
		cc.MaxIdleConnsPerHost = cfg.VUs
	}
	if cc.MaxIdleConns < cc.MaxIdleConnsPerHost {
		cc.MaxIdleConns = cc.MaxIdleConnsPerHost
	}
	return cc
}
