package performance

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

// Observer receives every result that is folded into the summary.
// Implementations must be safe for concurrent use.
type Observer interface {
	Observe(metrics.IterationResult)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(metrics.IterationResult)

// Observe calls f(r).
func (f ObserverFunc) Observe(r metrics.IterationResult) { f(r) }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source for deadlines, pauses and latency.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used for lifecycle and timeout messages.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithObserver registers an additional result observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Scheduler launches and supervises the VUs of one run.
//
// It provides:
//   - Config validation before anything starts
//   - One goroutine per VU for the configured duration
//   - Graceful drain bounded by the grace period
//   - Exactly one finalized summary per run
//
// A Scheduler runs once.
type Scheduler struct {
	config    TestConfig
	iterate   IterationFunc
	clock     clockwork.Clock
	log       logrus.FieldLogger
	observers []Observer

	aggregator *metrics.Aggregator
	state      runStateMachine
	gate       resultGate
	ran        atomic.Bool

	vusMu sync.RWMutex
	vus   []*VirtualUser
}

// NewScheduler creates a scheduler for the given configuration and workload.
// The configuration is validated by Run. Tags are copied; later changes to
// the caller's map do not reach the run.
func NewScheduler(config TestConfig, fn IterationFunc, opts ...Option) *Scheduler {
	if config.Tags != nil {
		config.Tags = metrics.MergeTags(nil, config.Tags)
	}
	s := &Scheduler{
		config:  config,
		iterate: fn,
		clock:   clockwork.NewRealClock(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.aggregator = metrics.NewAggregator(s.clock)
	s.gate.sink = s.observe
	return s
}

// State returns the current run state.
func (s *Scheduler) State() RunState {
	return s.state.load()
}

// Snapshot returns the summary so far. It is incomplete until Run returns.
func (s *Scheduler) Snapshot() *metrics.Summary {
	return s.aggregator.Snapshot()
}

// ActiveVUs returns the number of VUs that have not stopped.
func (s *Scheduler) ActiveVUs() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// Run executes the test and blocks until it is Completed.
//
// Returns:
//   - a *ConfigError and no summary if the configuration is invalid
//   - the summary and ErrAborted if ctx was cancelled before the deadline
//   - an *metrics.AggregatorError if the summary could not be finalized
//   - the summary and nil otherwise, even when iterations failed
func (s *Scheduler) Run(ctx context.Context) (*metrics.Summary, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.iterate == nil {
		return nil, &ConfigError{Field: "iteration", Message: "iteration function is required"}
	}

	// Iterations keep running when ctx is cancelled; only the grace
	// period expiry cancels them.
	iterCtx, cancelIterations := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelIterations()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	s.aggregator.Start()
	s.transition(StateRunning)

	s.vusMu.Lock()
	for i := 1; i <= s.config.VUs; i++ {
		vu := NewVirtualUser(i, s.iterate, s.config.Pacing, s.config.Tags, s.clock)
		s.vus = append(s.vus, vu)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = vu.RunLoop(iterCtx, stop, func(r metrics.IterationResult) {
				s.gate.admit(vu, r)
			})
		}()
	}
	s.vusMu.Unlock()

	s.log.WithFields(logrus.Fields{
		"vus":      s.config.VUs,
		"duration": s.config.Duration,
	}).Info("virtual users started")

	allStopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(allStopped)
	}()

	deadline := s.clock.NewTimer(s.config.Duration)
	aborted := false
	select {
	case <-deadline.Chan():
	case <-ctx.Done():
		aborted = true
	case <-allStopped:
	}
	deadline.Stop()

	s.transition(StateDraining)
	close(stop)

	grace := s.clock.NewTimer(s.config.GracePeriod)
	select {
	case <-allStopped:
	case <-grace.Chan():
	}
	grace.Stop()

	// Results arriving after the seal are dropped; whoever is still
	// in flight now is cancelled and discarded.
	pending := s.gate.seal(s.snapshotVUs())
	if len(pending) > 0 {
		for _, vu := range pending {
			s.log.WithFields(logrus.Fields{
				"vu":    vu.ID,
				"grace": s.config.GracePeriod,
			}).Warn((&RunnerTimeoutError{
				VU:          vu.ID,
				Iteration:   vu.GetIteration(),
				GracePeriod: s.config.GracePeriod,
			}).Error())
		}
		s.aggregator.Discard(len(pending))
	}
	cancelIterations()

	s.transition(StateCompleted)

	summary, err := s.aggregator.Finalize()
	if err != nil {
		return nil, err
	}
	if aborted {
		return summary, ErrAborted
	}
	return summary, nil
}

func (s *Scheduler) transition(next RunState) {
	s.state.advance(next)
	s.log.WithField("state", next.String()).Debug("run state changed")
}

func (s *Scheduler) snapshotVUs() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	vus := make([]*VirtualUser, len(s.vus))
	copy(vus, s.vus)
	return vus
}

// observe forwards one admitted result to the aggregator and observers.
func (s *Scheduler) observe(r metrics.IterationResult) {
	s.aggregator.Observe(r)
	for _, o := range s.observers {
		o.Observe(r)
	}
}

// resultGate admits results until it is sealed.
type resultGate struct {
	mu     sync.RWMutex
	sealed bool
	sink   func(metrics.IterationResult)
}

// admit forwards r unless the gate is sealed. The VU's in-flight flag is
// cleared under the same lock so that seal sees a consistent view.
func (g *resultGate) admit(vu *VirtualUser, r metrics.IterationResult) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.sealed {
		return false
	}
	g.sink(r)
	vu.inFlight.Store(false)
	return true
}

// seal stops admitting results and returns the VUs whose in-flight
// iteration will never be admitted.
func (g *resultGate) seal(vus []*VirtualUser) []*VirtualUser {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sealed {
		return nil
	}
	g.sealed = true

	var pending []*VirtualUser
	for _, vu := range vus {
		if vu.InFlight() {
			pending = append(pending, vu)
		}
	}
	return pending
}
