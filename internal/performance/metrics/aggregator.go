package metrics

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrAlreadyFinalized is returned when Finalize is called more than once.
var ErrAlreadyFinalized = errors.New("summary already finalized")

// AggregatorError reports a violation of the aggregator's usage contract.
// It is never caused by workload behaviour and callers treat it as fatal.
type AggregatorError struct {
	Op  string
	Err error
}

func (e *AggregatorError) Error() string {
	return "aggregator " + e.Op + ": " + e.Err.Error()
}

func (e *AggregatorError) Unwrap() error {
	return e.Err
}

// AggregatorConfig contains configuration for the aggregator.
type AggregatorConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultAggregatorConfig returns the default configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// Aggregator folds iteration results into per-tag-set statistics.
//
// # Thread Safety
//
// Observe is safe for concurrent use by every VU. The critical section only
// touches in-memory counters and histograms; no I/O happens under the lock.
type Aggregator struct {
	config AggregatorConfig
	clock  clockwork.Clock
	runID  string

	mu        sync.Mutex
	total     *series
	series    map[string]*series
	startedAt time.Time
	finalized bool

	discarded atomic.Int64
}

// series is the running state of one tag set.
type series struct {
	tags         map[string]string
	hist         *hdrhistogram.Histogram
	count        int64
	errors       int64
	statusCodes  map[int]int64
	errorReasons map[string]int64
}

// NewAggregator creates an aggregator with the default configuration.
func NewAggregator(clock clockwork.Clock) *Aggregator {
	return NewAggregatorWithConfig(clock, DefaultAggregatorConfig())
}

// NewAggregatorWithConfig creates an aggregator with custom configuration.
func NewAggregatorWithConfig(clock clockwork.Clock, config AggregatorConfig) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	a := &Aggregator{
		config: config,
		clock:  clock,
		runID:  uuid.NewString(),
		series: make(map[string]*series),
	}
	a.total = a.newSeries(nil)
	a.startedAt = clock.Now()
	return a
}

// RunID returns the identifier stamped on the summary.
func (a *Aggregator) RunID() string {
	return a.runID
}

// Start marks the beginning of the measured run.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedAt = a.clock.Now()
}

func (a *Aggregator) newSeries(tags map[string]string) *series {
	return &series{
		tags:         tags,
		hist:         hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
		statusCodes:  make(map[int]int64),
		errorReasons: make(map[string]int64),
	}
}

// Observe folds a single result into the total and into its tag set.
// Each result must be observed exactly once.
func (a *Aggregator) Observe(r IterationResult) {
	// Convert to microseconds for HDR histogram and clamp to valid range
	latencyMicros := r.Latency.Microseconds()
	if latencyMicros < a.config.HistogramMin {
		latencyMicros = a.config.HistogramMin
	}
	if latencyMicros > a.config.HistogramMax {
		latencyMicros = a.config.HistogramMax
	}
	failed := r.Failed()
	reason := FailureReason(r.Err)
	key := TagKey(r.Tags)

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[key]
	if !ok {
		s = a.newSeries(MergeTags(nil, r.Tags))
		a.series[key] = s
	}

	a.total.record(latencyMicros, r.Status, failed, reason)
	s.record(latencyMicros, r.Status, failed, reason)
}

// NOTE: HDR histogram RecordValue is NOT thread-safe, callers hold a.mu.
func (s *series) record(latencyMicros int64, status int, failed bool, reason string) {
	_ = s.hist.RecordValue(latencyMicros)
	s.count++
	if status > 0 {
		s.statusCodes[status]++
	}
	if failed {
		if reason == "" {
			reason = UnclassifiedReason
		}
		s.errors++
		s.errorReasons[reason]++
	}
}

// Discard records n in-flight iterations that were cancelled and never observed.
func (a *Aggregator) Discard(n int) {
	if n > 0 {
		a.discarded.Add(int64(n))
	}
}

// Snapshot returns the summary so far without finalizing.
// While VUs are still running the result is incomplete but consistent.
func (a *Aggregator) Snapshot() *Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buildLocked(a.clock.Now())
}

// Finalize builds the final summary. It may be called only once.
func (a *Aggregator) Finalize() (*Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return nil, &AggregatorError{Op: "finalize", Err: ErrAlreadyFinalized}
	}
	a.finalized = true

	summary := a.buildLocked(a.clock.Now())
	summary.Final = true
	return summary, nil
}

func (a *Aggregator) buildLocked(now time.Time) *Summary {
	elapsed := now.Sub(a.startedAt)

	summary := &Summary{
		RunID:      a.runID,
		StartedAt:  a.startedAt,
		EndedAt:    now,
		Duration:   elapsed,
		Count:      a.total.count,
		ErrorCount: a.total.errors,
		Discarded:  a.discarded.Load(),
		Latency:    a.total.latencyStats(),
	}

	if summary.Count > 0 {
		summary.ErrorRate = float64(summary.ErrorCount) / float64(summary.Count)
		if elapsed > 0 {
			summary.IterationsPerSecond = float64(summary.Count) / elapsed.Seconds()
		}
	}

	summary.Entries = make([]Entry, 0, len(a.series))
	for key, s := range a.series {
		summary.Entries = append(summary.Entries, s.entry(key))
	}
	sort.Slice(summary.Entries, func(i, j int) bool {
		return summary.Entries[i].Key < summary.Entries[j].Key
	})

	return summary
}

func (s *series) entry(key string) Entry {
	e := Entry{
		Key:          key,
		Tags:         MergeTags(nil, s.tags),
		Count:        s.count,
		Errors:       s.errors,
		Latency:      s.latencyStats(),
		StatusCodes:  make(map[int]int64, len(s.statusCodes)),
		ErrorReasons: make(map[string]int64, len(s.errorReasons)),
	}
	if s.count > 0 {
		e.ErrorRate = float64(s.errors) / float64(s.count)
	}
	for code, n := range s.statusCodes {
		e.StatusCodes[code] = n
	}
	for reason, n := range s.errorReasons {
		e.ErrorReasons[reason] = n
	}
	return e
}

func (s *series) latencyStats() LatencyStats {
	if s.hist.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(s.hist.Min()) * time.Microsecond,
		Max:    time.Duration(s.hist.Max()) * time.Microsecond,
		Mean:   time.Duration(s.hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(s.hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(s.hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(s.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  s.hist.TotalCount(),
	}
}
