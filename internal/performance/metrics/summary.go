package metrics

import "time"

// Summary is the aggregated view of a run.
type Summary struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Duration  time.Duration `json:"duration"`

	// Count is the number of observed iterations, ErrorCount the failed subset.
	Count      int64 `json:"count"`
	ErrorCount int64 `json:"errorCount"`

	// Discarded counts in-flight iterations cancelled after the grace period.
	// They are neither successes nor failures.
	Discarded int64 `json:"discarded"`

	ErrorRate           float64      `json:"errorRate"`
	IterationsPerSecond float64      `json:"iterationsPerSecond"`
	Latency             LatencyStats `json:"latency"`

	// Entries holds one element per distinct tag set, sorted by Key.
	Entries []Entry `json:"entries"`

	// Final is false for snapshots taken while the run is in progress.
	Final bool `json:"final"`
}

// Entry contains the statistics of one tag set.
type Entry struct {
	Key          string            `json:"key"`
	Tags         map[string]string `json:"tags,omitempty"`
	Count        int64             `json:"count"`
	Errors       int64             `json:"errors"`
	ErrorRate    float64           `json:"errorRate"`
	Latency      LatencyStats      `json:"latency"`
	StatusCodes  map[int]int64     `json:"statusCodes,omitempty"`
	ErrorReasons map[string]int64  `json:"errorReasons,omitempty"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Entry returns the entry for the given tag set key.
func (s *Summary) Entry(key string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}
