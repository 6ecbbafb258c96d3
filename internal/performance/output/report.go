package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wesleyorama2/surge/internal/performance/engine"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

// Report statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// Report is the machine-readable result of a run. Durations are strings
// in Go duration syntax.
type Report struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RunID       string `json:"runId"`
	Status      string `json:"status"`
	Passed      bool   `json:"passed"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Duration  string    `json:"duration"`

	Iterations          int64   `json:"iterations"`
	Errors              int64   `json:"errors"`
	Discarded           int64   `json:"discarded"`
	ErrorRate           float64 `json:"errorRate"`
	IterationsPerSecond float64 `json:"iterationsPerSecond"`

	Latency    LatencyReport            `json:"latency"`
	Entries    []EntryReport            `json:"entries"`
	Thresholds []engine.ThresholdResult `json:"thresholds,omitempty"`
}

// LatencyReport is metrics.LatencyStats with string durations.
type LatencyReport struct {
	Min    string `json:"min"`
	Max    string `json:"max"`
	Mean   string `json:"mean"`
	StdDev string `json:"stdDev"`
	P50    string `json:"p50"`
	P90    string `json:"p90"`
	P95    string `json:"p95"`
	P99    string `json:"p99"`
}

// EntryReport is one tag set of the report.
type EntryReport struct {
	Key          string            `json:"key"`
	Tags         map[string]string `json:"tags,omitempty"`
	Iterations   int64             `json:"iterations"`
	Errors       int64             `json:"errors"`
	ErrorRate    float64           `json:"errorRate"`
	Latency      LatencyReport     `json:"latency"`
	StatusCodes  map[int]int64     `json:"statusCodes,omitempty"`
	ErrorReasons map[string]int64  `json:"errorReasons,omitempty"`
}

// NewReport builds a report from an engine result.
func NewReport(result *engine.Result, aborted bool) *Report {
	s := result.Summary

	status := StatusPassed
	switch {
	case aborted:
		status = StatusAborted
	case !result.Passed:
		status = StatusFailed
	}

	r := &Report{
		Name:                result.Name,
		Description:         result.Description,
		RunID:               s.RunID,
		Status:              status,
		Passed:              result.Passed && !aborted,
		StartedAt:           s.StartedAt,
		EndedAt:             s.EndedAt,
		Duration:            s.Duration.String(),
		Iterations:          s.Count,
		Errors:              s.ErrorCount,
		Discarded:           s.Discarded,
		ErrorRate:           s.ErrorRate,
		IterationsPerSecond: s.IterationsPerSecond,
		Latency:             latencyReport(s.Latency),
		Entries:             make([]EntryReport, 0, len(s.Entries)),
		Thresholds:          result.Thresholds,
	}

	for _, e := range s.Entries {
		r.Entries = append(r.Entries, EntryReport{
			Key:          e.Key,
			Tags:         e.Tags,
			Iterations:   e.Count,
			Errors:       e.Errors,
			ErrorRate:    e.ErrorRate,
			Latency:      latencyReport(e.Latency),
			StatusCodes:  e.StatusCodes,
			ErrorReasons: e.ErrorReasons,
		})
	}
	return r
}

func latencyReport(l metrics.LatencyStats) LatencyReport {
	return LatencyReport{
		Min:    l.Min.String(),
		Max:    l.Max.String(),
		Mean:   l.Mean.String(),
		StdDev: l.StdDev.String(),
		P50:    l.P50.String(),
		P90:    l.P90.String(),
		P95:    l.P95.String(),
		P99:    l.P99.String(),
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes the report to path.
func WriteJSONFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
