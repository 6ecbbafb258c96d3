package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

// Threshold metric names.
const (
	MetricIterationDuration = "iteration_duration"
	MetricIterationFailed   = "iteration_failed"
	MetricIterations        = "iterations"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

var thresholdExpr = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// thresholdMetric describes how expressions on one metric read the summary.
type thresholdMetric struct {
	name   string
	stats  map[string]func(*metrics.Summary) float64
	parse  func(string) (float64, error)
	format func(float64) string
	label  func(stat string) string
}

func latencyStat(pick func(metrics.LatencyStats) time.Duration) func(*metrics.Summary) float64 {
	return func(s *metrics.Summary) float64 { return float64(pick(s.Latency)) }
}

func parseDurationValue(v string) (float64, error) {
	d, err := time.ParseDuration(v)
	return float64(d), err
}

func parseFloatValue(v string) (float64, error) {
	return strconv.ParseFloat(v, 64)
}

func statLabel(stat string) string { return stat }

var (
	iterationDurationMetric = thresholdMetric{
		name: MetricIterationDuration,
		stats: map[string]func(*metrics.Summary) float64{
			"min": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.Min }),
			"max": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.Max }),
			"avg": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.Mean }),
			"med": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.P50 }),
			"p50": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.P50 }),
			"p90": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.P90 }),
			"p95": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.P95 }),
			"p99": latencyStat(func(l metrics.LatencyStats) time.Duration { return l.P99 }),
		},
		parse:  parseDurationValue,
		format: func(v float64) string { return time.Duration(v).String() },
		label:  statLabel,
	}

	iterationFailedMetric = thresholdMetric{
		name: MetricIterationFailed,
		stats: map[string]func(*metrics.Summary) float64{
			"rate": func(s *metrics.Summary) float64 { return s.ErrorRate },
		},
		parse:  parseFloatValue,
		format: func(v float64) string { return fmt.Sprintf("%.4f", v) },
		label:  func(string) string { return "error rate" },
	}

	iterationsMetric = thresholdMetric{
		name: MetricIterations,
		stats: map[string]func(*metrics.Summary) float64{
			"count": func(s *metrics.Summary) float64 { return float64(s.Count) },
			"rate":  func(s *metrics.Summary) float64 { return s.IterationsPerSecond },
		},
		parse:  parseFloatValue,
		format: func(v float64) string { return fmt.Sprintf("%.2f", v) },
		label:  statLabel,
	}
)

// evaluateThresholds checks every configured threshold against the summary.
func evaluateThresholds(t *config.ThresholdsConfig, summary *metrics.Summary) []ThresholdResult {
	if t.Empty() {
		return nil
	}

	var results []ThresholdResult
	for _, group := range []struct {
		metric thresholdMetric
		exprs  []string
	}{
		{iterationDurationMetric, t.IterationDuration},
		{iterationFailedMetric, t.IterationFailed},
		{iterationsMetric, t.Iterations},
	} {
		for _, expr := range group.exprs {
			results = append(results, group.metric.evaluate(expr, summary))
		}
	}
	return results
}

// evaluate checks one expression such as "p95 < 500ms" or "rate < 0.01".
func (m thresholdMetric) evaluate(expr string, summary *metrics.Summary) ThresholdResult {
	result := ThresholdResult{
		Metric:     m.name,
		Expression: expr,
	}

	stat, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	actual, ok := m.stats[stat]
	if !ok {
		result.Message = fmt.Sprintf("unknown metric %s for %s, supported: %s", stat, m.name, strings.Join(m.statNames(), ", "))
		return result
	}

	thresholdValue, err := m.parse(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	actualValue := actual(summary)
	result.Value = m.format(actualValue)
	result.Passed = compareValues(actualValue, op, thresholdValue)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", m.label(stat), result.Value, op, m.format(thresholdValue))
	}
	return result
}

func (m thresholdMetric) statNames() []string {
	names := make([]string, 0, len(m.stats))
	for name := range m.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseThresholdExpression parses an expression like "p95 < 500ms".
func parseThresholdExpression(expr string) (metric, op, value string, err error) {
	matches := thresholdExpr.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}
	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
