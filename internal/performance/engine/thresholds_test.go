package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

func sampleSummary() *metrics.Summary {
	return &metrics.Summary{
		Count:               2000,
		ErrorCount:          10,
		ErrorRate:           0.005,
		IterationsPerSecond: 66.5,
		Latency: metrics.LatencyStats{
			Min:  5 * time.Millisecond,
			Max:  900 * time.Millisecond,
			Mean: 120 * time.Millisecond,
			P50:  100 * time.Millisecond,
			P90:  300 * time.Millisecond,
			P95:  450 * time.Millisecond,
			P99:  800 * time.Millisecond,
		},
	}
}

func TestParseThresholdExpression(t *testing.T) {
	tests := []struct {
		expr   string
		metric string
		op     string
		value  string
		err    bool
	}{
		{"p95 < 500ms", "p95", "<", "500ms", false},
		{"rate<0.01", "rate", "<", "0.01", false},
		{"  count >= 1000 ", "count", ">=", "1000", false},
		{"avg != 1s", "avg", "!=", "1s", false},
		{"p95", "", "", "", true},
		{"< 500ms", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			metric, op, value, err := parseThresholdExpression(tt.expr)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.metric, metric)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestCompareValues(t *testing.T) {
	assert.True(t, compareValues(1, "<", 2))
	assert.True(t, compareValues(2, "<=", 2))
	assert.True(t, compareValues(3, ">", 2))
	assert.True(t, compareValues(2, ">=", 2))
	assert.True(t, compareValues(2, "==", 2))
	assert.True(t, compareValues(2, "=", 2))
	assert.True(t, compareValues(1, "!=", 2))
	assert.False(t, compareValues(1, "=>", 2))
}

func TestIterationDurationThreshold(t *testing.T) {
	summary := sampleSummary()

	tests := []struct {
		expr   string
		passed bool
		msg    string
	}{
		{"p95 < 500ms", true, ""},
		{"p99 < 500ms", false, "p99 is 800ms, threshold: < 500ms"},
		{"avg <= 120ms", true, ""},
		{"med < 50ms", false, "med is 100ms"},
		{"max < 1s", true, ""},
		{"min > 1ms", true, ""},
		{"p90 < 250ms", false, "p90 is 300ms"},
		{"p42 < 1s", false, "unknown metric p42 for iteration_duration"},
		{"p95 < fast", false, "failed to parse threshold value"},
		{"p95", false, "failed to parse expression"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r := iterationDurationMetric.evaluate(tt.expr, summary)
			assert.Equal(t, MetricIterationDuration, r.Metric)
			assert.Equal(t, tt.expr, r.Expression)
			assert.Equal(t, tt.passed, r.Passed)
			if tt.msg == "" {
				assert.Empty(t, r.Message)
			} else {
				assert.Contains(t, r.Message, tt.msg)
			}
		})
	}
}

func TestIterationFailedThreshold(t *testing.T) {
	summary := sampleSummary()

	r := iterationFailedMetric.evaluate("rate < 0.01", summary)
	assert.True(t, r.Passed)
	assert.Equal(t, "0.0050", r.Value)

	r = iterationFailedMetric.evaluate("rate < 0.001", summary)
	assert.False(t, r.Passed)
	assert.Equal(t, "error rate is 0.0050, threshold: < 0.0010", r.Message)

	r = iterationFailedMetric.evaluate("count < 5", summary)
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "unknown metric count for iteration_failed, supported: rate")
}

func TestIterationsThreshold(t *testing.T) {
	summary := sampleSummary()

	r := iterationsMetric.evaluate("count > 1000", summary)
	assert.True(t, r.Passed)
	assert.Equal(t, "2000.00", r.Value)

	r = iterationsMetric.evaluate("rate > 100", summary)
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "rate is 66.50")

	r = iterationsMetric.evaluate("p95 > 1", summary)
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "supported: count, rate")
}

func TestEvaluateThresholds(t *testing.T) {
	assert.Nil(t, evaluateThresholds(nil, sampleSummary()))
	assert.Nil(t, evaluateThresholds(&config.ThresholdsConfig{}, sampleSummary()))

	results := evaluateThresholds(&config.ThresholdsConfig{
		IterationDuration: []string{"p95 < 500ms", "p99 < 500ms"},
		IterationFailed:   []string{"rate < 0.01"},
		Iterations:        []string{"count > 10"},
	}, sampleSummary())

	require.Len(t, results, 4)
	assert.Equal(t, MetricIterationDuration, results[0].Metric)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
	assert.Equal(t, MetricIterationFailed, results[2].Metric)
	assert.Equal(t, MetricIterations, results[3].Metric)
}
