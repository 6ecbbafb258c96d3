package perf_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/perf"
)

func TestRunTest_FromFile(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "test.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "library",
		"duration": "300ms",
		"vus": 2,
		"gracePeriod": "1s",
		"request": {
			"url": "`+server.URL+`",
			"checks": [{"path": "$.status", "equals": "ok"}]
		},
		"thresholds": {"iteration_failed": ["rate == 0"]}
	}`), 0o644))

	cfg, err := perf.LoadConfig(path)
	require.NoError(t, err)

	result, err := perf.RunTest(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "library", result.Name)
	assert.True(t, result.Passed)
	require.Len(t, result.Thresholds, 1)
	assert.Equal(t, hits.Load(), result.Summary.Count)
	assert.Zero(t, result.Summary.ErrorCount)
}

func TestRunner_CustomIteration(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	cfg := &perf.TestConfig{
		Duration: perf.Duration(250 * time.Millisecond),
		VUs:      3,
		Tags:     map[string]string{"suite": "lib"},
		Request:  perf.RequestConfig{URL: "http://localhost:8080"},
	}

	var calls atomic.Int64
	runner, err := perf.NewRunner(cfg,
		perf.WithLogger(log),
		perf.WithIteration(func(ctx context.Context) (perf.Outcome, error) {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return perf.Outcome{Target: "work"}, nil
		}),
	)
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls.Load(), result.Summary.Count)
	_, ok := result.Summary.Entry("suite=lib")
	assert.True(t, ok)
	assert.Zero(t, runner.Progress().ActiveVUs)

	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, "warning", e.Level.String(), e.Message)
	}
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	_, err := perf.NewRunner(&perf.TestConfig{VUs: 1})
	require.Error(t, err)

	var cfgErr *perf.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "duration", cfgErr.Field)
}
