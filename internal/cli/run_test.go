package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/engine"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, ctx context.Context, args ...string) cliResult {
	t.Helper()

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetContext(ctx)

	code := execute(root, args)
	return cliResult{code: code, stdout: out.String(), stderr: errOut.String()}
}

func okServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, context.Background(), "version")
	assert.Equal(t, ExitOK, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "surge "+version), res.stdout)
}

func TestRootShowsHelp(t *testing.T) {
	res := runCLI(t, context.Background())
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "run")
	assert.Contains(t, res.stdout, "version")
}

func TestRun_RequiresTarget(t *testing.T) {
	res := runCLI(t, context.Background(), "run", "--vus", "1", "--duration", "1s")
	assert.Equal(t, ExitError, res.code)
	assert.Contains(t, res.stderr, "either --config or --url is required")
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero vus", []string{"--url", "http://localhost:1", "--vus", "0", "--duration", "1s"}, "vus"},
		{"no duration", []string{"--url", "http://localhost:1", "--vus", "1"}, "duration"},
		{"bad duration", []string{"--url", "http://localhost:1", "--vus", "1", "--duration", "soon"}, "duration"},
		{"bad tag", []string{"--url", "http://localhost:1", "--vus", "1", "--duration", "1s", "--tag", "novalue"}, "tag"},
		{"missing file", []string{"--config", "does-not-exist.yaml"}, "failed to read config file"},
		{"bad log level", []string{"--url", "http://localhost:1", "--vus", "1", "--duration", "1s", "--log-level", "loud"}, "invalid log level"},
		{"bad log format", []string{"--url", "http://localhost:1", "--vus", "1", "--duration", "1s", "--log-format", "xml"}, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, context.Background(), append([]string{"run", "--quiet"}, tt.args...)...)
			assert.Equal(t, ExitError, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Empty(t, res.stdout)
		})
	}
}

func TestRun_Quiet(t *testing.T) {
	server := okServer(t, http.StatusOK)

	res := runCLI(t, context.Background(), "run", "--quiet",
		"--url", server.URL, "--vus", "2", "--duration", "300ms", "--grace-period", "1s")

	assert.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "PASSED\n", res.stdout)
}

func TestRun_TextSummary(t *testing.T) {
	server := okServer(t, http.StatusOK)

	res := runCLI(t, context.Background(), "run", "--no-color",
		"--url", server.URL, "--vus", "2", "--duration", "300ms", "--tag", "testid=cli")

	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stderr, "surge - Running")
	assert.Contains(t, res.stdout, "surge - Completed ✓")
	assert.Contains(t, res.stdout, "testid=cli")
}

func TestRun_AllIterationsFailStillExitsZero(t *testing.T) {
	server := okServer(t, http.StatusServiceUnavailable)

	res := runCLI(t, context.Background(), "run", "--json", "--quiet",
		"--url", server.URL, "--vus", "4", "--duration", "300ms")

	require.Equal(t, ExitOK, res.code, res.stderr)
	body := []byte(res.stdout)
	require.True(t, gjson.ValidBytes(body), res.stdout)
	iterations := gjson.GetBytes(body, "iterations").Int()
	assert.Positive(t, iterations)
	assert.Equal(t, iterations, gjson.GetBytes(body, "errors").Int())
	assert.Equal(t, "passed", gjson.GetBytes(body, "status").String())
	assert.Equal(t, iterations, gjson.GetBytes(body, "entries.0.errorReasons.http_503").Int())
}

func TestRun_FailedThresholdsFromFile(t *testing.T) {
	server := okServer(t, http.StatusInternalServerError)
	path := writeConfig(t, `
name: thresholds
duration: 300ms
vus: 2
gracePeriod: 1s
tags:
  testid: ${SURGE_TEST_EXECUTION}
request:
  url: `+server.URL+`
thresholds:
  iteration_failed:
    - rate < 0.01
`)
	t.Setenv("SURGE_TEST_EXECUTION", "exec-42")
	reportPath := filepath.Join(t.TempDir(), "report.json")

	res := runCLI(t, context.Background(), "run", "--no-color", "-c", path, "--output", reportPath)

	assert.Equal(t, ExitThresholdsFailed, res.code, res.stderr)
	assert.Contains(t, res.stdout, "thresholds - Failed ✗")
	assert.Contains(t, res.stdout, "✗ iteration_failed rate < 0.01")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, "failed", gjson.GetBytes(data, "status").String())
	assert.Equal(t, "testid=exec-42", gjson.GetBytes(data, "entries.0.key").String())
}

func TestRun_EnvironmentOverlay(t *testing.T) {
	server := okServer(t, http.StatusOK)
	t.Setenv("SURGE_URL", server.URL)
	t.Setenv("SURGE_VUS", "3")
	t.Setenv("SURGE_DURATION", "300ms")
	t.Setenv("SURGE_TAGS", "env=ci")

	res := runCLI(t, context.Background(), "run", "--json", "--quiet")

	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "env=ci", gjson.Get(res.stdout, "entries.0.key").String())
}

func TestRun_Aborted(t *testing.T) {
	server := okServer(t, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := runCLI(t, ctx, "run", "--no-color",
		"--url", server.URL, "--vus", "2", "--duration", "30s", "--think-time", "50ms")

	assert.Equal(t, ExitAborted, res.code, res.stderr)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Contains(t, res.stdout, "surge - Aborted")
	assert.Contains(t, res.stderr, "run aborted")
}

func TestExitCode(t *testing.T) {
	passed := &engine.Result{Passed: true}
	failed := &engine.Result{Passed: false}

	assert.Equal(t, ExitOK, exitCode(passed, nil))
	assert.Equal(t, ExitThresholdsFailed, exitCode(failed, nil))
	assert.Equal(t, ExitAborted, exitCode(failed, performance.ErrAborted))
	assert.Equal(t, ExitError, exitCode(nil, errors.New("boom")))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	log, err := newLogger(&buf, "warn", "text", false)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log, err = newLogger(&buf, "warn", "json", true)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("vu", 3).Debug("hello")
	assert.Equal(t, int64(3), gjson.Get(buf.String(), "vu").Int())
	assert.Equal(t, "hello", gjson.Get(buf.String(), "msg").String())
}
