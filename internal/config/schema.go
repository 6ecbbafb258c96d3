// Package config loads and validates surge test configurations.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TestConfig is the file representation of a load test.
//
// Example YAML:
//
//	name: "k6-docker-image"
//	duration: 30s
//	vus: 100
//	tags:
//	  testid: ${CLOUD_RUN_EXECUTION}
//	request:
//	  url: "https://test.k6.io"
//	  thinkTime: 1s
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Duration is how long VUs start new iterations
	Duration Duration `json:"duration" yaml:"duration"`

	// VUs is the number of concurrent virtual users
	VUs int `json:"vus" yaml:"vus"`

	// GracePeriod is how long in-flight iterations may finish after Duration
	GracePeriod *Duration `json:"gracePeriod,omitempty" yaml:"gracePeriod,omitempty"`

	// Tags are attached to every result; values may reference ${ENV} variables
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Pacing is the pause used when the request declares no think-time
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// Request is the HTTP request executed every iteration
	Request RequestConfig `json:"request" yaml:"request"`

	// Settings are HTTP client settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Settings contains HTTP client settings.
type Settings struct {
	// Timeout is the default request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// RequestConfig defines the request made by each iteration.
type RequestConfig struct {
	// Name for this request (added to result tags as "name")
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is GET or HEAD
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// URL is the request URL
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout overrides settings.timeout for this request
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ThinkTime is the pause after every iteration
	ThinkTime Duration `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// ExpectStatus lists accepted status codes; empty accepts any 2xx
	ExpectStatus []int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// Checks validate JSON response bodies
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// CheckConfig asserts on a JSON body value.
type CheckConfig struct {
	// Path is a JSONPath or gjson path
	Path string `json:"path" yaml:"path"`

	// Equals is the expected string form of the value
	Equals *string `json:"equals,omitempty" yaml:"equals,omitempty"`

	// Exists requires the path to be present (true) or absent (false)
	Exists *bool `json:"exists,omitempty" yaml:"exists,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min Duration `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	// IterationDuration thresholds on iteration latency
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	IterationDuration []string `json:"iteration_duration,omitempty" yaml:"iteration_duration,omitempty"`

	// IterationFailed thresholds on the failure rate
	// e.g., ["rate < 0.01"]
	IterationFailed []string `json:"iteration_failed,omitempty" yaml:"iteration_failed,omitempty"`

	// Iterations thresholds on iteration count or throughput
	// e.g., ["count > 1000", "rate > 100"]
	Iterations []string `json:"iterations,omitempty" yaml:"iterations,omitempty"`
}

// Empty reports whether no threshold is configured.
func (t *ThresholdsConfig) Empty() bool {
	return t == nil || len(t.IterationDuration)+len(t.IterationFailed)+len(t.Iterations) == 0
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// or from integers meaning seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
