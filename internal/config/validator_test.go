package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *TestConfig {
	return &TestConfig{
		Duration: Duration(30 * time.Second),
		VUs:      10,
		Request: RequestConfig{
			Method: "GET",
			URL:    "https://test.k6.io",
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	ptr := func(s string) *string { return &s }
	no := false
	negative := Duration(-time.Second)

	tests := []struct {
		name   string
		mutate func(*TestConfig)
		field  string
	}{
		{"zero vus", func(c *TestConfig) { c.VUs = 0 }, "vus"},
		{"negative vus", func(c *TestConfig) { c.VUs = -1 }, "vus"},
		{"zero duration", func(c *TestConfig) { c.Duration = 0 }, "duration"},
		{"negative grace", func(c *TestConfig) { c.GracePeriod = &negative }, "gracePeriod"},
		{"missing url", func(c *TestConfig) { c.Request.URL = "" }, "request.url"},
		{"relative url", func(c *TestConfig) { c.Request.URL = "/health" }, "request.url"},
		{"ftp url", func(c *TestConfig) { c.Request.URL = "ftp://example.com" }, "request.url"},
		{"post method", func(c *TestConfig) { c.Request.Method = "POST" }, "request.method"},
		{"bad status", func(c *TestConfig) { c.Request.ExpectStatus = []int{200, 42} }, "request.expectStatus[1]"},
		{"negative think time", func(c *TestConfig) { c.Request.ThinkTime = -1 }, "request.thinkTime"},
		{"head with checks", func(c *TestConfig) {
			c.Request.Method = "HEAD"
			c.Request.Checks = []CheckConfig{{Path: "status"}}
		}, "request.checks"},
		{"lowercase head with checks", func(c *TestConfig) {
			c.Request.Method = "head"
			c.Request.Checks = []CheckConfig{{Path: "status"}}
		}, "request.checks"},
		{"contradicting check", func(c *TestConfig) {
			c.Request.Checks = []CheckConfig{{Path: "id", Equals: ptr("1"), Exists: &no}}
		}, "request.checks[0]"},
		{"constant pacing without duration", func(c *TestConfig) {
			c.Pacing = &PacingConfig{Type: "constant"}
		}, "pacing.duration"},
		{"random pacing min over max", func(c *TestConfig) {
			c.Pacing = &PacingConfig{Type: "random", Min: Duration(2 * time.Second), Max: Duration(time.Second)}
		}, "pacing"},
		{"unknown pacing", func(c *TestConfig) { c.Pacing = &PacingConfig{Type: "poisson"} }, "pacing.type"},
		{"negative connections", func(c *TestConfig) { c.Settings.MaxConnectionsPerHost = -1 }, "settings.maxConnectionsPerHost"},
		{"bad threshold metric", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{IterationDuration: []string{"p42 < 1s"}}
		}, "thresholds.iteration_duration[0]"},
		{"threshold without operator", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{IterationFailed: []string{"rate 0.1"}}
		}, "thresholds.iteration_failed[0]"},
		{"empty threshold", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{Iterations: []string{" "}}
		}, "thresholds.iterations[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error %T is not *ValidationErrors", err)
			}
			if !verrs.Has(tt.field) {
				t.Errorf("Validate() = %v, want an error on %s", err, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	config := &TestConfig{}
	err := config.Validate()

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() = %v, want *ValidationErrors", err)
	}
	for _, field := range []string{"vus", "duration", "request.url"} {
		if !verrs.Has(field) {
			t.Errorf("missing error on %s", field)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.Error() != "no validation errors" {
		t.Errorf("empty Error() = %q", errs.Error())
	}

	errs.Add("vus", "must be positive")
	if errs.Error() != "validation error on field 'vus': must be positive" {
		t.Errorf("single Error() = %q", errs.Error())
	}

	errs.Add("", "schema mismatch")
	want := "2 validation errors:\n  1. validation error on field 'vus': must be positive\n  2. validation error: schema mismatch\n"
	if errs.Error() != want {
		t.Errorf("multi Error() = %q, want %q", errs.Error(), want)
	}
}

func TestThresholdsConfig_Empty(t *testing.T) {
	var nilThresholds *ThresholdsConfig
	if !nilThresholds.Empty() {
		t.Error("nil thresholds should be empty")
	}
	if !(&ThresholdsConfig{}).Empty() {
		t.Error("zero thresholds should be empty")
	}
	if (&ThresholdsConfig{Iterations: []string{"count > 1"}}).Empty() {
		t.Error("thresholds with an expression should not be empty")
	}
}
