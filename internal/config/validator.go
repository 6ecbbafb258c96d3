package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether any error was recorded for field.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.VUs <= 0 {
		errs.Add("vus", "vus must be greater than 0")
	}
	if c.Duration <= 0 {
		errs.Add("duration", "duration must be greater than 0")
	}
	if c.GracePeriod != nil && *c.GracePeriod < 0 {
		errs.Add("gracePeriod", "gracePeriod must not be negative")
	}

	validateRequest("request", &c.Request, errs)

	if c.Pacing != nil {
		validatePacing("pacing", c.Pacing, errs)
	}

	validateSettings(&c.Settings, errs)

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateRequest validates the request configuration.
func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	switch strings.ToUpper(req.Method) {
	case "", "GET", "HEAD":
	default:
		errs.Add(prefix+".method", fmt.Sprintf("unsupported HTTP method: %s (GET or HEAD)", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else if u, err := url.Parse(req.URL); err != nil {
		errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(prefix+".url", fmt.Sprintf("url must be an absolute http(s) URL: %s", req.URL))
	}

	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "timeout must not be negative")
	}
	if req.ThinkTime < 0 {
		errs.Add(prefix+".thinkTime", "thinkTime must not be negative")
	}

	for i, code := range req.ExpectStatus {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("%s.expectStatus[%d]", prefix, i), fmt.Sprintf("invalid status code: %d", code))
		}
	}

	if strings.EqualFold(req.Method, "HEAD") && len(req.Checks) > 0 {
		errs.Add(prefix+".checks", "checks need a response body and cannot be used with HEAD")
	}

	for i, check := range req.Checks {
		field := fmt.Sprintf("%s.checks[%d]", prefix, i)
		if strings.TrimSpace(check.Path) == "" {
			errs.Add(field+".path", "path is required")
		}
		if check.Equals != nil && check.Exists != nil && !*check.Exists {
			errs.Add(field, "equals cannot be combined with exists: false")
		}
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch pacing.Type {
	case "none":
	case "constant":
		if pacing.Duration <= 0 {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		}
	case "random":
		if pacing.Min < 0 {
			errs.Add(prefix+".min", "min must not be negative")
		}
		if pacing.Max <= 0 {
			errs.Add(prefix+".max", "max is required for random pacing")
		}
		if pacing.Min > pacing.Max {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

// validateSettings validates HTTP client settings.
func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must not be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, threshold := range t.IterationDuration {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.iteration_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.IterationFailed {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.iteration_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.Iterations {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.iterations[%d]", i), err.Error())
		}
	}
}

// validateThresholdExpression validates a threshold expression.
//
// Valid formats:
//   - "p95 < 500ms"
//   - "avg < 200ms"
//   - "rate < 0.01"
//   - "count > 1000"
func validateThresholdExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("threshold expression cannot be empty")
	}

	validMetrics := []string{"p50", "p90", "p95", "p99", "min", "max", "avg", "med", "rate", "count"}
	validOps := []string{"<", ">", "<=", ">=", "==", "!="}

	found := false
	for _, metric := range validMetrics {
		if strings.HasPrefix(expr, metric) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("threshold must start with a valid metric (p50, p90, p95, p99, min, max, avg, med, rate, count)")
	}

	hasOp := false
	for _, op := range validOps {
		if strings.Contains(expr, op) {
			hasOp = true
			break
		}
	}
	if !hasOp {
		return fmt.Errorf("threshold must contain a comparison operator (<, >, <=, >=, ==, !=)")
	}

	return nil
}
