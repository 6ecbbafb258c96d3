package workload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/pkg/jsonpath"
)

// MaxBodyBytes caps how much of a response body is read per iteration.
const MaxBodyBytes = 1 << 20

// Check asserts on a value of a JSON response body.
type Check struct {
	// Path is a JSONPath ("$.data.id") or gjson path ("data.id")
	Path string

	// Equals, when set, is compared with the string form of the value
	Equals *string

	// Exists, when set to false, requires the path to be absent
	Exists *bool
}

// RequestSpec describes the request made by every iteration.
type RequestSpec struct {
	Name         string
	Method       string
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	ExpectStatus []int
	Checks       []Check
	ThinkTime    time.Duration
}

// StatusError is returned when the response status is not accepted.
type StatusError struct {
	Status   int
	Expected []int
}

func (e *StatusError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("unexpected status %d, expected 2xx", e.Status)
	}
	return fmt.Sprintf("unexpected status %d, expected one of %v", e.Status, e.Expected)
}

// Reason implements metrics.Reasoner.
func (e *StatusError) Reason() string {
	return fmt.Sprintf("http_%d", e.Status)
}

// CheckError is returned when a body check does not hold.
type CheckError struct {
	Path    string
	Message string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %s failed: %s", e.Path, e.Message)
}

// Reason implements metrics.Reasoner.
func (e *CheckError) Reason() string { return "check" }

// HTTPGet performs one HTTP GET (or HEAD) per iteration.
type HTTPGet struct {
	spec   RequestSpec
	client *http.Client
	header http.Header
	tags   map[string]string
}

// NewHTTPGet builds the workload for spec. The returned value owns a pooled
// client that is released by Close.
func NewHTTPGet(spec RequestSpec, cfg ClientConfig) (*HTTPGet, error) {
	spec.Method = strings.ToUpper(spec.Method)
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	if spec.Method != http.MethodGet && spec.Method != http.MethodHead {
		return nil, fmt.Errorf("unsupported method %s: only GET and HEAD are supported", spec.Method)
	}
	if spec.Method == http.MethodHead && len(spec.Checks) > 0 {
		return nil, fmt.Errorf("checks need a response body and cannot be used with HEAD")
	}

	u, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: must be an absolute http(s) URL", spec.URL)
	}

	if spec.Timeout <= 0 {
		spec.Timeout = cfg.Timeout
	}

	header := make(http.Header)
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}
	for k, v := range spec.Headers {
		header.Set(k, v)
	}
	if header.Get("User-Agent") == "" && cfg.UserAgent != "" {
		header.Set("User-Agent", cfg.UserAgent)
	}

	var tags map[string]string
	if spec.Name != "" {
		tags = map[string]string{"name": spec.Name}
	}

	return &HTTPGet{
		spec:   spec,
		client: NewClient(cfg),
		header: header,
		tags:   tags,
	}, nil
}

// Iterate performs the request. It has the performance.IterationFunc signature.
func (h *HTTPGet) Iterate(ctx context.Context) (performance.Outcome, error) {
	out := performance.Outcome{
		Target:    h.spec.URL,
		ThinkTime: h.spec.ThinkTime,
		Tags:      h.tags,
	}

	if h.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.spec.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, h.spec.Method, h.spec.URL, nil)
	if err != nil {
		return out, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header = h.header.Clone()

	resp, err := h.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	out.Status = resp.StatusCode

	limited := io.LimitReader(resp.Body, MaxBodyBytes)
	var body []byte
	if len(h.spec.Checks) > 0 {
		body, err = io.ReadAll(limited)
	} else {
		_, err = io.Copy(io.Discard, limited)
	}
	if err != nil {
		return out, fmt.Errorf("failed to read response body: %w", err)
	}

	if !h.statusAccepted(resp.StatusCode) {
		return out, &StatusError{Status: resp.StatusCode, Expected: h.spec.ExpectStatus}
	}
	return out, h.runChecks(body)
}

// Close releases idle connections.
func (h *HTTPGet) Close() {
	h.client.CloseIdleConnections()
}

func (h *HTTPGet) statusAccepted(status int) bool {
	if len(h.spec.ExpectStatus) == 0 {
		return status >= 200 && status < 300
	}
	return slices.Contains(h.spec.ExpectStatus, status)
}

func (h *HTTPGet) runChecks(body []byte) error {
	if len(h.spec.Checks) == 0 {
		return nil
	}
	if !jsonpath.Valid(body) {
		return &CheckError{Path: h.spec.Checks[0].Path, Message: "response body is not valid JSON"}
	}

	for _, check := range h.spec.Checks {
		value, ok := jsonpath.Lookup(body, check.Path)

		if check.Exists != nil && !*check.Exists {
			if ok {
				return &CheckError{Path: check.Path, Message: fmt.Sprintf("expected no value, got %q", value)}
			}
			continue
		}
		if !ok {
			return &CheckError{Path: check.Path, Message: "path not found"}
		}
		if check.Equals != nil && value != *check.Equals {
			return &CheckError{Path: check.Path, Message: fmt.Sprintf("expected %q, got %q", *check.Equals, value)}
		}
	}
	return nil
}
