// Package metrics aggregates iteration results into run summaries.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"
)

// IterationResult is the outcome of one execution of a VU loop body.
//
// A result is created by exactly one VirtualUser and handed to the
// aggregator once. (VU, Iteration) identifies it for the whole run.
type IterationResult struct {
	VU        int               `json:"vu"`
	Iteration int64             `json:"iteration"`
	Target    string            `json:"target,omitempty"`
	Start     time.Time         `json:"start"`
	Latency   time.Duration     `json:"latency"`
	Status    int               `json:"status,omitempty"`
	Err       error             `json:"-"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// ResultKey identifies an IterationResult within a run.
type ResultKey struct {
	VU        int
	Iteration int64
}

// Key returns the identity of the result.
func (r IterationResult) Key() ResultKey {
	return ResultKey{VU: r.VU, Iteration: r.Iteration}
}

// Failed reports whether the iteration failed.
func (r IterationResult) Failed() bool {
	return r.Err != nil
}

// Reasoner is implemented by errors that know their own failure class.
type Reasoner interface {
	Reason() string
}

// UnclassifiedReason is reported for errors whose Reason is empty.
const UnclassifiedReason = "error"

// FailureReason classifies an iteration error for the error breakdown.
// It returns "" only for a nil error.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}

	var r Reasoner
	if errors.As(err, &r) {
		if reason := r.Reason(); reason != "" {
			return reason
		}
		return UnclassifiedReason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "network"
	}

	errorType := fmt.Sprintf("%T", err)
	if len(errorType) > 30 {
		errorType = errorType[len(errorType)-30:]
	}
	return errorType
}

// TagKey returns the canonical key of a tag set: sorted "k=v" pairs joined by
// commas. Backslashes, commas and equals signs inside keys and values are
// escaped with a backslash, so distinct tag sets never share a key.
func TagKey(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(tagEscaper.Replace(k))
		sb.WriteByte('=')
		sb.WriteString(tagEscaper.Replace(tags[k]))
	}
	return sb.String()
}

var tagEscaper = strings.NewReplacer(`\`, `\\`, `,`, `\,`, `=`, `\=`)

// MergeTags returns a new map with extra layered over base.
func MergeTags(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
