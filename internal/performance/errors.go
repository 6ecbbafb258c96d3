package performance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAborted is returned alongside the summary when the run was
	// cancelled before its deadline.
	ErrAborted = errors.New("run aborted before completion")

	// ErrAlreadyRun is returned when Run is called on a used Scheduler.
	ErrAlreadyRun = errors.New("scheduler has already run")

	// ErrVUStopped is returned when a stopped VU is asked to run again.
	ErrVUStopped = errors.New("virtual user cannot be restarted")
)

// ConfigError represents an invalid run configuration. Err, when set, holds
// the complete validation report the error was derived from.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "invalid configuration: " + e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("config error on field '%s': %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PanicError is recorded when an iteration panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("iteration panicked: %v", e.Value)
}

// Reason implements metrics.Reasoner.
func (e *PanicError) Reason() string { return "panic" }

// RunnerTimeoutError describes a VU that was still busy when the grace period ran out.
type RunnerTimeoutError struct {
	VU          int
	Iteration   int64
	GracePeriod time.Duration
}

func (e *RunnerTimeoutError) Error() string {
	return fmt.Sprintf("vu %d did not finish iteration %d within grace period %s; cancelled",
		e.VU, e.Iteration, e.GracePeriod)
}
