package performance

import (
	"fmt"
	"math/rand"
	"time"
)

// DefaultGracePeriod is how long in-flight iterations may run after the deadline.
const DefaultGracePeriod = 30 * time.Second

// TestConfig is the immutable run configuration handed to a Scheduler.
type TestConfig struct {
	// Duration is how long VUs start new iterations.
	Duration time.Duration

	// VUs is the number of concurrent virtual users.
	VUs int

	// Tags are attached to every result of the run.
	Tags map[string]string

	// GracePeriod bounds how long in-flight iterations may finish after Duration.
	// Zero cancels them as soon as the deadline passes.
	GracePeriod time.Duration

	// Pacing is the think-time used when an iteration does not declare its own.
	Pacing Pacing
}

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the pause between iterations.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType

	// Duration for constant pacing
	Duration time.Duration

	// Min duration for random pacing
	Min time.Duration

	// Max duration for random pacing
	Max time.Duration
}

// ConstantPacing returns a pacing that waits d between iterations.
func ConstantPacing(d time.Duration) Pacing {
	if d <= 0 {
		return Pacing{Type: PacingNone}
	}
	return Pacing{Type: PacingConstant, Duration: d}
}

// next returns the next think-time.
func (p Pacing) next(rnd *rand.Rand) time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		diff := p.Max - p.Min
		if diff > 0 {
			return p.Min + time.Duration(rnd.Int63n(int64(diff)))
		}
		return p.Min
	default:
		return 0
	}
}

func (p Pacing) validate() error {
	switch p.Type {
	case "", PacingNone:
		return nil
	case PacingConstant:
		if p.Duration < 0 {
			return &ConfigError{Field: "pacing.duration", Message: "must not be negative"}
		}
	case PacingRandom:
		if p.Min < 0 || p.Max < 0 {
			return &ConfigError{Field: "pacing", Message: "min and max must not be negative"}
		}
		if p.Min > p.Max {
			return &ConfigError{Field: "pacing", Message: "min must be less than or equal to max"}
		}
	default:
		return &ConfigError{Field: "pacing.type", Message: fmt.Sprintf("invalid pacing type: %s", p.Type)}
	}
	return nil
}

// Validate checks the configuration before any VU is started.
func (c TestConfig) Validate() error {
	if c.VUs < 1 {
		return &ConfigError{Field: "vus", Message: "vus must be greater than 0"}
	}
	if c.Duration <= 0 {
		return &ConfigError{Field: "duration", Message: "duration must be greater than 0"}
	}
	if c.GracePeriod < 0 {
		return &ConfigError{Field: "gracePeriod", Message: "gracePeriod must not be negative"}
	}
	return c.Pacing.validate()
}
