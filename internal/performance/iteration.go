package performance

import (
	"context"
	"time"
)

// Outcome is what an iteration reports about itself. All fields are optional.
type Outcome struct {
	// Target is the resource the iteration exercised, usually a URL.
	Target string

	// Status is the protocol status, 0 when there is none.
	Status int

	// ThinkTime overrides the configured pacing for the following pause.
	ThinkTime time.Duration

	// Tags are added to the run tags for this result.
	Tags map[string]string
}

// IterationFunc is the workload executed once per iteration.
//
// A returned error or a panic marks the iteration as failed; neither
// stops the VU. The context is cancelled only when the run forcibly
// cancels in-flight work after the grace period.
type IterationFunc func(ctx context.Context) (Outcome, error)

// Func adapts a function with no outcome to an IterationFunc.
func Func(fn func(ctx context.Context) error) IterationFunc {
	return func(ctx context.Context) (Outcome, error) {
		return Outcome{}, fn(ctx)
	}
}
