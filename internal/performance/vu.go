// Package performance provides the virtual-user load generation engine.
package performance

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU observed the stop signal.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser represents a single simulated user executing iterations.
//
// A VU runs its loop once. After the loop exits it stays stopped and
// cannot be restarted.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	iterate IterationFunc
	pacing  Pacing
	tags    map[string]string
	clock   clockwork.Clock

	// Only used from the VU's own goroutine.
	rnd *rand.Rand

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Iteration counter
	iteration atomic.Int64

	// Set while an iteration has started but its result was not yet emitted.
	inFlight atomic.Bool

	// Done signal (closed when VU fully stops)
	doneCh chan struct{}
}

// NewVirtualUser creates a new Virtual User.
//
// Parameters:
//   - id: Unique identifier for this VU
//   - fn: The workload executed every iteration
//   - pacing: Think-time used when an iteration does not declare one
//   - tags: Tags attached to every result of this VU
//   - clock: Time source for latency and pauses
func NewVirtualUser(id int, fn IterationFunc, pacing Pacing, tags map[string]string, clock clockwork.Clock) *VirtualUser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VirtualUser{
		ID:      id,
		iterate: fn,
		pacing:  pacing,
		tags:    tags,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		doneCh:  make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started so far.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// InFlight reports whether an iteration is running whose result was not emitted yet.
func (vu *VirtualUser) InFlight() bool {
	return vu.inFlight.Load()
}

// Done is closed once RunLoop has returned.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// RunLoop executes iterations until stop is closed.
//
// Each cycle invokes the iteration, emits its result, then pauses for the
// think-time. The stop signal is checked before every iteration and
// interrupts the pause; an iteration already running is allowed to finish
// and its result is emitted. ctx is passed to the iteration and is only
// expected to be cancelled when in-flight work must be abandoned.
func (vu *VirtualUser) RunLoop(ctx context.Context, stop <-chan struct{}, emit func(metrics.IterationResult)) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return ErrVUStopped
	}
	defer vu.markStopped()

	for {
		select {
		case <-stop:
			vu.state.Store(int32(VUStateStopping))
			return nil
		case <-ctx.Done():
			vu.state.Store(int32(VUStateStopping))
			return nil
		default:
		}

		result, think := vu.runIteration(ctx)
		emit(result)
		vu.inFlight.Store(false)

		if !vu.pause(ctx, stop, think) {
			vu.state.Store(int32(VUStateStopping))
			return nil
		}
	}
}

// runIteration executes the workload once and builds its result.
func (vu *VirtualUser) runIteration(ctx context.Context) (metrics.IterationResult, time.Duration) {
	vu.inFlight.Store(true)
	n := vu.iteration.Add(1)

	start := vu.clock.Now()
	out, err := vu.invoke(ctx)
	latency := vu.clock.Since(start)

	result := metrics.IterationResult{
		VU:        vu.ID,
		Iteration: n,
		Target:    out.Target,
		Start:     start,
		Latency:   latency,
		Status:    out.Status,
		Err:       err,
		Tags:      vu.tags,
	}
	if len(out.Tags) > 0 {
		result.Tags = metrics.MergeTags(vu.tags, out.Tags)
	}

	think := out.ThinkTime
	if think <= 0 {
		think = vu.pacing.next(vu.rnd)
	}
	return result, think
}

// invoke calls the workload, turning panics into failures.
func (vu *VirtualUser) invoke(ctx context.Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return vu.iterate(ctx)
}

// pause waits for the think-time. It returns false when the VU must stop.
func (vu *VirtualUser) pause(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := vu.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// markStopped marks the VU as fully stopped.
func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(VUStateStopped))
	close(vu.doneCh)
}
