package performance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
)

// collector records emitted results for assertions.
type collector struct {
	mu      sync.Mutex
	results []metrics.IterationResult
}

func (c *collector) emit(r metrics.IterationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *collector) all() []metrics.IterationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]metrics.IterationResult, len(c.results))
	copy(out, c.results)
	return out
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUStateStopped, "stopped"},
		{performance.VUState(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("VUState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewVirtualUser(t *testing.T) {
	vu := performance.NewVirtualUser(7, performance.Func(func(context.Context) error { return nil }),
		performance.Pacing{}, nil, clockwork.NewFakeClock())

	if vu.ID != 7 {
		t.Errorf("VU ID = %d, want 7", vu.ID)
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("Initial VU state = %v, want %v", vu.GetState(), performance.VUStateIdle)
	}
	if vu.GetIteration() != 0 {
		t.Errorf("Initial iteration = %d, want 0", vu.GetIteration())
	}
}

func TestVirtualUser_RunLoopThinkTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	iterate := func(ctx context.Context) (performance.Outcome, error) {
		return performance.Outcome{Target: "http://example.test", Status: 200, ThinkTime: time.Second}, nil
	}
	vu := performance.NewVirtualUser(1, iterate, performance.Pacing{}, map[string]string{"testid": "t"}, clock)

	stop := make(chan struct{})
	c := &collector{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- vu.RunLoop(context.Background(), stop, c.emit)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// One iteration, then parked on the think-time timer
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("VU never paused: %v", err)
	}
	if got := c.len(); got != 1 {
		t.Fatalf("results after first iteration = %d, want 1", got)
	}

	clock.Advance(time.Second)
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("VU never paused again: %v", err)
	}
	if got := c.len(); got != 2 {
		t.Fatalf("results after second iteration = %d, want 2", got)
	}

	// Stop interrupts the pause without starting another iteration
	close(stop)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("RunLoop() error = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("RunLoop did not return after stop")
	}

	if got := c.len(); got != 2 {
		t.Errorf("results after stop = %d, want 2", got)
	}
	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("state after stop = %v, want stopped", vu.GetState())
	}

	for i, r := range c.all() {
		if r.Iteration != int64(i+1) {
			t.Errorf("result %d iteration = %d", i, r.Iteration)
		}
		if r.Tags["testid"] != "t" {
			t.Errorf("result %d tags = %v", i, r.Tags)
		}
		if r.Target != "http://example.test" || r.Status != 200 {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestVirtualUser_FailuresAreResults(t *testing.T) {
	calls := 0
	iterate := func(ctx context.Context) (performance.Outcome, error) {
		calls++
		switch calls {
		case 1:
			return performance.Outcome{}, errors.New("connection refused")
		case 2:
			panic("kaboom")
		default:
			return performance.Outcome{}, nil
		}
	}

	vu := performance.NewVirtualUser(1, iterate, performance.Pacing{}, nil, clockwork.NewRealClock())
	stop := make(chan struct{})
	c := &collector{}

	var once sync.Once
	err := vu.RunLoop(context.Background(), stop, func(r metrics.IterationResult) {
		c.emit(r)
		if c.len() == 3 {
			once.Do(func() { close(stop) })
		}
	})
	if err != nil {
		t.Fatalf("RunLoop() error = %v", err)
	}

	results := c.all()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !results[0].Failed() {
		t.Error("first iteration should have failed")
	}

	var panicErr *performance.PanicError
	if !errors.As(results[1].Err, &panicErr) {
		t.Errorf("second iteration error = %v, want *PanicError", results[1].Err)
	}
	if metrics.FailureReason(results[1].Err) != "panic" {
		t.Errorf("panic reason = %q", metrics.FailureReason(results[1].Err))
	}
	if results[2].Failed() {
		t.Errorf("third iteration failed: %v", results[2].Err)
	}
}

func TestVirtualUser_NotRestartable(t *testing.T) {
	vu := performance.NewVirtualUser(1, performance.Func(func(context.Context) error { return nil }),
		performance.Pacing{}, nil, clockwork.NewRealClock())

	stop := make(chan struct{})
	close(stop)

	if err := vu.RunLoop(context.Background(), stop, func(metrics.IterationResult) {}); err != nil {
		t.Fatalf("first RunLoop() error = %v", err)
	}
	select {
	case <-vu.Done():
	default:
		t.Error("Done() not closed after RunLoop returned")
	}

	err := vu.RunLoop(context.Background(), make(chan struct{}), func(metrics.IterationResult) {})
	if !errors.Is(err, performance.ErrVUStopped) {
		t.Errorf("second RunLoop() error = %v, want ErrVUStopped", err)
	}
}

func TestVirtualUser_PacingWhenNoThinkTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	vu := performance.NewVirtualUser(1, performance.Func(func(context.Context) error { return nil }),
		performance.ConstantPacing(500*time.Millisecond), nil, clock)

	stop := make(chan struct{})
	c := &collector{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = vu.RunLoop(context.Background(), stop, c.emit)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("VU never paused: %v", err)
	}
	clock.Advance(499 * time.Millisecond)
	if got := c.len(); got != 1 {
		t.Errorf("results before pacing elapsed = %d, want 1", got)
	}

	close(stop)
	<-done
}
