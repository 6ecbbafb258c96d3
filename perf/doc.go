// Package perf runs surge load tests from Go code.
//
// It exposes the engine behind the surge CLI: a fixed number of virtual
// users loop over one iteration for a fixed duration, and the run returns
// an aggregated summary.
//
// # Quick Start
//
// Load a configuration file and run it:
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	result, err := perf.RunTest(context.Background(), cfg)
//	if errors.Is(err, perf.ErrAborted) {
//	    // the context was cancelled; result still holds what was measured
//	}
//
//	fmt.Printf("Iterations: %d\n", result.Summary.Count)
//	fmt.Printf("P95: %v\n", result.Summary.Latency.P95)
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Custom Iterations
//
// The HTTP request can be replaced by any function. The request section of
// the configuration must still be valid:
//
//	runner, _ := perf.NewRunner(cfg, perf.WithIteration(func(ctx context.Context) (perf.Outcome, error) {
//	    err := doWork(ctx)
//	    return perf.Outcome{Target: "work"}, err
//	}))
//	result, _ := runner.Run(ctx)
package perf
