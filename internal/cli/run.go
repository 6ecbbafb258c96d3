package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/engine"
	"github.com/wesleyorama2/surge/internal/performance/metrics"
	"github.com/wesleyorama2/surge/internal/performance/output"
)

const progressInterval = time.Second

type runOptions struct {
	jsonOutput bool
	outputPath string
	quiet      bool
	noColor    bool
	logLevel   string
	logFormat  string
	verbose    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a fixed number of virtual users for a fixed duration.

Configuration comes from a YAML or JSON file, SURGE_* environment variables
and flags. Flags win over the environment, which wins over the file.

  surge run --config test.yaml
  surge run --url https://test.k6.io --vus 100 --duration 30s --think-time 1s
  SURGE_VUS=50 surge run -c test.yaml --tag testid=smoke

Exit codes: 0 completed, 1 configuration or engine error, 2 aborted by a
signal, 99 a threshold failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Write the result as JSON to stdout instead of the text summary")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Also write the JSON result to this file")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable the header and live progress, print only PASSED or FAILED")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Shortcut for --log-level debug")

	return cmd
}

// runTest loads the configuration, runs the engine and reports the result.
func runTest(cmd *cobra.Command, opts *runOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	log, err := newLogger(stderr, opts.logLevel, opts.logFormat, opts.verbose)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	loader, err := config.NewLoader(cmd.Flags())
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}
	if loader.ConfigPath() == "" && !cmd.Flags().Changed("url") && os.Getenv(config.EnvPrefix+"_URL") == "" {
		return &exitError{code: ExitError, err: errors.New("either --config or --url is required")}
	}

	cfg, err := loader.Load()
	if err != nil {
		return &exitError{code: ExitError, err: fmt.Errorf("invalid configuration: %w", err)}
	}

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:   stdout,
		Progress: stderr,
		Quiet:    opts.quiet,
		NoColor:  opts.noColor,
	})

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	console.PrintHeader(eng.Config())

	watchCtx, stopWatch := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Watch(watchCtx, clockwork.NewRealClock(), progressInterval, eng.Live)
	}()

	result, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if result == nil {
		var aggErr *metrics.AggregatorError
		if errors.As(runErr, &aggErr) {
			log.WithError(runErr).Log(logrus.FatalLevel, "aggregator failure")
		}
		return &exitError{code: ExitError, err: fmt.Errorf("run failed: %w", runErr)}
	}

	aborted := errors.Is(runErr, performance.ErrAborted)
	if aborted {
		log.Warn("run aborted by signal, reporting partial results")
	}

	report := output.NewReport(result, aborted)
	if opts.jsonOutput {
		if err := output.WriteJSON(stdout, report); err != nil {
			return &exitError{code: ExitError, err: err}
		}
	} else {
		console.PrintSummary(result, aborted)
	}
	if opts.outputPath != "" {
		if err := output.WriteJSONFile(opts.outputPath, report); err != nil {
			return &exitError{code: ExitError, err: err}
		}
		log.WithField("path", opts.outputPath).Info("report written")
	}

	if code := exitCode(result, runErr); code != ExitOK {
		if code == ExitError {
			return &exitError{code: code, err: runErr}
		}
		return &exitError{code: code}
	}
	return nil
}

// interruptContext returns a context cancelled by the first SIGINT or SIGTERM.
// Signal handling is then restored, so a second signal terminates the
// process without waiting for the grace period.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// exitCode maps a run outcome to a process exit code. An abort wins over
// failed thresholds.
func exitCode(result *engine.Result, err error) int {
	switch {
	case errors.Is(err, performance.ErrAborted):
		return ExitAborted
	case err != nil:
		return ExitError
	case result != nil && !result.Passed:
		return ExitThresholdsFailed
	default:
		return ExitOK
	}
}
