// Package output renders progress and results of a surge run.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/performance"
	"github.com/wesleyorama2/surge/internal/performance/engine"
)

const (
	clearLine     = "\033[2K"
	boxHorizontal = "━"
	ruleWidth     = 56
)

// palette holds the colours used by the console.
type palette struct {
	rule    *color.Color
	title   *color.Color
	value   *color.Color
	dim     *color.Color
	latency *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		rule:    mk(color.FgCyan),
		title:   mk(color.Bold),
		value:   mk(color.FgCyan),
		dim:     mk(color.Faint),
		latency: mk(color.FgBlue),
		ok:      mk(color.FgGreen),
		warn:    mk(color.FgYellow),
		fail:    mk(color.FgRed),
	}
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	// Writer receives the final summary. Defaults to os.Stdout.
	Writer io.Writer

	// Progress receives the header and progress lines. Defaults to os.Stderr.
	Progress io.Writer

	Quiet       bool
	NoColor     bool
	ForceColors bool
}

// Console prints a run header, periodic progress and the final summary.
type Console struct {
	out      io.Writer
	progress io.Writer
	quiet    bool

	// progressTTY lines are redrawn in place
	progressTTY bool
	colors      palette

	mu      sync.Mutex
	pending bool
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stderr
	}

	useColors := cfg.ForceColors || (!cfg.NoColor && isTerminal(cfg.Writer) && supportsColors())

	return &Console{
		out:         cfg.Writer,
		progress:    cfg.Progress,
		quiet:       cfg.Quiet,
		progressTTY: isTerminal(cfg.Progress),
		colors:      newPalette(useColors),
	}
}

// supportsColors checks the environment for colour opt-outs.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb"
}

// PrintHeader prints the test name and run parameters.
func (c *Console) PrintHeader(cfg *config.TestConfig) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	fmt.Fprintln(c.progress, rule)
	fmt.Fprintln(c.progress, c.colors.title.Sprintf("%s - Running", cfg.Name))
	fmt.Fprintln(c.progress, rule)

	grace := config.DefaultGracePeriod
	if cfg.GracePeriod != nil {
		grace = time.Duration(*cfg.GracePeriod)
	}
	fmt.Fprintf(c.progress, "Target:   %s %s\n", cfg.Request.Method, cfg.Request.URL)
	fmt.Fprintf(c.progress, "VUs:      %d\n", cfg.VUs)
	fmt.Fprintf(c.progress, "Duration: %s (grace %s)\n", formatDuration(time.Duration(cfg.Duration)), formatDuration(grace))
	if len(cfg.Tags) > 0 {
		fmt.Fprintf(c.progress, "Tags:     %s\n", formatTags(cfg.Tags))
	}
	fmt.Fprintln(c.progress)
}

// PrintProgress prints one progress line.
func (c *Console) PrintProgress(p engine.Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.progressLine(p)
	if c.progressTTY {
		fmt.Fprint(c.progress, "\r"+clearLine+line)
		c.pending = true
		return
	}
	fmt.Fprintln(c.progress, line)
}

func (c *Console) progressLine(p engine.Progress) string {
	elapsed := p.Elapsed
	if p.Duration > 0 && elapsed > p.Duration && p.State == performance.StateRunning {
		elapsed = p.Duration
	}

	var rate float64
	if p.Iterations > 0 {
		rate = float64(p.Errors) / float64(p.Iterations)
	}
	errColor := c.colors.ok
	if rate > 0.01 {
		errColor = c.colors.warn
	}
	if rate > 0.05 {
		errColor = c.colors.fail
	}

	return fmt.Sprintf("[%s / %s] %s | VUs: %s | Iterations: %s | Errors: %s",
		formatDuration(elapsed),
		formatDuration(p.Duration),
		c.colors.dim.Sprint(p.State),
		c.colors.value.Sprint(p.ActiveVUs),
		c.colors.value.Sprint(formatNumber(p.Iterations)),
		errColor.Sprintf("%d (%.1f%%)", p.Errors, rate*100))
}

// Watch prints progress every interval until ctx is done.
func (c *Console) Watch(ctx context.Context, clock clockwork.Clock, interval time.Duration, live func() engine.Progress) {
	if c.quiet {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.endProgress()
			return
		case <-ticker.Chan():
			c.PrintProgress(live())
		}
	}
}

// endProgress terminates a line that was being redrawn in place.
func (c *Console) endProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		fmt.Fprintln(c.progress)
		c.pending = false
	}
}

// PrintSummary prints the final test summary. aborted marks a run that was
// interrupted before its deadline.
func (c *Console) PrintSummary(result *engine.Result, aborted bool) {
	c.endProgress()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		switch {
		case aborted:
			fmt.Fprintln(c.out, c.colors.warn.Sprint("ABORTED"))
		case result.Passed:
			fmt.Fprintln(c.out, c.colors.ok.Sprint("PASSED"))
		default:
			fmt.Fprintln(c.out, c.colors.fail.Sprint("FAILED"))
		}
		return
	}

	status := c.colors.ok.Sprint("Completed ✓")
	switch {
	case aborted:
		status = c.colors.warn.Sprint("Aborted")
	case !result.Passed:
		status = c.colors.fail.Sprint("Failed ✗")
	}

	s := result.Summary
	rule := c.colors.rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "%s - %s\n", c.colors.title.Sprint(result.Name), status)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)

	fmt.Fprintf(c.out, "Run ID:        %s\n", s.RunID)
	fmt.Fprintf(c.out, "Duration:      %s\n", c.colors.value.Sprint(formatDuration(s.Duration)))
	fmt.Fprintf(c.out, "Iterations:    %s (%.1f/s)\n", c.colors.value.Sprint(formatNumber(s.Count)), s.IterationsPerSecond)

	failColor := c.colors.ok
	if s.ErrorRate > 0.01 {
		failColor = c.colors.warn
	}
	if s.ErrorRate > 0.05 {
		failColor = c.colors.fail
	}
	fmt.Fprintf(c.out, "Failed:        %s\n", failColor.Sprintf("%s (%.1f%%)", formatNumber(s.ErrorCount), s.ErrorRate*100))
	if s.Discarded > 0 {
		fmt.Fprintf(c.out, "Discarded:     %s\n", c.colors.warn.Sprint(formatNumber(s.Discarded)))
	}
	fmt.Fprintln(c.out)

	if s.Count > 0 {
		fmt.Fprintln(c.out, c.colors.title.Sprint("Latency Distribution:"))
		for _, row := range []struct {
			label string
			value time.Duration
		}{
			{"Min", s.Latency.Min},
			{"Avg", s.Latency.Mean},
			{"P50", s.Latency.P50},
			{"P90", s.Latency.P90},
			{"P95", s.Latency.P95},
			{"P99", s.Latency.P99},
			{"Max", s.Latency.Max},
		} {
			fmt.Fprintf(c.out, "  %-10s %s\n", row.label+":", c.colors.latency.Sprint(formatDurationShort(row.value)))
		}
		fmt.Fprintln(c.out)
	}

	if len(s.Entries) > 0 {
		fmt.Fprintln(c.out, c.colors.title.Sprint("Tag Sets:"))
		for _, e := range s.Entries {
			key := e.Key
			if key == "" {
				key = "(untagged)"
			}
			fmt.Fprintf(c.out, "  %s\n", c.colors.value.Sprint(key))
			fmt.Fprintf(c.out, "    iterations %s, errors %s (%.1f%%), p95 %s\n",
				formatNumber(e.Count), formatNumber(e.Errors), e.ErrorRate*100, formatDurationShort(e.Latency.P95))
			if len(e.StatusCodes) > 0 {
				fmt.Fprintf(c.out, "    %s\n", c.colors.dim.Sprint("status "+formatStatusCodes(e.StatusCodes)))
			}
			if len(e.ErrorReasons) > 0 {
				fmt.Fprintf(c.out, "    %s\n", c.colors.fail.Sprint("errors "+formatReasons(e.ErrorReasons)))
			}
		}
		fmt.Fprintln(c.out)
	}

	if len(result.Thresholds) > 0 {
		fmt.Fprintln(c.out, c.colors.title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := c.colors.ok.Sprint("✓")
			if !t.Passed {
				mark = c.colors.fail.Sprint("✗")
			}
			line := fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value)
			if !t.Passed && t.Message != "" {
				line += " " + c.colors.dim.Sprint(t.Message)
			}
			fmt.Fprintln(c.out, line)
		}
		fmt.Fprintln(c.out)
	}
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	return strings.Join(parts, " ")
}

func formatStatusCodes(codes map[int]int64) string {
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		label := fmt.Sprintf("%d", k)
		if k == 0 {
			label = "none"
		}
		parts[i] = fmt.Sprintf("%s: %s", label, formatNumber(codes[k]))
	}
	return strings.Join(parts, ", ")
}

func formatReasons(reasons map[string]int64) string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, formatNumber(reasons[k]))
	}
	return strings.Join(parts, ", ")
}
