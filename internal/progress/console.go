package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

// Console renders "processed / total" progress to a writer.
//
// On a terminal the line is redrawn in place; otherwise a plain line is
// printed at most once per Interval so redirected output stays readable.
type Console struct {
	out      io.Writer
	label    string
	expected int64
	live     bool
	now      func() time.Time
	interval time.Duration

	mu        sync.Mutex
	processed int64
	started   time.Time
	throttle  rate.Sometimes
	finished  bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithInterval sets the minimum time between redraws. A negative interval
// redraws on every Advance.
func WithInterval(d time.Duration) ConsoleOption {
	return func(c *Console) {
		c.interval = d
	}
}

// WithLive forces in-place redraw on or off regardless of the writer.
func WithLive(live bool) ConsoleOption {
	return func(c *Console) {
		c.live = live
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ConsoleOption {
	return func(c *Console) {
		c.now = now
	}
}

// NewConsole creates a renderer for a run expected to produce expected identifiers.
func NewConsole(out io.Writer, label string, expected int64, opts ...ConsoleOption) *Console {
	c := &Console{
		out:      out,
		label:    label,
		expected: expected,
		live:     isTerminal(out),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.interval < 0:
		c.throttle = rate.Sometimes{Every: 1}
	case c.interval > 0:
		c.throttle = rate.Sometimes{Interval: c.interval}
	case c.live:
		c.throttle = rate.Sometimes{Interval: 500 * time.Millisecond}
	default:
		c.throttle = rate.Sometimes{Interval: 10 * time.Second}
	}
	c.started = c.now()
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Advance records n more identifiers and redraws when the throttle allows.
func (c *Console) Advance(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.processed += n
	c.throttle.Do(c.render)
}

// Finish prints the final state and ends the progress line.
func (c *Console) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.render()
	if c.live {
		fmt.Fprintln(c.out)
	}
	c.finished = true
}

// Processed returns the total rendered so far.
func (c *Console) Processed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}

// render must be called with c.mu held.
func (c *Console) render() {
	elapsed := c.now().Sub(c.started)
	line := fmt.Sprintf("%s: %s / %s (%5.1f%%) %s/s %s",
		c.label,
		FormatCount(c.processed),
		FormatCount(c.expected),
		percent(c.processed, c.expected),
		FormatCount(ratePerSecond(c.processed, elapsed)),
		elapsed.Truncate(time.Second),
	)

	if c.live {
		fmt.Fprintf(c.out, "\r\033[K%s", color.CyanString(line))
		return
	}
	fmt.Fprintln(c.out, line)
}

func percent(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

func ratePerSecond(n int64, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(n) / elapsed.Seconds())
}

// FormatCount renders n with thousands separators, e.g. 1,492,000,000.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	head := len(s) % 3
	if head > 0 {
		out = append(out, s[:head]...)
	}
	for i := head; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
