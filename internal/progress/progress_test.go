package progress

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a concurrency-safe Observer that keeps every increment.
type recorder struct {
	mu    sync.Mutex
	steps []int64
}

func (r *recorder) Advance(n int64) {
	r.mu.Lock()
	r.steps = append(r.steps, n)
	r.mu.Unlock()
}

func (r *recorder) sum() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s int64
	for _, n := range r.steps {
		s += n
	}
	return s
}

func TestTracker_ConcurrentAdvanceIsExact(t *testing.T) {
	rec := &recorder{}
	tracker := NewTracker(rec)

	const workers = 16
	const perWorker = 10_000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.Advance(3)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker*3), tracker.Total())
	assert.Equal(t, tracker.Total(), rec.sum())
}

func TestTracker_IgnoresNonPositive(t *testing.T) {
	rec := &recorder{}
	tracker := NewTracker(rec)

	tracker.Advance(5)
	tracker.Advance(0)
	tracker.Advance(-3)

	assert.Equal(t, int64(5), tracker.Total())
	assert.Equal(t, []int64{5}, rec.steps)
}

func TestTracker_MonotonicUnderConcurrency(t *testing.T) {
	tracker := NewTracker()

	var last atomic.Int64
	var violations atomic.Int64
	tracker.Attach(ObserverFunc(func(int64) {
		cur := tracker.Total()
		for {
			prev := last.Load()
			if cur <= prev {
				break
			}
			if last.CompareAndSwap(prev, cur) {
				break
			}
		}
	}))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var seen int64
			for i := 0; i < 1000; i++ {
				tracker.Advance(1)
				cur := tracker.Total()
				if cur < seen {
					violations.Add(1)
				}
				seen = cur
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, int64(8000), tracker.Total())
	assert.Equal(t, int64(8000), last.Load())
}

func TestTracker_NilObserversSkipped(t *testing.T) {
	tracker := NewTracker(nil, Nop{})
	tracker.Attach(nil)

	require.NotPanics(t, func() { tracker.Advance(1) })
	assert.Equal(t, int64(1), tracker.Total())
}

func TestConsole_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	console := NewConsole(&buf, "Generating", 1000,
		WithLive(false),
		WithInterval(-1),
		WithClock(func() time.Time { return now }),
	)

	now = start.Add(2 * time.Second)
	console.Advance(500)
	console.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Generating: 500 / 1,000")
	assert.Contains(t, lines[0], "50.0%")
	assert.Contains(t, lines[0], "250/s")
	assert.Equal(t, int64(500), console.Processed())
}

func TestConsole_FinishOnce(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf, "Generating", 10, WithLive(false), WithInterval(-1))

	console.Finish()
	console.Finish()
	console.Advance(5)

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Zero(t, console.Processed())
}

func TestConsole_LiveRedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf, "Generating", 10, WithLive(true), WithInterval(-1))

	console.Advance(4)
	console.Advance(6)
	console.Finish()

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "\r"))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "10 / 10")
}

func TestConsole_Throttled(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf, "Generating", 100, WithLive(false), WithInterval(time.Hour))

	for i := 0; i < 50; i++ {
		console.Advance(1)
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"), "only the first advance renders within the interval")
	assert.Equal(t, int64(50), console.Processed())
}

func TestFormatCount(t *testing.T) {
	tests := map[int64]string{
		0:             "0",
		999:           "999",
		1000:          "1,000",
		12_000_000:    "12,000,000",
		1_492_000_000: "1,492,000,000",
		-4500:         "-4,500",
	}
	for n, want := range tests {
		assert.Equal(t, want, FormatCount(n))
	}
}
