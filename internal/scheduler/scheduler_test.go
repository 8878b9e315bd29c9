package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitNames(n int) []string {
	units := make([]string, n)
	for i := range units {
		units[i] = fmt.Sprintf("U%02d", i)
	}
	return units
}

func TestRun_AllSucceed(t *testing.T) {
	units := unitNames(10)

	outcomes, err := Run(context.Background(), units, 3, func(ctx context.Context, unit string) (int64, error) {
		return 7, nil
	}, Options{})
	require.NoError(t, err)
	require.Len(t, outcomes, 10)

	for i, o := range outcomes {
		assert.Equal(t, units[i], o.Unit, "outcomes keep unit order")
		assert.True(t, o.Succeeded())
		assert.Equal(t, int64(7), o.Count)
	}

	s := Summarize(outcomes)
	assert.Len(t, s.Succeeded, 10)
	assert.Empty(t, s.Failed)
	assert.Equal(t, int64(70), s.Total)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const limit = 3
	var active, peak atomic.Int64

	_, err := Run(context.Background(), unitNames(20), limit, func(ctx context.Context, unit string) (int64, error) {
		cur := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	}, Options{})
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Equal(t, int64(limit), peak.Load(), "pool should fill up with 20 slow units")
}

func TestRun_DispatchOrder(t *testing.T) {
	units := unitNames(8)
	var mu sync.Mutex
	var started []string

	_, err := Run(context.Background(), units, 1, func(ctx context.Context, unit string) (int64, error) {
		return 1, nil
	}, Options{OnStart: func(unit string) {
		mu.Lock()
		started = append(started, unit)
		mu.Unlock()
	}})
	require.NoError(t, err)

	assert.Equal(t, units, started)
}

func TestRun_FailureIsolation(t *testing.T) {
	units := unitNames(6)
	boom := errors.New("disk full")

	var reported []Outcome
	var mu sync.Mutex
	outcomes, err := Run(context.Background(), units, 2, func(ctx context.Context, unit string) (int64, error) {
		if unit == "U03" {
			return 99, boom
		}
		return 10, nil
	}, Options{OnOutcome: func(o Outcome) {
		mu.Lock()
		reported = append(reported, o)
		mu.Unlock()
	}})
	require.NoError(t, err)

	s := Summarize(outcomes)
	require.Len(t, s.Failed, 1)
	assert.Equal(t, "U03", s.Failed[0].Unit)
	assert.ErrorIs(t, s.Failed[0].Err, boom)
	assert.Zero(t, s.Failed[0].Count, "failed units contribute nothing")
	assert.Len(t, s.Succeeded, 5)
	assert.Equal(t, int64(50), s.Total)
	assert.Len(t, reported, 6, "every unit is reported exactly once")
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	outcomes, err := Run(context.Background(), []string{"AA", "AB"}, 2, func(ctx context.Context, unit string) (int64, error) {
		if unit == "AA" {
			panic("generator exploded")
		}
		return 4, nil
	}, Options{})
	require.NoError(t, err)

	var pe *PanicError
	require.ErrorAs(t, outcomes[0].Err, &pe)
	assert.Equal(t, "generator exploded", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, outcomes[0].Err.Error(), "panic: generator exploded")
	assert.True(t, outcomes[1].Succeeded())
}

func TestRun_InvalidWorkers(t *testing.T) {
	called := false
	_, err := Run(context.Background(), unitNames(2), 0, func(ctx context.Context, unit string) (int64, error) {
		called = true
		return 0, nil
	}, Options{})

	require.ErrorIs(t, err, ErrInvalidWorkers)
	assert.False(t, called, "no unit is dispatched on configuration error")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Run(ctx, unitNames(4), 2, func(ctx context.Context, unit string) (int64, error) {
		t.Fatalf("unit %s should not run", unit)
		return 0, nil
	}, Options{})
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, ErrCancelled)
	}
}

func TestRun_CancelMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcomes, err := Run(ctx, unitNames(10), 1, func(ctx context.Context, unit string) (int64, error) {
		if unit == "U02" {
			cancel()
		}
		return 1, nil
	}, Options{})
	require.NoError(t, err)
	require.Len(t, outcomes, 10)

	s := Summarize(outcomes)
	assert.Equal(t, int64(3), s.Total, "U00..U02 finished before cancellation")
	for _, o := range s.Failed {
		assert.ErrorIs(t, o.Err, ErrCancelled)
	}
}

func TestRun_Empty(t *testing.T) {
	outcomes, err := Run(context.Background(), nil, 4, func(ctx context.Context, unit string) (int64, error) {
		return 1, nil
	}, Options{})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
