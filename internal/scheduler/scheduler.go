// Package scheduler runs independent units of work on a bounded pool of
// workers. Every unit yields exactly one Outcome, and a failing unit never
// stops its siblings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidWorkers is returned when the pool size is not positive.
	ErrInvalidWorkers = errors.New("max workers must be at least 1")

	// ErrCancelled marks units that were never started because the run was cancelled.
	ErrCancelled = errors.New("unit not started: run cancelled")
)

// UnitFunc processes one unit and returns how many items it produced.
type UnitFunc func(ctx context.Context, unit string) (int64, error)

// Outcome is the terminal result of one unit: a count on success, an error on failure.
type Outcome struct {
	Unit     string
	Count    int64
	Err      error
	Started  bool
	Duration time.Duration
}

// Succeeded reports whether the unit completed without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// PanicError is the failure recorded for a unit whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Options tune a Run.
type Options struct {
	// OnStart is called when a unit is dispatched to a worker.
	OnStart func(unit string)

	// OnOutcome is called as soon as a unit finishes. It may run concurrently
	// from several workers.
	OnOutcome func(Outcome)
}

// Run processes units with at most maxWorkers running at once, dispatching in
// list order. It returns only after every unit has an Outcome; outcomes are
// returned in the same order as units.
//
// Units still waiting when ctx is cancelled are not started and get
// ErrCancelled. Running units see the cancelled context and decide for
// themselves how to stop.
func Run(ctx context.Context, units []string, maxWorkers int, fn UnitFunc, opts Options) ([]Outcome, error) {
	if maxWorkers < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWorkers, maxWorkers)
	}

	outcomes := make([]Outcome, len(units))

	// The group only bounds concurrency; unit functions never return an error to
	// it, so one failure cannot cancel the rest.
	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i, unit := range units {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Unit: unit, Err: ErrCancelled}
			notify(opts.OnOutcome, outcomes[i])
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = Outcome{Unit: unit, Err: ErrCancelled}
			} else {
				if opts.OnStart != nil {
					opts.OnStart(unit)
				}
				outcomes[i] = runUnit(ctx, unit, fn)
			}
			notify(opts.OnOutcome, outcomes[i])
			return nil
		})
	}

	_ = g.Wait()
	return outcomes, nil
}

func runUnit(ctx context.Context, unit string, fn UnitFunc) (out Outcome) {
	started := time.Now()
	out.Unit = unit
	out.Started = true

	defer func() {
		if r := recover(); r != nil {
			out.Count = 0
			out.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		out.Duration = time.Since(started)
	}()

	count, err := fn(ctx, unit)
	if err != nil {
		out.Err = err
		return out
	}
	out.Count = count
	return out
}

func notify(cb func(Outcome), o Outcome) {
	if cb != nil {
		cb(o)
	}
}

// Summary splits outcomes into successes and failures and sums the successful counts.
type Summary struct {
	Succeeded []Outcome
	Failed    []Outcome
	Total     int64
}

// Summarize builds a Summary from outcomes, preserving their order.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Succeeded() {
			s.Succeeded = append(s.Succeeded, o)
			s.Total += o.Count
			continue
		}
		s.Failed = append(s.Failed, o)
	}
	return s
}
