// Package engine runs one complete generation job: it partitions the
// keyspace, dispatches each prefix to the worker pool, streams every unit to
// its partition file and aggregates the outcome into a Report.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dyluth/ninogen/internal/config"
	"github.com/dyluth/ninogen/internal/generator"
	"github.com/dyluth/ninogen/internal/keyspace"
	"github.com/dyluth/ninogen/internal/ledger"
	"github.com/dyluth/ninogen/internal/metrics"
	"github.com/dyluth/ninogen/internal/partition"
	"github.com/dyluth/ninogen/internal/progress"
	"github.com/dyluth/ninogen/internal/scheduler"
	"github.com/google/uuid"
)

// Plan is the static division of work for a run.
type Plan struct {
	Units    []keyspace.Prefix
	Params   generator.Params
	PerUnit  int64
	Expected int64
}

// NewPlan partitions the keyspace described by cfg.
func NewPlan(cfg *config.Config) (*Plan, error) {
	units, err := cfg.Keyspace.Units()
	if err != nil {
		return nil, err
	}
	params := cfg.Keyspace.Params()
	perUnit := params.PerUnit()
	return &Plan{
		Units:    units,
		Params:   params,
		PerUnit:  perUnit,
		Expected: int64(len(units)) * perUnit,
	}, nil
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	MaxWorkers int
	Units      int
	Expected   int64
	Written    int64 // Sum of succeeded unit counts
	Progress   int64 // Everything reported to the progress tracker, including partial failed units
	Succeeded  []scheduler.Outcome
	Failed     []scheduler.Outcome
	Elapsed    time.Duration
}

// OK reports whether every unit succeeded.
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

// Engine executes a Plan. Optional collaborators (metrics, ledger, extra
// progress observers) are attached with Options.
type Engine struct {
	cfg     *config.Config
	plan    *Plan
	runID   string
	tracker *progress.Tracker
	writer  *partition.Writer
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	logger  *log.Logger

	onFailure func(scheduler.Outcome)
	unitFunc  scheduler.UnitFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver adds a progress observer such as a console renderer.
func WithObserver(o progress.Observer) Option {
	return func(e *Engine) {
		e.tracker.Attach(o)
	}
}

// WithMetrics records the run in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLedger records the run in a Redis ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// WithLogOutput sends structured event logs to w. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.logger = log.New(w, "", log.LstdFlags)
	}
}

// WithFailureHandler is called as soon as a unit fails, from the worker goroutine.
func WithFailureHandler(fn func(scheduler.Outcome)) Option {
	return func(e *Engine) {
		e.onFailure = fn
	}
}

// New creates an engine for plan using the output settings in cfg.
func New(cfg *config.Config, plan *Plan, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		plan:    plan,
		runID:   uuid.New().String(),
		tracker: progress.NewTracker(),
		logger:  log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.metrics != nil {
		e.tracker.Attach(e.metrics)
	}
	if e.ledger != nil {
		e.tracker.Attach(e.ledger)
	}

	e.writer = &partition.Writer{
		Dir:       cfg.OutputDir,
		Mode:      partition.Mode(cfg.Mode),
		BatchSize: cfg.BatchSize,
		Observer:  e.tracker,
	}
	e.unitFunc = e.generateUnit
	return e
}

// RunID returns the identifier of this run.
func (e *Engine) RunID() string {
	return e.runID
}

// Tracker returns the shared progress tracker.
func (e *Engine) Tracker() *progress.Tracker {
	return e.tracker
}

// Run generates every unit of the plan and returns the report.
//
// Unit failures do not make Run fail; they are listed in Report.Failed.
// An error is returned only when the run cannot start (invalid worker count
// or unwritable output directory), in which case no unit has been dispatched.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("%w: max_workers must be a positive integer, got %d", config.ErrInvalidConfig, e.cfg.MaxWorkers)
	}
	if err := partition.CheckWritable(e.cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	started := time.Now()
	e.logEvent("run_started", map[string]interface{}{
		"units":       len(e.plan.Units),
		"expected":    e.plan.Expected,
		"max_workers": e.cfg.MaxWorkers,
		"output_dir":  e.cfg.OutputDir,
		"mode":        e.cfg.Mode,
	})
	if e.metrics != nil {
		e.metrics.ExpectedTotal.Set(float64(e.plan.Expected))
	}
	if e.ledger != nil {
		if err := e.ledger.Start(ctx, e.plan.Expected, len(e.plan.Units), e.cfg.MaxWorkers); err != nil {
			e.logError("ledger_error", map[string]interface{}{"error": err.Error()})
		}
	}

	outcomes, err := scheduler.Run(ctx, keyspace.Strings(e.plan.Units), e.cfg.MaxWorkers, e.unitFunc, scheduler.Options{
		OnStart:   e.unitStarted,
		OnOutcome: e.unitFinished,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	summary := scheduler.Summarize(outcomes)
	report := &Report{
		RunID:      e.runID,
		MaxWorkers: e.cfg.MaxWorkers,
		Units:      len(e.plan.Units),
		Expected:   e.plan.Expected,
		Written:    summary.Total,
		Progress:   e.tracker.Total(),
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Elapsed:    time.Since(started),
	}

	e.logEvent("run_finished", map[string]interface{}{
		"written":    report.Written,
		"succeeded":  len(report.Succeeded),
		"failed":     len(report.Failed),
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})
	if e.ledger != nil {
		if err := e.ledger.Finish(context.WithoutCancel(ctx), report.Written, len(report.Failed)); err != nil {
			e.logError("ledger_error", map[string]interface{}{"error": err.Error()})
		}
	}

	return report, nil
}

// generateUnit streams one prefix to its partition file.
func (e *Engine) generateUnit(ctx context.Context, unit string) (int64, error) {
	prefix, err := keyspace.ParsePrefix(unit)
	if err != nil {
		return 0, err
	}

	n, err := e.writer.Write(ctx, prefix, generator.New(prefix, e.plan.Params))
	if err != nil {
		return n, err
	}
	if n != e.plan.PerUnit {
		return n, fmt.Errorf("unit %s wrote %d identifiers, expected %d", unit, n, e.plan.PerUnit)
	}
	return n, nil
}

func (e *Engine) unitStarted(unit string) {
	if e.metrics != nil {
		e.metrics.UnitStarted()
	}
}

func (e *Engine) unitFinished(o scheduler.Outcome) {
	status := metrics.StatusSucceeded
	data := map[string]interface{}{
		"prefix":      o.Unit,
		"count":       o.Count,
		"duration_ms": o.Duration.Milliseconds(),
	}
	if !o.Succeeded() {
		status = metrics.StatusFailed
		data["error"] = o.Err.Error()
	}
	data["status"] = status
	if o.Succeeded() {
		e.logEvent("unit_finished", data)
	} else {
		e.logError("unit_failed", data)
	}

	// Cancelled units never started, so they have no active gauge to release.
	if e.metrics != nil && o.Started {
		e.metrics.UnitFinished(o.Succeeded(), o.Duration)
	}
	if e.ledger != nil {
		rec := ledger.UnitRecord{
			Prefix:     o.Unit,
			Status:     status,
			Count:      o.Count,
			DurationMs: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}
		if err := e.ledger.RecordUnit(context.Background(), rec); err != nil {
			e.logError("ledger_error", map[string]interface{}{"prefix": o.Unit, "error": err.Error()})
		}
	}
	if !o.Succeeded() && e.onFailure != nil {
		e.onFailure(o)
	}
}

func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	e.log("info", eventType, data)
}

func (e *Engine) logError(eventType string, data map[string]interface{}) {
	e.log("error", eventType, data)
}

// log writes a single-line JSON event log entry.
func (e *Engine) log(level, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = level
	data["component"] = "engine"
	data["event_type"] = eventType
	data["run_id"] = e.runID

	jsonData, err := json.Marshal(data)
	if err != nil {
		e.logger.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	e.logger.Println(string(jsonData))
}
