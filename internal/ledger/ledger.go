// Package ledger records a generation run in Redis so that other processes
// can follow it: the live identifier count, the outcome of every unit, and a
// stream of JSON events on a Pub/Sub channel.
//
// All keys are namespaced by run ID:
//
//	ninogen:run:{id}           hash   run metadata and final totals
//	ninogen:run:{id}:progress  string identifiers written so far
//	ninogen:run:{id}:units     hash   prefix -> unit outcome JSON
//	ninogen:run:{id}:events    channel
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Run status values stored in the run hash.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
)

// Event types published on the events channel.
const (
	EventRunStarted   = "run_started"
	EventUnitFinished = "unit_finished"
	EventRunFinished  = "run_finished"
)

// RunKey returns the hash key holding run metadata.
func RunKey(runID string) string {
	return fmt.Sprintf("ninogen:run:%s", runID)
}

// ProgressKey returns the key of the live identifier counter.
func ProgressKey(runID string) string {
	return RunKey(runID) + ":progress"
}

// UnitsKey returns the hash key of per-unit outcomes.
func UnitsKey(runID string) string {
	return RunKey(runID) + ":units"
}

// EventsChannel returns the Pub/Sub channel for run events.
func EventsChannel(runID string) string {
	return RunKey(runID) + ":events"
}

// UnitRecord is the stored outcome of one unit.
type UnitRecord struct {
	Prefix     string `json:"prefix"`
	Status     string `json:"status"`
	Count      int64  `json:"count"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Event is published for every state change of the run.
type Event struct {
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Timestamp string      `json:"timestamp"`
	Unit      *UnitRecord `json:"unit,omitempty"`
	Expected  int64       `json:"expected,omitempty"`
	Written   int64       `json:"written,omitempty"`
	Failed    int         `json:"failed,omitempty"`
}

// Ledger writes one run's state to Redis. It is safe for concurrent use.
type Ledger struct {
	rdb   *redis.Client
	runID string
	ctx   context.Context

	errOnce sync.Once
}

// New creates a ledger for runID using the given Redis options.
func New(ctx context.Context, opts *redis.Options, runID string) (*Ledger, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}
	return &Ledger{
		rdb:   redis.NewClient(opts),
		runID: runID,
		ctx:   context.WithoutCancel(ctx),
	}, nil
}

// Open parses a redis:// URL, connects, and verifies the server is reachable.
func Open(ctx context.Context, url, runID string) (*Ledger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	l, err := New(ctx, opts, runID)
	if err != nil {
		return nil, err
	}
	if err := l.Ping(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return l, nil
}

// RunID returns the run this ledger records.
func (l *Ledger) RunID() string {
	return l.runID
}

// Ping verifies Redis connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.rdb.Close()
}

// Start records the run metadata and publishes run_started.
func (l *Ledger) Start(ctx context.Context, expected int64, units, maxWorkers int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := l.rdb.TxPipeline()
	pipe.HSet(ctx, RunKey(l.runID), map[string]interface{}{
		"status":      StatusRunning,
		"expected":    expected,
		"units":       units,
		"max_workers": maxWorkers,
		"started_at":  now,
	})
	pipe.Set(ctx, ProgressKey(l.runID), 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	return l.publish(ctx, Event{Type: EventRunStarted, Expected: expected})
}

// Advance implements progress.Observer by incrementing the live counter.
// Redis errors are logged once and otherwise ignored so that a ledger outage
// never fails a unit.
func (l *Ledger) Advance(n int64) {
	if err := l.rdb.IncrBy(l.ctx, ProgressKey(l.runID), n).Err(); err != nil {
		l.errOnce.Do(func() {
			log.Printf("[Ledger] failed to update progress for run %s: %v", l.runID, err)
		})
	}
}

// RecordUnit stores a unit's outcome and publishes unit_finished.
func (l *Ledger) RecordUnit(ctx context.Context, rec UnitRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal unit record: %w", err)
	}
	if err := l.rdb.HSet(ctx, UnitsKey(l.runID), rec.Prefix, data).Err(); err != nil {
		return fmt.Errorf("failed to record unit %s: %w", rec.Prefix, err)
	}
	return l.publish(ctx, Event{Type: EventUnitFinished, Unit: &rec})
}

// Finish records the final totals and publishes run_finished.
func (l *Ledger) Finish(ctx context.Context, written int64, failed int) error {
	err := l.rdb.HSet(ctx, RunKey(l.runID), map[string]interface{}{
		"status":      StatusFinished,
		"written":     written,
		"failed":      failed,
		"finished_at": time.Now().UTC().Format(time.RFC3339),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return l.publish(ctx, Event{Type: EventRunFinished, Written: written, Failed: failed})
}

// Progress returns the live identifier count stored for the run.
func (l *Ledger) Progress(ctx context.Context) (int64, error) {
	v, err := l.rdb.Get(ctx, ProgressKey(l.runID)).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// Units returns every stored unit outcome keyed by prefix.
func (l *Ledger) Units(ctx context.Context) (map[string]UnitRecord, error) {
	raw, err := l.rdb.HGetAll(ctx, UnitsKey(l.runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read units: %w", err)
	}

	out := make(map[string]UnitRecord, len(raw))
	for prefix, data := range raw {
		var rec UnitRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode unit %s: %w", prefix, err)
		}
		out[prefix] = rec
	}
	return out, nil
}

// Run returns the run metadata hash.
func (l *Ledger) Run(ctx context.Context) (map[string]string, error) {
	return l.rdb.HGetAll(ctx, RunKey(l.runID)).Result()
}

func (l *Ledger) publish(ctx context.Context, ev Event) error {
	ev.RunID = l.runID
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := l.rdb.Publish(ctx, EventsChannel(l.runID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}
