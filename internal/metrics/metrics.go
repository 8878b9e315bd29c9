// Package metrics exposes Prometheus metrics for a generation run.
//
// Collectors are registered on a private registry rather than the global one
// so tests and repeated runs in one process do not collide.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ninogen"

// Unit status label values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics holds the collectors for one run.
type Metrics struct {
	Registry *prometheus.Registry

	// IdentifiersTotal counts identifiers written across all partitions.
	IdentifiersTotal prometheus.Counter

	// ExpectedTotal is the precomputed grand total for the run.
	ExpectedTotal prometheus.Gauge

	// UnitsTotal counts finished units by status.
	UnitsTotal *prometheus.CounterVec

	// ActiveUnits is the number of units currently being written.
	ActiveUnits prometheus.Gauge

	// UnitDurationSeconds measures wall time per unit.
	UnitDurationSeconds prometheus.Histogram
}

// New creates and registers the run collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		IdentifiersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_written_total",
			Help:      "Identifiers written to partition files",
		}),
		ExpectedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identifiers_expected",
			Help:      "Identifiers the run is expected to write",
		}),
		UnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Finished units of work by status",
		}, []string{"status"}),
		ActiveUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_active",
			Help:      "Units currently being generated",
		}),
		UnitDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to generate and write one unit",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		m.IdentifiersTotal,
		m.ExpectedTotal,
		m.UnitsTotal,
		m.ActiveUnits,
		m.UnitDurationSeconds,
	)
	return m
}

// Advance implements progress.Observer.
func (m *Metrics) Advance(n int64) {
	m.IdentifiersTotal.Add(float64(n))
}

// UnitStarted marks a unit as running.
func (m *Metrics) UnitStarted() {
	m.ActiveUnits.Inc()
}

// UnitFinished records a unit's terminal status and duration.
func (m *Metrics) UnitFinished(succeeded bool, d time.Duration) {
	m.ActiveUnits.Dec()
	status := StatusSucceeded
	if !succeeded {
		status = StatusFailed
	}
	m.UnitsTotal.WithLabelValues(status).Inc()
	m.UnitDurationSeconds.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Server serves /metrics until Shutdown is called.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts an HTTP server for m on addr and returns once it is listening.
func Serve(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Metrics] server stopped: %v", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
