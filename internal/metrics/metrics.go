// Package metrics records cadena's provider calls, transaction outcomes and
// cache refreshes on a private Prometheus registry. Every method is safe on a
// nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Outcome labels for finished operations.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// Metrics holds cadena's collectors.
type Metrics struct {
	registry *prometheus.Registry

	rpcCalls     *prometheus.CounterVec
	rpcErrors    *prometheus.CounterVec
	rpcDuration  *prometheus.HistogramVec
	operations   *prometheus.CounterVec
	confirmation *prometheus.HistogramVec
	refreshes    *prometheus.CounterVec
	refreshDedup *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cadena",
				Name:      "rpc_calls_total",
				Help:      "Provider calls by method.",
			},
			[]string{"method"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cadena",
				Name:      "rpc_errors_total",
				Help:      "Failed provider calls by method and failure kind.",
			},
			[]string{"method", "kind"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cadena",
				Name:      "rpc_duration_seconds",
				Help:      "Provider call latency.",
				Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"method"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cadena",
				Name:      "operations_total",
				Help:      "Finished transaction requests by kind and outcome.",
			},
			[]string{"kind", "outcome", "failure"},
		),
		confirmation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cadena",
				Name:      "confirmation_seconds",
				Help:      "Time from submission to on-chain confirmation.",
				Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cadena",
				Name:      "cache_refreshes_total",
				Help:      "State cache refreshes by field and result.",
			},
			[]string{"field", "result"},
		),
		refreshDedup: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cadena",
				Name:      "cache_refresh_shared_total",
				Help:      "Refreshes that joined an in-flight read instead of issuing their own.",
			},
			[]string{"field"},
		),
	}

	m.registry.MustRegister(
		m.rpcCalls,
		m.rpcErrors,
		m.rpcDuration,
		m.operations,
		m.confirmation,
		m.refreshes,
		m.refreshDedup,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRPCCall records a provider call with its duration and result.
func (m *Metrics) RecordRPCCall(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
	if err != nil {
		m.rpcErrors.WithLabelValues(method, cadenaerr.KindOf(err).String()).Inc()
	}
}

// RecordOperation records a finished transaction request. A nil err is
// counted as confirmed.
func (m *Metrics) RecordOperation(kind string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.operations.WithLabelValues(kind, OutcomeConfirmed, "").Inc()
		return
	}
	m.operations.WithLabelValues(kind, OutcomeFailed, cadenaerr.KindOf(err).String()).Inc()
}

// ObserveConfirmation records how long a transaction took to confirm.
func (m *Metrics) ObserveConfirmation(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordRefresh records a cache refresh. shared is true when the caller
// joined a read already in flight.
func (m *Metrics) RecordRefresh(field string, shared bool, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(field, result).Inc()
	if shared {
		m.refreshDedup.WithLabelValues(field).Inc()
	}
}

// WriteTextfile writes the registry in text exposition format to path for
// the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
