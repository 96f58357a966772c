// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics provides Prometheus instrumentation for the notebook
// cell execution runtime: session lifecycle, cell execution outcomes
// and latency, widget updates, and security rejections.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrRegistrationFailed is returned by New when metric registration
// against the configured registry fails (most commonly a duplicate
// registration against a shared, non-test registerer).
var ErrRegistrationFailed = errors.New("metrics: registration failed")

const namespace = "cellrt"

// Config controls where Metrics registers its collectors.
type Config struct {
	// Registry receives the registered collectors. If nil, the package
	// uses a fresh prometheus.NewRegistry() rather than the global
	// DefaultRegisterer, so callers (including tests) can construct
	// more than one Metrics without a duplicate-registration panic.
	Registry prometheus.Registerer
}

// Metrics holds every collector the runtime reports.
type Metrics struct {
	registry prometheus.Registerer

	SessionsStarted   prometheus.Counter
	SessionsEnded     *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	SessionsEvicted   prometheus.Counter

	CellsExecutedTotal   *prometheus.CounterVec
	CellExecutionSeconds *prometheus.HistogramVec

	WidgetUpdatesTotal *prometheus.CounterVec
	SecurityRejections *prometheus.CounterVec
	AssetFetchErrors   prometheus.Counter
}

// New constructs and registers every collector against cfg.Registry
// (or a fresh private registry when cfg.Registry is nil).
func New(cfg Config) (*Metrics, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total number of sessions started.",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Total number of sessions ended, by reason.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently live in the manager.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "evicted_total",
			Help:      "Total number of sessions closed by the idle sweeper.",
		}),
		CellsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cell",
			Name:      "executed_total",
			Help:      "Total number of cells executed, by outcome.",
		}, []string{"outcome"}),
		CellExecutionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cell",
			Name:      "execution_seconds",
			Help:      "Cell execution latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		WidgetUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "widget",
			Name:      "updates_total",
			Help:      "Total number of widget value updates applied, by outcome.",
		}, []string{"outcome"}),
		SecurityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "rejections_total",
			Help:      "Total number of cells rejected by the security validator, by reason.",
		}, []string{"reason"}),
		AssetFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "fetch_errors_total",
			Help:      "Total number of asset fetcher failures.",
		}),
	}

	collectors := []prometheus.Collector{
		m.SessionsStarted, m.SessionsEnded, m.ActiveSessions, m.SessionsEvicted,
		m.CellsExecutedTotal, m.CellExecutionSeconds,
		m.WidgetUpdatesTotal, m.SecurityRejections, m.AssetFetchErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(ErrRegistrationFailed, err)
		}
	}
	return m, nil
}

// RecordCellExecution records a completed cell execution. outcome is
// typically "ok", "error", or "rejected".
func (m *Metrics) RecordCellExecution(outcome string, seconds float64) {
	m.CellsExecutedTotal.WithLabelValues(outcome).Inc()
	m.CellExecutionSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordWidgetUpdate records the outcome of a widget value update
// ("ok" or "rejected").
func (m *Metrics) RecordWidgetUpdate(outcome string) {
	m.WidgetUpdatesTotal.WithLabelValues(outcome).Inc()
}

// RecordSecurityRejection records a cell rejected by the validator,
// tagged by the violated rule.
func (m *Metrics) RecordSecurityRejection(reason string) {
	m.SecurityRejections.WithLabelValues(reason).Inc()
}

// SessionStarted records a new session and increments the active gauge.
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a session end (reason "client" or "idle") and
// decrements the active gauge.
func (m *Metrics) SessionEnded(reason string) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
	if reason == "idle" {
		m.SessionsEvicted.Inc()
	}
}
