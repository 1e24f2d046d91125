// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nya3jp/testplay/internal/protocol"
)

// Metrics records driver metrics and writes them as a Prometheus textfile.
type Metrics struct {
	reg      *prometheus.Registry
	tests    *prometheus.CounterVec
	phases   *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

// NewMetrics returns Metrics with all counters at zero.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "testplay_driver_tests_total",
			Help: "Final states of test nodes run by the driver.",
		}, []string{"state"}),
		phases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "testplay_driver_phase_seconds",
			Help: "Wall time spent in each phase, summed over sources.",
		}, []string{"phase"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "testplay_driver_requests_total",
			Help: "Requests by phase and completion status.",
		}, []string{"phase", "status"}),
	}
	m.reg.MustRegister(m.tests, m.phases, m.requests)
	return m
}

// ObserveTest counts a node in its final state.
func (m *Metrics) ObserveTest(state protocol.ExecutionState) {
	m.tests.WithLabelValues(string(state)).Inc()
}

// ObservePhase adds d to the time spent in phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.phases.WithLabelValues(phase).Add(d.Seconds())
}

// ObserveRequest counts a completed request.
func (m *Metrics) ObserveRequest(phase string, status protocol.CompletionStatus) {
	m.requests.WithLabelValues(phase, string(status)).Inc()
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteFile writes the metrics to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
