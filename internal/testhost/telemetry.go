// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nya3jp/testplay/internal/protocol"
)

// telemetryFileName is written under the output directory after each run.
const telemetryFileName = "telemetry.prom"

// telemetry records host-local metrics. Nothing leaves the machine; the
// metrics are only written as a Prometheus textfile.
type telemetry struct {
	reg      *prometheus.Registry
	requests *prometheus.CounterVec
	results  *prometheus.CounterVec
	duration prometheus.Histogram
}

func newTelemetry() *telemetry {
	t := &telemetry{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "testplay_host_requests_total",
			Help: "Requests served by kind and completion status.",
		}, []string{"kind", "status"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "testplay_host_tests_total",
			Help: "Terminal test states reported by the host.",
		}, []string{"state"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testplay_host_test_duration_seconds",
			Help:    "Wall time of test runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	t.reg.MustRegister(t.requests, t.results, t.duration)
	return t
}

func (t *telemetry) observeTest(state protocol.ExecutionState, d time.Duration) {
	t.results.WithLabelValues(string(state)).Inc()
	t.duration.Observe(d.Seconds())
}

func (t *telemetry) observeRequest(kind string, status protocol.CompletionStatus) {
	t.requests.WithLabelValues(kind, string(status)).Inc()
}

func (t *telemetry) write(path string) (*protocol.Artifact, error) {
	if err := prometheus.WriteToTextfile(path, t.reg); err != nil {
		return nil, errors.Wrap(err, "writing telemetry")
	}
	return &protocol.Artifact{Path: path, DisplayName: telemetryFileName, Description: "Host telemetry"}, nil
}
