// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package testhost implements a test session provider that discovers and
// runs tests registered in-process.
package testhost

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

// Version is reported in InitializeResponse.
const Version = "1.0.0"

const (
	defaultBatchSize     = 32
	defaultFlushInterval = 200 * time.Millisecond
	// abandonGrace is how long an interrupted test may take to return
	// before its goroutine is abandoned.
	abandonGrace = 5 * time.Second
)

// Sink receives the stream of a single request.
type Sink interface {
	SendUpdates(updates []*protocol.TestNodeUpdate) error
	SendLog(level logging.Level, msg string) error
}

// Host discovers and runs the tests of a Registry.
type Host struct {
	reg *Registry
	cfg Config
	clk clock.Clock
	tel *telemetry
	seq atomic.Int64
}

// Option customizes a Host.
type Option func(h *Host)

// WithClock makes the host measure time with clk.
func WithClock(clk clock.Clock) Option {
	return func(h *Host) { h.clk = clk }
}

// New returns a Host serving tests of reg.
func New(reg *Registry, cfg Config, opts ...Option) *Host {
	if cfg.Name == "" {
		cfg.Name = "testhost"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	h := &Host{reg: reg, cfg: cfg, clk: clock.NewClock()}
	if !cfg.TelemetryOptOut {
		h.tel = newTelemetry()
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the effective configuration.
func (h *Host) Config() Config { return h.cfg }

// Info returns the answer to Initialize.
func (h *Host) Info() *protocol.InitializeResponse {
	return &protocol.InitializeResponse{
		HostName:    h.cfg.Name,
		HostVersion: Version,
		ProcessID:   os.Getpid(),
		Capabilities: &protocol.Capabilities{
			SupportsArtifacts:    h.cfg.OutDir != "",
			SupportsCancellation: true,
			MaxParallelism:       h.cfg.Workers,
		},
	}
}
