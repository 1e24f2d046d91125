// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package driver

import (
	"context"
	"path/filepath"

	"github.com/nya3jp/testplay/internal/reporting"
)

// Handler handles driver events.
//
// RunStart is called once before any source is opened. Result is called for
// each node the first time it reaches a terminal state in a run. RunEnd is
// called once with the final summary if RunStart succeeded, even if the run
// failed.
type Handler interface {
	RunStart(ctx context.Context) error
	SourceStart(ctx context.Context, source string) error
	Result(ctx context.Context, res *reporting.Result) error
	SourceEnd(ctx context.Context, ss *SourceSummary) error
	RunEnd(ctx context.Context, sum *Summary) error
}

// baseHandler is an implementation of Handler that does nothing in all
// methods. It can be embedded to handler implementations to provide default
// method implementations.
type baseHandler struct{}

var _ Handler = baseHandler{}

func (baseHandler) RunStart(ctx context.Context) error {
	return nil
}

func (baseHandler) SourceStart(ctx context.Context, source string) error {
	return nil
}

func (baseHandler) Result(ctx context.Context, res *reporting.Result) error {
	return nil
}

func (baseHandler) SourceEnd(ctx context.Context, ss *SourceSummary) error {
	return nil
}

func (baseHandler) RunEnd(ctx context.Context, sum *Summary) error {
	return nil
}

// streamedResultsHandler saves results to a file progressively.
type streamedResultsHandler struct {
	baseHandler
	resDir string

	writer *reporting.StreamedWriter
}

var _ Handler = &streamedResultsHandler{}

// NewStreamedResultsHandler creates a handler which saves results to a file
// progressively.
func NewStreamedResultsHandler(resDir string) *streamedResultsHandler {
	return &streamedResultsHandler{resDir: resDir}
}

func (h *streamedResultsHandler) RunStart(ctx context.Context) error {
	writer, err := reporting.NewStreamedWriter(filepath.Join(h.resDir, reporting.StreamedResultsFilename))
	if err != nil {
		return err
	}
	h.writer = writer
	return nil
}

func (h *streamedResultsHandler) Result(ctx context.Context, res *reporting.Result) error {
	return h.writer.Write(res)
}

func (h *streamedResultsHandler) RunEnd(ctx context.Context, sum *Summary) error {
	err := h.writer.Close()
	h.writer = nil
	return err
}

// resultsHandler writes the final node list in JSON and JUnit XML at the end
// of a run.
type resultsHandler struct {
	baseHandler
	resDir string
}

var _ Handler = &resultsHandler{}

// NewResultsHandler creates a handler which writes results.json and
// results.xml to resDir.
func NewResultsHandler(resDir string) *resultsHandler {
	return &resultsHandler{resDir: resDir}
}

func (h *resultsHandler) RunEnd(ctx context.Context, sum *Summary) error {
	results := sum.Results()
	if err := reporting.WriteResultsJSON(filepath.Join(h.resDir, reporting.ResultsJSONFilename), results); err != nil {
		return err
	}
	return reporting.WriteJUnitXMLResults(filepath.Join(h.resDir, reporting.JUnitXMLFilename), results)
}

// metricsHandler records driver metrics and writes them as a Prometheus
// textfile at the end of a run.
type metricsHandler struct {
	baseHandler
	path    string
	metrics *reporting.Metrics
}

var _ Handler = &metricsHandler{}

// NewMetricsHandler creates a handler which writes driver metrics to path.
func NewMetricsHandler(path string) *metricsHandler {
	return &metricsHandler{path: path, metrics: reporting.NewMetrics()}
}

func (h *metricsHandler) Result(ctx context.Context, res *reporting.Result) error {
	h.metrics.ObserveTest(res.State)
	return nil
}

func (h *metricsHandler) SourceEnd(ctx context.Context, ss *SourceSummary) error {
	if ss.Discovery != nil {
		h.metrics.ObserveRequest(phaseDiscovery, ss.Discovery.Status)
	}
	if ss.Run != nil {
		h.metrics.ObserveRequest(phaseRun, ss.Run.Status)
	}
	return nil
}

func (h *metricsHandler) RunEnd(ctx context.Context, sum *Summary) error {
	h.metrics.ObservePhase(phaseDiscovery, sum.DiscoveryTime)
	h.metrics.ObservePhase(phaseRun, sum.RunTime)
	h.metrics.ObservePhase(phaseTotal, sum.TotalTime)
	return h.metrics.WriteFile(h.path)
}
