// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package driver

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/reporting"
	"github.com/nya3jp/testplay/internal/session"
)

// SourceSummary is the outcome of a single source.
type SourceSummary struct {
	Name string
	// Discovery and Run are the completions of the requests. They are nil if
	// the request did not complete.
	Discovery *protocol.Completion
	Run       *protocol.Completion
	// Discovered and Results are the latest snapshots of the nodes of each
	// request, in first-seen order. Nodes carry the source property.
	Discovered []*protocol.TestNode
	Results    []*protocol.TestNode
	// Tally counts the final states of Results.
	Tally      session.Tally
	Violations []*session.TransitionError
	// Missing lists the UIDs of discovered nodes the run never reported.
	Missing []string

	DiscoveryTime time.Duration
	RunTime       time.Duration
}

// Summary is the outcome of Driver.Run.
type Summary struct {
	Sources    []*SourceSummary
	Tally      session.Tally
	Violations []*session.TransitionError

	// DiscoveryTime and RunTime are summed over sources.
	DiscoveryTime time.Duration
	RunTime       time.Duration
	TotalTime     time.Duration
}

// Incomplete reports whether any request of any source did not finish with
// the completed status.
func (s *Summary) Incomplete() bool {
	for _, ss := range s.Sources {
		for _, c := range []*protocol.Completion{ss.Discovery, ss.Run} {
			if c == nil || c.Status != protocol.StatusCompleted {
				return true
			}
		}
	}
	return false
}

// Results returns the run results of all sources.
func (s *Summary) Results() []*reporting.Result {
	var results []*reporting.Result
	for _, ss := range s.Sources {
		for _, n := range ss.Results {
			results = append(results, reporting.NewResult(ss.Name, n))
		}
	}
	return results
}

// formatStats renders stats as "passed: 1; failed: 1" with states sorted by
// name and zero counts omitted.
func formatStats(stats map[protocol.ExecutionState]int) string {
	states := maps.Keys(stats)
	slices.Sort(states)
	var parts []string
	for _, s := range states {
		if stats[s] == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d", s, stats[s]))
	}
	if len(parts) == 0 {
		return "\t<empty>"
	}
	return strings.Join(parts, "; ")
}
