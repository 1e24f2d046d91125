// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package session

import (
	"fmt"

	"github.com/nya3jp/testplay/internal/protocol"
)

// Tally counts nodes by execution state. Each node is counted once.
type Tally struct {
	Discovered int
	InProgress int
	Passed     int
	Failed     int
	Skipped    int
	TimedOut   int
	Error      int
	Cancelled  int
}

// TallyOf counts the states of nodes.
func TallyOf(nodes []*protocol.TestNode) Tally {
	var t Tally
	for _, n := range nodes {
		t.Add(n.State)
	}
	return t
}

// Add counts one node in state s.
func (t *Tally) Add(s protocol.ExecutionState) {
	switch s {
	case protocol.StateDiscovered:
		t.Discovered++
	case protocol.StateInProgress:
		t.InProgress++
	case protocol.StatePassed:
		t.Passed++
	case protocol.StateFailed:
		t.Failed++
	case protocol.StateSkipped:
		t.Skipped++
	case protocol.StateTimedOut:
		t.TimedOut++
	case protocol.StateError:
		t.Error++
	case protocol.StateCancelled:
		t.Cancelled++
	}
}

// Merge adds the counts of o to t.
func (t *Tally) Merge(o Tally) {
	t.Discovered += o.Discovered
	t.InProgress += o.InProgress
	t.Passed += o.Passed
	t.Failed += o.Failed
	t.Skipped += o.Skipped
	t.TimedOut += o.TimedOut
	t.Error += o.Error
	t.Cancelled += o.Cancelled
}

// Counts returns the non-zero counts keyed by state.
func (t Tally) Counts() map[protocol.ExecutionState]int {
	m := make(map[protocol.ExecutionState]int)
	for s, n := range map[protocol.ExecutionState]int{
		protocol.StateDiscovered: t.Discovered,
		protocol.StateInProgress: t.InProgress,
		protocol.StatePassed:     t.Passed,
		protocol.StateFailed:     t.Failed,
		protocol.StateSkipped:    t.Skipped,
		protocol.StateTimedOut:   t.TimedOut,
		protocol.StateError:      t.Error,
		protocol.StateCancelled:  t.Cancelled,
	} {
		if n > 0 {
			m[s] = n
		}
	}
	return m
}

// Total returns the number of counted nodes.
func (t Tally) Total() int {
	return t.Discovered + t.InProgress + t.Passed + t.Failed + t.Skipped + t.TimedOut + t.Error + t.Cancelled
}

// Unsuccessful returns the number of nodes that neither passed nor were
// skipped.
func (t Tally) Unsuccessful() int {
	return t.Total() - t.Passed - t.Skipped
}

// String renders the summary line printed by the driver.
func (t Tally) String() string {
	return fmt.Sprintf("Passed: %d; Skipped: %d; Failed: %d;", t.Passed, t.Skipped, t.Failed)
}
