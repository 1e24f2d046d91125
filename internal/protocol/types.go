// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package protocol defines the messages exchanged between the driver and a
// test host, and the gRPC service carrying them.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ExecutionState is the lifecycle state of a test node.
type ExecutionState string

const (
	StateDiscovered ExecutionState = "discovered"
	StateInProgress ExecutionState = "in-progress"
	StatePassed     ExecutionState = "passed"
	StateFailed     ExecutionState = "failed"
	StateSkipped    ExecutionState = "skipped"
	StateTimedOut   ExecutionState = "timed-out"
	StateError      ExecutionState = "error"
	StateCancelled  ExecutionState = "cancelled"
)

// AllStates lists every known execution state in lifecycle order.
var AllStates = []ExecutionState{
	StateDiscovered,
	StateInProgress,
	StatePassed,
	StateFailed,
	StateSkipped,
	StateTimedOut,
	StateError,
	StateCancelled,
}

// Valid reports whether s is a known state.
func (s ExecutionState) Valid() bool {
	for _, k := range AllStates {
		if s == k {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a final outcome of a run.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case StatePassed, StateFailed, StateSkipped, StateTimedOut, StateError, StateCancelled:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown states so that a malformed stream fails early.
func (s *ExecutionState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	st := ExecutionState(str)
	if !st.Valid() {
		return errors.Errorf("unknown execution state %q", str)
	}
	*s = st
	return nil
}

// Well-known keys of TestNode.Properties.
const (
	PropErrorMessage    = "error.message"
	PropErrorStacktrace = "error.stacktrace"
	PropSkipReason      = "skip.reason"
	PropDurationMillis  = "duration-ms"
	PropSource          = "source"
	PropParam           = "param"
)

// Artifact is a file produced as a side effect of a run.
type Artifact struct {
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// TestNode is a snapshot of a single discoverable or runnable test.
type TestNode struct {
	// UID identifies the logical test. It is the same in discovery and runs.
	UID         string            `json:"uid"`
	DisplayName string            `json:"displayName"`
	State       ExecutionState    `json:"state"`
	Properties  map[string]string `json:"properties,omitempty"`
	Artifacts   []*Artifact       `json:"artifacts,omitempty"`
}

// Clone returns a deep copy of n.
func (n *TestNode) Clone() *TestNode {
	c := *n
	if n.Properties != nil {
		c.Properties = make(map[string]string, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	if n.Artifacts != nil {
		c.Artifacts = make([]*Artifact, len(n.Artifacts))
		for i, a := range n.Artifacts {
			ac := *a
			c.Artifacts[i] = &ac
		}
	}
	return &c
}

// WithState returns a copy of n in state s.
func (n *TestNode) WithState(s ExecutionState) *TestNode {
	c := n.Clone()
	c.State = s
	return c
}

// Property returns the value of a property, or an empty string.
func (n *TestNode) Property(key string) string {
	return n.Properties[key]
}

// SetProperty sets a property, allocating the bag if needed.
func (n *TestNode) SetProperty(key, value string) {
	if n.Properties == nil {
		n.Properties = make(map[string]string)
	}
	n.Properties[key] = value
}

// TestNodeUpdate is an immutable event carrying one TestNode snapshot.
type TestNodeUpdate struct {
	RequestID string    `json:"requestId"`
	Seq       int64     `json:"seq"`
	Node      *TestNode `json:"node"`
}

// CompletionStatus tells how a request finished.
type CompletionStatus string

const (
	// StatusCompleted means all requested work was done.
	StatusCompleted CompletionStatus = "completed"
	// StatusPartial means the request finished but some nodes could not be
	// discovered or run.
	StatusPartial CompletionStatus = "partial"
	// StatusAborted means the request stopped early.
	StatusAborted CompletionStatus = "aborted"
)

// Completion is the final message of a request.
type Completion struct {
	RequestID string           `json:"requestId"`
	Status    CompletionStatus `json:"status"`
	// Total is the number of distinct nodes the provider reported.
	Total     int                    `json:"total"`
	Stats     map[ExecutionState]int `json:"stats,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Artifacts []*Artifact            `json:"artifacts,omitempty"`
}
