// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package session

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// TransitionError reports a state transition going backwards in the node
// lifecycle.
type TransitionError struct {
	UID  string
	From protocol.ExecutionState
	To   protocol.ExecutionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("node %s: invalid transition from %s to %s", e.UID, e.From, e.To)
}

// rank orders states along the lifecycle discovered, in-progress, terminal.
func rank(s protocol.ExecutionState) int {
	switch s {
	case protocol.StateDiscovered:
		return 0
	case protocol.StateInProgress:
		return 1
	default:
		return 2
	}
}

// validTransition reports whether a node may move from one state to another.
// Repeating a state is allowed, but a terminal state never changes.
func validTransition(from, to protocol.ExecutionState) bool {
	if from == to {
		return true
	}
	if rank(to) < rank(from) {
		return false
	}
	return !from.IsTerminal()
}

// Accumulator collects updates of a request. It is safe for concurrent use.
type Accumulator struct {
	mu         sync.Mutex
	updates    []*protocol.TestNodeUpdate
	order      []string
	latest     map[string]*protocol.TestNode
	violations []*TransitionError
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{latest: make(map[string]*protocol.TestNode)}
}

// Add records updates. Every update is kept even if it violates the
// lifecycle. Add returns the first *TransitionError of the batch, and all of
// them are kept for Violations.
func (a *Accumulator) Add(batch ...*protocol.TestNodeUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, u := range batch {
		if u == nil || u.Node == nil {
			if firstErr == nil {
				firstErr = errors.New("update without node")
			}
			continue
		}
		n := u.Node
		prev, seen := a.latest[n.UID]
		if !seen {
			a.order = append(a.order, n.UID)
		} else if !validTransition(prev.State, n.State) {
			te := &TransitionError{UID: n.UID, From: prev.State, To: n.State}
			a.violations = append(a.violations, te)
			if firstErr == nil {
				firstErr = te
			}
		}
		a.updates = append(a.updates, u)
		a.latest[n.UID] = n
	}
	return firstErr
}

// Updates returns all recorded updates in arrival order.
func (a *Accumulator) Updates() []*protocol.TestNodeUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*protocol.TestNodeUpdate(nil), a.updates...)
}

// Nodes returns the latest snapshot of each node in first-seen order.
func (a *Accumulator) Nodes() []*protocol.TestNode {
	a.mu.Lock()
	defer a.mu.Unlock()
	nodes := make([]*protocol.TestNode, len(a.order))
	for i, uid := range a.order {
		nodes[i] = a.latest[uid]
	}
	return nodes
}

// Node returns the latest snapshot of a node.
func (a *Accumulator) Node(uid string) (*protocol.TestNode, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.latest[uid]
	return n, ok
}

// Len returns the number of unique node identities seen.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Violations returns every lifecycle violation seen so far.
func (a *Accumulator) Violations() []*TransitionError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*TransitionError(nil), a.violations...)
}

// Tally counts the final states of the nodes.
func (a *Accumulator) Tally() Tally {
	return TallyOf(a.Nodes())
}
