// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package sessiontest provides an in-memory session.Provider and a contract
// test suite for providers.
package sessiontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/session"
)

// Fake is an in-memory session.Provider replaying a fixed script.
type Fake struct {
	// DiscoveryBatches are the batches of nodes reported by DiscoverTests, in
	// order. Node states are forced to discovered.
	DiscoveryBatches [][]*protocol.TestNode
	// DiscoveryStatus is the status of the discovery completion. It defaults
	// to completed.
	DiscoveryStatus protocol.CompletionStatus
	// Results maps node UIDs to the states reported for them by RunTests, in
	// order. A node without an entry reports in-progress and then passed.
	Results map[string][]protocol.ExecutionState
	// RunBatchSize is the maximum number of updates per run batch. It
	// defaults to 1.
	RunBatchSize int
	// Concurrent makes RunTests report every node from its own goroutine.
	Concurrent bool
	// InitializeErr is returned by Initialize if set.
	InitializeErr error
	// BeforeDiscover and BeforeRun are called at the start of the requests.
	BeforeDiscover func()
	BeforeRun      func()

	seq atomic.Int64

	mu          sync.Mutex
	initialized bool
	exitCalls   int
	runs        [][]*protocol.TestNode
}

var _ session.Provider = (*Fake)(nil)

// Initialize marks the fake as initialized.
func (f *Fake) Initialize(ctx context.Context) (*protocol.InitializeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exitCalls > 0 {
		return nil, errors.New("fake provider already exited")
	}
	if f.InitializeErr != nil {
		return nil, f.InitializeErr
	}
	f.initialized = true
	return &protocol.InitializeResponse{
		HostName:     "fake",
		Capabilities: &protocol.Capabilities{MaxParallelism: 1},
	}, nil
}

func (f *Fake) checkUsable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return errors.New("fake provider not initialized")
	}
	if f.exitCalls > 0 {
		return errors.New("fake provider already exited")
	}
	return nil
}

func (f *Fake) update(requestID string, n *protocol.TestNode) *protocol.TestNodeUpdate {
	return &protocol.TestNodeUpdate{RequestID: requestID, Seq: f.seq.Add(1), Node: n}
}

// DiscoverTests replays DiscoveryBatches.
func (f *Fake) DiscoverTests(ctx context.Context, requestID string) (*session.Request, error) {
	if err := f.checkUsable(); err != nil {
		return nil, err
	}
	if f.BeforeDiscover != nil {
		f.BeforeDiscover()
	}

	req := session.NewRequest(requestID, 0)
	go func() {
		seen := make(map[string]struct{})
		for _, nodes := range f.DiscoveryBatches {
			var batch []*protocol.TestNodeUpdate
			for _, n := range nodes {
				seen[n.UID] = struct{}{}
				batch = append(batch, f.update(requestID, n.WithState(protocol.StateDiscovered)))
			}
			if err := req.Send(ctx, batch); err != nil {
				req.Abort(err)
				return
			}
		}
		status := f.DiscoveryStatus
		if status == "" {
			status = protocol.StatusCompleted
		}
		req.Finish(&protocol.Completion{Status: status, Total: len(seen)})
	}()
	return req, nil
}

func (f *Fake) statesOf(uid string) []protocol.ExecutionState {
	if states, ok := f.Results[uid]; ok {
		return states
	}
	return []protocol.ExecutionState{protocol.StateInProgress, protocol.StatePassed}
}

// RunTests reports the states in Results for each of nodes.
func (f *Fake) RunTests(ctx context.Context, requestID string, nodes []*protocol.TestNode) (*session.Request, error) {
	if err := f.checkUsable(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.runs = append(f.runs, nodes)
	f.mu.Unlock()
	if f.BeforeRun != nil {
		f.BeforeRun()
	}

	req := session.NewRequest(requestID, 0)
	go func() {
		var (
			mu    sync.Mutex
			stats = make(map[protocol.ExecutionState]int)
		)
		record := func(s protocol.ExecutionState) {
			mu.Lock()
			defer mu.Unlock()
			stats[s]++
		}

		var err error
		if f.Concurrent {
			err = f.runConcurrently(ctx, req, nodes, record)
		} else {
			err = f.runSequentially(ctx, req, nodes, record)
		}
		if err != nil {
			req.Abort(err)
			return
		}
		req.Finish(&protocol.Completion{Status: protocol.StatusCompleted, Total: len(nodes), Stats: stats})
	}()
	return req, nil
}

func (f *Fake) runSequentially(ctx context.Context, req *session.Request, nodes []*protocol.TestNode, record func(protocol.ExecutionState)) error {
	size := f.RunBatchSize
	if size <= 0 {
		size = 1
	}
	var batch []*protocol.TestNodeUpdate
	for _, n := range nodes {
		states := f.statesOf(n.UID)
		for _, s := range states {
			batch = append(batch, f.update(req.ID(), n.WithState(s)))
			if len(batch) == size {
				if err := req.Send(ctx, batch); err != nil {
					return err
				}
				batch = nil
			}
		}
		if len(states) > 0 {
			record(states[len(states)-1])
		}
	}
	return req.Send(ctx, batch)
}

func (f *Fake) runConcurrently(ctx context.Context, req *session.Request, nodes []*protocol.TestNode, record func(protocol.ExecutionState)) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(nodes))
	for _, n := range nodes {
		wg.Add(1)
		go func(n *protocol.TestNode) {
			defer wg.Done()
			states := f.statesOf(n.UID)
			for _, s := range states {
				if err := req.Send(ctx, []*protocol.TestNodeUpdate{f.update(req.ID(), n.WithState(s))}); err != nil {
					errs <- err
					return
				}
			}
			if len(states) > 0 {
				record(states[len(states)-1])
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

// Exit marks the fake as exited. It can be called any number of times.
func (f *Fake) Exit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitCalls++
	return nil
}

// ExitCalls returns how many times Exit was called.
func (f *Fake) ExitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCalls
}

// RunRequests returns the node sets passed to RunTests.
func (f *Fake) RunRequests() [][]*protocol.TestNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*protocol.TestNode(nil), f.runs...)
}

// Nodes returns display-named discovered nodes for uids, for building
// DiscoveryBatches.
func Nodes(uids ...string) []*protocol.TestNode {
	nodes := make([]*protocol.TestNode, len(uids))
	for i, uid := range uids {
		nodes[i] = &protocol.TestNode{UID: uid, DisplayName: uid, State: protocol.StateDiscovered}
	}
	return nodes
}
