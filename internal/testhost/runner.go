// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

// statCounter counts terminal states of a request.
type statCounter struct {
	mu    sync.Mutex
	stats map[protocol.ExecutionState]int
	total int
}

func (c *statCounter) add(s protocol.ExecutionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		c.stats = make(map[protocol.ExecutionState]int)
	}
	c.stats[s]++
	c.total++
}

// Discover reports every registered test as a discovered node in UID order.
// Registration errors are reported as error nodes and make the completion
// partial.
func (h *Host) Discover(ctx context.Context, requestID string, sink Sink) (*protocol.Completion, error) {
	b := newBatcher(h.clk, requestID, h.cfg.BatchSize, h.cfg.FlushInterval, &h.seq, sink.SendUpdates)
	var counter statCounter
	status := protocol.StatusCompleted

	for _, inst := range h.reg.sortedInstances() {
		if ctx.Err() != nil {
			status = protocol.StatusAborted
			break
		}
		if err := b.add(inst.node()); err != nil {
			b.close()
			return nil, err
		}
		counter.add(protocol.StateDiscovered)
	}

	if status != protocol.StatusAborted {
		for i, re := range h.reg.errs {
			n := &protocol.TestNode{
				UID:         fmt.Sprintf("invalid.%d", i+1),
				DisplayName: re.name,
				State:       protocol.StateError,
			}
			n.SetProperty(protocol.PropErrorMessage, re.err.Error())
			if err := b.add(n); err != nil {
				b.close()
				return nil, err
			}
			sink.SendLog(logging.LevelWarning, fmt.Sprintf("Invalid test %q: %v", re.name, re.err))
			counter.add(protocol.StateError)
			status = protocol.StatusPartial
		}
	}

	if err := b.close(); err != nil {
		return nil, err
	}
	c := &protocol.Completion{
		RequestID: requestID,
		Status:    status,
		Total:     counter.total,
		Stats:     counter.stats,
	}
	if status == protocol.StatusAborted {
		c.Reason = ctx.Err().Error()
	}
	if h.tel != nil {
		h.tel.observeRequest("discover", status)
	}
	return c, nil
}

// Run runs the tests named by nodes. Every distinct requested node is
// reported in progress and then in exactly one terminal state, except
// unknown ones, which are reported as errors right away. Cancelling ctx
// cancels running tests and reports the rest as cancelled.
func (h *Host) Run(ctx context.Context, requestID string, nodes []*protocol.TestNode, sink Sink) (*protocol.Completion, error) {
	b := newBatcher(h.clk, requestID, h.cfg.BatchSize, h.cfg.FlushInterval, &h.seq, sink.SendUpdates)
	var counter statCounter
	status := protocol.StatusCompleted

	seen := make(map[string]struct{})
	var insts []*instance
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, ok := seen[n.UID]; ok {
			continue
		}
		seen[n.UID] = struct{}{}
		inst, ok := h.reg.lookup(n.UID)
		if !ok {
			en := n.WithState(protocol.StateError)
			en.SetProperty(protocol.PropErrorMessage, "no such test")
			if err := b.add(en); err != nil {
				b.close()
				return nil, err
			}
			sink.SendLog(logging.LevelWarning, fmt.Sprintf("No such test: %s", n.UID))
			counter.add(protocol.StateError)
			status = protocol.StatusPartial
			continue
		}
		insts = append(insts, inst)
	}

	sink.SendLog(logging.LevelInfo, fmt.Sprintf("Running %d test(s) with %d worker(s)", len(insts), h.cfg.Workers))

	sem := semaphore.NewWeighted(int64(h.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	started := make([]bool, len(insts))
	for i, inst := range insts {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		if gctx.Err() != nil {
			sem.Release(1)
			break
		}
		started[i] = true
		g.Go(func() error {
			defer sem.Release(1)
			state, err := h.runTest(gctx, inst, b)
			if err != nil {
				return err
			}
			counter.add(state)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.close()
		return nil, err
	}

	for i, inst := range insts {
		if started[i] {
			continue
		}
		if err := b.add(inst.node().WithState(protocol.StateCancelled)); err != nil {
			b.close()
			return nil, err
		}
		counter.add(protocol.StateCancelled)
	}
	if err := b.close(); err != nil {
		return nil, err
	}

	c := &protocol.Completion{
		RequestID: requestID,
		Status:    status,
		Total:     counter.total,
		Stats:     counter.stats,
	}
	if ctx.Err() != nil {
		c.Status = protocol.StatusAborted
		c.Reason = ctx.Err().Error()
	}
	if h.tel != nil {
		h.tel.observeRequest("run", c.Status)
		if h.cfg.OutDir != "" {
			a, err := h.tel.write(filepath.Join(h.cfg.OutDir, telemetryFileName))
			if err != nil {
				logging.Warning(ctx, "Failed to write telemetry: ", err)
			} else {
				c.Artifacts = append(c.Artifacts, a)
			}
		}
	}
	return c, nil
}

// runTest runs a single test instance and returns its terminal state.
// An error is returned only if updates could not be sent.
func (h *Host) runTest(ctx context.Context, inst *instance, b *batcher) (protocol.ExecutionState, error) {
	base := inst.node()
	if err := b.add(base.WithState(protocol.StateInProgress)); err != nil {
		return "", err
	}

	st := newState(inst, h.cfg.OutDir)
	start := h.clk.Now()

	tctx, cancel := context.WithTimeout(ctx, inst.timeout())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				st.recordPanic(r, debug.Stack())
			}
		}()
		inst.test.Func(tctx, st)
	}()

	interrupted := false
	select {
	case <-done:
	case <-tctx.Done():
		interrupted = true
		select {
		case <-done:
		case <-h.clk.After(abandonGrace):
			logging.Warningf(ctx, "Test %s did not return after interruption; abandoning it", inst.uid)
		}
	}
	elapsed := h.clk.Since(start)

	final := base.Clone()
	switch {
	case !interrupted:
		st.conclude(final)
	case ctx.Err() != nil:
		final.State = protocol.StateCancelled
	default:
		final.State = protocol.StateTimedOut
		final.SetProperty(protocol.PropErrorMessage, fmt.Sprintf("test did not finish within %v", inst.timeout()))
	}
	final.SetProperty(protocol.PropDurationMillis, strconv.FormatInt(elapsed.Milliseconds(), 10))

	if a, err := st.saveLog(); err != nil {
		logging.Warningf(ctx, "Failed to save log of %s: %v", inst.uid, err)
	} else if a != nil {
		final.Artifacts = append(final.Artifacts, a)
	}

	if h.tel != nil {
		h.tel.observeTest(final.State, elapsed)
	}
	if err := b.add(final); err != nil {
		return "", err
	}
	return final.State, nil
}
