// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/nya3jp/testplay/internal/protocol"
)

// batcher groups node snapshots of a request into UpdateBatch-sized slices.
// A batch is sent when it reaches size, when the flush interval elapses and
// on close. Sends happen with the lock held, so updates of a node are sent
// in the order they are added.
type batcher struct {
	requestID string
	size      int
	seq       *atomic.Int64
	send      func(updates []*protocol.TestNodeUpdate) error

	mu      sync.Mutex
	buf     []*protocol.TestNodeUpdate
	err     error
	closed  bool
	ticker  clock.Ticker
	stop    chan struct{}
	stopped chan struct{}
}

func newBatcher(clk clock.Clock, requestID string, size int, interval time.Duration, seq *atomic.Int64, send func([]*protocol.TestNodeUpdate) error) *batcher {
	if size <= 0 {
		size = 1
	}
	b := &batcher{
		requestID: requestID,
		size:      size,
		seq:       seq,
		send:      send,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if interval <= 0 {
		close(b.stopped)
		return b
	}
	b.ticker = clk.NewTicker(interval)
	go func() {
		defer close(b.stopped)
		for {
			select {
			case <-b.ticker.C():
				b.mu.Lock()
				b.flushLocked()
				b.mu.Unlock()
			case <-b.stop:
				return
			}
		}
	}()
	return b
}

// add queues a snapshot of n. It returns the first send error seen.
func (b *batcher) add(n *protocol.TestNode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.buf = append(b.buf, &protocol.TestNodeUpdate{
		RequestID: b.requestID,
		Seq:       b.seq.Add(1),
		Node:      n.Clone(),
	})
	if len(b.buf) >= b.size {
		b.flushLocked()
	}
	return b.err
}

func (b *batcher) flushLocked() {
	if len(b.buf) == 0 || b.err != nil {
		return
	}
	batch := b.buf
	b.buf = nil
	b.err = b.send(batch)
}

// close stops the ticker and sends remaining updates.
func (b *batcher) close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		if b.ticker != nil {
			b.ticker.Stop()
			close(b.stop)
		}
	}
	b.mu.Unlock()
	<-b.stopped

	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
	return b.err
}
