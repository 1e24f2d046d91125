// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package session

import (
	"context"
	"io"
	"sync"

	"github.com/nya3jp/testplay/internal/protocol"
)

// DefaultBufferSize is the number of batches a Request buffers before Send
// blocks.
const DefaultBufferSize = 16

// RequestState is the state of a Request.
type RequestState int

const (
	// RequestCreated means no update has been sent yet.
	RequestCreated RequestState = iota
	// RequestStreaming means updates are being sent.
	RequestStreaming
	// RequestCompleted means the completion is set. No more updates follow.
	RequestCompleted
)

func (s RequestState) String() string {
	switch s {
	case RequestCreated:
		return "created"
	case RequestStreaming:
		return "streaming"
	case RequestCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Request is an in-flight discovery or run request.
//
// A provider sends batches of updates with Send and ends the request with
// Finish or Abort. A consumer reads the batches with Next until io.EOF and
// then gets the completion with Wait. The completion is available only after
// every batch has been read.
type Request struct {
	id string
	ch chan []*protocol.TestNodeUpdate

	// sendMu is held for reading during Send and for writing while finishing,
	// so that the channel is never closed under a sender.
	sendMu     sync.RWMutex
	finishOnce sync.Once

	aborted   chan struct{}
	abortOnce sync.Once

	mu         sync.Mutex
	state      RequestState
	completion *protocol.Completion
	err        error
}

// NewRequest creates a Request buffering up to bufferSize batches. A
// non-positive bufferSize selects DefaultBufferSize.
func NewRequest(id string, bufferSize int) *Request {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Request{
		id:      id,
		ch:      make(chan []*protocol.TestNodeUpdate, bufferSize),
		aborted: make(chan struct{}),
	}
}

// ID returns the request ID.
func (r *Request) ID() string { return r.id }

// State returns the current state of the request.
func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Send delivers a batch of updates. It blocks while the buffer is full.
// Empty batches are dropped. It is safe to call Send from many goroutines.
func (r *Request) Send(ctx context.Context, batch []*protocol.TestNodeUpdate) error {
	if len(batch) == 0 {
		return nil
	}

	r.sendMu.RLock()
	defer r.sendMu.RUnlock()

	r.mu.Lock()
	if r.state == RequestCompleted {
		r.mu.Unlock()
		return ErrRequestFinished
	}
	r.state = RequestStreaming
	r.mu.Unlock()

	select {
	case r.ch <- batch:
		return nil
	case <-r.aborted:
		return ErrRequestFinished
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish completes the request with c. It waits for in-progress Send calls.
// Missing request ID and status of c are filled in with the ID of r and
// completed.
func (r *Request) Finish(c *protocol.Completion) error {
	if c == nil {
		c = &protocol.Completion{}
	}
	if c.Status == "" {
		c.Status = protocol.StatusCompleted
	}
	if c.RequestID == "" {
		c.RequestID = r.id
	}
	if !r.finish(c, nil) {
		return ErrRequestFinished
	}
	return nil
}

// Abort completes the request with an aborted completion carrying reason.
// Blocked Send calls return ErrRequestFinished. Abort does nothing if the
// request has already completed.
func (r *Request) Abort(reason error) {
	r.abortOnce.Do(func() { close(r.aborted) })
	r.finish(&protocol.Completion{
		RequestID: r.id,
		Status:    protocol.StatusAborted,
		Reason:    reason.Error(),
	}, reason)
}

func (r *Request) finish(c *protocol.Completion, err error) bool {
	done := false
	r.finishOnce.Do(func() {
		r.sendMu.Lock()
		defer r.sendMu.Unlock()

		r.mu.Lock()
		r.state = RequestCompleted
		r.completion = c
		r.err = err
		r.mu.Unlock()

		close(r.ch)
		done = true
	})
	return done
}

// Next returns the next batch of updates. It returns io.EOF after the last
// batch once the request has completed.
func (r *Request) Next(ctx context.Context) ([]*protocol.TestNodeUpdate, error) {
	select {
	case batch, ok := <-r.ch:
		if !ok {
			return nil, io.EOF
		}
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait discards unread batches and returns the completion.
//
// If the request was aborted, Wait returns the aborted completion together
// with the cause.
func (r *Request) Wait(ctx context.Context) (*protocol.Completion, error) {
	return Drain(ctx, r, nil)
}

// Drain reads every remaining batch of req, passing it to f if f is non-nil,
// and returns the completion like Wait. If f fails, Drain returns its error
// immediately.
func Drain(ctx context.Context, req *Request, f func(batch []*protocol.TestNodeUpdate) error) (*protocol.Completion, error) {
	for {
		batch, err := req.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if f != nil {
			if err := f(batch); err != nil {
				return nil, err
			}
		}
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.completion, req.err
}
