// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

// Session is an initialized connection to a Provider. It allows one
// request at a time.
type Session struct {
	p    Provider
	info *protocol.InitializeResponse

	mu       sync.Mutex
	current  *Request
	starting bool // a provider call opening a request is in progress
	closed   bool

	closeOnce sync.Once
	closeErr  error
}

// Open initializes p and returns a session over it. If initialization fails,
// p is exited before returning the error.
//
// The caller must call Close. Prefer With, which guarantees it.
func Open(ctx context.Context, p Provider) (*Session, error) {
	info, err := p.Initialize(ctx)
	if err != nil {
		if exitErr := p.Exit(ctx); exitErr != nil {
			logging.Infof(ctx, "Failed to exit provider after failed initialization: %v", exitErr)
		}
		return nil, errors.Wrap(err, "initializing session")
	}
	if info == nil {
		info = &protocol.InitializeResponse{}
	}
	return &Session{p: p, info: info}, nil
}

// With opens a session over p, calls f with it and closes it on every path,
// including panics in f. An error from f takes precedence over an error from
// closing.
func With(ctx context.Context, p Provider, f func(ctx context.Context, s *Session) error) (retErr error) {
	s, err := Open(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		// Close with a context that survives cancellation of ctx, so that
		// the test host is torn down even on timeouts.
		if err := s.Close(context.WithoutCancel(ctx)); err != nil && retErr == nil {
			retErr = err
		}
	}()
	return f(ctx, s)
}

// Info returns the response of Initialize.
func (s *Session) Info() *protocol.InitializeResponse {
	return s.info
}

// DiscoverTests starts a discovery request. An empty requestID is replaced
// with a new unique ID.
func (s *Session) DiscoverTests(ctx context.Context, requestID string) (*Request, error) {
	return s.start(requestID, func(id string) (*Request, error) {
		return s.p.DiscoverTests(ctx, id)
	})
}

// RunTests starts a run request over nodes. An empty requestID is replaced
// with a new unique ID.
func (s *Session) RunTests(ctx context.Context, requestID string, nodes []*protocol.TestNode) (*Request, error) {
	for _, n := range nodes {
		if n == nil {
			return nil, errors.New("nil node in run request")
		}
	}
	return s.start(requestID, func(id string) (*Request, error) {
		return s.p.RunTests(ctx, id, nodes)
	})
}

func (s *Session) start(requestID string, f func(id string) (*Request, error)) (*Request, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.starting {
		s.mu.Unlock()
		return nil, errors.Wrap(ErrRequestInFlight, "another request is starting")
	}
	if s.current != nil && s.current.State() != RequestCompleted {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrRequestInFlight, "request %s", s.current.ID())
	}
	s.starting = true
	s.mu.Unlock()

	if requestID == "" {
		requestID = NewRequestID()
	}
	// The provider may block while opening the request. s.mu is not held so
	// that Close can proceed meanwhile.
	req, err := f(requestID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		return nil, err
	}
	if s.closed {
		req.Abort(ErrClosed)
		return nil, ErrClosed
	}
	s.current = req
	return req, nil
}

// Close aborts the in-flight request, if any, and exits the provider. Only
// the first call has an effect. Later calls return the same error.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cur := s.current
		s.mu.Unlock()

		if cur != nil && cur.State() != RequestCompleted {
			cur.Abort(ErrClosed)
		}
		if err := s.p.Exit(ctx); err != nil {
			s.closeErr = errors.Wrap(err, "exiting session")
		}
	})
	return s.closeErr
}
