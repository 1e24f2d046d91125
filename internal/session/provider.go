// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package session defines the test session contract between the driver and a
// test platform, and the client-side helpers built on it.
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// Provider is a test platform that discovers and runs tests.
//
// Implementations are typically backed by a test host process. Methods other
// than Exit are called at most once per request ID.
type Provider interface {
	// Initialize establishes the session.
	Initialize(ctx context.Context) (*protocol.InitializeResponse, error)

	// DiscoverTests starts discovering tests. Updates and the completion of
	// the discovery are delivered through the returned Request.
	DiscoverTests(ctx context.Context, requestID string) (*Request, error)

	// RunTests starts running exactly the given nodes. Updates carry
	// execution state transitions.
	RunTests(ctx context.Context, requestID string, nodes []*protocol.TestNode) (*Request, error)

	// Exit tears down the session and the test host. Calling it more than
	// once is allowed and does nothing.
	Exit(ctx context.Context) error
}

var (
	// ErrRequestInFlight is returned when a request is issued while another
	// one of the same session has not completed yet.
	ErrRequestInFlight = errors.New("another request is in flight")

	// ErrRequestFinished is returned on sending updates to, or finishing, a
	// request that has already completed.
	ErrRequestFinished = errors.New("request already finished")

	// ErrClosed is returned on using a closed session.
	ErrClosed = errors.New("session closed")
)

// NewRequestID returns a new unique request ID.
func NewRequestID() string {
	return uuid.NewString()
}
