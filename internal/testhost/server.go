// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/rpc"
)

var (
	// ErrNotInitialized is reported for requests sent before Initialize.
	ErrNotInitialized = errors.New("Initialize has not been called")
	// ErrExited is reported for calls after Exit.
	ErrExited = errors.New("host has exited")
	// ErrBusy is reported for a request sent while another is in flight.
	ErrBusy = errors.New("another request is in flight")
)

// Server implements protocol.TestHostServer on top of a Host.
type Server struct {
	host *Host

	exitCtx context.Context
	exit    context.CancelFunc

	mu          sync.Mutex
	initialized bool
	exited      bool
	busy        bool
}

var _ protocol.TestHostServer = (*Server)(nil)

// NewServer returns a Server for h.
func NewServer(h *Host) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{host: h, exitCtx: ctx, exit: cancel}
}

// Serve runs the protocol for h on r and w until the client disconnects.
func Serve(r io.Reader, w io.Writer, h *Host, logger logging.Logger) error {
	srv := NewServer(h)
	defer srv.exit()
	return rpc.RunServer(r, w, rpc.ServerConfig{
		HostName: h.cfg.Name,
		Logger:   logger,
		Register: func(s *grpc.Server, req *protocol.HandshakeRequest) error {
			protocol.RegisterTestHostServer(s, srv)
			return nil
		},
	})
}

func (s *Server) Initialize(ctx context.Context, req *protocol.InitializeRequest) (*protocol.InitializeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited {
		return nil, status.Error(codes.FailedPrecondition, ErrExited.Error())
	}
	s.initialized = true
	logging.Infof(ctx, "Initialized by %s %s", req.ClientName, req.ClientVersion)
	return s.host.Info(), nil
}

func (s *Server) DiscoverTests(req *protocol.DiscoverTestsRequest, stream protocol.TestHost_StreamServer) error {
	return s.serveRequest(req.RequestID, stream, func(ctx context.Context, sink Sink) (*protocol.Completion, error) {
		return s.host.Discover(ctx, req.RequestID, sink)
	})
}

func (s *Server) RunTests(req *protocol.RunTestsRequest, stream protocol.TestHost_StreamServer) error {
	return s.serveRequest(req.RequestID, stream, func(ctx context.Context, sink Sink) (*protocol.Completion, error) {
		return s.host.Run(ctx, req.RequestID, req.Nodes, sink)
	})
}

func (s *Server) Exit(ctx context.Context, req *protocol.ExitRequest) (*protocol.ExitResponse, error) {
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
	s.exit()
	logging.Info(ctx, "Exit requested")
	return &protocol.ExitResponse{}, nil
}

// serveRequest runs f as the only in-flight request and streams its result.
func (s *Server) serveRequest(requestID string, stream protocol.TestHost_StreamServer, f func(ctx context.Context, sink Sink) (*protocol.Completion, error)) error {
	if requestID == "" {
		return status.Error(codes.InvalidArgument, "request ID is empty")
	}

	s.mu.Lock()
	switch {
	case s.exited:
		s.mu.Unlock()
		return status.Error(codes.FailedPrecondition, ErrExited.Error())
	case !s.initialized:
		s.mu.Unlock()
		return status.Error(codes.FailedPrecondition, ErrNotInitialized.Error())
	case s.busy:
		s.mu.Unlock()
		return status.Error(codes.FailedPrecondition, ErrBusy.Error())
	}
	s.busy = true
	s.mu.Unlock()
	// A request stops being in flight before its completion is sent.
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		})
	}
	defer release()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	stop := context.AfterFunc(s.exitCtx, cancel)
	defer stop()

	sink := &streamSink{stream: stream, requestID: requestID}
	c, err := f(ctx, sink)
	release()
	if err != nil {
		return status.Errorf(codes.Unavailable, "streaming request %s: %v", requestID, err)
	}
	return sink.send(&protocol.StreamMessage{Completion: c})
}

// streamSink serializes messages to a server stream.
type streamSink struct {
	requestID string

	mu     sync.Mutex
	stream protocol.TestHost_StreamServer
}

func (s *streamSink) send(msg *protocol.StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Send(msg)
}

func (s *streamSink) SendUpdates(updates []*protocol.TestNodeUpdate) error {
	return s.send(&protocol.StreamMessage{Updates: &protocol.UpdateBatch{RequestID: s.requestID, Updates: updates}})
}

func (s *streamSink) SendLog(level logging.Level, msg string) error {
	return s.send(&protocol.StreamMessage{Log: &protocol.LogMessage{Level: level.String(), Message: msg}})
}
