// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpc

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

// ServerConfig configures RunServer.
type ServerConfig struct {
	// HostName is reported to clients in the handshake.
	HostName string
	// Logger receives logs emitted by service handlers. It may be nil.
	Logger logging.Logger
	// Register registers services to srv. It is called after a successful
	// handshake. An error fails the handshake.
	Register func(srv *grpc.Server, req *protocol.HandshakeRequest) error
}

// RunServer answers the handshake on r/w and then serves gRPC on them.
// It blocks until the client closes the connection.
func RunServer(r io.Reader, w io.Writer, cfg ServerConfig) error {
	req := &protocol.HandshakeRequest{}
	if err := receiveRawMessage(r, req); err != nil {
		sendRawMessage(w, &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersion, HostName: cfg.HostName, Error: err.Error()})
		return errors.Wrap(err, "receiving handshake")
	}

	res := &protocol.HandshakeResponse{ProtocolVersion: protocol.ProtocolVersion, HostName: cfg.HostName}
	if req.ProtocolVersion != protocol.ProtocolVersion {
		res.Error = errors.Errorf("unsupported protocol version %d", req.ProtocolVersion).Error()
	}

	srv := grpc.NewServer(serverOpts(cfg.Logger)...)
	if res.Error == "" && cfg.Register != nil {
		if err := cfg.Register(srv, req); err != nil {
			res.Error = err.Error()
		}
	}
	if err := sendRawMessage(w, res); err != nil {
		return errors.Wrap(err, "sending handshake")
	}
	if res.Error != "" {
		return errors.Errorf("handshake rejected: %s", res.Error)
	}

	hs := health.NewServer()
	hs.SetServingStatus(protocol.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	if err := srv.Serve(NewPipeListener(r, w)); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type serverStreamWithContext struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStreamWithContext) Context() context.Context {
	return s.ctx
}

// serverOpts returns interceptors attaching logger to handler contexts and
// logging the duration of every call.
func serverOpts(logger logging.Logger) []grpc.ServerOption {
	attach := func(ctx context.Context) context.Context {
		if logger == nil {
			return ctx
		}
		return logging.AttachLogger(ctx, logger)
	}
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			ctx = attach(ctx)
			start := time.Now()
			res, err := handler(ctx, req)
			logging.Debugf(ctx, "%s finished in %v (err=%v)", info.FullMethod, time.Since(start).Round(time.Millisecond), err)
			return res, err
		}),
		grpc.StreamInterceptor(func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			ctx := attach(stream.Context())
			start := time.Now()
			err := handler(srv, &serverStreamWithContext{stream, ctx})
			logging.Debugf(ctx, "%s finished in %v (err=%v)", info.FullMethod, time.Since(start).Round(time.Millisecond), err)
			return err
		}),
	}
}
