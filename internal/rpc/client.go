// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpc

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

// Client is a gRPC connection to a test host established over pipes.
type Client struct {
	conn *grpc.ClientConn
	host *protocol.HandshakeResponse

	closeW func() error
}

// NewClient performs the handshake over r and w, connects gRPC and checks
// that the host reports the TestHost service as serving.
func NewClient(ctx context.Context, r io.Reader, w io.Writer, req *protocol.HandshakeRequest, opts ...grpc.DialOption) (_ *Client, retErr error) {
	if req.ProtocolVersion == 0 {
		req.ProtocolVersion = protocol.ProtocolVersion
	}
	res, err := handshake(ctx, r, w, req)
	if err != nil {
		return nil, errors.Wrap(err, "handshake failed")
	}
	logging.Debugf(ctx, "Connected to test host %s (protocol version %d)", res.HostName, res.ProtocolVersion)

	closeW := closeWriterOnce(w)
	conn, err := newPipeClientConn(r, w, closeW, opts...)
	if err != nil {
		closeW()
		return nil, err
	}
	c := &Client{conn: conn, host: res, closeW: closeW}
	defer func() {
		if retErr != nil {
			c.Close()
		}
	}()

	hres, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: protocol.ServiceName})
	if err != nil {
		return nil, errors.Wrap(err, "health check failed")
	}
	if st := hres.GetStatus(); st != healthpb.HealthCheckResponse_SERVING {
		return nil, errors.Errorf("test host is %v", st)
	}
	return c, nil
}

// closeWriterOnce returns a function closing w on its first call if w is an
// io.Closer. Later calls return the result of the first one.
func closeWriterOnce(w io.Writer) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			if c, ok := w.(io.Closer); ok {
				err = c.Close()
			}
		})
		return err
	}
}

func handshake(ctx context.Context, r io.Reader, w io.Writer, req *protocol.HandshakeRequest) (*protocol.HandshakeResponse, error) {
	if err := sendRawMessage(w, req); err != nil {
		return nil, err
	}

	type result struct {
		res *protocol.HandshakeResponse
		err error
	}
	ch := make(chan result, 1)
	go func() {
		res := &protocol.HandshakeResponse{}
		err := receiveRawMessage(r, res)
		ch <- result{res, err}
	}()

	var res *protocol.HandshakeResponse
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case rs := <-ch:
		if rs.err != nil {
			return nil, rs.err
		}
		res = rs.res
	}
	if res.Error != "" {
		return nil, errors.New(res.Error)
	}
	if res.ProtocolVersion != req.ProtocolVersion {
		return nil, errors.Errorf("protocol version mismatch: client %d, host %d", req.ProtocolVersion, res.ProtocolVersion)
	}
	return res, nil
}

// Conn returns the gRPC connection.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Host returns the handshake response of the host.
func (c *Client) Host() *protocol.HandshakeResponse {
	return c.host
}

// Close closes the writer given to NewClient and then the gRPC connection.
// The host sees EOF on its input and closes its output in turn, which lets
// the connection finish reading. The reader given to NewClient is left open.
func (c *Client) Close() error {
	werr := c.closeW()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return errors.Wrap(werr, "closing pipe")
}
