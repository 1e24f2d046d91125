// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rpc carries the TestHost gRPC service over a pair of pipes, such as
// the stdin and stdout of a test host process.
package rpc

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nya3jp/testplay/internal/protocol"
)

var (
	pipeAddr = &net.UnixAddr{Name: "pipe", Net: "pipe"}

	errNoDeadline = errors.New("deadlines are not supported on pipes")
)

// pipeConn is a net.Conn made of an io.Reader and an io.Writer.
type pipeConn struct {
	r       io.Reader
	w       io.Writer
	onClose func() error

	mu     sync.Mutex
	closed bool
}

func (c *pipeConn) Read(b []byte) (int, error)  { return c.r.Read(b) }
func (c *pipeConn) Write(b []byte) (int, error) { return c.w.Write(b) }

// Close calls onClose on the first call. gRPC may close a connection more
// than once.
func (c *pipeConn) Close() error {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()

	if closed {
		return errors.New("pipe connection already closed")
	}
	if c.onClose == nil {
		return nil
	}
	return c.onClose()
}

func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr }
func (c *pipeConn) SetDeadline(t time.Time) error      { return errNoDeadline }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return errNoDeadline }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return errNoDeadline }

var _ net.Conn = (*pipeConn)(nil)

// PipeListener is a net.Listener whose Accept returns exactly one connection
// made of the given pipes. Once that connection is closed, Accept returns
// io.EOF, which makes grpc.Server.Serve return.
type PipeListener struct {
	ch chan *pipeConn
}

// NewPipeListener constructs a new PipeListener based on r and w.
func NewPipeListener(r io.Reader, w io.Writer) *PipeListener {
	ch := make(chan *pipeConn, 1)
	ch <- &pipeConn{
		r: r,
		w: w,
		onClose: func() error {
			close(ch)
			return nil
		},
	}
	return &PipeListener{ch: ch}
}

// Accept returns the pipe connection, or io.EOF after it was closed.
func (l *PipeListener) Accept() (net.Conn, error) {
	conn, ok := <-l.ch
	if !ok {
		return nil, io.EOF
	}
	return conn, nil
}

// Close does nothing. The listener finishes when its connection is closed.
func (l *PipeListener) Close() error { return nil }

// Addr returns a placeholder address.
func (l *PipeListener) Addr() net.Addr { return pipeAddr }

var _ net.Listener = (*PipeListener)(nil)

// NewPipeClientConn returns a gRPC client connection talking over r and w.
// Closing the connection closes w if it is an io.Closer, so that the peer
// sees EOF and closes r in turn.
//
// The connection never goes idle since reconnecting over the same pipes is
// impossible.
func NewPipeClientConn(r io.Reader, w io.Writer, extraOpts ...grpc.DialOption) (*grpc.ClientConn, error) {
	return newPipeClientConn(r, w, closeWriterOnce(w), extraOpts...)
}

func newPipeClientConn(r io.Reader, w io.Writer, closeW func() error, extraOpts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return &pipeConn{r: r, w: w, onClose: closeW}, nil
		}),
		grpc.WithIdleTimeout(0),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(protocol.CodecName)),
	}, extraOpts...)
	return grpc.NewClient("passthrough:///pipe", opts...)
}
