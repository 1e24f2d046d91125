// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package hostclient implements session.Provider by talking to a test host
// process over its standard input and output.
package hostclient

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/genericexec"
	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/rpc"
	"github.com/nya3jp/testplay/internal/session"
)

// RPCFlag makes a test host speak the protocol on its standard input and
// output.
const RPCFlag = "-rpc"

type options struct {
	clientName    string
	clientVersion string
	verbose       bool
	bufferSize    int
	args          []string
}

// Option customizes Start.
type Option func(o *options)

// WithClientInfo sets the client name and version sent to the host.
func WithClientInfo(name, version string) Option {
	return func(o *options) {
		o.clientName = name
		o.clientVersion = version
	}
}

// WithVerbose asks the host to log more.
func WithVerbose(verbose bool) Option {
	return func(o *options) { o.verbose = verbose }
}

// WithBufferSize sets the number of batches a request buffers.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// WithArgs appends arguments to the host command line after RPCFlag.
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = append(o.args, args...) }
}

// Client is a test host process. It implements session.Provider.
type Client struct {
	cmd  genericexec.Cmd
	proc genericexec.Process
	conn *rpc.Client
	cl   protocol.TestHostClient
	opts options

	stderrDone chan struct{}

	exitOnce sync.Once
	exitErr  error
}

var _ session.Provider = (*Client)(nil)

// Start starts the host with cmd and connects to it. The host is
// terminated when ctx is canceled. Exit must be called to release the
// process.
func Start(ctx context.Context, cmd genericexec.Cmd, opts ...Option) (_ *Client, retErr error) {
	o := options{clientName: "testplay", bufferSize: session.DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	args := append([]string{RPCFlag}, o.args...)
	proc, err := cmd.Interact(ctx, args)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", cmd)
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		logging.CopyLines(logging.WithPrefix(ctx, "testhost: "), logging.LevelDebug, proc.Stderr())
	}()

	defer func() {
		if retErr == nil {
			return
		}
		proc.Stdin().Close()
		<-stderrDone
		proc.Wait(ctx)
	}()

	conn, err := rpc.NewClient(ctx, proc.Stdout(), proc.Stdin(), &protocol.HandshakeRequest{
		ClientName: o.clientName,
		Verbose:    o.verbose,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", cmd)
	}

	return &Client{
		cmd:        cmd,
		proc:       proc,
		conn:       conn,
		cl:         protocol.NewTestHostClient(conn.Conn()),
		opts:       o,
		stderrDone: stderrDone,
	}, nil
}

// HostName returns the name the host reported in the handshake.
func (c *Client) HostName() string {
	return c.conn.Host().HostName
}

// Initialize implements session.Provider.
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResponse, error) {
	res, err := c.cl.Initialize(ctx, &protocol.InitializeRequest{
		ClientName:    c.opts.clientName,
		ClientVersion: c.opts.clientVersion,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Initialize failed")
	}
	return res, nil
}

// DiscoverTests implements session.Provider.
func (c *Client) DiscoverTests(ctx context.Context, requestID string) (*session.Request, error) {
	return c.startRequest(ctx, requestID, func(ctx context.Context) (protocol.TestHost_StreamClient, error) {
		return c.cl.DiscoverTests(ctx, &protocol.DiscoverTestsRequest{RequestID: requestID})
	})
}

// RunTests implements session.Provider.
func (c *Client) RunTests(ctx context.Context, requestID string, nodes []*protocol.TestNode) (*session.Request, error) {
	return c.startRequest(ctx, requestID, func(ctx context.Context) (protocol.TestHost_StreamClient, error) {
		return c.cl.RunTests(ctx, &protocol.RunTestsRequest{RequestID: requestID, Nodes: nodes})
	})
}

func (c *Client) startRequest(ctx context.Context, requestID string, open func(ctx context.Context) (protocol.TestHost_StreamClient, error)) (*session.Request, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := open(ctx)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "request %s failed", requestID)
	}
	req := session.NewRequest(requestID, c.opts.bufferSize)
	go func() {
		defer cancel()
		relay(ctx, stream, req)
	}()
	return req, nil
}

// relay copies messages of stream to req until the completion arrives.
func relay(ctx context.Context, stream protocol.TestHost_StreamClient, req *session.Request) {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			req.Abort(errors.New("stream ended without completion"))
			return
		}
		if err != nil {
			req.Abort(errors.Wrap(err, "receiving from test host"))
			return
		}

		switch {
		case msg.Updates != nil:
			if err := checkBatch(req.ID(), msg.Updates); err != nil {
				req.Abort(err)
				return
			}
			if err := req.Send(ctx, msg.Updates.Updates); err != nil {
				req.Abort(err)
				return
			}
		case msg.Log != nil:
			level, ok := logging.ParseLevel(msg.Log.Level)
			if !ok {
				level = logging.LevelInfo
			}
			logging.Log(ctx, level, msg.Log.Message)
		case msg.Completion != nil:
			if id := msg.Completion.RequestID; id != "" && id != req.ID() {
				req.Abort(errors.Errorf("completion of request %q arrived on request %q", id, req.ID()))
				return
			}
			req.Finish(msg.Completion)
			return
		}
	}
}

func checkBatch(requestID string, b *protocol.UpdateBatch) error {
	if b.RequestID != requestID {
		return errors.Errorf("batch of request %q arrived on request %q", b.RequestID, requestID)
	}
	for _, u := range b.Updates {
		if u.Node == nil {
			return errors.New("update without node")
		}
		if u.RequestID != requestID {
			return errors.Errorf("update of %s belongs to request %q, not %q", u.Node.UID, u.RequestID, requestID)
		}
	}
	return nil
}

// Exit implements session.Provider. It asks the host to exit, closes the
// host's stdin along with the connection and waits for the process. Calls after the first return the
// first result.
func (c *Client) Exit(ctx context.Context) error {
	c.exitOnce.Do(func() {
		c.exitErr = c.exit(ctx)
	})
	return c.exitErr
}

func (c *Client) exit(ctx context.Context) error {
	var firstErr error
	if _, err := c.cl.Exit(ctx, &protocol.ExitRequest{}); err != nil {
		firstErr = errors.Wrap(err, "Exit failed")
	}
	// Closing the connection closes the host's stdin first. The host exits on
	// EOF, which ends its stdout and lets the connection finish.
	if err := c.conn.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "closing connection")
	}

	select {
	case <-c.stderrDone:
	case <-ctx.Done():
	}
	if err := c.proc.Wait(ctx); err != nil && firstErr == nil {
		firstErr = errors.Wrapf(err, "%s exited abnormally", c.cmd)
	}
	return firstErr
}
