// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"

	"github.com/nya3jp/testplay/internal/protocol"
)

type echoHost struct{}

func (echoHost) Initialize(ctx context.Context, req *protocol.InitializeRequest) (*protocol.InitializeResponse, error) {
	return &protocol.InitializeResponse{HostName: "echo:" + req.ClientName}, nil
}

func (echoHost) DiscoverTests(req *protocol.DiscoverTestsRequest, srv protocol.TestHost_StreamServer) error {
	node := &protocol.TestNode{UID: "a", DisplayName: "a", State: protocol.StateDiscovered}
	if err := srv.Send(&protocol.StreamMessage{Updates: &protocol.UpdateBatch{
		RequestID: req.RequestID,
		Updates:   []*protocol.TestNodeUpdate{{RequestID: req.RequestID, Node: node}},
	}}); err != nil {
		return err
	}
	return srv.Send(&protocol.StreamMessage{Completion: &protocol.Completion{RequestID: req.RequestID, Status: protocol.StatusCompleted, Total: 1}})
}

func (echoHost) RunTests(req *protocol.RunTestsRequest, srv protocol.TestHost_StreamServer) error {
	return srv.Send(&protocol.StreamMessage{Completion: &protocol.Completion{RequestID: req.RequestID, Status: protocol.StatusCompleted}})
}

func (echoHost) Exit(ctx context.Context, req *protocol.ExitRequest) (*protocol.ExitResponse, error) {
	return &protocol.ExitResponse{}, nil
}

// startServer runs RunServer over OS pipes and returns the client ends.
func startServer(t *testing.T, cfg ServerConfig) (io.Reader, io.WriteCloser, <-chan error) {
	t.Helper()
	cr, sw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	sr, cw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cr.Close()
		sr.Close()
	})
	done := make(chan error, 1)
	go func() {
		err := RunServer(sr, sw, cfg)
		sw.Close()
		done <- err
	}()
	return cr, cw, done
}

func TestClientServer(t *testing.T) {
	r, w, done := startServer(t, ServerConfig{
		HostName: "fake",
		Register: func(srv *grpc.Server, req *protocol.HandshakeRequest) error {
			protocol.RegisterTestHostServer(srv, echoHost{})
			return nil
		},
	})

	ctx := context.Background()
	cl, err := NewClient(ctx, r, w, &protocol.HandshakeRequest{ClientName: "test"})
	if err != nil {
		t.Fatal("NewClient failed: ", err)
	}
	if got := cl.Host().HostName; got != "fake" {
		t.Errorf("HostName = %q; want %q", got, "fake")
	}

	hc := protocol.NewTestHostClient(cl.Conn())
	res, err := hc.Initialize(ctx, &protocol.InitializeRequest{ClientName: "test"})
	if err != nil {
		t.Fatal("Initialize failed: ", err)
	}
	if res.HostName != "echo:test" {
		t.Errorf("Initialize returned host %q; want %q", res.HostName, "echo:test")
	}

	stream, err := hc.DiscoverTests(ctx, &protocol.DiscoverTestsRequest{RequestID: "r1"})
	if err != nil {
		t.Fatal("DiscoverTests failed: ", err)
	}
	var got []*protocol.StreamMessage
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal("Recv failed: ", err)
		}
		got = append(got, msg)
	}
	want := []*protocol.StreamMessage{
		{Updates: &protocol.UpdateBatch{
			RequestID: "r1",
			Updates: []*protocol.TestNodeUpdate{{
				RequestID: "r1",
				Node:      &protocol.TestNode{UID: "a", DisplayName: "a", State: protocol.StateDiscovered},
			}},
		}},
		{Completion: &protocol.Completion{RequestID: "r1", Status: protocol.StatusCompleted, Total: 1}},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Stream mismatch (-got +want):\n%s", diff)
	}

	closeClient(t, cl)
	if err := <-done; err != nil {
		t.Error("RunServer failed: ", err)
	}
}

// closeClient closes cl and fails the test if Close blocks.
func closeClient(t *testing.T, cl *Client) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- cl.Close() }()
	select {
	case err := <-errc:
		if err != nil {
			t.Error("Close failed: ", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return in time")
	}
}

func TestClientCloseEndsServer(t *testing.T) {
	r, w, done := startServer(t, ServerConfig{
		Register: func(srv *grpc.Server, req *protocol.HandshakeRequest) error {
			protocol.RegisterTestHostServer(srv, echoHost{})
			return nil
		},
	})

	cl, err := NewClient(context.Background(), r, w, &protocol.HandshakeRequest{ClientName: "test"})
	if err != nil {
		t.Fatal("NewClient failed: ", err)
	}
	closeClient(t, cl)

	select {
	case err := <-done:
		if err != nil {
			t.Error("RunServer failed: ", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunServer did not return after Close")
	}
	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("Write after Close succeeded; want the pipe closed")
	}
}

func TestClientRejectedByRegister(t *testing.T) {
	r, w, done := startServer(t, ServerConfig{
		Register: func(*grpc.Server, *protocol.HandshakeRequest) error {
			return io.ErrUnexpectedEOF
		},
	})
	defer w.Close()

	if _, err := NewClient(context.Background(), r, w, &protocol.HandshakeRequest{}); err == nil {
		t.Fatal("NewClient succeeded unexpectedly")
	} else if !strings.Contains(err.Error(), io.ErrUnexpectedEOF.Error()) {
		t.Errorf("NewClient error = %v; want it to mention %v", err, io.ErrUnexpectedEOF)
	}
	if err := <-done; err == nil {
		t.Error("RunServer succeeded unexpectedly")
	}
}

func TestClientVersionMismatch(t *testing.T) {
	r, w, done := startServer(t, ServerConfig{})
	defer w.Close()

	if _, err := NewClient(context.Background(), r, w, &protocol.HandshakeRequest{ProtocolVersion: 99}); err == nil {
		t.Fatal("NewClient succeeded with a bad protocol version")
	}
	<-done
}

func TestReceiveRawMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(maxRawMessageSize+1))
	var msg protocol.HandshakeRequest
	if err := receiveRawMessage(&buf, &msg); err == nil {
		t.Error("receiveRawMessage accepted an oversized message")
	}
}

func TestRawMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &protocol.HandshakeRequest{ProtocolVersion: 1, ClientName: "x"}
	if err := sendRawMessage(&buf, in); err != nil {
		t.Fatal("sendRawMessage failed: ", err)
	}
	out := &protocol.HandshakeRequest{}
	if err := receiveRawMessage(&buf, out); err != nil {
		t.Fatal("receiveRawMessage failed: ", err)
	}
	if diff := cmp.Diff(out, in); diff != "" {
		t.Errorf("Message mismatch (-got +want):\n%s", diff)
	}
}

func TestPipeListener(t *testing.T) {
	lis := NewPipeListener(strings.NewReader(""), io.Discard)
	conn, err := lis.Accept()
	if err != nil {
		t.Fatal("Accept failed: ", err)
	}
	if err := conn.Close(); err != nil {
		t.Error("First Close failed: ", err)
	}
	if err := conn.Close(); err == nil {
		t.Error("Second Close succeeded; want an error")
	}
	if _, err := lis.Accept(); err != io.EOF {
		t.Errorf("Accept after close = %v; want io.EOF", err)
	}
}
