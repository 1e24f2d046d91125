// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nya3jp/testplay/internal/protocol"
)

func TestCodecRegistered(t *testing.T) {
	if c := encoding.GetCodec(protocol.CodecName); c == nil {
		t.Fatalf("Codec %q is not registered", protocol.CodecName)
	}
}

func TestCodecStreamMessage(t *testing.T) {
	in := &protocol.StreamMessage{
		Updates: &protocol.UpdateBatch{
			RequestID: "req",
			Updates: []*protocol.TestNodeUpdate{{
				RequestID: "req",
				Seq:       3,
				Node: &protocol.TestNode{
					UID:         "samples.Fail",
					DisplayName: "samples.Fail",
					State:       protocol.StateFailed,
					Properties:  map[string]string{protocol.PropErrorMessage: "boom"},
				},
			}},
		},
	}
	b, err := protocol.Codec{}.Marshal(in)
	if err != nil {
		t.Fatal("Marshal failed: ", err)
	}
	out := new(protocol.StreamMessage)
	if err := (protocol.Codec{}).Unmarshal(b, out); err != nil {
		t.Fatal("Unmarshal failed: ", err)
	}
	if diff := cmp.Diff(out, in); diff != "" {
		t.Errorf("Message mismatch (-got +want):\n%s", diff)
	}
}

func TestCodecProtoMessage(t *testing.T) {
	b, err := protocol.Codec{}.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	if err != nil {
		t.Fatal("Marshal failed: ", err)
	}
	var out healthpb.HealthCheckResponse
	if err := (protocol.Codec{}).Unmarshal(b, &out); err != nil {
		t.Fatal("Unmarshal failed: ", err)
	}
	if out.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Status = %v; want SERVING", out.GetStatus())
	}
}

func TestExecutionStateUnmarshalRejectsUnknown(t *testing.T) {
	var n protocol.TestNode
	if err := json.Unmarshal([]byte(`{"uid":"a","state":"exploded"}`), &n); err == nil {
		t.Error("Unmarshal succeeded for an unknown state")
	}
	if err := json.Unmarshal([]byte(`{"uid":"a","state":"timed-out"}`), &n); err != nil {
		t.Fatal("Unmarshal failed: ", err)
	}
	if n.State != protocol.StateTimedOut {
		t.Errorf("State = %q; want %q", n.State, protocol.StateTimedOut)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, tc := range []struct {
		state protocol.ExecutionState
		want  bool
	}{
		{protocol.StateDiscovered, false},
		{protocol.StateInProgress, false},
		{protocol.StatePassed, true},
		{protocol.StateFailed, true},
		{protocol.StateSkipped, true},
		{protocol.StateTimedOut, true},
		{protocol.StateError, true},
		{protocol.StateCancelled, true},
	} {
		if got := tc.state.IsTerminal(); got != tc.want {
			t.Errorf("%q.IsTerminal() = %v; want %v", tc.state, got, tc.want)
		}
	}
}

func TestTestNodeClone(t *testing.T) {
	orig := &protocol.TestNode{
		UID:        "a",
		State:      protocol.StateDiscovered,
		Properties: map[string]string{"k": "v"},
		Artifacts:  []*protocol.Artifact{{Path: "/x"}},
	}
	c := orig.WithState(protocol.StatePassed)
	c.SetProperty("k", "changed")
	c.Artifacts[0].Path = "/y"

	if orig.State != protocol.StateDiscovered || orig.Property("k") != "v" || orig.Artifacts[0].Path != "/x" {
		t.Errorf("Original node modified through clone: %+v", orig)
	}
}
