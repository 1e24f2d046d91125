// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package protocol

// ProtocolVersion is bumped on every incompatible change of the messages.
const ProtocolVersion = 1

// Environment variables read by test hosts.
const (
	// EnvTelemetryOptOut disables host telemetry when set to "1".
	EnvTelemetryOptOut = "TESTPLAY_TELEMETRY_OPTOUT"
	// EnvServerMode selects whether the host serves the protocol on stdio
	// ("1") or runs in console mode ("0") when -rpc is not given.
	EnvServerMode = "TESTPLAY_SERVER_MODE"
)

// HandshakeRequest is sent by the client right after the host starts, before
// any gRPC traffic.
type HandshakeRequest struct {
	ProtocolVersion int    `json:"protocolVersion"`
	ClientName      string `json:"clientName"`
	Verbose         bool   `json:"verbose,omitempty"`
}

// HandshakeResponse is the host's answer to HandshakeRequest.
type HandshakeResponse struct {
	ProtocolVersion int    `json:"protocolVersion"`
	HostName        string `json:"hostName"`
	Error           string `json:"error,omitempty"`
}

type InitializeRequest struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

// Capabilities announces optional host features.
type Capabilities struct {
	SupportsArtifacts    bool `json:"supportsArtifacts"`
	SupportsCancellation bool `json:"supportsCancellation"`
	MaxParallelism       int  `json:"maxParallelism"`
}

type InitializeResponse struct {
	HostName     string        `json:"hostName"`
	HostVersion  string        `json:"hostVersion"`
	ProcessID    int           `json:"processId"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

type DiscoverTestsRequest struct {
	RequestID string `json:"requestId"`
}

type RunTestsRequest struct {
	RequestID string      `json:"requestId"`
	Nodes     []*TestNode `json:"nodes"`
}

type ExitRequest struct{}

type ExitResponse struct{}

// UpdateBatch is a non-empty group of updates of one request.
type UpdateBatch struct {
	RequestID string            `json:"requestId"`
	Updates   []*TestNodeUpdate `json:"updates"`
}

// LogMessage is a free-form message from the host about a request.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// StreamMessage is a message of DiscoverTests and RunTests streams. Exactly
// one field is set.
type StreamMessage struct {
	Updates    *UpdateBatch `json:"updates,omitempty"`
	Log        *LogMessage  `json:"log,omitempty"`
	Completion *Completion  `json:"completion,omitempty"`
}
