// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// ServerMode tells a test host whether to serve the protocol on stdio when
// it is started without -rpc.
type ServerMode int

const (
	// ServerModeAuto leaves the decision to the host.
	ServerModeAuto ServerMode = iota
	// ServerModeOff makes the host run in console mode.
	ServerModeOff
	// ServerModeOn makes the host serve the protocol.
	ServerModeOn
)

var serverModeNames = map[string]int{
	"auto": int(ServerModeAuto),
	"off":  int(ServerModeOff),
	"on":   int(ServerModeOn),
}

func (m ServerMode) String() string {
	for name, v := range serverModeNames {
		if ServerMode(v) == m {
			return name
		}
	}
	return "unknown"
}

// ParseServerMode parses "auto", "off" or "on".
func ParseServerMode(s string) (ServerMode, error) {
	v, ok := serverModeNames[s]
	if !ok {
		return ServerModeAuto, errors.Errorf("invalid server mode %q", s)
	}
	return ServerMode(v), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *ServerMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseServerMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SessionOptions are settings passed to test hosts through their
// environment.
type SessionOptions struct {
	TelemetryOptOut bool       `yaml:"telemetry_optout"`
	ServerMode      ServerMode `yaml:"server_mode"`
}

// DefaultSessionOptions returns the options used unless configured
// otherwise.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{TelemetryOptOut: true, ServerMode: ServerModeOff}
}

// Env returns "key=value" entries to add to the environment of a test host.
func (o SessionOptions) Env() []string {
	var env []string
	if o.TelemetryOptOut {
		env = append(env, protocol.EnvTelemetryOptOut+"=1")
	}
	switch o.ServerMode {
	case ServerModeOff:
		env = append(env, protocol.EnvServerMode+"=0")
	case ServerModeOn:
		env = append(env, protocol.EnvServerMode+"=1")
	}
	return env
}
