// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// Config configures a Host.
type Config struct {
	// Name is reported to clients. Defaults to "testhost".
	Name string
	// Workers is the number of tests run in parallel. Defaults to the
	// number of CPUs.
	Workers int
	// OutDir receives test logs and telemetry. Artifacts are not produced
	// if it is empty.
	OutDir string
	// BatchSize is the maximum number of updates in a batch.
	BatchSize int
	// FlushInterval is the longest time an update waits in a partial
	// batch. A negative value disables periodic flushes.
	FlushInterval time.Duration
	// TelemetryOptOut disables the telemetry textfile.
	TelemetryOptOut bool
	// ServeByDefault makes the host speak the protocol on stdio even
	// without -rpc.
	ServeByDefault bool
}

// ApplyEnv updates cfg from the environment variables understood by hosts.
// lookup is usually os.LookupEnv.
func (cfg *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	if v, ok := lookup(protocol.EnvTelemetryOptOut); ok && v != "" {
		b, err := parseEnvBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", protocol.EnvTelemetryOptOut)
		}
		cfg.TelemetryOptOut = b
	}
	if v, ok := lookup(protocol.EnvServerMode); ok && v != "" {
		b, err := parseEnvBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s", protocol.EnvServerMode)
		}
		cfg.ServeByDefault = b
	}
	return nil
}

func parseEnvBool(v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Errorf("invalid boolean %q", v)
	}
	return b, nil
}
