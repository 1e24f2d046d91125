// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config defines the configuration of the testplay driver.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/nya3jp/testplay/internal/command"
)

// DefaultHostName is the file name of the test host looked up next to the
// driver executable.
const DefaultHostName = "testhost"

// Config is the configuration of a driver run.
type Config struct {
	// Hosts are paths of test host executables. Each one is a source.
	Hosts []string `yaml:"hosts"`
	// HostArgs are extra arguments passed to every host.
	HostArgs []string `yaml:"host_args"`
	// Workers is the parallelism requested from hosts. Zero leaves it to
	// the hosts.
	Workers int            `yaml:"workers"`
	Session SessionOptions `yaml:"session"`
	// Timeout bounds each phase of each source. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// ResultsDir receives result files if non-empty.
	ResultsDir string `yaml:"results_dir"`
	// MetricsFile receives a Prometheus textfile if non-empty.
	MetricsFile  string `yaml:"metrics_file"`
	Detailed     bool   `yaml:"detailed"`
	FailForTests bool   `yaml:"fail_for_tests"`
	Verbose      bool   `yaml:"verbose"`
	LogTime      bool   `yaml:"log_time"`
}

// New returns a Config with default values.
func New() *Config {
	return &Config{Session: DefaultSessionOptions()}
}

// flagFields maps flag names to functions copying the corresponding field.
var flagFields = map[string]func(dst, src *Config){
	"host":             func(dst, src *Config) { dst.Hosts = src.Hosts },
	"hostargs":         func(dst, src *Config) { dst.HostArgs = src.HostArgs },
	"workers":          func(dst, src *Config) { dst.Workers = src.Workers },
	"telemetry_optout": func(dst, src *Config) { dst.Session.TelemetryOptOut = src.Session.TelemetryOptOut },
	"server_mode":      func(dst, src *Config) { dst.Session.ServerMode = src.Session.ServerMode },
	"timeout":          func(dst, src *Config) { dst.Timeout = src.Timeout },
	"resultsdir":       func(dst, src *Config) { dst.ResultsDir = src.ResultsDir },
	"metrics_file":     func(dst, src *Config) { dst.MetricsFile = src.MetricsFile },
	"detailed":         func(dst, src *Config) { dst.Detailed = src.Detailed },
	"failfortests":     func(dst, src *Config) { dst.FailForTests = src.FailForTests },
	"verbose":          func(dst, src *Config) { dst.Verbose = src.Verbose },
	"logtime":          func(dst, src *Config) { dst.LogTime = src.LogTime },
}

// SetFlags adds common run-related flags to f that store values in c.
func (c *Config) SetFlags(f *flag.FlagSet) {
	f.Var(command.NewListFlag(",", func(v []string) { c.Hosts = v }, c.Hosts), "host",
		"comma-separated test host executables (default: "+DefaultHostName+" next to this binary)")
	f.Var(command.NewListFlag(" ", func(v []string) { c.HostArgs = v }, c.HostArgs), "hostargs",
		"space-separated extra arguments for test hosts")
	f.IntVar(&c.Workers, "workers", c.Workers, "number of tests each host runs in parallel (0 for host default)")
	f.BoolVar(&c.Session.TelemetryOptOut, "telemetry_optout", c.Session.TelemetryOptOut, "ask test hosts not to write telemetry")

	vals := map[string]int{
		ServerModeAuto.String(): int(ServerModeAuto),
		ServerModeOff.String():  int(ServerModeOff),
		ServerModeOn.String():   int(ServerModeOn),
	}
	td := command.NewEnumFlag(vals, func(v int) { c.Session.ServerMode = ServerMode(v) }, c.Session.ServerMode.String())
	f.Var(td, "server_mode", "server mode of test hosts started without -rpc; valid values are "+td.QuotedValues())

	f.Var(command.NewDurationFlag(time.Second, &c.Timeout, c.Timeout), "timeout", "timeout of each phase in seconds (0 for none)")
	f.StringVar(&c.ResultsDir, "resultsdir", c.ResultsDir, "directory for test results")
	f.StringVar(&c.MetricsFile, "metrics_file", c.MetricsFile, "file to write Prometheus metrics to")
	f.BoolVar(&c.Detailed, "detailed", c.Detailed, "print progress of every batch")
	f.BoolVar(&c.FailForTests, "failfortests", c.FailForTests, "exit with status 1 on test failures or incomplete requests")
	f.BoolVar(&c.Verbose, "verbose", c.Verbose, "print debug logs")
	f.BoolVar(&c.LogTime, "logtime", c.LogTime, "prefix logs with timestamps")
}

// LoadFile merges the YAML file at path into c. Values given explicitly on
// f take precedence over the file.
func (c *Config) LoadFile(path string, f *flag.FlagSet) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading config")
	}
	fc := *c
	if err := yaml.UnmarshalStrict(b, &fc); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	if f != nil {
		f.Visit(func(fl *flag.Flag) {
			if copyField, ok := flagFields[fl.Name]; ok {
				copyField(&fc, c)
			}
		})
	}
	*c = fc
	return nil
}

// DeriveDefaults validates c and fills in values that depend on the
// environment. exe is the path of the driver executable.
func (c *Config) DeriveDefaults(exe string) error {
	if c.Workers < 0 {
		return errors.Errorf("invalid workers %d", c.Workers)
	}
	if c.Timeout < 0 {
		return errors.Errorf("invalid timeout %v", c.Timeout)
	}
	if len(c.Hosts) == 0 {
		if exe == "" {
			return errors.New("no test host given")
		}
		c.Hosts = []string{filepath.Join(filepath.Dir(exe), DefaultHostName)}
	}
	return nil
}

// HostCommandArgs returns arguments to pass to each host after -rpc.
func (c *Config) HostCommandArgs() []string {
	var args []string
	if c.Workers > 0 {
		args = append(args, "-workers="+strconv.Itoa(c.Workers))
	}
	return append(args, c.HostArgs...)
}
