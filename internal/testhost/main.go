// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nya3jp/testplay/internal/command"
	"github.com/nya3jp/testplay/internal/logging"
)

const (
	statusSuccess = 0 // host was successful
	statusFailure = 1 // an error was encountered or a test failed in console mode
	statusBadArgs = 2 // bad arguments were passed to the host
)

// StaticConfig contains fixed parameters of a test host executable.
type StaticConfig struct {
	// Name is reported to clients.
	Name string
	// Register adds the tests of the executable to a registry.
	Register func(reg *Registry) error
	// LookupEnv looks up environment variables. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Main implements the main function of a test host executable and returns
// its exit status.
//
// With -rpc, or when the environment asks for server mode, the host serves
// the session protocol on stdin and stdout. With -list, it prints the UIDs of
// its tests. Otherwise it runs all tests and prints their results to stdout.
func Main(clArgs []string, stdin io.Reader, stdout, stderr io.Writer, scfg *StaticConfig) int {
	flags := flag.NewFlagSet("testhost", flag.ContinueOnError)
	flags.SetOutput(stderr)
	rpc := flags.Bool("rpc", false, "serve the session protocol on stdin and stdout")
	list := flags.Bool("list", false, "print the UIDs of tests and exit")
	cfg := Config{Name: scfg.Name}
	flags.IntVar(&cfg.Workers, "workers", 0, "number of tests run in parallel (0 for the number of CPUs)")
	flags.StringVar(&cfg.OutDir, "outdir", "", "directory to write test logs and telemetry to")
	flags.IntVar(&cfg.BatchSize, "batch_size", 0, "maximum number of updates in a batch (0 for default)")
	flags.DurationVar(&cfg.FlushInterval, "flush_interval", 0, "longest wait before sending a partial batch (0 for default, negative to disable)")
	if err := flags.Parse(clArgs); err != nil {
		return statusBadArgs
	}
	if cfg.Workers < 0 {
		return command.WriteError(stderr, command.NewStatusErrorf(statusBadArgs, "invalid -workers %d", cfg.Workers))
	}

	lookup := scfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return command.WriteError(stderr, command.NewStatusErrorf(statusBadArgs, "%v", err))
	}

	reg := NewRegistry()
	if err := scfg.Register(reg); err != nil {
		return command.WriteError(stderr, err)
	}
	h := New(reg, cfg)

	logger := logging.NewSinkLogger(logging.LevelInfo, true, logging.NewWriterSink(stderr))

	switch {
	case *list:
		for _, uid := range reg.UIDs() {
			fmt.Fprintln(stdout, uid)
		}
		return statusSuccess
	case *rpc || cfg.ServeByDefault:
		if err := Serve(stdin, stdout, h, logger); err != nil {
			return command.WriteError(stderr, err)
		}
		return statusSuccess
	default:
		ctx, cancel := context.WithCancel(logging.AttachLogger(context.Background(), logger))
		defer cancel()
		stop := command.InstallSignalHandler(stderr, func(os.Signal) { cancel() })
		defer stop()

		tally, err := RunConsole(ctx, h, stdout)
		if err != nil {
			return command.WriteError(stderr, err)
		}
		if tally.Unsuccessful() > 0 {
			return statusFailure
		}
		return statusSuccess
	}
}
