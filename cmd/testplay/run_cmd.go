// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/nya3jp/testplay/internal/command"
	"github.com/nya3jp/testplay/internal/driver"
	"github.com/nya3jp/testplay/internal/logging"
)

// fullLogFilename is the name of the debug log written to the results
// directory.
const fullLogFilename = "full.txt"

// runCmd implements subcommands.Command to support running tests.
type runCmd struct {
	flags     *configFlags
	newSource sourceFunc // creates sources of test hosts
	stdout    io.Writer  // where to write driver output
	stderr    io.Writer  // where to write logs and errors
}

var _ subcommands.Command = &runCmd{}

func newRunCmd(stdout, stderr io.Writer) *runCmd {
	return &runCmd{
		flags:     newConfigFlags(),
		newSource: hostSource,
		stdout:    stdout,
		stderr:    stderr,
	}
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "discover and run tests" }
func (*runCmd) Usage() string {
	return `Usage: run [flag]... [host]...

Description:
    Discover all tests of test hosts and run them.

Host:
    Paths of test host executables. Defaults to the -host flag, the config
    file, or testhost next to this executable.

Flag:
`
}

func (rc *runCmd) SetFlags(f *flag.FlagSet) {
	rc.flags.SetFlags(f)
}

func (rc *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := rc.flags.resolve(f)
	if err != nil {
		command.WriteError(rc.stderr, err)
		return subcommands.ExitUsageError
	}

	ctx, closeLog, err := attachLoggers(ctx, cfg, rc.stderr)
	if err != nil {
		command.WriteError(rc.stderr, err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := closeLog(); err != nil {
			command.WriteError(rc.stderr, err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := command.InstallSignalHandler(rc.stderr, func(os.Signal) { cancel() })
	defer stop()

	opts := []driver.Option{
		driver.WithDetailed(cfg.Detailed),
		driver.WithTimeout(cfg.Timeout),
	}
	if cfg.ResultsDir != "" {
		opts = append(opts, driver.WithHandlers(
			driver.NewStreamedResultsHandler(cfg.ResultsDir),
			driver.NewResultsHandler(cfg.ResultsDir),
		))
	}
	if cfg.MetricsFile != "" {
		opts = append(opts, driver.WithHandlers(driver.NewMetricsHandler(cfg.MetricsFile)))
	}

	sum, err := driver.New(rc.stdout, opts...).Run(ctx, sources(cfg, rc.newSource))
	if err != nil {
		logging.Debugf(ctx, "Run failed: %+v", err)
		command.WriteError(rc.stderr, err)
		return subcommands.ExitFailure
	}
	if cfg.FailForTests {
		if n := sum.Tally.Unsuccessful(); n > 0 {
			logging.Infof(ctx, "%d test(s) did not pass", n)
			return subcommands.ExitFailure
		}
		if sum.Incomplete() {
			logging.Info(ctx, "Some requests did not complete")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
