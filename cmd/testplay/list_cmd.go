// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"

	"github.com/nya3jp/testplay/internal/command"
	"github.com/nya3jp/testplay/internal/driver"
	"github.com/nya3jp/testplay/internal/protocol"
)

// listCmd implements subcommands.Command to support listing tests.
type listCmd struct {
	json      bool // marshal nodes to JSON instead of just printing UIDs
	flags     *configFlags
	newSource sourceFunc
	stdout    io.Writer
	stderr    io.Writer
}

var _ subcommands.Command = &listCmd{}

func newListCmd(stdout, stderr io.Writer) *listCmd {
	return &listCmd{
		flags:     newConfigFlags(),
		newSource: hostSource,
		stdout:    stdout,
		stderr:    stderr,
	}
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list tests" }
func (*listCmd) Usage() string {
	return `Usage: list [flag]... [host]...

Description:
    Discover tests of test hosts without running them.

Flag:
`
}

func (lc *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&lc.json, "json", false, "print full node details as JSON")
	lc.flags.SetFlags(f)
}

func (lc *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := lc.flags.resolve(f)
	if err != nil {
		command.WriteError(lc.stderr, err)
		return subcommands.ExitUsageError
	}
	cfg.ResultsDir = ""

	ctx, _, err = attachLoggers(ctx, cfg, lc.stderr)
	if err != nil {
		command.WriteError(lc.stderr, err)
		return subcommands.ExitFailure
	}

	// Discovery progress is not printed; only the list is.
	nodes, err := driver.New(io.Discard, driver.WithTimeout(cfg.Timeout)).List(ctx, sources(cfg, lc.newSource))
	if err != nil {
		command.WriteError(lc.stderr, err)
		return subcommands.ExitFailure
	}
	if err := lc.printNodes(nodes); err != nil {
		command.WriteError(lc.stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printNodes writes the supplied nodes to lc.stdout.
func (lc *listCmd) printNodes(nodes []*protocol.TestNode) error {
	if lc.json {
		if nodes == nil {
			nodes = []*protocol.TestNode{}
		}
		enc := json.NewEncoder(lc.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}

	for _, n := range nodes {
		if _, err := fmt.Fprintln(lc.stdout, n.UID); err != nil {
			return err
		}
	}
	return nil
}
