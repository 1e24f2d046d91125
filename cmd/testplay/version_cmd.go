// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"
)

// versionCmd implements subcommands.Command to print the version.
type versionCmd struct {
	stdout io.Writer
}

var _ subcommands.Command = &versionCmd{}

func newVersionCmd(stdout io.Writer) *versionCmd {
	return &versionCmd{stdout: stdout}
}

func (*versionCmd) Name() string            { return "version" }
func (*versionCmd) Synopsis() string        { return "print the version" }
func (*versionCmd) Usage() string           { return "Usage: version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}

func (vc *versionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(vc.stdout, "testplay version %s\n", Version)
	return subcommands.ExitSuccess
}
