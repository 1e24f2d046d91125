// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the testplay executable, used to discover and run
// tests of test hosts.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
)

// Version is the version info of this command.
var Version = "1.0.0"

// doMain implements the main body of the program. It's a separate function so
// that its deferred functions will run before os.Exit makes the program exit
// immediately.
func doMain(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("testplay", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cdr := subcommands.NewCommander(flags, "testplay")
	cdr.Output = stdout
	cdr.Error = stderr
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")
	cdr.Register(newRunCmd(stdout, stderr), "")
	cdr.Register(newListCmd(stdout, stderr), "")
	cdr.Register(newVersionCmd(stdout), "")

	if err := flags.Parse(args); err != nil {
		return int(subcommands.ExitUsageError)
	}
	return int(cdr.Execute(context.Background()))
}

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}
