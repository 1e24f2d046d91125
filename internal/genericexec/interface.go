// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package genericexec abstracts external commands, so that a test host can be
// a local process or an in-memory fake.
package genericexec

import (
	"context"
	"io"
)

// Cmd is an external command to execute.
type Cmd interface {
	// Run runs the command synchronously.
	//
	// extraArgs is appended to the base arguments given to the constructor.
	// stdin is sent to the standard input of the process, and its standard
	// output/error are written to stdout/stderr.
	Run(ctx context.Context, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) error

	// Interact starts the command asynchronously.
	//
	// When ctx is canceled, the process is terminated. The returned Process
	// must be waited for.
	Interact(ctx context.Context, extraArgs []string) (Process, error)

	// String returns a shell-escaped command line for logging.
	String() string
}

// Process is a running external process.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser

	// Wait waits for the process to exit and releases its resources. It must
	// always be called.
	//
	// Stdout and Stderr may be closed once Wait returns, so reading them must
	// finish before calling Wait. When ctx is canceled, the process is
	// terminated.
	Wait(ctx context.Context) error
}
