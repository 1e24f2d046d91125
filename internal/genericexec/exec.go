// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package genericexec

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nya3jp/testplay/shutil"
)

// terminateGrace is how long a process may take to exit after SIGTERM before
// it is killed.
const terminateGrace = 5 * time.Second

// ExecCmd is a local command.
type ExecCmd struct {
	name     string
	baseArgs []string
	env      []string
}

var _ Cmd = &ExecCmd{}

// CommandExec constructs a new ExecCmd.
func CommandExec(name string, baseArgs ...string) *ExecCmd {
	return &ExecCmd{name: name, baseArgs: baseArgs}
}

// WithEnv returns a copy of c whose process gets env in addition to the
// environment of the current process. Later entries win.
func (c *ExecCmd) WithEnv(env ...string) *ExecCmd {
	nc := *c
	nc.env = append(append([]string(nil), c.env...), env...)
	return &nc
}

// Env returns the extra environment entries of c.
func (c *ExecCmd) Env() []string {
	return append([]string(nil), c.env...)
}

func (c *ExecCmd) String() string {
	return shutil.FormatCommand(c.env, append([]string{c.name}, c.baseArgs...))
}

func (c *ExecCmd) command(ctx context.Context, extraArgs []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.name, append(append([]string(nil), c.baseArgs...), extraArgs...)...)
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(unix.SIGTERM) }
	cmd.WaitDelay = terminateGrace
	return cmd
}

// Run runs the command synchronously. See Cmd.Run for details.
func (c *ExecCmd) Run(ctx context.Context, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := c.command(ctx, extraArgs)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Interact starts the command asynchronously. See Cmd.Interact for details.
func (c *ExecCmd) Interact(ctx context.Context, extraArgs []string) (p Process, retErr error) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if retErr != nil {
			cancel()
		}
	}()

	cmd := c.command(ctx, extraArgs)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &ExecProcess{cmd: cmd, cancel: cancel, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

// ExecProcess is a locally running process.
type ExecProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

var _ Process = &ExecProcess{}

func (p *ExecProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *ExecProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *ExecProcess) Stderr() io.ReadCloser { return p.stderr }

// PID returns the process ID.
func (p *ExecProcess) PID() int { return p.cmd.Process.Pid }

// Wait waits for the process to exit. See Process.Wait for details.
func (p *ExecProcess) Wait(ctx context.Context) error {
	exited := make(chan struct{})
	defer close(exited)

	go func() {
		select {
		case <-ctx.Done():
		case <-exited:
		}
		p.cancel()
	}()
	return p.cmd.Wait()
}
