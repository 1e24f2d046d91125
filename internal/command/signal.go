// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

var selfName = filepath.Base(os.Args[0])

// InstallSignalHandler makes SIGINT and SIGTERM call callback. A second
// signal exits the process immediately. On SIGTERM, goroutines are dumped
// to out and child processes are terminated as well, so that test hosts do
// not outlive the driver.
//
// The returned function uninstalls the handler.
func InstallSignalHandler(out io.Writer, callback func(sig os.Signal)) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			fmt.Fprintf(out, "\n%s: Caught %v signal; exiting\n", selfName, sig)
			if sig == unix.SIGTERM {
				handleSIGTERM(out)
			}
			callback(sig)
		case <-done:
			return
		}
		select {
		case sig := <-ch:
			fmt.Fprintf(out, "\n%s: Caught %v signal again; exiting now\n", selfName, sig)
			os.Exit(1)
		case <-done:
		}
	}()
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func handleSIGTERM(out io.Writer) {
	fmt.Fprintf(out, "\n%s: Dumping all goroutines...\n\n", selfName)
	if p := pprof.Lookup("goroutine"); p != nil {
		p.WriteTo(out, 2)
	}
	fmt.Fprintf(out, "\n%s: Finished dumping goroutines\n", selfName)

	if err := TerminateChildren(); err != nil {
		fmt.Fprintf(out, "Failed to terminate subprocesses: %v\n", err)
	}
}

// TerminateChildren sends SIGTERM to direct child processes.
func TerminateChildren() error {
	procs, err := process.Processes()
	if err != nil {
		return err
	}
	self := int32(os.Getpid())
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil {
			continue
		}
		if ppid == self {
			proc.Terminate()
		}
	}
	return nil
}
