// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// logFileName is the name of the per-test log artifact.
const logFileName = "log.txt"

// State is passed to a test function and records its outcome.
// Its methods are safe to call from multiple goroutines, but Fatal, Skip and
// their variants end only the calling goroutine.
type State struct {
	inst   *instance
	outDir string

	mu         sync.Mutex
	log        bytes.Buffer
	errs       []*testError
	skipReason string
	skipped    bool
	panicked   bool
}

type testError struct {
	msg   string
	stack string
}

func newState(inst *instance, outDir string) *State {
	return &State{inst: inst, outDir: outDir}
}

// Name returns the UID of the running test.
func (s *State) Name() string { return s.inst.uid }

// Param returns the value of the current Param, or nil for tests without
// parameters.
func (s *State) Param() interface{} {
	if s.inst.param == nil {
		return nil
	}
	return s.inst.param.Val
}

// OutDir returns a directory where the test can write artifacts. It is
// empty if the host has no output directory.
func (s *State) OutDir() string {
	if s.outDir == "" {
		return ""
	}
	return filepath.Join(s.outDir, s.inst.uid)
}

// Log formats its arguments using fmt.Sprint and writes them to the test log.
func (s *State) Log(args ...interface{}) {
	s.writeLog(fmt.Sprint(args...))
}

// Logf is similar to Log but formats its arguments using fmt.Sprintf.
func (s *State) Logf(format string, args ...interface{}) {
	s.writeLog(fmt.Sprintf(format, args...))
}

func (s *State) writeLog(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(&s.log, "%s %s\n", time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"), msg)
}

// Error formats its arguments using fmt.Sprint and marks the test as failed.
func (s *State) Error(args ...interface{}) {
	s.addError(fmt.Sprint(args...))
}

// Errorf is similar to Error but formats its arguments using fmt.Sprintf.
func (s *State) Errorf(format string, args ...interface{}) {
	s.addError(fmt.Sprintf(format, args...))
}

// Fatal is similar to Error but also stops the test.
func (s *State) Fatal(args ...interface{}) {
	s.addError(fmt.Sprint(args...))
	runtime.Goexit()
}

// Fatalf is similar to Fatal but formats its arguments using fmt.Sprintf.
func (s *State) Fatalf(format string, args ...interface{}) {
	s.addError(fmt.Sprintf(format, args...))
	runtime.Goexit()
}

// Skip marks the test as skipped with a reason and stops it.
func (s *State) Skip(args ...interface{}) {
	s.skip(fmt.Sprint(args...))
}

// Skipf is similar to Skip but formats its arguments using fmt.Sprintf.
func (s *State) Skipf(format string, args ...interface{}) {
	s.skip(fmt.Sprintf(format, args...))
}

func (s *State) skip(reason string) {
	s.mu.Lock()
	s.skipped = true
	s.skipReason = reason
	s.mu.Unlock()
	s.writeLog("Skipped: " + reason)
	runtime.Goexit()
}

// HasError reports whether the test has reported an error.
func (s *State) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs) > 0
}

func (s *State) addError(msg string) {
	// Start the trace at the caller of the exported State method.
	s.recordError(msg, callerStack(3))
}

func (s *State) recordError(msg, stack string) {
	s.mu.Lock()
	s.errs = append(s.errs, &testError{msg: msg, stack: stack})
	s.mu.Unlock()
	s.writeLog("Error: " + msg)
}

// recordPanic records a panic value as an error.
func (s *State) recordPanic(val interface{}, stack []byte) {
	s.mu.Lock()
	s.panicked = true
	s.mu.Unlock()
	s.recordError(fmt.Sprintf("Panic: %v", val), string(stack))
}

// callerStack returns a stack trace starting skip frames above its caller.
func callerStack(skip int) string {
	err := errors.New("")
	st, ok := err.(interface{ StackTrace() errors.StackTrace })
	if !ok {
		return ""
	}
	frames := st.StackTrace()
	if skip < len(frames) {
		frames = frames[skip:]
	}
	return strings.TrimPrefix(fmt.Sprintf("%+v", frames), "\n")
}

// conclude computes the terminal state of a finished test and fills the
// outcome properties and artifacts of n.
func (s *State) conclude(n *protocol.TestNode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.panicked:
		n.State = protocol.StateError
		last := s.errs[len(s.errs)-1]
		n.SetProperty(protocol.PropErrorMessage, last.msg)
		n.SetProperty(protocol.PropErrorStacktrace, last.stack)
	case len(s.errs) > 0:
		n.State = protocol.StateFailed
		n.SetProperty(protocol.PropErrorMessage, s.errs[0].msg)
		n.SetProperty(protocol.PropErrorStacktrace, s.errs[0].stack)
	case s.skipped:
		n.State = protocol.StateSkipped
		n.SetProperty(protocol.PropSkipReason, s.skipReason)
	default:
		n.State = protocol.StatePassed
	}
}

// saveLog writes the test log to the output directory and returns it as an
// artifact. It returns nil if there is nothing to save.
func (s *State) saveLog() (*protocol.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.OutDir()
	if dir == "" || s.log.Len() == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating test output directory")
	}
	path := filepath.Join(dir, logFileName)
	if err := os.WriteFile(path, s.log.Bytes(), 0644); err != nil {
		return nil, errors.Wrap(err, "writing test log")
	}
	return &protocol.Artifact{Path: path, DisplayName: logFileName, Description: "Test log"}, nil
}
