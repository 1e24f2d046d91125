// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package command contains code shared by the testplay and testhost
// executables.
package command

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// StatusError is an error carrying the exit status to use.
type StatusError struct {
	msg    string
	status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (status %v)", e.msg, e.status)
}

// Status returns e's status code.
func (e *StatusError) Status() int {
	return e.status
}

// NewStatusErrorf creates a StatusError with the passed status code and formatted string.
func NewStatusErrorf(status int, format string, args ...interface{}) *StatusError {
	return &StatusError{fmt.Sprintf(format, args...), status}
}

// WriteError writes a newline-terminated error message to w and returns the
// exit status to use. The status is 1 unless err wraps a *StatusError.
func WriteError(w io.Writer, err error) int {
	msg := err.Error()
	status := 1

	var se *StatusError
	if errors.As(err, &se) {
		msg = se.msg
		status = se.status
	}

	if len(msg) > 0 && msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	io.WriteString(w, msg)
	return status
}
