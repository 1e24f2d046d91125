// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command_test

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/command"
)

func TestWriteErrorStatusError(t *testing.T) {
	const (
		status = 127
		msg    = "this is the error message"
	)

	err := errors.Wrap(command.NewStatusErrorf(status, msg), "wrapped")
	b := bytes.Buffer{}
	if ret := command.WriteError(&b, err); ret != status {
		t.Errorf("WriteError(%v) = %v; want %v", err, ret, status)
	}
	if b.String() != msg+"\n" {
		t.Errorf("WriteError(%v) wrote %q; want %q", err, b.String(), msg+"\n")
	}
}

func TestWriteErrorGenericError(t *testing.T) {
	const msg = "this is the error message"

	err := errors.New(msg)
	b := bytes.Buffer{}
	if ret := command.WriteError(&b, err); ret != 1 {
		t.Errorf("WriteError(%v) = %v; want 1", err, ret)
	}
	if b.String() != msg+"\n" {
		t.Errorf("WriteError(%v) wrote %q; want %q", err, b.String(), msg+"\n")
	}
}
