// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging

import (
	"bufio"
	"context"
	"io"
)

// CopyLines reads r until EOF and emits each line as a log at level. It is used
// to forward stderr of child processes.
func CopyLines(ctx context.Context, level Level, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		emit(ctx, level, sc.Text())
	}
	return sc.Err()
}
