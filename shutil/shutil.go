// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil formats command lines for logs, so that they can be pasted
// into a shell to reproduce a run.
package shutil

import (
	"regexp"
	"strings"
)

// A leading "=" is unsafe in zsh, so it is only allowed after the first byte.
var safeRE = regexp.MustCompile(`^[-\w@%+:,./][-\w@%+:,./=]*$`)

// Escape quotes s for a POSIX shell unless it is already safe to use as is.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// EscapeSlice escapes each of args and joins them with spaces.
func EscapeSlice(args []string) string {
	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = Escape(arg)
	}
	return strings.Join(escaped, " ")
}

// FormatCommand renders a command line preceded by "key=value" environment
// assignments. Keys are kept as is and values are escaped.
func FormatCommand(env, args []string) string {
	parts := make([]string, 0, len(env)+1)
	for _, e := range env {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			parts = append(parts, Escape(e))
			continue
		}
		parts = append(parts, k+"="+Escape(v))
	}
	if len(args) > 0 {
		parts = append(parts, EscapeSlice(args))
	}
	return strings.Join(parts, " ")
}
