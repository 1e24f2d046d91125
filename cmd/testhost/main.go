// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the testhost executable.
//
// testhost is started by the testplay driver with -rpc and speaks the session
// protocol on its stdin and stdout. Started without a client, it runs the
// sample tests and prints their results.
package main

import (
	"os"

	"github.com/nya3jp/testplay/internal/samples"
	"github.com/nya3jp/testplay/internal/testhost"
)

func main() {
	scfg := testhost.StaticConfig{
		Name:     "testhost",
		Register: samples.Register,
	}
	os.Exit(testhost.Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, &scfg))
}
