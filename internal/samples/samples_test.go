// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package samples

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nya3jp/testplay/internal/testhost"
)

func TestRegister(t *testing.T) {
	reg := testhost.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal("Register failed: ", err)
	}
	want := []string{"samples.Data.1_2", "samples.Data.3_4", "samples.Fail", "samples.Log", "samples.Pass", "samples.Skip"}
	if diff := cmp.Diff(reg.UIDs(), want); diff != "" {
		t.Errorf("UIDs mismatch (-got +want):\n%s", diff)
	}
}

func TestConsoleRun(t *testing.T) {
	reg := testhost.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal("Register failed: ", err)
	}
	h := testhost.New(reg, testhost.Config{Workers: 2, TelemetryOptOut: true})

	var out bytes.Buffer
	tally, err := testhost.RunConsole(context.Background(), h, &out)
	if err != nil {
		t.Fatal("RunConsole failed: ", err)
	}
	if got, want := tally.String(), "Passed: 4; Skipped: 1; Failed: 1;"; got != want {
		t.Errorf("Tally = %q; want %q", got, want)
	}
	for _, line := range []string{
		"samples.Data (1, 2): passed\n",
		"samples.Fail: failed (Expected 2 but got 3)\n",
		"samples.Skip: skipped\n",
	} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("Output does not contain %q:\n%s", line, out.String())
		}
	}
}
