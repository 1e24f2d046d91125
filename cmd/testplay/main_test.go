// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"

	"github.com/nya3jp/testplay/internal/config"
	"github.com/nya3jp/testplay/internal/driver"
	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/reporting"
	"github.com/nya3jp/testplay/internal/session"
	"github.com/nya3jp/testplay/internal/session/sessiontest"
)

// fakeSource returns a source whose provider reports TestA as passed and
// TestB as failed.
func fakeSource(cfg *config.Config, host string) driver.Source {
	return driver.Source{
		Name: host,
		Open: func(ctx context.Context) (session.Provider, error) {
			return &sessiontest.Fake{
				DiscoveryBatches: [][]*protocol.TestNode{sessiontest.Nodes("TestA", "TestB")},
				Results: map[string][]protocol.ExecutionState{
					"TestB": {protocol.StateInProgress, protocol.StateFailed},
				},
			}, nil
		},
	}
}

func execute(t *testing.T, c subcommands.Command, args []string) subcommands.ExitStatus {
	t.Helper()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	c.SetFlags(flags)
	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}
	return c.Execute(context.Background(), flags)
}

func newTestRunCmd(stdout, stderr *bytes.Buffer) *runCmd {
	rc := newRunCmd(stdout, stderr)
	rc.newSource = fakeSource
	return rc
}

func TestRunCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"hostA"}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v (stderr: %s)", args, status, subcommands.ExitSuccess, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Passed: 1; Skipped: 0; Failed: 1;\n") {
		t.Errorf("runCmd.Execute(%v) printed %q; want the tally", args, stdout.String())
	}
}

func TestRunCmdFailForTests(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"-failfortests", "hostA"}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitFailure {
		t.Errorf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitFailure)
	}
}

func TestRunCmdResultsDir(t *testing.T) {
	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics.prom")

	var stdout, stderr bytes.Buffer
	args := []string{"-resultsdir=" + dir, "-metrics_file=" + metrics, "hostA", "hostB"}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v (stderr: %s)", args, status, subcommands.ExitSuccess, stderr.String())
	}

	for _, name := range []string{
		reporting.StreamedResultsFilename,
		reporting.ResultsJSONFilename,
		reporting.JUnitXMLFilename,
		fullLogFilename,
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s was not written: %v", name, err)
		}
	}
	if _, err := os.Stat(metrics); err != nil {
		t.Errorf("Metrics were not written: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, reporting.ResultsJSONFilename))
	if err != nil {
		t.Fatal(err)
	}
	var results []*reporting.Result
	if err := json.Unmarshal(b, &results); err != nil {
		t.Fatal("Failed to parse results: ", err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.Source+" "+r.UID)
	}
	want := []string{"hostA TestA", "hostA TestB", "hostB TestA", "hostB TestB"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Results mismatch (-got +want):\n%s", diff)
	}
}

func TestRunCmdConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testplay.yaml")
	if err := os.WriteFile(path, []byte("hosts: [fromfile]\ndetailed: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	args := []string{"-config=" + path}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v (stderr: %s)", args, status, subcommands.ExitSuccess, stderr.String())
	}
	if !strings.Contains(stdout.String(), "\tfromfile TestA\n") {
		t.Errorf("runCmd.Execute(%v) printed %q; want detailed progress of fromfile", args, stdout.String())
	}

	stdout.Reset()
	args = []string{"-config=" + path, "-detailed=false"}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}
	if strings.Contains(stdout.String(), "[RUN.PROGRESS]") {
		t.Errorf("runCmd.Execute(%v) printed progress despite -detailed=false", args)
	}
}

func TestRunCmdBadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	args := []string{"-config=" + filepath.Join(t.TempDir(), "missing.yaml")}
	if status := execute(t, newTestRunCmd(&stdout, &stderr), args); status != subcommands.ExitUsageError {
		t.Errorf("runCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitUsageError)
	}
}

func TestListCmd(t *testing.T) {
	newCmd := func(stdout, stderr *bytes.Buffer) *listCmd {
		lc := newListCmd(stdout, stderr)
		lc.newSource = fakeSource
		return lc
	}

	var stdout, stderr bytes.Buffer
	args := []string{"hostA"}
	if status := execute(t, newCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute(%v) returned status %v; want %v (stderr: %s)", args, status, subcommands.ExitSuccess, stderr.String())
	}
	if got, want := stdout.String(), "TestA\nTestB\n"; got != want {
		t.Errorf("listCmd.Execute(%v) printed %q; want %q", args, got, want)
	}

	stdout.Reset()
	args = []string{"-json", "hostA"}
	if status := execute(t, newCmd(&stdout, &stderr), args); status != subcommands.ExitSuccess {
		t.Fatalf("listCmd.Execute(%v) returned status %v; want %v", args, status, subcommands.ExitSuccess)
	}
	var nodes []*protocol.TestNode
	if err := json.Unmarshal(stdout.Bytes(), &nodes); err != nil {
		t.Fatalf("Failed to unmarshal output from listCmd.Execute(%v): %v", args, err)
	}
	if len(nodes) != 2 || nodes[0].Property(protocol.PropSource) != "hostA" {
		t.Errorf("listCmd.Execute(%v) printed %+v; want 2 nodes of hostA", args, nodes)
	}
}

func TestDoMain(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if status := doMain([]string{"version"}, &stdout, &stderr); status != 0 {
		t.Errorf("doMain(version) returned %d; want 0", status)
	}
	if got, want := stdout.String(), "testplay version "+Version+"\n"; got != want {
		t.Errorf("doMain(version) printed %q; want %q", got, want)
	}

	if status := doMain([]string{"bogus"}, &stdout, &stderr); status != int(subcommands.ExitUsageError) {
		t.Errorf("doMain(bogus) returned %d; want %d", status, subcommands.ExitUsageError)
	}
}
