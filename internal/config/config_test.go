// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSessionOptionsEnv(t *testing.T) {
	for _, tc := range []struct {
		opts SessionOptions
		want []string
	}{
		{DefaultSessionOptions(), []string{"TESTPLAY_TELEMETRY_OPTOUT=1", "TESTPLAY_SERVER_MODE=0"}},
		{SessionOptions{ServerMode: ServerModeOn}, []string{"TESTPLAY_SERVER_MODE=1"}},
		{SessionOptions{ServerMode: ServerModeAuto}, nil},
	} {
		if diff := cmp.Diff(tc.opts.Env(), tc.want); diff != "" {
			t.Errorf("%+v.Env() mismatch (-got +want):\n%s", tc.opts, diff)
		}
	}
}

func TestSetFlags(t *testing.T) {
	cfg := New()
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.SetFlags(fs)
	if err := fs.Parse([]string{
		"-host=/a/host,/b/host",
		"-hostargs=-x -y",
		"-workers=3",
		"-server_mode=on",
		"-timeout=90",
		"-detailed",
	}); err != nil {
		t.Fatal("Parse failed: ", err)
	}

	want := &Config{
		Hosts:    []string{"/a/host", "/b/host"},
		HostArgs: []string{"-x", "-y"},
		Workers:  3,
		Session:  SessionOptions{TelemetryOptOut: true, ServerMode: ServerModeOn},
		Timeout:  90 * time.Second,
		Detailed: true,
	}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("Config mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(cfg.HostCommandArgs(), []string{"-workers=3", "-x", "-y"}); diff != "" {
		t.Errorf("HostCommandArgs mismatch (-got +want):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testplay.yaml")
	if err := os.WriteFile(path, []byte(`
hosts: [/from/file]
workers: 4
timeout: 2m
session:
  server_mode: auto
detailed: true
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := New()
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.SetFlags(fs)
	if err := fs.Parse([]string{"-workers=8"}); err != nil {
		t.Fatal("Parse failed: ", err)
	}
	if err := cfg.LoadFile(path, fs); err != nil {
		t.Fatal("LoadFile failed: ", err)
	}

	want := &Config{
		Hosts:    []string{"/from/file"},
		Workers:  8,
		Session:  SessionOptions{TelemetryOptOut: true, ServerMode: ServerModeAuto},
		Timeout:  2 * time.Minute,
		Detailed: true,
	}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("Config mismatch (-got +want):\n%s", diff)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"unknown.yaml": "no_such_field: 1\n",
		"mode.yaml":    "session:\n  server_mode: sometimes\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if err := New().LoadFile(path, nil); err == nil {
			t.Errorf("LoadFile(%s) succeeded; want error", name)
		}
	}
	if err := New().LoadFile(filepath.Join(dir, "missing.yaml"), nil); err == nil {
		t.Error("LoadFile succeeded for a missing file")
	}
}

func TestDeriveDefaults(t *testing.T) {
	cfg := New()
	if err := cfg.DeriveDefaults("/opt/testplay/bin/testplay"); err != nil {
		t.Fatal("DeriveDefaults failed: ", err)
	}
	if diff := cmp.Diff(cfg.Hosts, []string{"/opt/testplay/bin/testhost"}); diff != "" {
		t.Errorf("Hosts mismatch (-got +want):\n%s", diff)
	}

	cfg = New()
	cfg.Workers = -1
	if err := cfg.DeriveDefaults("/bin/testplay"); err == nil {
		t.Error("DeriveDefaults succeeded for negative workers")
	}
}

func TestParseServerMode(t *testing.T) {
	for _, m := range []ServerMode{ServerModeAuto, ServerModeOff, ServerModeOn} {
		got, err := ParseServerMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseServerMode(%q) = (%v, %v); want %v", m.String(), got, err, m)
		}
	}
	if _, err := ParseServerMode("bogus"); err == nil {
		t.Error("ParseServerMode(bogus) succeeded")
	}
}
