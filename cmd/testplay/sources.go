// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/nya3jp/testplay/internal/config"
	"github.com/nya3jp/testplay/internal/driver"
	"github.com/nya3jp/testplay/internal/genericexec"
	"github.com/nya3jp/testplay/internal/hostclient"
	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/session"
)

// sourceFunc returns the source of a test host executable.
type sourceFunc func(cfg *config.Config, host string) driver.Source

// hostSource starts host as a child process speaking the session protocol.
func hostSource(cfg *config.Config, host string) driver.Source {
	cmd := genericexec.CommandExec(host).WithEnv(cfg.Session.Env()...)
	return driver.Source{
		Name: host,
		Open: func(ctx context.Context) (session.Provider, error) {
			logging.Debugf(ctx, "Starting %v", cmd)
			cl, err := hostclient.Start(ctx, cmd,
				hostclient.WithClientInfo("testplay", Version),
				hostclient.WithVerbose(cfg.Verbose),
				hostclient.WithArgs(cfg.HostCommandArgs()...))
			if err != nil {
				return nil, err
			}
			return cl, nil
		},
	}
}

// configFlags holds a driver configuration and the flags setting it.
type configFlags struct {
	cfg     *config.Config
	cfgPath string
}

func newConfigFlags() *configFlags {
	return &configFlags{cfg: config.New()}
}

func (cf *configFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cf.cfgPath, "config", "", "YAML file with default values of flags")
	cf.cfg.SetFlags(f)
}

// resolve finalizes the configuration after f has been parsed. Positional
// arguments of f are host executables.
func (cf *configFlags) resolve(f *flag.FlagSet) (*config.Config, error) {
	if cf.cfgPath != "" {
		if err := cf.cfg.LoadFile(cf.cfgPath, f); err != nil {
			return nil, err
		}
	}
	if f.NArg() > 0 {
		cf.cfg.Hosts = f.Args()
	}
	exe, err := os.Executable()
	if err != nil {
		exe = ""
	}
	if err := cf.cfg.DeriveDefaults(exe); err != nil {
		return nil, err
	}
	return cf.cfg, nil
}

func sources(cfg *config.Config, newSource sourceFunc) []driver.Source {
	srcs := make([]driver.Source, len(cfg.Hosts))
	for i, host := range cfg.Hosts {
		srcs[i] = newSource(cfg, host)
	}
	return srcs
}

// attachLoggers returns a context logging to stderr per cfg, and to full.txt
// in the results directory if it is set. The returned function closes the log
// file.
func attachLoggers(ctx context.Context, cfg *config.Config, stderr io.Writer) (context.Context, func() error, error) {
	level := logging.LevelInfo
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(level, cfg.LogTime, logging.NewWriterSink(stderr)))
	if cfg.ResultsDir == "" {
		return ctx, func() error { return nil }, nil
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(filepath.Join(cfg.ResultsDir, fullLogFilename))
	if err != nil {
		return nil, nil, err
	}
	ctx = logging.AttachLogger(ctx, logging.NewSinkLogger(logging.LevelDebug, true, logging.NewWriterSink(f)))
	return ctx, f.Close, nil
}
