// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fakeexec lets unit tests run parts of themselves as child processes.
package fakeexec

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	// auxMainNameEnv names the auxiliary main function to run.
	auxMainNameEnv = "TESTPLAY_AUX_MAIN_NAME"
	// auxMainValueEnv carries the JSON-encoded parameter of the function.
	auxMainValueEnv = "TESTPLAY_AUX_MAIN_VALUE"
)

var knownNames = map[string]struct{}{}

// AuxMain is an auxiliary main function taking a parameter of type T.
type AuxMain[T any] struct {
	name string
}

// NewAuxMain registers an auxiliary main function. name must be unique within
// the executable.
//
// NewAuxMain must be called in a top-level variable initialization:
//
//	var hostMain = fakeexec.NewAuxMain("host", func(p hostParams) int {
//		...
//	})
//
// If the current process was started for the function, NewAuxMain calls f and
// exits with its return value. Otherwise it returns an *AuxMain that
// describes how to start such a process.
func NewAuxMain[T any](name string, f func(T) int) *AuxMain[T] {
	if _, found := knownNames[name]; found {
		panic(fmt.Sprintf("fakeexec.NewAuxMain: multiple registrations for %q", name))
	}
	knownNames[name] = struct{}{}

	if os.Getenv(auxMainNameEnv) != name {
		return &AuxMain[T]{name: name}
	}

	var v T
	if err := json.Unmarshal([]byte(os.Getenv(auxMainValueEnv)), &v); err != nil {
		fmt.Fprintf(os.Stderr, "fakeexec: %s: failed to unmarshal parameter: %v\n", name, err)
		os.Exit(2)
	}
	os.Exit(f(v))
	panic("unreachable")
}

// Params returns information needed to run the function with parameter v.
func (a *AuxMain[T]) Params(v T) (*AuxMainParams, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &AuxMainParams{executable: exe, name: a.name, value: string(b)}, nil
}

// AuxMainParams contains information needed to execute an auxiliary main
// function as a subprocess.
type AuxMainParams struct {
	executable string
	name       string
	value      string
}

// Executable returns the path to the current executable.
func (p *AuxMainParams) Executable() string {
	return p.executable
}

// Envs returns "key=value" entries to add to the environment of the
// subprocess.
func (p *AuxMainParams) Envs() []string {
	return []string{
		auxMainNameEnv + "=" + p.name,
		auxMainValueEnv + "=" + p.value,
	}
}
