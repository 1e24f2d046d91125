// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package reporting writes test results to files.
package reporting

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/nya3jp/testplay/internal/protocol"
)

// ResultsJSONFilename is a file name to be used with WriteResultsJSON.
const ResultsJSONFilename = "results.json"

// Result is the final state of a test node of a source.
type Result struct {
	Source      string                  `json:"source"`
	UID         string                  `json:"uid"`
	DisplayName string                  `json:"displayName"`
	State       protocol.ExecutionState `json:"state"`
	Properties  map[string]string       `json:"properties,omitempty"`
	Artifacts   []*protocol.Artifact    `json:"artifacts,omitempty"`
}

// NewResult returns the result of n reported by source.
func NewResult(source string, n *protocol.TestNode) *Result {
	c := n.Clone()
	return &Result{
		Source:      source,
		UID:         c.UID,
		DisplayName: c.DisplayName,
		State:       c.State,
		Properties:  c.Properties,
		Artifacts:   c.Artifacts,
	}
}

// Duration returns the run time reported by the host, or zero.
func (r *Result) Duration() time.Duration {
	ms, err := strconv.ParseInt(r.Properties[protocol.PropDurationMillis], 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// WriteResultsJSON writes results to path as an indented JSON array.
func WriteResultsJSON(path string, results []*Result) error {
	if results == nil {
		results = []*Result{}
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}
