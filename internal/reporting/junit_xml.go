// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reporting

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/nya3jp/testplay/internal/protocol"
)

// JUnitXMLFilename is a file name to be used with WriteJUnitXMLResults.
const JUnitXMLFilename = "results.xml"

type testSuites struct {
	XMLName    xml.Name
	TestSuites []*testSuite `xml:"testsuite"`
}

// testSuite holds the results of one source.
type testSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	TestCase []*testCase `xml:"testcase"`
}

type testCase struct {
	Name   string `xml:"name,attr"`
	Status string `xml:"status,attr"`         // run or notrun
	Result string `xml:"result,attr"`         // more detailed result
	Time   string `xml:"time,attr,omitempty"` // duration, in seconds (with a decimal point)

	Failure *failure `xml:"failure,omitempty"`
	Error   *failure `xml:"error,omitempty"`
	Skipped *skipped `xml:"skipped,omitempty"`
}

type failure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Details string `xml:",cdata"`
}

type skipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteJUnitXMLResults saves results to path in the JUnit XML format, with a
// testsuite per source in order of first appearance.
func WriteJUnitXMLResults(path string, results []*Result) error {
	suites := testSuites{XMLName: xml.Name{Local: "testsuites"}}
	bySource := make(map[string]*testSuite)
	for _, r := range results {
		suite, ok := bySource[r.Source]
		if !ok {
			suite = &testSuite{Name: r.Source}
			bySource[r.Source] = suite
			suites.TestSuites = append(suites.TestSuites, suite)
		}
		suite.Tests++

		tc := &testCase{
			Name:   r.DisplayName,
			Status: "run",
			Result: "completed",
			// Decimal point is needed for distinguishing it from nanoseconds notation.
			Time: fmt.Sprintf("%.1f", r.Duration().Seconds()),
		}
		msg := r.Properties[protocol.PropErrorMessage]
		switch r.State {
		case protocol.StatePassed:
		case protocol.StateSkipped:
			tc.Status = "notrun"
			tc.Result = "skipped"
			tc.Skipped = &skipped{Message: r.Properties[protocol.PropSkipReason]}
			suite.Skipped++
		case protocol.StateFailed, protocol.StateTimedOut:
			tc.Failure = &failure{Message: msg, Type: string(r.State), Details: r.Properties[protocol.PropErrorStacktrace]}
			suite.Failures++
		default:
			// error, cancelled, and nodes that never reached a terminal state.
			tc.Result = string(r.State)
			if r.State != protocol.StateError {
				tc.Status = "notrun"
			}
			tc.Error = &failure{Message: msg, Type: string(r.State), Details: r.Properties[protocol.PropErrorStacktrace]}
			suite.Errors++
		}
		suite.TestCase = append(suite.TestCase, tc)
	}

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
