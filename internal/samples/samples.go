// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package samples contains the tests bundled with the testhost binary.
package samples

import (
	"context"
	"time"

	"github.com/nya3jp/testplay/internal/testhost"
)

type pair struct {
	a, b int
}

// Tests lists the bundled tests.
var Tests = []*testhost.Test{
	{
		Name: "samples.Pass",
		Desc: "Always passes",
		Func: Pass,
	},
	{
		Name: "samples.Fail",
		Desc: "Always fails",
		Func: Fail,
	},
	{
		Name: "samples.Skip",
		Desc: "Always skips itself",
		Func: Skip,
	},
	{
		Name: "samples.Log",
		Desc: "Writes a few lines to the test log",
		Func: Log,
	},
	{
		Name:    "samples.Data",
		Desc:    "Checks that the first value of each pair is the smaller one",
		Func:    Data,
		Timeout: 30 * time.Second,
		Params: []testhost.Param{
			{Name: "1_2", Display: "1, 2", Val: pair{1, 2}},
			{Name: "3_4", Display: "3, 4", Val: pair{3, 4}},
		},
	},
}

// Register adds Tests to reg.
func Register(reg *testhost.Registry) error {
	for _, t := range Tests {
		if err := reg.AddTest(t); err != nil {
			return err
		}
	}
	return nil
}

func Pass(ctx context.Context, s *testhost.State) {}

func Fail(ctx context.Context, s *testhost.State) {
	s.Error("Expected 2 but got 3")
}

func Skip(ctx context.Context, s *testhost.State) {
	s.Skip("Not supported on this platform")
}

func Log(ctx context.Context, s *testhost.State) {
	for i := 1; i <= 3; i++ {
		s.Logf("Step %d of 3", i)
	}
}

func Data(ctx context.Context, s *testhost.State) {
	p := s.Param().(pair)
	if p.a >= p.b {
		s.Fatalf("%d is not less than %d", p.a, p.b)
	}
	s.Logf("%d < %d", p.a, p.b)
}
