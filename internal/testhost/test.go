// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/protocol"
)

// DefaultTimeout is the timeout of tests that do not set one.
const DefaultTimeout = 2 * time.Minute

// TestFunc is the body of a test.
type TestFunc func(ctx context.Context, s *State)

// Test describes a test registered to a Registry.
type Test struct {
	// Name is a package name and an exported-looking test name joined by a
	// period, e.g. "samples.Pass".
	Name string
	// Desc is a one-line description.
	Desc string
	// Func is the test body.
	Func TestFunc
	// Timeout bounds a single run of the test. Zero means DefaultTimeout.
	Timeout time.Duration
	// Params makes the test data-driven. Each Param becomes its own node.
	Params []Param
}

// Param is one data point of a data-driven test.
type Param struct {
	// Name is appended to the test name to form the node UID.
	Name string
	// Display is shown in parentheses after the test name. It defaults to
	// Name.
	Display string
	// Val is returned by State.Param.
	Val interface{}
}

var (
	testNameRE  = regexp.MustCompile(`^[a-z][a-z0-9]*\.[A-Z][A-Za-z0-9]*$`)
	paramNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// instance is a runnable expansion of a Test for one of its Params.
type instance struct {
	uid         string
	displayName string
	test        *Test
	param       *Param
}

func instantiate(t *Test) ([]*instance, error) {
	if !testNameRE.MatchString(t.Name) {
		return nil, errors.Errorf("invalid test name %q", t.Name)
	}
	if t.Func == nil {
		return nil, errors.Errorf("test %s has no function", t.Name)
	}
	if t.Timeout < 0 {
		return nil, errors.Errorf("test %s has negative timeout %v", t.Name, t.Timeout)
	}
	if len(t.Params) == 0 {
		return []*instance{{uid: t.Name, displayName: t.Name, test: t}}, nil
	}

	seen := make(map[string]struct{})
	var insts []*instance
	for i := range t.Params {
		p := &t.Params[i]
		if !paramNameRE.MatchString(p.Name) {
			return nil, errors.Errorf("test %s has invalid param name %q", t.Name, p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return nil, errors.Errorf("test %s has duplicate param %q", t.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		display := p.Display
		if display == "" {
			display = p.Name
		}
		insts = append(insts, &instance{
			uid:         t.Name + "." + p.Name,
			displayName: fmt.Sprintf("%s (%s)", t.Name, display),
			test:        t,
			param:       p,
		})
	}
	return insts, nil
}

func (i *instance) timeout() time.Duration {
	if i.test.Timeout > 0 {
		return i.test.Timeout
	}
	return DefaultTimeout
}

// node returns the discovered node of the instance.
func (i *instance) node() *protocol.TestNode {
	n := &protocol.TestNode{
		UID:         i.uid,
		DisplayName: i.displayName,
		State:       protocol.StateDiscovered,
	}
	if i.param != nil {
		n.SetProperty(protocol.PropParam, i.param.Name)
	}
	return n
}
