// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package sessiontest

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/session"
)

// ContractEnv is a provider under test along with what it is expected to
// discover.
type ContractEnv struct {
	Provider session.Provider
	// WantUIDs are the UIDs the provider discovers, in any order.
	WantUIDs []string
}

// RunProviderContract runs the behaviors every session.Provider must have.
// newEnv is called once per subtest and must return a fresh provider. The
// suite exits providers itself.
func RunProviderContract(t *testing.T, newEnv func(t *testing.T) *ContractEnv) {
	t.Run("DiscoveryReportsEveryNodeOnce", func(t *testing.T) {
		env := newEnv(t)
		s := openSession(t, env.Provider)

		acc, c := discover(t, s)

		if diff := cmp.Diff(sortedUIDs(acc.Nodes()), sorted(env.WantUIDs)); diff != "" {
			t.Errorf("Discovered UIDs mismatch (-got +want):\n%s", diff)
		}
		if c.Status != protocol.StatusCompleted {
			t.Errorf("Discovery status = %q; want %q", c.Status, protocol.StatusCompleted)
		}
		if c.Total != acc.Len() {
			t.Errorf("Completion total = %d; want %d unique nodes", c.Total, acc.Len())
		}
		for _, n := range acc.Nodes() {
			if n.State != protocol.StateDiscovered {
				t.Errorf("Node %s discovered in state %q", n.UID, n.State)
			}
		}
	})

	t.Run("UpdatesBelongToTheirRequest", func(t *testing.T) {
		env := newEnv(t)
		s := openSession(t, env.Provider)

		ctx := context.Background()
		req, err := s.DiscoverTests(ctx, "contract-discovery")
		if err != nil {
			t.Fatal("DiscoverTests failed: ", err)
		}
		c, err := session.Drain(ctx, req, func(batch []*protocol.TestNodeUpdate) error {
			if len(batch) == 0 {
				t.Error("Received an empty batch")
			}
			for _, u := range batch {
				if u.RequestID != "contract-discovery" {
					t.Errorf("Update of %s has request ID %q", u.Node.UID, u.RequestID)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal("Discovery failed: ", err)
		}
		if c.RequestID != "contract-discovery" {
			t.Errorf("Completion request ID = %q; want %q", c.RequestID, "contract-discovery")
		}
	})

	t.Run("RunReportsEveryRequestedNode", func(t *testing.T) {
		env := newEnv(t)
		s := openSession(t, env.Provider)

		discovered, _ := discover(t, s)
		results, c := run(t, s, discovered.Nodes())

		if diff := cmp.Diff(sortedUIDs(results.Nodes()), sorted(env.WantUIDs)); diff != "" {
			t.Errorf("Run result UIDs mismatch (-got +want):\n%s", diff)
		}
		for _, n := range results.Nodes() {
			if !n.State.IsTerminal() {
				t.Errorf("Node %s ended in non-terminal state %q", n.UID, n.State)
			}
		}
		if v := results.Violations(); len(v) > 0 {
			t.Errorf("Lifecycle violations: %v", v)
		}
		if c.Total != results.Len() {
			t.Errorf("Completion total = %d; want %d", c.Total, results.Len())
		}
	})

	t.Run("RunOnlyRequestedNodes", func(t *testing.T) {
		env := newEnv(t)
		s := openSession(t, env.Provider)

		discovered, _ := discover(t, s)
		nodes := discovered.Nodes()
		if len(nodes) == 0 {
			t.Skip("Provider discovers no tests")
		}
		results, _ := run(t, s, nodes[:1])
		if diff := cmp.Diff(sortedUIDs(results.Nodes()), []string{nodes[0].UID}); diff != "" {
			t.Errorf("Run result UIDs mismatch (-got +want):\n%s", diff)
		}
	})

	t.Run("ExitIsIdempotent", func(t *testing.T) {
		env := newEnv(t)
		ctx := context.Background()
		if _, err := env.Provider.Initialize(ctx); err != nil {
			t.Fatal("Initialize failed: ", err)
		}
		if err := env.Provider.Exit(ctx); err != nil {
			t.Fatal("First Exit failed: ", err)
		}
		if err := env.Provider.Exit(ctx); err != nil {
			t.Error("Second Exit failed: ", err)
		}
	})
}

func openSession(t *testing.T, p session.Provider) *session.Session {
	t.Helper()
	ctx := context.Background()
	s, err := session.Open(ctx, p)
	if err != nil {
		t.Fatal("Open failed: ", err)
	}
	t.Cleanup(func() {
		if err := s.Close(ctx); err != nil {
			t.Error("Close failed: ", err)
		}
	})
	return s
}

func discover(t *testing.T, s *session.Session) (*session.Accumulator, *protocol.Completion) {
	t.Helper()
	ctx := context.Background()
	req, err := s.DiscoverTests(ctx, "")
	if err != nil {
		t.Fatal("DiscoverTests failed: ", err)
	}
	acc := session.NewAccumulator()
	c, err := session.Drain(ctx, req, func(batch []*protocol.TestNodeUpdate) error {
		acc.Add(batch...)
		return nil
	})
	if err != nil {
		t.Fatal("Discovery failed: ", err)
	}
	return acc, c
}

func run(t *testing.T, s *session.Session, nodes []*protocol.TestNode) (*session.Accumulator, *protocol.Completion) {
	t.Helper()
	ctx := context.Background()
	req, err := s.RunTests(ctx, "", nodes)
	if err != nil {
		t.Fatal("RunTests failed: ", err)
	}
	acc := session.NewAccumulator()
	c, err := session.Drain(ctx, req, func(batch []*protocol.TestNodeUpdate) error {
		acc.Add(batch...)
		return nil
	})
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	return acc, c
}

func sortedUIDs(nodes []*protocol.TestNode) []string {
	uids := make([]string, len(nodes))
	for i, n := range nodes {
		uids[i] = n.UID
	}
	return sorted(uids)
}

func sorted(s []string) []string {
	c := append([]string(nil), s...)
	sort.Strings(c)
	return c
}
