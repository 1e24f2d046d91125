// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/google/go-cmp/cmp"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
)

type recordSink struct {
	mu      sync.Mutex
	batches [][]*protocol.TestNodeUpdate
	logs    []string
}

func (s *recordSink) SendUpdates(updates []*protocol.TestNodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, updates)
	return nil
}

func (s *recordSink) SendLog(level logging.Level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, level.String()+": "+msg)
	return nil
}

func (s *recordSink) updates() []*protocol.TestNodeUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var us []*protocol.TestNodeUpdate
	for _, b := range s.batches {
		us = append(us, b...)
	}
	return us
}

// states returns the reported states of each node.
func (s *recordSink) states() map[string][]protocol.ExecutionState {
	m := make(map[string][]protocol.ExecutionState)
	for _, u := range s.updates() {
		m[u.Node.UID] = append(m[u.Node.UID], u.Node.State)
	}
	return m
}

// final returns the last snapshot of each node.
func (s *recordSink) final() map[string]*protocol.TestNode {
	m := make(map[string]*protocol.TestNode)
	for _, u := range s.updates() {
		m[u.Node.UID] = u.Node
	}
	return m
}

func nop(ctx context.Context, s *State) {}

func newRegistry(t *testing.T, tests ...*Test) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, test := range tests {
		if err := reg.AddTest(test); err != nil {
			t.Fatalf("AddTest(%q) failed: %v", test.Name, err)
		}
	}
	return reg
}

func nodesOf(uids ...string) []*protocol.TestNode {
	var nodes []*protocol.TestNode
	for _, uid := range uids {
		nodes = append(nodes, &protocol.TestNode{UID: uid, DisplayName: uid, State: protocol.StateDiscovered})
	}
	return nodes
}

func TestAddTestErrors(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddTest(&Test{Name: "pkg.Good", Func: nop}); err != nil {
		t.Fatal("AddTest failed for a valid test: ", err)
	}
	for _, tc := range []struct {
		name string
		test *Test
	}{
		{"bad name", &Test{Name: "Bad", Func: nop}},
		{"lower-case test", &Test{Name: "pkg.bad", Func: nop}},
		{"no func", &Test{Name: "pkg.NoFunc"}},
		{"negative timeout", &Test{Name: "pkg.Neg", Func: nop, Timeout: -time.Second}},
		{"duplicate", &Test{Name: "pkg.Good", Func: nop}},
		{"bad param", &Test{Name: "pkg.Param", Func: nop, Params: []Param{{Name: "A B"}}}},
		{"duplicate param", &Test{Name: "pkg.Dup", Func: nop, Params: []Param{{Name: "a"}, {Name: "a"}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := reg.AddTest(tc.test); err == nil {
				t.Errorf("AddTest(%q) succeeded; want error", tc.test.Name)
			}
		})
	}
	if got := len(reg.Errors()); got != 7 {
		t.Errorf("len(Errors()) = %d; want 7", got)
	}
	if diff := cmp.Diff(reg.UIDs(), []string{"pkg.Good"}); diff != "" {
		t.Errorf("UIDs mismatch (-got +want):\n%s", diff)
	}
}

func TestDiscover(t *testing.T) {
	reg := newRegistry(t,
		&Test{Name: "pkg.B", Func: nop},
		&Test{Name: "pkg.A", Func: nop},
		&Test{Name: "pkg.P", Func: nop, Params: []Param{{Name: "x", Display: "X"}, {Name: "y"}}},
	)
	h := New(reg, Config{BatchSize: 2, FlushInterval: -1, TelemetryOptOut: true})

	sink := &recordSink{}
	c, err := h.Discover(context.Background(), "req", sink)
	if err != nil {
		t.Fatal("Discover failed: ", err)
	}

	var gotSizes []int
	for _, b := range sink.batches {
		gotSizes = append(gotSizes, len(b))
	}
	if diff := cmp.Diff(gotSizes, []int{2, 2}); diff != "" {
		t.Errorf("Batch sizes mismatch (-got +want):\n%s", diff)
	}

	var got []*protocol.TestNode
	for _, u := range sink.updates() {
		if u.RequestID != "req" {
			t.Errorf("Update of %s has request ID %q; want %q", u.Node.UID, u.RequestID, "req")
		}
		got = append(got, u.Node)
	}
	want := []*protocol.TestNode{
		{UID: "pkg.A", DisplayName: "pkg.A", State: protocol.StateDiscovered},
		{UID: "pkg.B", DisplayName: "pkg.B", State: protocol.StateDiscovered},
		{UID: "pkg.P.x", DisplayName: "pkg.P (X)", State: protocol.StateDiscovered, Properties: map[string]string{protocol.PropParam: "x"}},
		{UID: "pkg.P.y", DisplayName: "pkg.P (y)", State: protocol.StateDiscovered, Properties: map[string]string{protocol.PropParam: "y"}},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Discovered nodes mismatch (-got +want):\n%s", diff)
	}

	wantC := &protocol.Completion{
		RequestID: "req",
		Status:    protocol.StatusCompleted,
		Total:     4,
		Stats:     map[protocol.ExecutionState]int{protocol.StateDiscovered: 4},
	}
	if diff := cmp.Diff(c, wantC); diff != "" {
		t.Errorf("Completion mismatch (-got +want):\n%s", diff)
	}
}

func TestDiscoverInvalidTests(t *testing.T) {
	reg := newRegistry(t, &Test{Name: "pkg.A", Func: nop})
	reg.AddTest(&Test{Name: "pkg.Broken"})

	h := New(reg, Config{TelemetryOptOut: true})
	sink := &recordSink{}
	c, err := h.Discover(context.Background(), "req", sink)
	if err != nil {
		t.Fatal("Discover failed: ", err)
	}
	if c.Status != protocol.StatusPartial {
		t.Errorf("Status = %v; want %v", c.Status, protocol.StatusPartial)
	}
	if c.Total != 2 {
		t.Errorf("Total = %d; want 2", c.Total)
	}
	n, ok := sink.final()["invalid.1"]
	if !ok {
		t.Fatalf("No error node reported; got %v", sink.final())
	}
	if n.State != protocol.StateError || n.DisplayName != "pkg.Broken" {
		t.Errorf("Error node = %+v; want state %v and display name pkg.Broken", n, protocol.StateError)
	}
	if len(sink.logs) != 1 || !strings.HasPrefix(sink.logs[0], "WARNING: ") {
		t.Errorf("Logs = %q; want one warning", sink.logs)
	}
}

func TestRunOutcomes(t *testing.T) {
	reg := newRegistry(t,
		&Test{Name: "pkg.Pass", Func: nop},
		&Test{Name: "pkg.Error", Func: func(ctx context.Context, s *State) {
			s.Error("first")
			s.Error("second")
		}},
		&Test{Name: "pkg.Fatal", Func: func(ctx context.Context, s *State) {
			s.Fatal("fatal")
			panic("not reached")
		}},
		&Test{Name: "pkg.Skip", Func: func(ctx context.Context, s *State) {
			s.Skipf("no %s", "device")
			panic("not reached")
		}},
		&Test{Name: "pkg.Panic", Func: func(ctx context.Context, s *State) {
			panic("boom")
		}},
		&Test{Name: "pkg.Timeout", Timeout: 10 * time.Millisecond, Func: func(ctx context.Context, s *State) {
			<-ctx.Done()
		}},
	)
	h := New(reg, Config{Workers: 3, TelemetryOptOut: true})

	sink := &recordSink{}
	uids := []string{"pkg.Pass", "pkg.Error", "pkg.Fatal", "pkg.Skip", "pkg.Panic", "pkg.Timeout"}
	c, err := h.Run(context.Background(), "req", nodesOf(uids...), sink)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}

	wantStates := map[string]protocol.ExecutionState{
		"pkg.Pass":    protocol.StatePassed,
		"pkg.Error":   protocol.StateFailed,
		"pkg.Fatal":   protocol.StateFailed,
		"pkg.Skip":    protocol.StateSkipped,
		"pkg.Panic":   protocol.StateError,
		"pkg.Timeout": protocol.StateTimedOut,
	}
	states := sink.states()
	for uid, want := range wantStates {
		if diff := cmp.Diff(states[uid], []protocol.ExecutionState{protocol.StateInProgress, want}); diff != "" {
			t.Errorf("States of %s mismatch (-got +want):\n%s", uid, diff)
		}
	}

	final := sink.final()
	if got := final["pkg.Error"].Property(protocol.PropErrorMessage); got != "first" {
		t.Errorf("Error message of pkg.Error = %q; want %q", got, "first")
	}
	if got := final["pkg.Error"].Property(protocol.PropErrorStacktrace); !strings.Contains(got, "TestRunOutcomes") {
		t.Errorf("Stack trace of pkg.Error does not mention the test function:\n%s", got)
	}
	if got := final["pkg.Skip"].Property(protocol.PropSkipReason); got != "no device" {
		t.Errorf("Skip reason = %q; want %q", got, "no device")
	}
	if got := final["pkg.Panic"].Property(protocol.PropErrorMessage); got != "Panic: boom" {
		t.Errorf("Panic message = %q; want %q", got, "Panic: boom")
	}
	for uid, n := range final {
		if n.Property(protocol.PropDurationMillis) == "" {
			t.Errorf("%s has no duration", uid)
		}
	}

	if c.Status != protocol.StatusCompleted || c.Total != len(uids) {
		t.Errorf("Completion = %+v; want completed with total %d", c, len(uids))
	}
	wantStats := map[protocol.ExecutionState]int{
		protocol.StatePassed:   1,
		protocol.StateFailed:   2,
		protocol.StateSkipped:  1,
		protocol.StateError:    1,
		protocol.StateTimedOut: 1,
	}
	if diff := cmp.Diff(c.Stats, wantStats); diff != "" {
		t.Errorf("Stats mismatch (-got +want):\n%s", diff)
	}
}

func TestRunUnknownAndDuplicateNodes(t *testing.T) {
	h := New(newRegistry(t, &Test{Name: "pkg.A", Func: nop}), Config{TelemetryOptOut: true})
	sink := &recordSink{}
	c, err := h.Run(context.Background(), "req", nodesOf("pkg.A", "pkg.Missing", "pkg.A"), sink)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	want := map[string][]protocol.ExecutionState{
		"pkg.A":       {protocol.StateInProgress, protocol.StatePassed},
		"pkg.Missing": {protocol.StateError},
	}
	if diff := cmp.Diff(sink.states(), want); diff != "" {
		t.Errorf("States mismatch (-got +want):\n%s", diff)
	}
	if got := sink.final()["pkg.Missing"].Property(protocol.PropErrorMessage); got != "no such test" {
		t.Errorf("Error message = %q; want %q", got, "no such test")
	}
	if c.Status != protocol.StatusPartial || c.Total != 2 {
		t.Errorf("Completion = %+v; want partial with total 2", c)
	}
}

func TestRunCancel(t *testing.T) {
	started := make(chan struct{})
	block := func(ctx context.Context, s *State) {
		close(started)
		<-ctx.Done()
	}
	reg := newRegistry(t,
		&Test{Name: "pkg.Block", Func: block},
		&Test{Name: "pkg.Later", Func: nop},
	)
	h := New(reg, Config{Workers: 1, TelemetryOptOut: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	sink := &recordSink{}
	c, err := h.Run(ctx, "req", nodesOf("pkg.Block", "pkg.Later"), sink)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	if c.Status != protocol.StatusAborted {
		t.Errorf("Status = %v; want %v", c.Status, protocol.StatusAborted)
	}
	final := sink.final()
	for _, uid := range []string{"pkg.Block", "pkg.Later"} {
		if got := final[uid].State; got != protocol.StateCancelled {
			t.Errorf("State of %s = %v; want %v", uid, got, protocol.StateCancelled)
		}
	}
	if c.Total != 2 {
		t.Errorf("Total = %d; want 2", c.Total)
	}
}

func TestRunDuration(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Unix(1000, 0))
	reg := newRegistry(t, &Test{Name: "pkg.Slow", Func: func(ctx context.Context, s *State) {
		fc.Increment(1500 * time.Millisecond)
	}})
	h := New(reg, Config{FlushInterval: -1, TelemetryOptOut: true}, WithClock(fc))

	sink := &recordSink{}
	if _, err := h.Run(context.Background(), "req", nodesOf("pkg.Slow"), sink); err != nil {
		t.Fatal("Run failed: ", err)
	}
	if got := sink.final()["pkg.Slow"].Property(protocol.PropDurationMillis); got != "1500" {
		t.Errorf("Duration = %q; want %q", got, "1500")
	}
}

func TestRunArtifacts(t *testing.T) {
	outDir := t.TempDir()
	reg := newRegistry(t,
		&Test{Name: "pkg.Log", Func: func(ctx context.Context, s *State) { s.Log("hello") }},
		&Test{Name: "pkg.Quiet", Func: nop},
	)
	h := New(reg, Config{OutDir: outDir})

	sink := &recordSink{}
	c, err := h.Run(context.Background(), "req", nodesOf("pkg.Log", "pkg.Quiet"), sink)
	if err != nil {
		t.Fatal("Run failed: ", err)
	}

	final := sink.final()
	if len(final["pkg.Quiet"].Artifacts) != 0 {
		t.Errorf("pkg.Quiet has artifacts %v; want none", final["pkg.Quiet"].Artifacts)
	}
	arts := final["pkg.Log"].Artifacts
	if len(arts) != 1 {
		t.Fatalf("pkg.Log has %d artifacts; want 1", len(arts))
	}
	if want := filepath.Join(outDir, "pkg.Log", "log.txt"); arts[0].Path != want {
		t.Errorf("Log path = %q; want %q", arts[0].Path, want)
	}
	b, err := os.ReadFile(arts[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(b), " hello\n") {
		t.Errorf("Log = %q; want it to end with %q", string(b), " hello\n")
	}

	if len(c.Artifacts) != 1 || c.Artifacts[0].DisplayName != telemetryFileName {
		t.Fatalf("Completion artifacts = %v; want the telemetry file", c.Artifacts)
	}
	b, err = os.ReadFile(c.Artifacts[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `testplay_host_tests_total{state="passed"} 2`; !strings.Contains(string(b), want) {
		t.Errorf("Telemetry does not contain %q:\n%s", want, string(b))
	}
}

func TestRunTelemetryOptOut(t *testing.T) {
	outDir := t.TempDir()
	h := New(newRegistry(t, &Test{Name: "pkg.A", Func: nop}), Config{OutDir: outDir, TelemetryOptOut: true})
	c, err := h.Run(context.Background(), "req", nodesOf("pkg.A"), &recordSink{})
	if err != nil {
		t.Fatal("Run failed: ", err)
	}
	if len(c.Artifacts) != 0 {
		t.Errorf("Completion artifacts = %v; want none", c.Artifacts)
	}
	if _, err := os.Stat(filepath.Join(outDir, telemetryFileName)); !os.IsNotExist(err) {
		t.Errorf("Telemetry file exists (err=%v); want none", err)
	}
}

func TestBatcherFlushInterval(t *testing.T) {
	fc := fakeclock.NewFakeClock(time.Unix(0, 0))
	sent := make(chan []*protocol.TestNodeUpdate, 10)
	var seq atomic.Int64
	b := newBatcher(fc, "req", 10, time.Second, &seq, func(us []*protocol.TestNodeUpdate) error {
		sent <- us
		return nil
	})

	if err := b.add(&protocol.TestNode{UID: "a", State: protocol.StateDiscovered}); err != nil {
		t.Fatal("add failed: ", err)
	}
	select {
	case us := <-sent:
		t.Fatalf("Batch %v sent before the flush interval", us)
	default:
	}

	fc.WaitForWatcherAndIncrement(time.Second)
	select {
	case us := <-sent:
		if len(us) != 1 || us[0].Node.UID != "a" || us[0].Seq != 1 {
			t.Errorf("Flushed batch = %v; want the single update of a", us)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Batch was not flushed by the ticker")
	}

	if err := b.add(&protocol.TestNode{UID: "b", State: protocol.StateDiscovered}); err != nil {
		t.Fatal("add failed: ", err)
	}
	if err := b.close(); err != nil {
		t.Fatal("close failed: ", err)
	}
	if us := <-sent; len(us) != 1 || us[0].Node.UID != "b" {
		t.Errorf("Batch sent on close = %v; want the single update of b", us)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{protocol.EnvTelemetryOptOut: "1", protocol.EnvServerMode: "true"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	var cfg Config
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal("ApplyEnv failed: ", err)
	}
	if !cfg.TelemetryOptOut || !cfg.ServeByDefault {
		t.Errorf("ApplyEnv set %+v; want both flags set", cfg)
	}

	env[protocol.EnvServerMode] = "maybe"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("ApplyEnv succeeded for an invalid value")
	}
}
