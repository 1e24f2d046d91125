// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package driver sequences discovery and run requests over test sessions and
// renders their progress and summary.
package driver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/reporting"
	"github.com/nya3jp/testplay/internal/session"
)

const (
	phaseDiscovery = "discovery"
	phaseRun       = "run"
	phaseTotal     = "total"
)

// Source is a test platform the driver runs tests of.
type Source struct {
	// Name identifies the source in output and results, e.g. a host path.
	Name string
	// Open returns a new provider for the source. The driver initializes it
	// and exits it when done.
	Open func(ctx context.Context) (session.Provider, error)
}

// Option configures a Driver.
type Option func(d *Driver)

// WithClock sets the clock used to measure phases.
func WithClock(clk clock.Clock) Option {
	return func(d *Driver) { d.clk = clk }
}

// WithDetailed enables per-batch progress output.
func WithDetailed(detailed bool) Option {
	return func(d *Driver) { d.detailed = detailed }
}

// WithRequestIDFunc sets the function generating request IDs.
func WithRequestIDFunc(f func() string) Option {
	return func(d *Driver) { d.newID = f }
}

// WithHandlers adds handlers receiving driver events.
func WithHandlers(hs ...Handler) Option {
	return func(d *Driver) { d.handlers = append(d.handlers, hs...) }
}

// WithTimeout bounds each discovery and run request. Zero means no bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.timeout = timeout }
}

// Driver discovers and runs the tests of sources.
type Driver struct {
	clk      clock.Clock
	detailed bool
	newID    func() string
	handlers []Handler
	timeout  time.Duration

	outMu sync.Mutex
	out   io.Writer
}

// New returns a Driver printing to stdout.
func New(stdout io.Writer, opts ...Option) *Driver {
	d := &Driver{
		clk:   clock.NewClock(),
		newID: session.NewRequestID,
		out:   stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) printf(format string, args ...interface{}) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}

// Run discovers and runs all tests of sources, one session per source, and
// returns the summary. Failed tests are not errors. The summary is returned
// even on errors and then covers the sources handled so far.
func (d *Driver) Run(ctx context.Context, sources []Source) (_ *Summary, retErr error) {
	defer func() {
		if retErr != nil {
			retErr = errors.Wrap(retErr, "running tests")
		}
	}()

	if len(sources) == 0 {
		return nil, errors.New("no sources")
	}

	sum := &Summary{}
	start := d.clk.Now()

	for _, h := range d.handlers {
		if err := h.RunStart(ctx); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, h := range d.handlers {
			if err := h.RunEnd(ctx, sum); err != nil {
				if retErr == nil {
					retErr = err
				} else {
					logging.Warning(ctx, "Failed to finish results: ", err)
				}
			}
		}
	}()

	for _, src := range sources {
		if err := d.runSource(ctx, src, sum, true); err != nil {
			d.finish(sum, start)
			return sum, err
		}
	}
	d.finish(sum, start)
	return sum, nil
}

// List discovers the tests of sources without running them.
func (d *Driver) List(ctx context.Context, sources []Source) (_ []*protocol.TestNode, retErr error) {
	defer func() {
		if retErr != nil {
			retErr = errors.Wrap(retErr, "listing tests")
		}
	}()

	sum := &Summary{}
	for _, src := range sources {
		if err := d.runSource(ctx, src, sum, false); err != nil {
			return nil, err
		}
	}
	var nodes []*protocol.TestNode
	for _, ss := range sum.Sources {
		nodes = append(nodes, ss.Discovered...)
	}
	return nodes, nil
}

func (d *Driver) finish(sum *Summary, start time.Time) {
	sum.TotalTime = d.clk.Since(start)
	if d.detailed {
		d.printDiscoveryGroups(sum)
	}
	d.printf("Discovery: %d ms, Run: %d ms, Total: %d ms\n",
		sum.DiscoveryTime.Milliseconds(), sum.RunTime.Milliseconds(), sum.TotalTime.Milliseconds())
}

// runSource handles a source in its own session and adds the outcome to sum.
func (d *Driver) runSource(ctx context.Context, src Source, sum *Summary, run bool) error {
	ss := &SourceSummary{Name: src.Name}
	sum.Sources = append(sum.Sources, ss)
	defer func() {
		sum.DiscoveryTime += ss.DiscoveryTime
		sum.RunTime += ss.RunTime
		sum.Tally.Merge(ss.Tally)
		sum.Violations = append(sum.Violations, ss.Violations...)
	}()

	if run {
		for _, h := range d.handlers {
			if err := h.SourceStart(ctx, src.Name); err != nil {
				return err
			}
		}
	}

	p, err := src.Open(ctx)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src.Name)
	}
	err = session.With(ctx, p, func(ctx context.Context, s *session.Session) error {
		if err := d.discover(ctx, s, ss); err != nil {
			return err
		}
		if !run {
			return nil
		}
		return d.run(ctx, s, ss)
	})

	if run {
		for _, h := range d.handlers {
			if herr := h.SourceEnd(ctx, ss); herr != nil && err == nil {
				err = herr
			}
		}
	}
	return errors.Wrap(err, src.Name)
}

// phaseContext returns the context a request of a phase runs under. Logs sent
// by the provider to the returned context are printed with format.
func (d *Driver) phaseContext(ctx context.Context, format string) (context.Context, context.CancelFunc) {
	ctx = logging.AttachLoggerNoPropagation(ctx, logging.NewFuncLogger(func(level logging.Level, ts time.Time, msg string) {
		d.printf(format, level, msg)
	}))
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return context.WithCancel(ctx)
}

// drain reads req into acc and returns its completion. If the phase deadline
// expires first, the request is aborted and an aborted completion is returned
// along with an error.
func (d *Driver) drain(ctx, pctx context.Context, req *session.Request, src string, acc *session.Accumulator, f func(batch []*protocol.TestNodeUpdate) error) (*protocol.Completion, error) {
	c, err := session.Drain(pctx, req, func(batch []*protocol.TestNodeUpdate) error {
		batch = tag(src, batch)
		if err := acc.Add(batch...); err != nil {
			// Transition errors are reported with the completion.
			var te *session.TransitionError
			if !errors.As(err, &te) {
				logging.Warning(ctx, "Bad update: ", err)
			}
		}
		if f != nil {
			return f(batch)
		}
		return nil
	})
	if err == nil {
		return c, nil
	}
	if c != nil {
		// The provider aborted the request.
		return c, err
	}
	if ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		reason := errors.Errorf("timed out after %v", d.timeout)
		req.Abort(reason)
		return &protocol.Completion{
			RequestID: req.ID(),
			Status:    protocol.StatusAborted,
			Total:     acc.Len(),
			Reason:    reason.Error(),
		}, reason
	}
	return nil, err
}

// tag returns copies of batch whose nodes carry the source property.
func tag(src string, batch []*protocol.TestNodeUpdate) []*protocol.TestNodeUpdate {
	tagged := make([]*protocol.TestNodeUpdate, len(batch))
	for i, u := range batch {
		if u == nil || u.Node == nil {
			tagged[i] = u
			continue
		}
		n := u.Node.Clone()
		n.SetProperty(protocol.PropSource, src)
		tagged[i] = &protocol.TestNodeUpdate{RequestID: u.RequestID, Seq: u.Seq, Node: n}
	}
	return tagged
}

func (d *Driver) discover(ctx context.Context, s *session.Session, ss *SourceSummary) error {
	start := d.clk.Now()
	defer func() { ss.DiscoveryTime = d.clk.Since(start) }()

	pctx, cancel := d.phaseContext(ctx, "[DISCOVERY.%s] %s\n")
	defer cancel()

	req, err := s.DiscoverTests(pctx, d.newID())
	if err != nil {
		return errors.Wrap(err, "starting discovery")
	}
	acc := session.NewAccumulator()
	c, err := d.drain(ctx, pctx, req, ss.Name, acc, func(batch []*protocol.TestNodeUpdate) error {
		if d.detailed {
			d.printProgress("[DISCOVERY.PROGRESS]", batch, func(n *protocol.TestNode) string {
				return ss.Name + " " + n.DisplayName
			})
		}
		return nil
	})
	if c == nil {
		return errors.Wrap(err, "discovery failed")
	}

	ss.Discovery = c
	ss.Discovered = acc.Nodes()
	ss.Violations = append(ss.Violations, acc.Violations()...)

	d.printf("Discovery finished: %d tests discovered\n", len(ss.Discovered))
	for _, n := range ss.Discovered {
		d.printf("%s\n", n.DisplayName)
	}
	d.printf("[DISCOVERY.COMPLETE] status: %s, tests count: %d, discovered count: %d\n", c.Status, c.Total, len(ss.Discovered))
	checkCompletion(ctx, phaseDiscovery, c, acc)
	return errors.Wrap(err, "discovery failed")
}

func (d *Driver) run(ctx context.Context, s *session.Session, ss *SourceSummary) error {
	start := d.clk.Now()
	defer func() { ss.RunTime = d.clk.Since(start) }()

	pctx, cancel := d.phaseContext(ctx, "[%s]: %s\n")
	defer cancel()

	req, err := s.RunTests(pctx, d.newID(), ss.Discovered)
	if err != nil {
		return errors.Wrap(err, "starting run")
	}
	acc := session.NewAccumulator()
	reported := make(map[string]struct{})
	c, err := d.drain(ctx, pctx, req, ss.Name, acc, func(batch []*protocol.TestNodeUpdate) error {
		if d.detailed {
			d.printProgress("[RUN.PROGRESS]", batch, func(n *protocol.TestNode) string {
				return fmt.Sprintf("%s: %s", n.DisplayName, n.State)
			})
		}
		for _, u := range batch {
			if u == nil || u.Node == nil || !u.Node.State.IsTerminal() {
				continue
			}
			if _, ok := reported[u.Node.UID]; ok {
				continue
			}
			reported[u.Node.UID] = struct{}{}
			res := reporting.NewResult(ss.Name, u.Node)
			for _, h := range d.handlers {
				if err := h.Result(ctx, res); err != nil {
					return errors.Wrapf(err, "handling result of %s", u.Node.UID)
				}
			}
		}
		return nil
	})
	if c == nil {
		return errors.Wrap(err, "run failed")
	}

	ss.Run = c
	ss.Results = acc.Nodes()
	ss.Tally = acc.Tally()
	ss.Violations = append(ss.Violations, acc.Violations()...)

	if d.detailed {
		d.printf("[RUN.COMPLETE] status: %s, stats:\n%s\n", c.Status, formatStats(c.Stats))
	}
	d.printf("%s\n", ss.Tally)
	checkCompletion(ctx, phaseRun, c, acc)
	ss.Missing = missingNodes(ss.Discovered, acc)
	if len(ss.Missing) > 0 {
		logging.Warningf(ctx, "%s: %d requested nodes got no result: %s", phaseRun, len(ss.Missing), strings.Join(ss.Missing, ", "))
	}
	return errors.Wrap(err, "run failed")
}

func (d *Driver) printProgress(header string, batch []*protocol.TestNodeUpdate, line func(n *protocol.TestNode) string) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintln(d.out, header)
	for _, u := range batch {
		if u == nil || u.Node == nil {
			continue
		}
		fmt.Fprintf(d.out, "\t%s\n", line(u.Node))
	}
}

func (d *Driver) printDiscoveryGroups(sum *Summary) {
	groups := []struct {
		title  string
		status protocol.CompletionStatus
	}{
		{"Fully discovered:", protocol.StatusCompleted},
		{"Partially discovered:", protocol.StatusPartial},
		{"Not discovered:", protocol.StatusAborted},
	}

	d.outMu.Lock()
	defer d.outMu.Unlock()
	for _, g := range groups {
		fmt.Fprintln(d.out, g.title)
		empty := true
		for _, ss := range sum.Sources {
			status := protocol.StatusAborted
			if ss.Discovery != nil {
				status = ss.Discovery.Status
			}
			if status != g.status {
				continue
			}
			fmt.Fprintf(d.out, "\t%s\n", ss.Name)
			empty = false
		}
		if empty {
			fmt.Fprintln(d.out, "\t<empty>")
		}
	}
}

// missingNodes returns the UIDs of requested that acc has not seen.
func missingNodes(requested []*protocol.TestNode, acc *session.Accumulator) []string {
	var uids []string
	for _, n := range requested {
		if _, ok := acc.Node(n.UID); !ok {
			uids = append(uids, n.UID)
		}
	}
	return uids
}

// checkCompletion logs warnings about c not matching what was received.
func checkCompletion(ctx context.Context, phase string, c *protocol.Completion, acc *session.Accumulator) {
	if c.Status != protocol.StatusCompleted {
		if c.Reason != "" {
			logging.Warningf(ctx, "%s finished with status %s: %s", phase, c.Status, c.Reason)
		} else {
			logging.Warningf(ctx, "%s finished with status %s", phase, c.Status)
		}
	}
	if got := acc.Len(); c.Total != got {
		logging.Warningf(ctx, "%s: provider reported %d nodes but %d were received", phase, c.Total, got)
	}
	for _, v := range acc.Violations() {
		logging.Warningf(ctx, "%s: %v", phase, v)
	}
}
