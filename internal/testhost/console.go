// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package testhost

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/nya3jp/testplay/internal/logging"
	"github.com/nya3jp/testplay/internal/protocol"
	"github.com/nya3jp/testplay/internal/session"
)

// RunConsole discovers and runs every registered test, printing a line per
// finished test and a final tally to w. It is used when a host is started
// without a client.
func RunConsole(ctx context.Context, h *Host, w io.Writer) (session.Tally, error) {
	disc := newConsoleSink(w)
	if _, err := h.Discover(ctx, session.NewRequestID(), disc); err != nil {
		return session.Tally{}, errors.Wrap(err, "discovery failed")
	}

	var t session.Tally
	var nodes []*protocol.TestNode
	for _, n := range disc.acc.Nodes() {
		if n.State == protocol.StateDiscovered {
			nodes = append(nodes, n)
		} else {
			t.Add(n.State)
		}
	}

	run := newConsoleSink(w)
	if _, err := h.Run(ctx, session.NewRequestID(), nodes, run); err != nil {
		return session.Tally{}, errors.Wrap(err, "run failed")
	}
	t.Merge(run.acc.Tally())
	fmt.Fprintln(w, t.String())
	return t, nil
}

type consoleSink struct {
	acc *session.Accumulator

	mu sync.Mutex
	w  io.Writer
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{acc: session.NewAccumulator(), w: w}
}

func (s *consoleSink) SendUpdates(updates []*protocol.TestNodeUpdate) error {
	s.acc.Add(updates...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		n := u.Node
		if !n.State.IsTerminal() {
			continue
		}
		if msg := n.Property(protocol.PropErrorMessage); msg != "" {
			fmt.Fprintf(s.w, "%s: %s (%s)\n", n.DisplayName, n.State, msg)
		} else {
			fmt.Fprintf(s.w, "%s: %s\n", n.DisplayName, n.State)
		}
	}
	return nil
}

func (s *consoleSink) SendLog(level logging.Level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", level, msg)
	return nil
}
