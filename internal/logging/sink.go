// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package logging

import (
	"io"
	"strings"
	"sync"
	"time"
)

// Sink receives formatted log entries, e.g. to write them to a results file
// or the console.
type Sink interface {
	Log(msg string)
}

// SinkLogger is a Logger formatting entries at or above a minimum level and
// passing them to a Sink.
type SinkLogger struct {
	min       Level
	timestamp bool
	sink      Sink
}

// NewSinkLogger returns a SinkLogger dropping entries below min. Entries at
// LevelWarning and above are prefixed with the level name. If timestamp is
// true, entries start with their UTC time in microseconds.
func NewSinkLogger(min Level, timestamp bool, sink Sink) *SinkLogger {
	return &SinkLogger{min: min, timestamp: timestamp, sink: sink}
}

// Log implements Logger.
func (l *SinkLogger) Log(level Level, ts time.Time, msg string) {
	if level < l.min {
		return
	}
	l.sink.Log(l.format(level, ts, msg))
}

func (l *SinkLogger) format(level Level, ts time.Time, msg string) string {
	var sb strings.Builder
	if l.timestamp {
		sb.WriteString(ts.UTC().Format("2006-01-02T15:04:05.000000Z"))
		sb.WriteByte(' ')
	}
	if level >= LevelWarning {
		sb.WriteString(level.String())
		sb.WriteString(": ")
	}
	sb.WriteString(msg)
	return sb.String()
}

// WriterSink writes entries to an io.Writer, one per line. Continuation
// lines of a multi-line entry are indented with a tab so that they stay
// attributable when several sources log to the same writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Log implements Sink.
func (s *WriterSink) Log(msg string) {
	msg = strings.TrimRight(msg, "\n")
	line := strings.ReplaceAll(msg, "\n", "\n\t") + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, line)
}
