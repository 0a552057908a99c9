// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

// logging provides a capped in-memory record of recent log entries, so a
// host can surface the tail of the login flow's activity without shipping
// logs anywhere.
package logging

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultHistoryLimit is how many entries a HistorySink retains.
const DefaultHistoryLimit = 1000

// Entry is one retained log record.
type Entry struct {
	Time  time.Time
	Level hclog.Level
	Name  string
	Msg   string
	Args  []interface{}
}

// HistorySink is an hclog.SinkAdapter retaining the most recent entries in a
// fixed-size ring. Register it on a logger with RegisterSink; it never
// blocks or fails, older entries are simply overwritten.
type HistorySink struct {
	mu    sync.Mutex
	limit int
	ring  []Entry
	next  int
	count int
}

var _ hclog.SinkAdapter = (*HistorySink)(nil)

// NewHistorySink creates a HistorySink retaining up to limit entries.
// Non-positive limits fall back to DefaultHistoryLimit.
func NewHistorySink(limit int) *HistorySink {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistorySink{
		limit: limit,
		ring:  make([]Entry, limit),
	}
}

// Accept implements hclog.SinkAdapter.
func (s *HistorySink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = Entry{
		Time:  time.Now(),
		Level: level,
		Name:  name,
		Msg:   msg,
		Args:  args,
	}
	s.next = (s.next + 1) % s.limit
	if s.count < s.limit {
		s.count++
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (s *HistorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, s.count)
	start := s.next - s.count
	if start < 0 {
		start += s.limit
	}
	for i := 0; i < s.count; i++ {
		out = append(out, s.ring[(start+i)%s.limit])
	}
	return out
}

// Len returns how many entries are currently retained.
func (s *HistorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Clear drops all retained entries.
func (s *HistorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
	s.count = 0
}
