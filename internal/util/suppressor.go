// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
// All rights reserved. Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"sync"
	"time"
)

const maxChangeHistory = 4

type change struct {
	size int64
	when time.Time
}

type changeHistory struct {
	changes []change
	prevSup bool
}

func (h changeHistory) bandwidth(t time.Time) int64 {
	if len(h.changes) == 0 {
		return 0
	}
	t0 := h.changes[0].when
	if t.Equal(t0) {
		return 0
	}
	var bw float64
	for _, c := range h.changes {
		bw += float64(c.size)
	}
	return int64(bw / t.Sub(t0).Seconds())
}

func (h *changeHistory) append(size int64, t time.Time) {
	c := change{size, t}
	if len(h.changes) == maxChangeHistory {
		h.changes = h.changes[1:maxChangeHistory]
	}
	h.changes = append(h.changes, c)
}

// ProgressSuppressor throttles per-path progress events so a sync
// session streaming many small FILE_DATA blocks doesn't flood the Event
// Bus faster than a GUI adapter's threshold bytes/s.
type ProgressSuppressor struct {
	mu        sync.Mutex
	changes   map[string]changeHistory
	threshold int64 // bytes/s
}

// NewProgressSuppressor returns a suppressor that drops progress updates
// for a path once its recent throughput exceeds thresholdBytesPerSec.
func NewProgressSuppressor(thresholdBytesPerSec int64) *ProgressSuppressor {
	return &ProgressSuppressor{changes: make(map[string]changeHistory), threshold: thresholdBytesPerSec}
}

// Suppress reports whether an update for path carrying size bytes at
// time t should be dropped, and records it in the history when not.
func (s *ProgressSuppressor) Suppress(path string, size int64, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.changes[path]
	sup := h.bandwidth(t) > s.threshold
	h.prevSup = sup
	if !sup {
		h.append(size, t)
	}
	s.changes[path] = h
	return sup
}
