// Copyright (C) 2024 The serialsync Authors.
// All rights reserved. Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package eventbus provides observer-style fan-out of typed peer events.
// It is the GUI shell's sole window into the core: the GUI (out of scope
// for this module) subscribes and marshals events onto its own UI thread.
package eventbus

import (
	"errors"
	"sync"
	"time"
)

// Kind identifies the category of an Event.
type Kind uint64

const (
	Log Kind = 1 << iota
	Error
	Progress
	Connection
	Direction
	SyncStarted
	SyncComplete
	SharedTextReceived

	All = ^Kind(0)
)

func (k Kind) String() string {
	switch k {
	case Log:
		return "Log"
	case Error:
		return "Error"
	case Progress:
		return "Progress"
	case Connection:
		return "Connection"
	case Direction:
		return "Direction"
	case SyncStarted:
		return "SyncStarted"
	case SyncComplete:
		return "SyncComplete"
	case SharedTextReceived:
		return "SharedTextReceived"
	default:
		return "Unknown"
	}
}

// BufferSize is the per-subscription channel depth; a slow subscriber
// drops events rather than blocking the poster.
const BufferSize = 64

// Event is one posted occurrence.
type Event struct {
	ID   int
	Time time.Time
	Kind Kind
	Data interface{}
}

var (
	ErrTimeout = errors.New("eventbus: poll timeout")
	ErrClosed  = errors.New("eventbus: subscription closed")
)

// Bus fans out posted events to all subscribers whose mask matches.
// Post queues each event on the subscriber's buffered channel without
// blocking; an event that finds the channel full is dropped for that
// subscriber.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
}

// Default is the process-wide bus used when a caller doesn't construct
// its own (mirrors the pattern of internal/logger.Default).
var Default = New()

func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Post publishes an event of the given kind to all matching subscribers.
func (b *Bus) Post(kind Kind, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := Event{ID: b.nextID, Time: time.Now(), Kind: kind, Data: data}
	b.nextID++
	for _, s := range b.subs {
		if s.mask&kind == 0 {
			continue
		}
		select {
		case s.events <- e:
		default:
			// Subscriber too slow; drop rather than block the poster.
		}
	}
}

// Subscribe returns a Subscription receiving events matching mask.
func (b *Bus) Subscribe(mask Kind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{mask: mask, id: b.nextID, events: make(chan Event, BufferSize)}
	b.nextID++
	b.subs[s.id] = s
	return s
}

// Unsubscribe removes and closes s. Calling it again for an already
// removed subscription is a no-op.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	close(s.events)
}

type Subscription struct {
	mask   Kind
	id     int
	events chan Event
	mu     sync.Mutex
}

// Poll blocks for the next matching event up to timeout.
func (s *Subscription) Poll(timeout time.Duration) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	to := time.After(timeout)
	select {
	case e, ok := <-s.events:
		if !ok {
			return Event{}, ErrClosed
		}
		return e, nil
	case <-to:
		return Event{}, ErrTimeout
	}
}

// C exposes the raw channel for callers that want to select on it directly
// (e.g. the reader loop waiting on both events and a cancellation signal).
func (s *Subscription) C() <-chan Event {
	return s.events
}
