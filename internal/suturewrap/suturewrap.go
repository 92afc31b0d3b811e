// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package suturewrap adapts a plain cancellable function into something
// with Serve()/Stop() methods, for logical activities that run as a
// single goroutine outside the suture/v4 supervisor tree — the Sync
// Session, specifically, which per spec.md §5 owns the wire for the
// duration of one session's writes and is started on demand rather than
// supervised and restarted like the reader loop or heartbeat ticker.
package suturewrap

import (
	"context"
	"fmt"
	"sync"
)

// Service runs fn once, passing it a context cancelled by Stop.
type Service struct {
	fn     func(context.Context)
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// AsService wraps fn as a Service identified by name (used in the panic
// message if Stop is called more than once).
func AsService(fn func(context.Context), name string) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{fn: fn, name: name, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Serve runs fn to completion. Intended to be called in its own
// goroutine; returns once fn returns or Stop cancels its context and fn
// observes that.
func (s *Service) Serve() {
	defer close(s.done)
	s.fn(s.ctx)
}

// Stop cancels the service's context and blocks until Serve returns.
// Calling Stop twice panics, naming the service, since it indicates a
// double-shutdown bug in the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		panic(fmt.Sprintf("suturewrap: Stop called twice on service %q", s.name))
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
}
