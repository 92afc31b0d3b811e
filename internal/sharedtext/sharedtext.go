// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sharedtext implements the Shared-Text Channel: a debounced,
// back-pressured push of a user text buffer as a single Base64-encoded
// control message (spec.md §4.7).
package sharedtext

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nullmodem/serialsync/internal/connstate"
	"github.com/nullmodem/serialsync/internal/eventbus"
)

// flushCheckInterval is how often the background checker retries a
// pending send that queue_shared_text's immediate flush attempt found
// the wire busy for.
const flushCheckInterval = 500 * time.Millisecond

// Sender transmits one already-Base64-encoded SHARED_TEXT payload.
type Sender func(encodedText string) error

// Channel holds the single atomic pending_text slot (spec.md §4.7).
type Channel struct {
	mu      sync.Mutex
	pending *string

	view connstate.View
	bus  *eventbus.Bus
	send Sender
}

// New constructs a Channel. view lets the channel observe connection
// state without being able to mutate it (spec.md §9).
func New(view connstate.View, bus *eventbus.Bus, send Sender) *Channel {
	return &Channel{view: view, bus: bus, send: send}
}

// QueueSharedText stores t as the pending text and attempts an
// immediate flush.
func (c *Channel) QueueSharedText(t string) {
	c.mu.Lock()
	c.pending = &t
	c.mu.Unlock()
	c.FlushIfIdle()
}

// FlushIfIdle sends the pending text iff the wire is idle: running,
// connected, and neither mid-sync nor mid-FBT-transfer. Clears the slot
// only if it still holds the exact value that was sent, so a concurrent
// QueueSharedText during the send isn't silently dropped.
func (c *Channel) FlushIfIdle() error {
	if !c.view.Running() || !c.view.ConnectionAlive() || c.view.Syncing() || c.view.FBTActive() {
		return nil
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(*pending))
	if err := c.send(encoded); err != nil {
		return errors.Wrap(err, "sharedtext: send")
	}

	c.mu.Lock()
	if c.pending != nil && *c.pending == *pending {
		c.pending = nil
	}
	c.mu.Unlock()
	return nil
}

// ReceiveBase64 decodes an inbound SHARED_TEXT payload and posts it to
// the event bus.
func (c *Channel) ReceiveBase64(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "sharedtext: decode")
	}
	text := string(raw)
	c.bus.Post(eventbus.SharedTextReceived, text)
	return text, nil
}

// Serve runs as a suture/v4 service, periodically retrying a flush so a
// text queued while the wire was busy isn't stranded once it goes idle.
func (c *Channel) Serve(ctx context.Context) error {
	ticker := time.NewTicker(flushCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.FlushIfIdle()
		}
	}
}
