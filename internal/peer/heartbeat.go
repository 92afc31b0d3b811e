// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package peer

import (
	"context"
	"strconv"
	"time"

	"github.com/nullmodem/serialsync/internal/eventbus"
	"github.com/nullmodem/serialsync/internal/lineproto"
	"github.com/nullmodem/serialsync/internal/util"
)

// heartbeatService is the liveness supervisor of spec.md §4.6: fires
// every ~1 s, reads ConnectionState fields but is the only writer of the
// last-sent heartbeat timestamp and of the connection_alive
// false-transition. The last-received timestamp is recorded by the
// reader loop's HEARTBEAT and HEARTBEAT_ACK handlers.
type heartbeatService struct{ c *Controller }

func (h heartbeatService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !h.c.state.Running() {
				return nil
			}
			h.tick()
		}
	}
}

func (h *heartbeatService) tick() {
	c := h.c
	if c.state.FBTActive() || !c.link.IsOpen() {
		return
	}

	now := time.Now().UnixMilli()
	lastRecv := c.state.LastHeartbeatReceived()
	if c.state.ConnectionAlive() && lastRecv > 0 && !c.state.Syncing() && now-lastRecv > heartbeatTimeout.Milliseconds() {
		c.state.SetConnectionAlive(false)
		c.bus.Post(eventbus.Connection, false)
		return
	}

	if !c.state.Syncing() && now-c.state.LastHeartbeatSent() >= heartbeatInterval.Milliseconds() {
		if err := lineproto.Send(c.link, lineproto.Heartbeat); err != nil {
			c.state.SetConnectionAlive(false)
			c.bus.Post(eventbus.Connection, false)
			return
		}
		c.state.SetLastHeartbeatSent(now)
	}
}

// onConnectionRestored regenerates the role-election priority and
// re-negotiates after a lost connection is rediscovered (spec.md §8
// scenario S6).
func (c *Controller) onConnectionRestored() {
	wasAlive := c.state.ConnectionAlive()
	c.state.SetConnectionAlive(true)
	c.state.SetLastHeartbeatReceived(time.Now().UnixMilli())
	if wasAlive {
		return
	}
	c.bus.Post(eventbus.Connection, true)
	c.state.SetLocalPriority(util.NewLocalPriority())
	c.state.ResetForReconnect()
	c.negotiateRole()
}

func (c *Controller) negotiateRole() {
	if err := lineproto.Send(c.link, lineproto.RoleNegotiate, strconv.FormatInt(c.state.LocalPriority(), 10)); err != nil {
		c.log.Warnf("role negotiate: %v", err)
	}
}
