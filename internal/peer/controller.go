// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package peer implements the Peer Controller: the top-level,
// process-wide owner of ConnectionState, the wire, the reader loop, the
// heartbeat supervisor, and role negotiation (spec.md §4.6). It is the
// only component that mutates connstate.State; everyone else gets a
// read-only connstate.View or calls through Controller's methods.
package peer

import (
	"context"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/nullmodem/serialsync/internal/bytelink"
	"github.com/nullmodem/serialsync/internal/connstate"
	"github.com/nullmodem/serialsync/internal/eventbus"
	"github.com/nullmodem/serialsync/internal/lineproto"
	"github.com/nullmodem/serialsync/internal/logger"
	"github.com/nullmodem/serialsync/internal/manifest"
	"github.com/nullmodem/serialsync/internal/sharedtext"
	"github.com/nullmodem/serialsync/internal/suturewrap"
	"github.com/nullmodem/serialsync/internal/syncsession"
	"github.com/nullmodem/serialsync/internal/util"
)

const (
	heartbeatTimeout  = 15 * time.Second
	heartbeatInterval = 5 * time.Second
	heartbeatTick     = 1 * time.Second
	readLineTimeout   = 2 * time.Second
)

// Config selects the local sync folder and strictness for when this peer
// acts as the sync-session sender.
type Config struct {
	Root             string
	RespectGitignore bool
	QuickMode        bool
	Strict           bool
}

// Controller is the top-level per-connection state machine.
type Controller struct {
	link  bytelink.ByteLink
	cfg   Config
	state *connstate.State
	bus   *eventbus.Bus
	log   *logger.Logger

	scanner    *manifest.Scanner
	sharedText *sharedtext.Channel

	sup    *suture.Supervisor
	cancel context.CancelFunc

	sessionMu     sync.Mutex
	sessionActive bool
	sessionSvc    *suturewrap.Service
}

// New constructs a Controller bound to link. Call Start to begin the
// reader loop and heartbeat supervisor.
func New(link bytelink.ByteLink, cfg Config, bus *eventbus.Bus, log *logger.Logger) *Controller {
	if bus == nil {
		bus = eventbus.Default
	}
	if log == nil {
		log = logger.Default
	}
	c := &Controller{
		link:    link,
		cfg:     cfg,
		state:   connstate.New(),
		bus:     bus,
		log:     log,
		scanner: manifest.NewScanner(),
	}
	c.sharedText = sharedtext.New(c.state.AsView(), bus, c.sendSharedText)
	return c
}

// State returns the read-only view of ConnectionState, for callers (the
// GUI shell, tests) that want to observe without a chance of mutating.
func (c *Controller) State() connstate.View { return c.state.AsView() }

// SharedText exposes the Shared-Text Channel for local callers that want
// to queue outbound text.
func (c *Controller) SharedText() *sharedtext.Channel { return c.sharedText }

// Start marks the controller running, regenerates the role-election
// priority, and launches the reader loop, heartbeat supervisor, and
// shared-text flush-checker under a suture/v4 supervisor (spec.md §5).
func (c *Controller) Start() {
	c.state.SetRunning(true)
	c.state.SetConnectionAlive(true)
	c.state.SetLocalPriority(util.NewLocalPriority())

	c.sup = suture.NewSimple("peer")
	c.sup.Add(readerLoopService{c})
	c.sup.Add(heartbeatService{c})
	c.sup.Add(c.sharedText)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.sup.Serve(ctx)

	c.negotiateRole()
}

// stopGracePeriod bounds how long Stop waits for an in-flight sync
// session to notice running=false and return on its own.
const stopGracePeriod = 2 * time.Second

// Stop marks the controller no longer running, cancels the supervisor
// tree, and waits up to stopGracePeriod for any in-flight sync session
// to unwind before returning unconditionally. The reader loop and
// heartbeat supervisor check running at their next iteration; pending
// FBT operations finish or time out on their own deadlines rather than
// being forcibly interrupted.
func (c *Controller) Stop(ctx context.Context) {
	c.state.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}

	c.sessionMu.Lock()
	svc := c.sessionSvc
	c.sessionSvc = nil
	c.sessionMu.Unlock()
	if svc == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
	case <-time.After(stopGracePeriod):
	}
}

// StartSync launches a Sync Session, wrapped as a suturewrap.Service
// rather than added to the suture/v4 supervisor tree, per spec.md §5's
// "exclusive access to the wire for the duration of one session's
// writes": it runs once on demand instead of being restarted like the
// reader loop or heartbeat ticker. Requires this peer to be the elected
// sender, connected, and no session already running. Returns
// immediately; the session's outcome is only observable via the Event
// Bus.
func (c *Controller) StartSync() error {
	if !c.state.IsSender() {
		return errConfig("local role is receiver")
	}
	if !c.state.ConnectionAlive() {
		return errConfig("connection not alive")
	}
	if c.cfg.Root == "" {
		return errConfig("sync folder unset")
	}

	c.sessionMu.Lock()
	if c.sessionActive {
		c.sessionMu.Unlock()
		return errConfig("sync already in progress")
	}
	c.sessionActive = true
	svc := suturewrap.AsService(c.runSyncSession, "syncsession")
	c.sessionSvc = svc
	c.sessionMu.Unlock()

	go svc.Serve()
	return nil
}

// runSyncSession is the suturewrap.Service body for one sync round. The
// Sync Session itself isn't context-aware: pending FBT operations finish
// or time out on their own deadlines rather than being forcibly
// interrupted, matching Stop's grace-period wait.
func (c *Controller) runSyncSession(_ context.Context) {
	defer func() {
		c.sessionMu.Lock()
		c.sessionActive = false
		c.sessionMu.Unlock()
	}()
	sess := syncsession.New(c.link, c.state, c.bus, c.scanner)
	if err := sess.Run(syncsession.Options{
		Root:             c.cfg.Root,
		RespectGitignore: c.cfg.RespectGitignore,
		QuickMode:        c.cfg.QuickMode,
		Strict:           c.cfg.Strict,
	}); err != nil {
		c.log.Warnf("sync session: %v", err)
	}
}

type configError string

func errConfig(msg string) error    { return configError(msg) }
func (e configError) Error() string { return "peer: configuration error: " + string(e) }

func (c *Controller) sendSharedText(encoded string) error {
	return lineproto.Send(c.link, lineproto.SharedText, encoded)
}
