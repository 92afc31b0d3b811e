// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connstate holds ConnectionState, the process-wide state of one
// peer (spec.md §3). The Peer Controller is the sole owner and mutator;
// every other subsystem is handed a View, a read-only projection, so the
// source graph stays a DAG rather than letting subsystems reach back in
// and mutate state behind the controller's back (spec.md §9).
package connstate

import "sync"

// View is the read-only projection of ConnectionState handed to
// subsystems that need to observe but never mutate it (Sync Session,
// Shared-Text Channel).
type View interface {
	Running() bool
	ConnectionAlive() bool
	RoleNegotiated() bool
	IsSender() bool
	Syncing() bool
	FBTActive() bool
	LocalPriority() int64
	LastHeartbeatSent() int64
	LastHeartbeatReceived() int64
}

// State is the Peer Controller's exclusively-owned ConnectionState.
type State struct {
	mu sync.RWMutex

	running         bool
	connectionAlive bool
	roleNegotiated  bool
	isSender        bool
	syncing         bool
	fbtActive       bool
	localPriority   int64
	lastHBSent      int64
	lastHBReceived  int64
}

// New returns a fresh State with running=false and all other fields zero.
func New() *State {
	return &State{}
}

func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *State) SetRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *State) ConnectionAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionAlive
}

func (s *State) SetConnectionAlive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionAlive = v
}

func (s *State) RoleNegotiated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roleNegotiated
}

func (s *State) SetRoleNegotiated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleNegotiated = v
}

func (s *State) IsSender() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSender
}

func (s *State) SetIsSender(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSender = v
}

func (s *State) Syncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncing
}

func (s *State) SetSyncing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = v
}

func (s *State) FBTActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fbtActive
}

func (s *State) SetFBTActive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fbtActive = v
}

func (s *State) LocalPriority() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localPriority
}

func (s *State) SetLocalPriority(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localPriority = v
}

func (s *State) LastHeartbeatSent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHBSent
}

func (s *State) SetLastHeartbeatSent(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHBSent = ms
}

func (s *State) LastHeartbeatReceived() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHBReceived
}

func (s *State) SetLastHeartbeatReceived(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHBReceived = ms
}

// AsView returns s as the narrower View interface, for handing to
// subsystems that must not mutate it.
func (s *State) AsView() View { return s }

// ResetForReconnect clears negotiation/role state while leaving running
// untouched, as happens when a dropped link is rediscovered and role
// negotiation must run again (spec.md §8 property 11 / scenario S6).
func (s *State) ResetForReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleNegotiated = false
	s.isSender = false
}
