// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package connstate_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullmodem/serialsync/internal/connstate"
)

func TestNewStateStartsZeroed(t *testing.T) {
	s := connstate.New()
	assert.False(t, s.Running())
	assert.False(t, s.ConnectionAlive())
	assert.False(t, s.RoleNegotiated())
	assert.False(t, s.IsSender())
	assert.False(t, s.Syncing())
	assert.False(t, s.FBTActive())
	assert.Zero(t, s.LocalPriority())
}

func TestSettersAreReflectedInGetters(t *testing.T) {
	s := connstate.New()
	s.SetRunning(true)
	s.SetConnectionAlive(true)
	s.SetRoleNegotiated(true)
	s.SetIsSender(true)
	s.SetSyncing(true)
	s.SetFBTActive(true)
	s.SetLocalPriority(42)
	s.SetLastHeartbeatSent(100)
	s.SetLastHeartbeatReceived(200)

	assert.True(t, s.Running())
	assert.True(t, s.ConnectionAlive())
	assert.True(t, s.RoleNegotiated())
	assert.True(t, s.IsSender())
	assert.True(t, s.Syncing())
	assert.True(t, s.FBTActive())
	assert.EqualValues(t, 42, s.LocalPriority())
	assert.EqualValues(t, 100, s.LastHeartbeatSent())
	assert.EqualValues(t, 200, s.LastHeartbeatReceived())
}

func TestAsViewExposesSameUnderlyingState(t *testing.T) {
	s := connstate.New()
	v := s.AsView()
	assert.False(t, v.RoleNegotiated())
	s.SetRoleNegotiated(true)
	assert.True(t, v.RoleNegotiated())
}

func TestResetForReconnectClearsRoleButNotRunning(t *testing.T) {
	s := connstate.New()
	s.SetRunning(true)
	s.SetRoleNegotiated(true)
	s.SetIsSender(true)

	s.ResetForReconnect()

	assert.True(t, s.Running())
	assert.False(t, s.RoleNegotiated())
	assert.False(t, s.IsSender())
}

func TestStateIsSafeForConcurrentAccess(t *testing.T) {
	s := connstate.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			s.SetLocalPriority(n)
		}(int64(i))
		go func() {
			defer wg.Done()
			_ = s.LocalPriority()
		}()
	}
	wg.Wait()
}
