// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package util_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nullmodem/serialsync/internal/util"
)

func TestNewLocalPriorityIsCloseToNowTimesThousand(t *testing.T) {
	before := time.Now().UnixMilli() * 1000
	p := util.NewLocalPriority()
	after := time.Now().UnixMilli()*1000 + 1000

	assert.GreaterOrEqual(t, p, before)
	assert.Less(t, p, after)
}

func TestNewLocalPriorityVariesAcrossCalls(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		seen[util.NewLocalPriority()] = true
	}
	assert.Greater(t, len(seen), 1, "jitter should produce distinct priorities across calls")
}
