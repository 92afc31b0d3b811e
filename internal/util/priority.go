// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package util

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	mathRand "math/rand"
	"time"
)

// seededRandom is seeded from crypto/rand once at process start so the
// uniform jitter in NewLocalPriority varies between runs without paying
// crypto/rand's cost on every role-negotiation round.
var seededRandom = mathRand.New(mathRand.NewSource(cryptoSeed()))

func cryptoSeed() int64 {
	var bs [8]byte
	if _, err := io.ReadFull(cryptoRand.Reader, bs[:]); err != nil {
		// crypto/rand failing is a platform-level emergency; fall back
		// to a wall-clock seed rather than leaving the RNG unseeded.
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(bs[:]))
}

// NewLocalPriority generates a role-election priority: current
// millisecond epoch times 1000 plus a uniform jitter in [0,1000) (spec.md
// §3's local_priority formula). Regenerated on every (re)connect so a
// dropped and restored link re-elects with near-certainly different
// priorities (spec.md §8 scenario S6).
func NewLocalPriority() int64 {
	return time.Now().UnixMilli()*1000 + int64(seededRandom.Intn(1000))
}
