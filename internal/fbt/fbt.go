// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fbt implements Framed Block Transfer: reliable delivery of an
// in-memory byte payload across a bytelink.ByteLink using an
// XMODEM-family variant with CRC-16-CCITT and adaptive block sizes.
// Bit-exact to the wire format in spec.md §4.1.
package fbt

import (
	"fmt"
	"time"

	"github.com/nullmodem/serialsync/internal/bytelink"
)

// Wire symbols (spec.md §4.1).
const (
	soh byte = 0x01 // 128-byte block
	stx byte = 0x02 // large block
	eot byte = 0x04
	ack byte = 0x06
	nak byte = 0x15
	can byte = 0x18
	cByte byte = 0x43
	pad   byte = 0x1A
)

const (
	smallBlockSize = 128
	largeBlockSize = 1024

	maxRetries    = 10
	handshakeWait = 60 * time.Second
	responseWait  = 10 * time.Second
)

// TransferError is the structured diagnostic spec.md §7 requires FBT to
// carry: a human-readable string composing retry count, elapsed time,
// port-open flag, and available bytes, plus those fields individually
// for callers (tests, the CLI) that want programmatic access.
type TransferError struct {
	Stage      string // "handshake", "send-block", "send-eot", "receive"
	Err        error
	RetryCount int
	Elapsed    time.Duration
	PortOpen   bool
	Available  int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("fbt: %s failed after %d retries, %v elapsed, port open=%v, available=%d: %v",
		e.Stage, e.RetryCount, e.Elapsed, e.PortOpen, e.Available, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func newTransferError(link bytelink.ByteLink, stage string, retries int, start time.Time, err error) *TransferError {
	return &TransferError{
		Stage:      stage,
		Err:        err,
		RetryCount: retries,
		Elapsed:    time.Since(start),
		PortOpen:   link.IsOpen(),
		Available:  link.Available(),
	}
}

// errCancelled is returned (wrapped in a TransferError) when the peer
// sent CAN.
type errCancelled struct{}

func (errCancelled) Error() string { return "fbt: transfer cancelled by peer" }

func blockSizeFor(remaining int) int {
	if remaining >= largeBlockSize {
		return largeBlockSize
	}
	return smallBlockSize
}

func headerFor(size int) byte {
	if size == largeBlockSize {
		return stx
	}
	return soh
}
