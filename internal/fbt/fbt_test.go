// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package fbt

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmodem/serialsync/internal/bytelink"
)

func TestCRC16KnownVector(t *testing.T) {
	// The canonical CRC-16-CCITT check value for the ASCII string
	// "123456789" is 0x29B1 (poly 0x1021, init 0, no final XOR).
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
}

func TestBlockSizeForChoosesLargeWhenEnoughRemains(t *testing.T) {
	assert.Equal(t, largeBlockSize, blockSizeFor(2000))
	assert.Equal(t, largeBlockSize, blockSizeFor(largeBlockSize))
	assert.Equal(t, smallBlockSize, blockSizeFor(largeBlockSize-1))
	assert.Equal(t, smallBlockSize, blockSizeFor(1))
}

func TestHeaderForMatchesBlockSize(t *testing.T) {
	assert.Equal(t, stx, headerFor(largeBlockSize))
	assert.Equal(t, soh, headerFor(smallBlockSize))
}

func TestStripPaddingRemovesOnlyTrailingPadBytes(t *testing.T) {
	in := append([]byte("hello"), pad, pad, pad)
	assert.Equal(t, []byte("hello"), stripPadding(in))
}

func TestStripPaddingLeavesGenuineContentAlone(t *testing.T) {
	in := []byte("no padding here")
	assert.Equal(t, in, stripPadding(in))
}

func pipeLinks(t *testing.T) (bytelink.ByteLink, bytelink.ByteLink) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return bytelink.NewPipeLink(a), bytelink.NewPipeLink(b)
}

func TestSendReceiveRoundTripSingleBlock(t *testing.T) {
	senderLink, receiverLink := pipeLinks(t)
	payload := []byte("short payload")

	recvCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		got, err := Receive(receiverLink)
		recvCh <- got
		errCh <- err
	}()

	require.NoError(t, Send(senderLink, payload))
	require.NoError(t, <-errCh)
	assert.Equal(t, payload, <-recvCh)
}

func TestSendReceiveRoundTripMultiBlock(t *testing.T) {
	senderLink, receiverLink := pipeLinks(t)
	payload := bytes.Repeat([]byte("abcdefgh"), 400) // > 1024 bytes, spans blocks

	recvCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		got, err := Receive(receiverLink)
		recvCh <- got
		errCh <- err
	}()

	require.NoError(t, Send(senderLink, payload))
	require.NoError(t, <-errCh)
	assert.Equal(t, payload, <-recvCh)
}

func TestSendReceiveRoundTripEmptyPayload(t *testing.T) {
	senderLink, receiverLink := pipeLinks(t)

	recvCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		got, err := Receive(receiverLink)
		recvCh <- got
		errCh <- err
	}()

	require.NoError(t, Send(senderLink, nil))
	require.NoError(t, <-errCh)
	assert.Empty(t, <-recvCh)
}

func TestSendReceivePayloadEndingInPadByte(t *testing.T) {
	senderLink, receiverLink := pipeLinks(t)
	// A real payload whose last genuine byte happens to equal the pad
	// byte is ambiguous to Receive alone (spec.md §4.1 invariants); this
	// documents that known limitation rather than asserting round-trip
	// equality.
	payload := append([]byte("trailing"), pad)

	recvCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		got, err := Receive(receiverLink)
		recvCh <- got
		errCh <- err
	}()

	require.NoError(t, Send(senderLink, payload))
	require.NoError(t, <-errCh)
	assert.Equal(t, payload[:len(payload)-1], <-recvCh)
}

func TestTransferErrorCarriesDiagnosticFields(t *testing.T) {
	senderLink, _ := pipeLinks(t)
	err := newTransferError(senderLink, "send-block", 3, time.Now().Add(-time.Second), errCancelled{})
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.RetryCount)
	assert.Equal(t, "send-block", te.Stage)
	assert.Contains(t, err.Error(), "send-block")
	assert.Contains(t, err.Error(), "3 retries")
}
