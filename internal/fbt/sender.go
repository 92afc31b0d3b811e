// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package fbt

import (
	"time"

	"github.com/nullmodem/serialsync/internal/bytelink"
)

// Send delivers payload across link to a peer running Receive. It is the
// sole writer during the call and expects exclusive use of link for its
// duration (the caller arbitrates fbt_active per spec.md §2).
func Send(link bytelink.ByteLink, payload []byte) error {
	start := time.Now()

	if err := waitForHandshake(link); err != nil {
		return newTransferError(link, "handshake", 0, start, err)
	}
	drainHandshakeNoise(link)

	blockNum := 1
	offset := 0
	for offset < len(payload) {
		remaining := len(payload) - offset
		size := blockSizeFor(remaining)
		chunk := make([]byte, size)
		n := copy(chunk, payload[offset:])
		for i := n; i < size; i++ {
			chunk[i] = pad
		}

		frame := buildFrame(blockNum, chunk)
		if err := sendFrameWithRetry(link, frame, start); err != nil {
			abort(link)
			return err
		}

		offset += n
		blockNum = (blockNum + 1) % 256
	}

	return sendEOT(link, start)
}

func buildFrame(blockNum int, data []byte) []byte {
	bn := byte(blockNum % 256)
	frame := make([]byte, 0, 3+len(data)+2)
	frame = append(frame, headerFor(len(data)), bn, 255-bn)
	frame = append(frame, data...)
	crc := CRC16(data)
	frame = append(frame, byte(crc>>8), byte(crc))
	return frame
}

func waitForHandshake(link bytelink.ByteLink) error {
	deadline := time.Now().Add(handshakeWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return bytelink.ErrTimeout
		}
		v, err := link.ReadByte(remaining)
		if err != nil {
			if err == bytelink.ErrTimeout {
				continue
			}
			return err
		}
		if v == int(cByte) {
			return nil
		}
		// Other bytes, including stray NAK, are ignored while waiting.
	}
}

// drainHandshakeNoise consumes any additional C/NAK bytes that queued up
// before the receiver quiesced, so they aren't mistaken for a response to
// block 1.
func drainHandshakeNoise(link bytelink.ByteLink) {
	for link.Available() > 0 {
		v, err := link.ReadByte(10 * time.Millisecond)
		if err != nil || v < 0 {
			return
		}
		if v != int(cByte) && v != int(nak) {
			return
		}
	}
}

func sendFrameWithRetry(link bytelink.ByteLink, frame []byte, start time.Time) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := link.Write(frame); err != nil {
			return newTransferError(link, "send-block", attempt, start, err)
		}
		v, err := link.ReadByte(responseWait)
		if err != nil {
			if err == bytelink.ErrTimeout {
				continue
			}
			return newTransferError(link, "send-block", attempt, start, err)
		}
		switch byte(v) {
		case ack:
			return nil
		case can:
			return newTransferError(link, "send-block", attempt, start, errCancelled{})
		case nak:
			continue
		case cByte:
			// Stale handshake byte, treat as a retry signal.
			continue
		default:
			continue
		}
	}
	return newTransferError(link, "send-block", maxRetries, start, bytelink.ErrTimeout)
}

func sendEOT(link bytelink.ByteLink, start time.Time) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := link.WriteByte(eot); err != nil {
			return newTransferError(link, "send-eot", attempt, start, err)
		}
		v, err := link.ReadByte(responseWait)
		if err != nil {
			if err == bytelink.ErrTimeout {
				continue
			}
			return newTransferError(link, "send-eot", attempt, start, err)
		}
		switch byte(v) {
		case ack:
			return nil
		case can:
			return newTransferError(link, "send-eot", attempt, start, errCancelled{})
		default:
			continue
		}
	}
	return newTransferError(link, "send-eot", maxRetries, start, bytelink.ErrTimeout)
}

func abort(link bytelink.ByteLink) {
	link.WriteByte(can)
	link.WriteByte(can)
}
