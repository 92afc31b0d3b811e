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

// Receive accepts a payload across link from a peer running Send. The
// returned payload never includes the 0x1A padding used to fill the
// final block; for a payload whose genuine last byte is 0x1A, the caller
// must carry an explicit byte count out-of-band (spec.md §4.1 invariants)
// to disambiguate — Receive on its own cannot.
func Receive(link bytelink.ByteLink) ([]byte, error) {
	start := time.Now()
	link.ClearInput()

	firstHeader, err := sendHandshake(link)
	if err != nil {
		return nil, newTransferError(link, "handshake", 0, start, err)
	}

	var payload []byte
	expected := 1
	retries := 0
	haveFirst := firstHeader >= 0
	for {
		var header int
		if haveFirst {
			header = firstHeader
			haveFirst = false
		} else {
			var rerr error
			header, rerr = link.ReadByte(responseWait)
			if rerr != nil {
				if rerr == bytelink.ErrTimeout {
					retries++
					if retries > maxRetries {
						abort(link)
						return nil, newTransferError(link, "receive", retries, start, bytelink.ErrTimeout)
					}
					continue
				}
				return nil, newTransferError(link, "receive", retries, start, rerr)
			}
		}

		switch byte(header) {
		case eot:
			link.WriteByte(ack)
			return stripPadding(payload), nil
		case can:
			return nil, newTransferError(link, "receive", retries, start, errCancelled{})
		case soh, stx:
			size := smallBlockSize
			if byte(header) == stx {
				size = largeBlockSize
			}
			meta, err := link.ReadExact(2, responseWait)
			if err != nil {
				return nil, newTransferError(link, "receive", retries, start, err)
			}
			data, err := link.ReadExact(size, responseWait)
			if err != nil {
				return nil, newTransferError(link, "receive", retries, start, err)
			}
			crcBytes, err := link.ReadExact(2, responseWait)
			if err != nil {
				return nil, newTransferError(link, "receive", retries, start, err)
			}

			blockNum := int(meta[0])
			complement := int(meta[1])
			gotCRC := uint16(crcBytes[0])<<8 | uint16(crcBytes[1])

			structurallyValid := complement == 255-blockNum && CRC16(data) == gotCRC
			if !structurallyValid {
				retries++
				if retries > maxRetries {
					abort(link)
					return nil, newTransferError(link, "receive", retries, start, bytelink.ErrTimeout)
				}
				link.WriteByte(nak)
				continue
			}

			switch {
			case blockNum == expected%256:
				payload = append(payload, data...)
				link.WriteByte(ack)
				retries = 0
				expected++
			case blockNum == (expected-1+256)%256:
				// Duplicate of the previous block: ACK, don't append.
				link.WriteByte(ack)
			default:
				// Out of sequence: NAK without advancing or appending.
				link.WriteByte(nak)
			}
		default:
			drainBriefly(link)
			retries++
			if retries > maxRetries {
				abort(link)
				return nil, newTransferError(link, "receive", retries, start, bytelink.ErrTimeout)
			}
			link.WriteByte(nak)
		}
	}
}

// sendHandshake emits C up to 10 times, one per second, until a byte is
// observed on the wire. That byte is the start of the sender's first
// frame (or a stray C/NAK), so it is returned rather than discarded —
// ByteLink has no "unread" primitive to push it back onto the stream.
func sendHandshake(link bytelink.ByteLink) (int, error) {
	for i := 0; i < maxRetries; i++ {
		link.WriteByte(cByte)
		v, err := link.ReadByte(1 * time.Second)
		if err == nil {
			return v, nil
		}
		if err != bytelink.ErrTimeout {
			return -1, err
		}
	}
	return -1, bytelink.ErrTimeout
}

func drainBriefly(link bytelink.ByteLink) {
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) && link.Available() > 0 {
		link.ReadByte(10 * time.Millisecond)
	}
}

func stripPadding(payload []byte) []byte {
	i := len(payload)
	for i > 0 && payload[i-1] == pad {
		i--
	}
	return payload[:i]
}
