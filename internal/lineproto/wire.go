// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package lineproto

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nullmodem/serialsync/internal/bytelink"
)

// Send writes cmd and its parameters as one bracketed line terminated by
// "\n" (spec.md §4.2).
func Send(link bytelink.ByteLink, cmd Command, params ...string) error {
	return errors.Wrap(link.Write([]byte(Format(cmd, params...)+"\n")), "lineproto: send")
}

// Receive reads one line with the given deadline and parses it. A
// malformed line yields (Message{}, false, nil): the caller should loop
// and read again rather than treat it as an error (spec.md §4.2).
func Receive(link bytelink.ByteLink, timeout time.Duration) (Message, bool, error) {
	line, err := link.ReadLine(timeout)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok := Parse(line)
	return msg, ok, nil
}

// ExpectAck reads one line with the given deadline and requires it to be
// an ACK command, as used by the handshake between a FILE_DATA/MANIFEST_DATA
// control line and the FBT transfer it precedes (spec.md §4.2).
func ExpectAck(link bytelink.ByteLink, timeout time.Duration) error {
	msg, ok, err := Receive(link, timeout)
	if err != nil {
		return err
	}
	if !ok || msg.Command != Ack {
		return errors.Errorf("lineproto: expected ACK, got %q", msg.Command)
	}
	return nil
}
