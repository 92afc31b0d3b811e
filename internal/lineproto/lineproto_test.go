// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package lineproto_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmodem/serialsync/internal/bytelink"
	"github.com/nullmodem/serialsync/internal/lineproto"
)

func TestFormatProducesBracketedLine(t *testing.T) {
	got := lineproto.Format(lineproto.FileReq, "a/b.txt")
	assert.Equal(t, "[[SYNC:FILE_REQ:a/b.txt]]", got)
}

func TestFormatWithNoParams(t *testing.T) {
	got := lineproto.Format(lineproto.Heartbeat)
	assert.Equal(t, "[[SYNC:HEARTBEAT]]", got)
}

func TestParseRoundTripsWithFormat(t *testing.T) {
	line := lineproto.Format(lineproto.FileData, "a/b.txt", "1024", "0755")
	msg, ok := lineproto.Parse(line)
	require.True(t, ok)
	assert.Equal(t, lineproto.FileData, msg.Command)
	assert.Equal(t, []string{"a/b.txt", "1024", "0755"}, msg.Params)
}

func TestParseRejectsMissingPrefix(t *testing.T) {
	_, ok := lineproto.Parse("SYNC:FILE_REQ:a/b.txt]]")
	assert.False(t, ok)
}

func TestParseRejectsMissingSuffix(t *testing.T) {
	_, ok := lineproto.Parse("[[SYNC:FILE_REQ:a/b.txt")
	assert.False(t, ok)
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, ok := lineproto.Parse("[[SYNC:]]")
	assert.False(t, ok)
}

func newPair(t *testing.T) (bytelink.ByteLink, bytelink.ByteLink) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return bytelink.NewPipeLink(a), bytelink.NewPipeLink(b)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := newPair(t)

	go func() { lineproto.Send(client, lineproto.Mkdir, "sub/dir") }()

	msg, ok, err := lineproto.Receive(server, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, lineproto.Mkdir, msg.Command)
	assert.Equal(t, []string{"sub/dir"}, msg.Params)
}

func TestReceiveMalformedLineYieldsFalseNotError(t *testing.T) {
	client, server := newPair(t)

	go func() { client.Write([]byte("not a sync line\n")) }()

	msg, ok, err := lineproto.Receive(server, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, lineproto.Message{}, msg)
}

func TestExpectAckSucceedsOnAck(t *testing.T) {
	client, server := newPair(t)

	go func() { lineproto.Send(client, lineproto.Ack) }()

	require.NoError(t, lineproto.ExpectAck(server, time.Second))
}

func TestExpectAckFailsOnOtherCommand(t *testing.T) {
	client, server := newPair(t)

	go func() { lineproto.Send(client, lineproto.ErrorCmd, "nope") }()

	err := lineproto.ExpectAck(server, time.Second)
	assert.Error(t, err)
}

func TestExpectAckTimesOutWithNoData(t *testing.T) {
	_, server := newPair(t)

	err := lineproto.ExpectAck(server, 20*time.Millisecond)
	assert.Equal(t, bytelink.ErrTimeout, err)
}
