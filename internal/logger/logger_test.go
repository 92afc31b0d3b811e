// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package logger_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullmodem/serialsync/internal/logger"
)

func TestInfolnWritesLevelPrefixedLine(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf)
	l.Infoln("hello", "world")
	assert.Contains(t, buf.String(), "INFO: hello world")
}

func TestWarnfFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf)
	l.Warnf("count=%d", 3)
	assert.Contains(t, buf.String(), "WARN: count=3")
}

func TestHandlerFiresForItsLevelAndAbove(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf)

	var mu sync.Mutex
	var seen []logger.Level
	l.AddHandler(logger.LevelInfo, func(lvl logger.Level, msg string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, lvl)
	})

	l.Debugln("ignored at debug")
	l.Infoln("counted")
	l.Warnln("also counted")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []logger.Level{logger.LevelInfo, logger.LevelWarn}, seen)
}

func TestHandlerAtDebugSeesEveryLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf)

	var mu sync.Mutex
	count := 0
	l.AddHandler(logger.LevelDebug, func(lvl logger.Level, msg string) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	l.Debugln("a")
	l.Infoln("b")
	l.Warnln("c")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}

func TestLevelStringNames(t *testing.T) {
	assert.Equal(t, "DEBUG", logger.LevelDebug.String())
	assert.Equal(t, "INFO", logger.LevelInfo.String())
	assert.Equal(t, "WARN", logger.LevelWarn.String())
}

func TestEmitTrimsTrailingWhitespace(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf)
	l.Infoln("trailing")
	assert.False(t, strings.HasSuffix(strings.TrimRight(buf.String(), "\n"), " "))
}
