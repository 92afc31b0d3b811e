// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ignorefs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmodem/serialsync/internal/ignorefs"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMatchIgnoresSimpleExtensionPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("debug.txt", false))
}

func TestMatchHandlesNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", ".gitignore"), "ignored.txt\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("sub/ignored.txt", false))
	assert.False(t, m.Match("ignored.txt", false))
}

func TestMatchRespectsAnchoredPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "/build\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("build", true))
	assert.False(t, m.Match("sub/build", true))
}

func TestMatchDirOnlyPatternIgnoresDirectoriesNotFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "temp/\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("temp", true))
	assert.False(t, m.Match("temp", false))
}

func TestMatchNegationResurrectsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n!keep.log\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestMatchIgnoresCommentsAndBlankLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "# a comment\n\n*.tmp\n")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("a.tmp", false))
	assert.False(t, m.Match("# a comment", false))
}

func TestMatchOnNilMatcherNeverIgnores(t *testing.T) {
	var m *ignorefs.Matcher
	assert.False(t, m.Match("anything.log", false))
}

func TestLoadWithNoGitignoreFilesProducesEmptyMatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plain.txt"), "content")

	m, err := ignorefs.Load(root)
	require.NoError(t, err)
	assert.False(t, m.Match("plain.txt", false))
}
