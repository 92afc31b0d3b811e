// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGenerateManifestHashesAndRecordsEmptyDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	s := NewScanner()
	m, err := s.Generate(root, Options{})
	require.NoError(t, err)

	require.Contains(t, m.Files, "a.txt")
	require.Contains(t, m.Files, "sub/b.txt")
	assert.True(t, m.Files["a.txt"].HasDigest)
	assert.Equal(t, int64(5), m.Files["a.txt"].Size)

	_, empty := m.EmptyDirs["empty"]
	assert.True(t, empty)
	_, subEmpty := m.EmptyDirs["sub"]
	assert.False(t, subEmpty)
}

func TestGenerateManifestSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, ".env"), "SECRET=1")
	writeFile(t, filepath.Join(root, "visible.txt"), "x")

	s := NewScanner()
	m, err := s.Generate(root, Options{})
	require.NoError(t, err)

	assert.Contains(t, m.Files, "visible.txt")
	assert.NotContains(t, m.Files, ".env")
	for p := range m.Files {
		assert.NotContains(t, p, ".git")
	}
}

func TestGenerateManifestRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n!keep.log\n")
	writeFile(t, filepath.Join(root, "app.log"), "noisy")
	writeFile(t, filepath.Join(root, "keep.log"), "kept")
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	s := NewScanner()
	m, err := s.Generate(root, Options{RespectGitignore: true})
	require.NoError(t, err)

	assert.NotContains(t, m.Files, "app.log")
	assert.Contains(t, m.Files, "keep.log")
	assert.Contains(t, m.Files, "main.go")
	assert.NotContains(t, m.Files, ".gitignore")
}

func TestGenerateManifestQuickModeSkipsHashing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")

	s := NewScanner()
	m, err := s.Generate(root, Options{QuickMode: true})
	require.NoError(t, err)

	assert.False(t, m.Files["a.txt"].HasDigest)
	assert.Equal(t, int64(5), m.Files["a.txt"].Size)
}

func TestGenerateManifestReusesPriorDigestWhenUnchanged(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello")

	s := NewScanner()
	first, err := s.Generate(root, Options{})
	require.NoError(t, err)
	cachePath := filepath.Join(root, "manifest.json")
	require.NoError(t, PersistJSON(first, cachePath))

	// Corrupt the file on disk's content without changing size/mtime is
	// impractical to simulate portably; instead verify the happy path:
	// an unchanged file reuses its prior digest rather than re-hashing.
	second, err := s.Generate(root, Options{PriorManifestPath: cachePath})
	require.NoError(t, err)
	assert.Equal(t, first.Files["a.txt"].Digest, second.Files["a.txt"].Digest)
}

func TestGenerateManifestDetectsModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "hello")

	s := NewScanner()
	first, err := s.Generate(root, Options{})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	writeFile(t, path, "hello world, now longer")

	second, err := s.Generate(root, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Files["a.txt"].Digest, second.Files["a.txt"].Digest)
	assert.True(t, Changed(first.Files["a.txt"], second.Files["a.txt"]))
}
