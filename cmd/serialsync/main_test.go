// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmodem/serialsync/internal/manifest"
)

func TestManifestCommandProducesValidJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	m, err := manifest.NewScanner().Generate(root, manifest.Options{})
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded manifest.Manifest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, ok := decoded.Files["a.txt"]
	assert.True(t, ok)
}

func TestDiffCommandRoundTripsThroughJSONFiles(t *testing.T) {
	dir := t.TempDir()
	localRoot := filepath.Join(dir, "local")
	remoteRoot := filepath.Join(dir, "remote")
	require.NoError(t, os.MkdirAll(localRoot, 0o755))
	require.NoError(t, os.MkdirAll(remoteRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localRoot, "new.txt"), []byte("x"), 0o644))

	local, err := manifest.NewScanner().Generate(localRoot, manifest.Options{})
	require.NoError(t, err)
	remote, err := manifest.NewScanner().Generate(remoteRoot, manifest.Options{})
	require.NoError(t, err)

	localPath := filepath.Join(dir, "local.json")
	remotePath := filepath.Join(dir, "remote.json")
	require.NoError(t, manifest.PersistJSON(local, localPath))
	require.NoError(t, manifest.PersistJSON(remote, remotePath))

	loadedLocal, err := manifest.LoadJSON(localPath)
	require.NoError(t, err)
	loadedRemote, err := manifest.LoadJSON(remotePath)
	require.NoError(t, err)

	cs := manifest.Diff(loadedLocal, loadedRemote, false)
	require.Len(t, cs.ToSend, 1)
	assert.Equal(t, "new.txt", cs.ToSend[0].Path)
}
