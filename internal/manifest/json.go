// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

type wireManifest struct {
	Files            map[string]fileRecordWire `json:"files"`
	EmptyDirectories []string                  `json:"emptyDirectories"`
}

// MarshalJSON renders the persisted manifest file format spec.md §6
// specifies: {"files": {path: {path,size,lastModified,md5}},
// "emptyDirectories": [...]}, UTF-8. The output is compact; PersistJSON
// writes it indented.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	w := wireManifest{Files: make(map[string]fileRecordWire, len(m.Files))}
	for p, r := range m.Files {
		w.Files[p] = r.toWire()
	}
	w.EmptyDirectories = make([]string, 0, len(m.EmptyDirs))
	for d := range m.EmptyDirs {
		w.EmptyDirectories = append(w.EmptyDirectories, d)
	}
	sort.Strings(w.EmptyDirectories)
	return json.Marshal(w)
}

// UnmarshalJSON parses the persisted manifest file format.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Files = make(map[string]FileRecord, len(w.Files))
	for p, r := range w.Files {
		m.Files[p] = r.toRecord()
	}
	m.EmptyDirs = make(map[string]struct{}, len(w.EmptyDirectories))
	for _, d := range w.EmptyDirectories {
		m.EmptyDirs[d] = struct{}{}
	}
	return nil
}

// LoadJSON reads and parses a persisted manifest cache file. A missing
// file is not an error: the caller treats it as "no prior manifest"
// (spec.md §4.3 step 1).
func LoadJSON(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "manifest: read cache")
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "manifest: parse cache")
	}
	return m, nil
}

// PersistJSON writes m to path as pretty-printed JSON (spec.md §4.3 step
// 8, §6).
func PersistJSON(m *Manifest, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "manifest: marshal cache")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "manifest: write cache")
}
