// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package manifest implements the Manifest Engine: parallel directory
// walk with gitignore filtering, metadata-vs-content hashing, a reusable
// cached manifest for incremental runs, and the diff semantics that
// produce a ChangeSet (spec.md §3, §4.3).
package manifest

import "sort"

// FileRecord is an entry for one regular file (spec.md §3).
type FileRecord struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	ModifiedTime int64  `json:"lastModified"`
	// Digest is a lowercase-hex MD5 over file content, or absent ("",
	// HasDigest=false) when quick mode elided hashing.
	Digest    string `json:"md5,omitempty"`
	HasDigest bool   `json:"-"`
}

// fileRecordWire is the shape Manifest's MarshalJSON and UnmarshalJSON
// use for each record (spec.md §6): a `md5` key holding a lowercase hex
// string or JSON null, never an omitted key, so the format round-trips
// regardless of whether a digest is present. A FileRecord encoded on its
// own (e.g. inside a ChangeSet) uses its struct tags instead and omits an
// empty md5.
type fileRecordWire struct {
	Path         string  `json:"path"`
	Size         int64   `json:"size"`
	ModifiedTime int64   `json:"lastModified"`
	MD5          *string `json:"md5"`
}

func (f FileRecord) toWire() fileRecordWire {
	w := fileRecordWire{Path: f.Path, Size: f.Size, ModifiedTime: f.ModifiedTime}
	if f.HasDigest {
		d := f.Digest
		w.MD5 = &d
	}
	return w
}

func (w fileRecordWire) toRecord() FileRecord {
	f := FileRecord{Path: w.Path, Size: w.Size, ModifiedTime: w.ModifiedTime}
	if w.MD5 != nil {
		f.Digest = *w.MD5
		f.HasDigest = true
	}
	return f
}

// Manifest is a snapshot of one directory tree (spec.md §3).
type Manifest struct {
	Files     map[string]FileRecord
	EmptyDirs map[string]struct{}
}

// New returns an empty Manifest.
func New() *Manifest {
	return &Manifest{Files: make(map[string]FileRecord), EmptyDirs: make(map[string]struct{})}
}

// SortedEmptyDirs returns EmptyDirs as a slice sorted by ascending path
// length then lexically, the ordering empty_dirs_to_delete needs
// reversed (spec.md §3: "sorted deepest-first by path length").
func (m *Manifest) SortedEmptyDirs() []string {
	out := make([]string, 0, len(m.EmptyDirs))
	for d := range m.EmptyDirs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// ChangeSet is the output of diffing a local manifest against a remote
// one (spec.md §3).
type ChangeSet struct {
	ToSend            []FileRecord
	EmptyDirsToCreate []string
	ToDelete          []string
	EmptyDirsToDelete []string
}
