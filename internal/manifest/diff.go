// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import "sort"

// Changed implements spec.md §3's "judged different" rule: if both
// sides hold digests, they must match; otherwise size and
// modified_time must match. Either criterion satisfied means "same".
func Changed(local, remote FileRecord) bool {
	if local.HasDigest && remote.HasDigest {
		return local.Digest != remote.Digest
	}
	return local.Size != remote.Size || local.ModifiedTime != remote.ModifiedTime
}

// Diff computes the ChangeSet needed to bring remote up to date with
// local. strict additionally populates ToDelete/EmptyDirsToDelete for
// entries present remotely but absent locally (spec.md §3).
func Diff(local, remote *Manifest, strict bool) ChangeSet {
	var cs ChangeSet

	paths := make([]string, 0, len(local.Files))
	for p := range local.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		lr := local.Files[p]
		rr, ok := remote.Files[p]
		if !ok || Changed(lr, rr) {
			cs.ToSend = append(cs.ToSend, lr)
		}
	}

	dirs := make([]string, 0, len(local.EmptyDirs))
	for d := range local.EmptyDirs {
		if _, ok := remote.EmptyDirs[d]; !ok {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	cs.EmptyDirsToCreate = dirs

	if !strict {
		return cs
	}

	var toDelete []string
	for p := range remote.Files {
		if _, ok := local.Files[p]; !ok {
			toDelete = append(toDelete, p)
		}
	}
	sort.Strings(toDelete)
	cs.ToDelete = toDelete

	var dirsToDelete []string
	for d := range remote.EmptyDirs {
		if _, ok := local.EmptyDirs[d]; !ok {
			dirsToDelete = append(dirsToDelete, d)
		}
	}
	// Deepest-first by path length, per spec.md §3, so a receiver can
	// remove children before their now-empty parents.
	sort.Slice(dirsToDelete, func(i, j int) bool {
		if len(dirsToDelete[i]) != len(dirsToDelete[j]) {
			return len(dirsToDelete[i]) > len(dirsToDelete[j])
		}
		return dirsToDelete[i] < dirsToDelete[j]
	})
	cs.EmptyDirsToDelete = dirsToDelete

	return cs
}
