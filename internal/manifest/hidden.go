// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"os"
	"strings"
)

// isHidden reports whether an entry should be treated as hidden for
// manifest purposes (spec.md §4.3 step 2: "entries hidden by platform
// convention"). A leading dot in the basename is the portable signal
// used across the pool of scanned platforms; a platform-specific
// attribute bit (e.g. Windows' FILE_ATTRIBUTE_HIDDEN) is intentionally
// not consulted here since this codebase targets the dotfile
// convention uniformly rather than special-casing per GOOS.
func isHidden(info os.FileInfo) bool {
	name := info.Name()
	return len(name) > 0 && strings.HasPrefix(name, ".") && name != "." && name != ".."
}
