// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

package osutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullmodem/serialsync/internal/osutil"
)

func TestExpandTildeAlone(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("no $HOME set")
	}
	got, err := osutil.ExpandTilde("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)
}

func TestExpandTildePrefixed(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("no $HOME set")
	}
	got, err := osutil.ExpandTilde(filepath.Join("~", "sync"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sync"), got)
}

func TestExpandTildeLeavesOtherPathsAlone(t *testing.T) {
	got, err := osutil.ExpandTilde("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
