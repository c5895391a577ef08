// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
}

// TestDetectLayout_Preference covers the boundary behavior: both
// Contents and Resources present selects Contents-style unless the
// path carries a framework suffix.
func TestDetectLayout_Preference(t *testing.T) {
	plain := filepath.Join(t.TempDir(), "Thing.bundle")
	mkdirs(t, plain, "Contents", "Resources")
	layout, err := DetectLayout(plain)
	require.NoError(t, err)
	assert.Equal(t, LayoutContents, layout, "no framework suffix prefers Contents")

	framework := filepath.Join(t.TempDir(), "Thing.framework")
	mkdirs(t, framework, "Contents", "Resources")
	layout, err = DetectLayout(framework)
	require.NoError(t, err)
	assert.Equal(t, LayoutOldStyle, layout, "framework suffix prefers Resources")
}

func TestDetectLayout_Versions(t *testing.T) {
	oldStyle := t.TempDir()
	mkdirs(t, oldStyle, "Resources")
	layout, err := DetectLayout(oldStyle)
	require.NoError(t, err)
	assert.Equal(t, LayoutOldStyle, layout)

	supportFiles := t.TempDir()
	mkdirs(t, supportFiles, "Support Files")
	layout, err = DetectLayout(supportFiles)
	require.NoError(t, err)
	assert.Equal(t, LayoutSupportFiles, layout)

	flat := t.TempDir()
	mkdirs(t, flat, "stuff")
	layout, err = DetectLayout(flat)
	require.NoError(t, err)
	assert.Equal(t, LayoutFlat, layout)
}

// TestDetectLayout_SymlinkedResources covers the framework pattern of
// symlinking Resources to Versions/Current/Resources.
func TestDetectLayout_SymlinkedResources(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Linked.framework")
	mkdirs(t, root, "Versions/A/Resources")
	require.NoError(t, os.Symlink("A", filepath.Join(root, "Versions", "Current")))
	require.NoError(t, os.Symlink("Versions/Current/Resources", filepath.Join(root, "Resources")))

	layout, err := DetectLayout(root)
	require.NoError(t, err)
	assert.Equal(t, LayoutOldStyle, layout)
}

func TestLayoutDerivedDirectories(t *testing.T) {
	assert.Equal(t, "Resources", LayoutOldStyle.resourcesDir())
	assert.Equal(t, filepath.Join("Support Files", "Resources"), LayoutSupportFiles.resourcesDir())
	assert.Equal(t, filepath.Join("Contents", "Resources"), LayoutContents.resourcesDir())
	assert.Equal(t, "", LayoutFlat.resourcesDir())

	assert.Equal(t, "Contents", LayoutContents.supportFilesDir())
	assert.Equal(t, filepath.Join("Contents", "PlugIns"), LayoutContents.plugInsDir())
	assert.Equal(t, filepath.Join("Contents", "Frameworks"), LayoutContents.privateFrameworksDir())
	assert.Equal(t, "SharedSupport", LayoutOldStyle.sharedSupportDir())
}
