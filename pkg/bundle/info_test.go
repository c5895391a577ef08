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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setHostIdentity pins the platform/product pair for a test and
// restores the defaults at cleanup.
func setHostIdentity(t *testing.T, platform, product string) {
	t.Helper()
	SetCurrentPlatform(platform)
	SetCurrentProduct(product)
	t.Cleanup(func() {
		SetCurrentPlatform("")
		SetCurrentProduct("")
	})
}

// TestProcessInfoDictionary_OverrideCollapse covers the calibration
// matrix for platform/product override keys.
func TestProcessInfoDictionary_OverrideCollapse(t *testing.T) {
	cases := []struct {
		platform, product string
		want              string
	}{
		{PlatformMacOS, ProductIPhone, "A"},
		{PlatformLinux, ProductIPhone, "B"},
		{PlatformLinux, ProductIPad, "C"},
	}
	for _, tc := range cases {
		t.Run(tc.platform+"_"+tc.product, func(t *testing.T) {
			setHostIdentity(t, tc.platform, tc.product)
			dict := InfoDict{
				"Name-macos~iphone": "A",
				"Name~iphone":       "B",
				"Name":              "C",
			}
			ProcessInfoDictionary(dict)
			assert.Equal(t, tc.want, dict["Name"], "winning override value")
			assert.Len(t, dict, 1, "all override keys must be removed")
		})
	}
}

// TestProcessInfoDictionary_BothBeatsProduct checks specificity
// ordering when both variants are present on a matching host.
func TestProcessInfoDictionary_BothBeatsProduct(t *testing.T) {
	setHostIdentity(t, PlatformMacOS, ProductIPad)
	dict := InfoDict{
		"Foo-macos~ipad": "both",
		"Foo~ipad":       "product",
	}
	ProcessInfoDictionary(dict)
	assert.Equal(t, "both", dict["Foo"])
	assert.NotContains(t, dict, "Foo-macos~ipad")
	assert.NotContains(t, dict, "Foo~ipad")
}

// TestProcessInfoDictionary_Blacklist verifies executable and
// identifier keys never collapse.
func TestProcessInfoDictionary_Blacklist(t *testing.T) {
	setHostIdentity(t, PlatformMacOS, "")
	dict := InfoDict{
		InfoKeyExecutable:            "Base",
		InfoKeyExecutable + "-macos": "Overridden",
		InfoKeyIdentifier:            "com.example.base",
		InfoKeyIdentifier + "-macos": "com.example.overridden",
		"CFBundleDisplayName":        "Plain",
		"CFBundleDisplayName-macos":  "ForMac",
	}
	ProcessInfoDictionary(dict)
	assert.Equal(t, "Base", dict[InfoKeyExecutable])
	assert.Equal(t, "com.example.base", dict[InfoKeyIdentifier])
	assert.Equal(t, "ForMac", dict["CFBundleDisplayName"])
	assert.NotContains(t, dict, "CFBundleDisplayName-macos")
}

// TestParseOverrideKey exercises token recognition and ordering rules.
func TestParseOverrideKey(t *testing.T) {
	base, platform, product, ok := parseOverrideKey("Key-linux~ipad")
	require.True(t, ok)
	assert.Equal(t, "Key", base)
	assert.Equal(t, "linux", platform)
	assert.Equal(t, "ipad", product)

	// Tilde before minus is not an override key.
	_, _, _, ok = parseOverrideKey("Key~ipad-linux")
	assert.False(t, ok)

	// Unknown tokens make ordinary keys.
	_, _, _, ok = parseOverrideKey("version-string")
	assert.False(t, ok)
	_, _, _, ok = parseOverrideKey("thing~else")
	assert.False(t, ok)

	// Bare separators are ordinary keys too.
	_, _, _, ok = parseOverrideKey("Key-")
	assert.False(t, ok)
	_, _, _, ok = parseOverrideKey("-macos")
	assert.False(t, ok)
}

// writeInfoPlist writes an XML property list for tests.
func writeInfoPlist(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	body := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
		"<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n" +
		"<plist version=\"1.0\">\n<dict>\n"
	for k, v := range entries {
		body += fmt.Sprintf("\t<key>%s</key>\n\t<string>%s</string>\n", k, v)
	}
	body += "</dict>\n</plist>\n"
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// TestLoadInfoDictionary_PlatformVariantWins verifies that
// Info-<platform>.plist shadows Info.plist.
func TestLoadInfoDictionary_PlatformVariantWins(t *testing.T) {
	setHostIdentity(t, PlatformLinux, "")
	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable: "generic",
	})
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info-linux.plist"), map[string]string{
		InfoKeyExecutable: "linux-specific",
	})

	dict := loadInfoDictionary(root, LayoutContents)
	require.NotNil(t, dict)
	assert.Equal(t, "linux-specific", dict.getString(InfoKeyExecutable))
}

// TestLoadInfoDictionary_BrokenPlist verifies the empty-dictionary
// fallback remembers the source path.
func TestLoadInfoDictionary_BrokenPlist(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Contents", "Info.plist")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not a plist at all <<<"), 0o644))

	dict := loadInfoDictionary(root, LayoutContents)
	require.NotNil(t, dict)
	assert.Equal(t, path, dict.getString(infoKeySourceURL))
	assert.Len(t, dict, 1)
}

// TestLoadInfoDictionary_NumericVersionStamp verifies the packed
// version is stored alongside the raw string.
func TestLoadInfoDictionary_NumericVersionStamp(t *testing.T) {
	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable: "demo",
		InfoKeyVersion:    "1.2.3",
	})
	dict := loadInfoDictionary(root, LayoutContents)
	require.NotNil(t, dict)
	assert.Equal(t, uint32(0x01023080), dict.numericVersion())
}

// TestReadPkgInfo verifies the 8-byte type/creator split.
func TestReadPkgInfo(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Contents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Contents", "PkgInfo"), []byte("APPLdemo"), 0o644))

	pkgType, creator, ok := readPkgInfo(root, LayoutContents)
	require.True(t, ok)
	assert.Equal(t, "APPL", pkgType)
	assert.Equal(t, "demo", creator)

	_, _, ok = readPkgInfo(t.TempDir(), LayoutContents)
	assert.False(t, ok)
}
