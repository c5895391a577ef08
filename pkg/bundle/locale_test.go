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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setUserLanguages pins the preferred-language list for one test.
func setUserLanguages(t *testing.T, langs []string) {
	t.Helper()
	SetUserLanguagesFunc(func() []string { return langs })
	t.Cleanup(func() { SetUserLanguagesFunc(nil) })
}

func TestLanguageTableSizes(t *testing.T) {
	assert.Len(t, languageNames, 152)
	assert.Len(t, languageAbbreviations, 152)
	assert.Len(t, localeAbbreviations, 109)
	assert.Len(t, scriptCodes, 152)
	assert.Len(t, stringEncodings, 152)
}

func TestLanguageAliasing(t *testing.T) {
	assert.Equal(t, int32(0), languageCodeForLocalization("English"))
	assert.Equal(t, int32(1), languageCodeForLocalization("French"))
	assert.Equal(t, "en", languageAbbreviationForLocalization("English"))
	assert.Equal(t, "English", languageNameForLocalization("en"))
	assert.Equal(t, "fr", languageAbbreviationForLocalization("fr_FR"))
	assert.Equal(t, "de", languageAbbreviationForLocalization("de-AT"))

	// Chinese identifier fixups.
	assert.Equal(t, int32(19), languageCodeForLocalization("zh-Hant"))
	assert.Equal(t, int32(33), languageCodeForLocalization("zh-Hans"))
	assert.Equal(t, "zh", languageAbbreviationForLocalization("zh_TW"))

	// Norwegian legacy code.
	assert.Equal(t, int32(9), languageCodeForLocalization("no"))

	// Separator variants.
	assert.Equal(t, "en_US", modifiedLocalization("en-US"))
	assert.Equal(t, "en-US", modifiedLocalization("en_US"))
	assert.Equal(t, "", modifiedLocalization("en"))
}

func TestRegionCodes(t *testing.T) {
	assert.Equal(t, "en_US", LocaleAbbreviationForRegionCode(0))
	assert.Equal(t, "fr_FR", LocaleAbbreviationForRegionCode(1))
	assert.Equal(t, "de_DE", LocaleAbbreviationForRegionCode(3))

	language, region, script, encoding, ok := LocalizationInfo("fr_FR")
	require.True(t, ok)
	assert.Equal(t, int32(1), language)
	assert.Equal(t, int32(1), region)
	assert.Equal(t, int32(0), script)
	assert.Equal(t, uint32(0), encoding)

	language, _, script, _, ok = LocalizationInfo("ja_JP")
	require.True(t, ok)
	assert.Equal(t, int32(11), language)
	assert.Equal(t, int32(1), script)
}

func TestRegionGroupPrefix(t *testing.T) {
	assert.True(t, localizationsHaveCommonPrefix("zh_CN", "zh_TW"))
	assert.True(t, localizationsHaveCommonPrefix("en-US", "en_GB"))
	assert.False(t, localizationsHaveCommonPrefix("de_DE", "de"), "short entries form no group")
	assert.False(t, localizationsHaveCommonPrefix("en_US", "fr_FR"))
}

// TestSearchList_CalibrationScenario is the localization fallback
// scenario: lprojs {en, fr, Base}, development region en, preferences
// [de_DE, de, fr_FR] resolve to [fr, en, Base].
func TestSearchList_CalibrationScenario(t *testing.T) {
	setUserLanguages(t, []string{"de_DE", "de", "fr_FR"})

	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable:        "demo",
		InfoKeyDevelopmentRegion: "en",
	})
	mkdirs(t, root, "Contents/Resources/en.lproj", "Contents/Resources/fr.lproj", "Contents/Resources/Base.lproj")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, []string{"fr", "en", "Base"}, b.LanguageSearchList())
}

// TestSearchList_EmptyPreferences is the boundary behavior: an empty
// user-preference list with development region fr yields [fr, en].
func TestSearchList_EmptyPreferences(t *testing.T) {
	setUserLanguages(t, nil)

	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable:        "demo",
		InfoKeyDevelopmentRegion: "fr",
	})
	mkdirs(t, root, "Contents/Resources/fr.lproj")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, []string{"fr", "en"}, b.LanguageSearchList())
}

// TestSearchList_RegionGroupRelaxation verifies that a region group
// only truncates to the bare language once the whole group missed.
func TestSearchList_RegionGroupRelaxation(t *testing.T) {
	setUserLanguages(t, []string{"pt_BR", "pt_PT", "fr"})

	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable:        "demo",
		InfoKeyDevelopmentRegion: "fr",
	})
	mkdirs(t, root, "Contents/Resources/pt.lproj", "Contents/Resources/fr.lproj")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	// pt_BR and pt_PT form a region group; neither exists exactly, so
	// the relaxed pass truncates the group to pt before fr is reached.
	langs := b.LanguageSearchList()
	require.NotEmpty(t, langs)
	assert.Equal(t, "pt", langs[0])
}

func TestPreferredLocalizations(t *testing.T) {
	got := PreferredLocalizations([]string{"en", "fr", "de"}, []string{"fr_FR"})
	require.NotEmpty(t, got)
	assert.Equal(t, "fr", got[0])

	// Full-name aliasing.
	got = PreferredLocalizations([]string{"English", "French"}, []string{"en"})
	require.NotEmpty(t, got)
	assert.Equal(t, "English", got[0])

	// Nothing matches: en_US backstop, then first present localization.
	got = PreferredLocalizations([]string{"ja"}, []string{"xx"})
	require.NotEmpty(t, got)
	assert.Equal(t, "ja", got[0])

	// Empty set falls back to the configured default.
	got = PreferredLocalizations(nil, []string{"fr"})
	assert.Equal(t, []string{"en"}, got)
}

func TestLocalizationsForDirectory(t *testing.T) {
	root := t.TempDir()
	writeInfoPlist(t, filepath.Join(root, "Contents", "Info.plist"), map[string]string{
		InfoKeyExecutable: "demo",
	})
	mkdirs(t, root, "Contents/Resources/en.lproj", "Contents/Resources/ja.lproj")

	locs := LocalizationsForDirectory(root)
	assert.ElementsMatch(t, []string{"en", "ja"}, locs)
}
