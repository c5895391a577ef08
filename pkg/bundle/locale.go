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
	"strings"
	"sync"
)

// The historical language/locale code tables. Indexes are the classic
// script-manager language and region codes; empty strings mark codes
// with no assignment.

// localeAbbreviations maps integer region codes to locale identifiers.
var localeAbbreviations = []string{
	"en_US", "fr_FR", "en_GB", "de_DE", "it_IT", "nl_NL", "nl_BE", "sv_SE",
	"es_ES", "da_DK", "pt_PT", "fr_CA", "nb_NO", "he_IL", "ja_JP", "en_AU",
	"ar", "fi_FI", "fr_CH", "de_CH", "el_GR", "is_IS", "mt_MT", "el_CY",
	"tr_TR", "hr_HR", "nl_NL", "nl_BE", "en_CA", "en_CA", "pt_PT", "nb_NO",
	"da_DK", "hi_IN", "ur_PK", "tr_TR", "it_CH", "en", "", "ro_RO",
	"grc", "lt_LT", "pl_PL", "hu_HU", "et_EE", "lv_LV", "se", "fo_FO",
	"fa_IR", "ru_RU", "ga_IE", "ko_KR", "zh_CN", "zh_TW", "th_TH", "",
	"cs_CZ", "sk_SK", "", "hu_HU", "bn", "be_BY", "uk_UA", "",
	"el_GR", "sr_CS", "sl_SI", "mk_MK", "hr_HR", "", "de_DE", "pt_BR",
	"bg_BG", "ca_ES", "", "gd", "gv", "br", "iu_CA", "cy",
	"en_CA", "ga_IE", "en_CA", "dz_BT", "hy_AM", "ka_GE", "es_XL", "es_ES",
	"to_TO", "pl_PL", "ca_ES", "fr", "de_AT", "es_XL", "gu_IN", "pa",
	"ur_IN", "vi_VN", "fr_BE", "uz_UZ", "en_SG", "nn_NO", "af_ZA", "eo",
	"mr_IN", "bo", "ne_NP", "kl", "en_IE",
}

// languageNames maps language codes to full English language names.
var languageNames = []string{
	"English", "French", "German", "Italian", "Dutch", "Swedish", "Spanish", "Danish",
	"Portuguese", "Norwegian", "Hebrew", "Japanese", "Arabic", "Finnish", "Greek", "Icelandic",
	"Maltese", "Turkish", "Croatian", "Chinese", "Urdu", "Hindi", "Thai", "Korean",
	"Lithuanian", "Polish", "Hungarian", "Estonian", "Latvian", "Sami", "Faroese", "Farsi",
	"Russian", "Chinese", "Dutch", "Irish", "Albanian", "Romanian", "Czech", "Slovak",
	"Slovenian", "Yiddish", "Serbian", "Macedonian", "Bulgarian", "Ukrainian", "Byelorussian", "Uzbek",
	"Kazakh", "Azerbaijani", "Azerbaijani", "Armenian", "Georgian", "Moldavian", "Kirghiz", "Tajiki",
	"Turkmen", "Mongolian", "Mongolian", "Pashto", "Kurdish", "Kashmiri", "Sindhi", "Tibetan",
	"Nepali", "Sanskrit", "Marathi", "Bengali", "Assamese", "Gujarati", "Punjabi", "Oriya",
	"Malayalam", "Kannada", "Tamil", "Telugu", "Sinhalese", "Burmese", "Khmer", "Lao",
	"Vietnamese", "Indonesian", "Tagalog", "Malay", "Malay", "Amharic", "Tigrinya", "Oromo",
	"Somali", "Swahili", "Kinyarwanda", "Rundi", "Nyanja", "Malagasy", "Esperanto", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"Welsh", "Basque", "Catalan", "Latin", "Quechua", "Guarani", "Aymara", "Tatar",
	"Uighur", "Dzongkha", "Javanese", "Sundanese", "Galician", "Afrikaans", "Breton", "Inuktitut",
	"Scottish", "Manx", "Irish", "Tongan", "Greek", "Greenlandic", "Azerbaijani", "Nynorsk",
}

// languageAbbreviations maps language codes to two-letter abbreviations.
var languageAbbreviations = []string{
	"en", "fr", "de", "it", "nl", "sv", "es", "da",
	"pt", "nb", "he", "ja", "ar", "fi", "el", "is",
	"mt", "tr", "hr", "zh", "ur", "hi", "th", "ko",
	"lt", "pl", "hu", "et", "lv", "se", "fo", "fa",
	"ru", "zh", "nl", "ga", "sq", "ro", "cs", "sk",
	"sl", "yi", "sr", "mk", "bg", "uk", "be", "uz",
	"kk", "az", "az", "hy", "ka", "mo", "ky", "tg",
	"tk", "mn", "mn", "ps", "ku", "ks", "sd", "bo",
	"ne", "sa", "mr", "bn", "as", "gu", "pa", "or",
	"ml", "kn", "ta", "te", "si", "my", "km", "lo",
	"vi", "id", "tl", "ms", "ms", "am", "ti", "om",
	"so", "sw", "rw", "rn", "", "mg", "eo", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"", "", "", "", "", "", "", "",
	"cy", "eu", "ca", "la", "qu", "gn", "ay", "tt",
	"ug", "dz", "jv", "su", "gl", "af", "br", "iu",
	"gd", "gv", "ga", "to", "el", "kl", "az", "nn",
}

// Localizations for which the full language name is still in common
// use; a fast path for both directions of the aliasing.
var commonLanguageNames = []string{"English", "French", "German", "Italian", "Dutch", "Spanish", "Japanese"}
var commonLanguageAbbreviations = []string{"en", "fr", "de", "it", "nl", "es", "ja"}

// scriptCodes maps language codes to script-manager script codes.
var scriptCodes = []int32{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 1, 4, 0, 6, 0,
	0, 0, 0, 2, 4, 9, 21, 3, 29, 29, 29, 29, 29, 0, 0, 4,
	7, 25, 0, 0, 0, 0, 29, 29, 0, 5, 7, 7, 7, 7, 7, 7,
	7, 7, 4, 24, 23, 7, 7, 7, 7, 27, 7, 4, 4, 4, 4, 26,
	9, 9, 9, 13, 13, 11, 10, 12, 17, 16, 14, 15, 18, 19, 20, 22,
	30, 0, 0, 0, 4, 28, 28, 28, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 7, 4, 26, 0, 0, 0, 0, 0, 28,
	0, 0, 0, 0, 6, 0, 0, 0,
}

// stringEncodings maps language codes to string-encoding identifiers.
var stringEncodings = []uint32{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 1, 4, 0, 6, 37,
	0, 35, 36, 2, 4, 9, 21, 3, 29, 29, 29, 29, 29, 0, 37, 0x8C,
	7, 25, 0, 39, 0, 38, 29, 29, 36, 5, 7, 7, 7, 0x98, 7, 7,
	7, 7, 4, 24, 23, 7, 7, 7, 7, 27, 7, 4, 4, 4, 4, 26,
	9, 9, 9, 13, 13, 11, 10, 12, 17, 16, 14, 15, 18, 19, 20, 22,
	30, 0, 0, 0, 4, 28, 28, 28, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	39, 0, 0, 0, 0, 0, 0, 7, 4, 26, 0, 0, 0, 0, 39, 0xEC,
	39, 39, 40, 0, 6, 0, 0, 0,
}

var (
	localeMu            sync.RWMutex
	defaultLocalization string
	userLanguageFunc    func() []string
)

// SetDefaultLocalization configures the localization used as the final
// backstop when nothing else applies. Pass "" to restore the built-in
// "en" default.
func SetDefaultLocalization(loc string) {
	localeMu.Lock()
	defer localeMu.Unlock()
	defaultLocalization = loc
}

// DefaultLocalization returns the configured backstop localization.
func DefaultLocalization() string {
	localeMu.RLock()
	defer localeMu.RUnlock()
	if defaultLocalization != "" {
		return defaultLocalization
	}
	return "en"
}

// SetUserLanguagesFunc installs the supplier of the user's ordered
// preferred-language list (the defaults-store seam). Pass nil to
// restore the environment-based default.
func SetUserLanguagesFunc(f func() []string) {
	localeMu.Lock()
	defer localeMu.Unlock()
	userLanguageFunc = f
}

// UserLanguages returns the user's ordered preferred languages.
//
// The default supplier reads BUNDLEKIT_LANGUAGES (comma-separated),
// then the POSIX LANGUAGE list, then LC_ALL or LANG with any encoding
// suffix (".UTF-8") removed.
func UserLanguages() []string {
	localeMu.RLock()
	f := userLanguageFunc
	localeMu.RUnlock()
	if f != nil {
		return f()
	}
	return envUserLanguages()
}

func envUserLanguages() []string {
	if v := os.Getenv("BUNDLEKIT_LANGUAGES"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	if v := os.Getenv("LANGUAGE"); v != "" {
		var out []string
		for _, p := range strings.Split(v, ":") {
			if p != "" && p != "C" && p != "POSIX" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	for _, name := range []string{"LC_ALL", "LANG"} {
		v := os.Getenv(name)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if dot := strings.IndexByte(v, '.'); dot >= 0 {
			v = v[:dot]
		}
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// languageCodeForLocalization resolves a localization identifier to a
// language code: full names first, then the Chinese identifier fixups,
// then the two-letter abbreviation when the third character is not a
// letter.
func languageCodeForLocalization(name string) int32 {
	if len(name) < 2 || len(name) > 255 || !isASCII(name) {
		return -1
	}
	for i, n := range languageNames {
		if n != "" && n == name {
			return int32(i)
		}
	}
	switch name {
	case "zh_TW", "zh-Hant":
		return 19
	case "zh_CN", "zh-Hans":
		return 33
	}
	if len(name) == 2 || !isASCIIAlpha(name[2]) {
		prefix := name[:2]
		if prefix == "no" {
			return 9 // Norwegian
		}
		for i := 0; i < len(languageAbbreviations); i++ {
			if languageAbbreviations[i] == prefix {
				return int32(i)
			}
		}
	}
	return -1
}

// languageAbbreviationForCode returns the table abbreviation, or "".
func languageAbbreviationForCode(code int32) string {
	if code >= 0 && int(code) < len(languageAbbreviations) {
		return languageAbbreviations[code]
	}
	return ""
}

// languageNameForCode returns the table full name, or "".
func languageNameForCode(code int32) string {
	if code >= 0 && int(code) < len(languageNames) {
		return languageNames[code]
	}
	return ""
}

// languageAbbreviationForLocalization reduces any localization
// identifier to its language abbreviation, truncating xx_YY forms when
// the tables have no entry.
func languageAbbreviationForLocalization(name string) string {
	if code := languageCodeForLocalization(name); code >= 0 {
		if abbrev := languageAbbreviationForCode(code); abbrev != "" {
			return abbrev
		}
	}
	if len(name) == 2 || (len(name) > 2 && name[2] == '_') {
		return name[:2]
	}
	return ""
}

// languageNameForLocalization maps a localization to its full language
// name, or returns the input unchanged when the tables have no entry.
func languageNameForLocalization(name string) string {
	if code := languageCodeForLocalization(name); code >= 0 {
		if full := languageNameForCode(code); full != "" {
			return full
		}
	}
	return name
}

// modifiedLocalization swaps the separator variant: en-US <-> en_US.
func modifiedLocalization(name string) string {
	if len(name) >= 4 {
		switch name[2] {
		case '-':
			return name[:2] + "_" + name[3:]
		case '_':
			return name[:2] + "-" + name[3:]
		}
	}
	return ""
}

// languageCodeForRegionCode resolves a region code back to a language
// code via the locale abbreviation table.
func languageCodeForRegionCode(region int32) int32 {
	if region == 52 { // zh_CN
		return 33
	}
	if region < 0 || int(region) >= len(localeAbbreviations) {
		return -1
	}
	abbrev := localeAbbreviations[region]
	if len(abbrev) < 2 {
		return -1
	}
	for i := 0; i < len(languageAbbreviations); i++ {
		if languageAbbreviations[i] != "" && languageAbbreviations[i][:2] == abbrev[:2] {
			return int32(i)
		}
	}
	return -1
}

// regionCodeForLanguageCode resolves a language code to a region code.
func regionCodeForLanguageCode(language int32) int32 {
	result := int32(-1)
	if language == 19 { // zh_TW
		return 53
	}
	if language >= 0 && int(language) < len(languageAbbreviations) {
		abbrev := languageAbbreviations[language]
		if len(abbrev) >= 2 {
			for i, loc := range localeAbbreviations {
				if len(loc) >= 2 && loc[:2] == abbrev[:2] {
					result = int32(i)
					break
				}
			}
		}
	}
	if result == 25 {
		result = 68
	}
	if result == 28 {
		result = 82
	}
	return result
}

// regionCodeForLocalization resolves a localization identifier to a
// region code, falling back through the language tables.
func regionCodeForLocalization(name string) int32 {
	result := int32(-1)
	if len(name) >= 2 && len(name) <= 5 && isASCII(name) {
		for i, loc := range localeAbbreviations {
			if loc != "" && loc == name {
				result = int32(i)
				break
			}
		}
	}
	if result == 25 {
		result = 68
	}
	if result == 28 {
		result = 82
	}
	if result == 37 {
		result = 0
	}
	if result == -1 {
		result = regionCodeForLanguageCode(languageCodeForLocalization(name))
	}
	return result
}

// LocaleAbbreviationForRegionCode maps a region code to its locale
// identifier, or "".
func LocaleAbbreviationForRegionCode(region int32) string {
	if region >= 0 && int(region) < len(localeAbbreviations) {
		return localeAbbreviations[region]
	}
	return ""
}

// LocalizationInfo resolves a localization identifier into language,
// region and script codes plus a string encoding, using the historical
// tables. ok is false when nothing resolved.
func LocalizationInfo(name string) (language, region, script int32, encoding uint32, ok bool) {
	language = languageCodeForLocalization(name)
	region = regionCodeForLocalization(name)
	if (language < 0 || int(language) >= len(scriptCodes)) && region != -1 {
		language = languageCodeForRegionCode(region)
	}
	if region == -1 && language != -1 {
		region = regionCodeForLanguageCode(language)
	}
	if language >= 0 && int(language) < len(scriptCodes) {
		script = scriptCodes[language]
	}
	if language >= 0 && int(language) < len(stringEncodings) {
		encoding = stringEncodings[language]
	}
	return language, region, script, encoding, language != -1 || region != -1
}

// LocalizationForInfo produces a localization identifier from language,
// region, script and encoding codes, preferring the region table.
func LocalizationForInfo(language, region, script int32, encoding uint32) string {
	if loc := LocaleAbbreviationForRegionCode(region); loc != "" {
		return loc
	}
	if abbrev := languageAbbreviationForCode(language); abbrev != "" {
		return abbrev
	}
	var exact, byEncoding, byScript int32 = -1, -1, -1
	for i := range scriptCodes {
		if exact == -1 && scriptCodes[i] == script && stringEncodings[i] == encoding {
			exact = int32(i)
		}
		if byScript == -1 && scriptCodes[i] == script {
			byScript = int32(i)
		}
		if byEncoding == -1 && stringEncodings[i] == encoding {
			byEncoding = int32(i)
		}
	}
	if abbrev := languageAbbreviationForCode(exact); abbrev != "" {
		return abbrev
	}
	if abbrev := languageAbbreviationForCode(byEncoding); abbrev != "" {
		return abbrev
	}
	return languageAbbreviationForCode(byScript)
}

// localizationsHaveCommonPrefix reports whether two identifiers share a
// 3+ character prefix ending at matching separators ('-' and '_' are
// equivalent), which makes them members of one region group.
func localizationsHaveCommonPrefix(loc1, loc2 string) bool {
	if len(loc1) <= 3 || len(loc2) <= 3 {
		return false
	}
	for i := 0; i < len(loc1) && i < len(loc2); i++ {
		c1, c2 := loc1[i], loc2[i]
		if i >= 2 && (c1 == '-' || c1 == '_') && (c2 == '-' || c2 == '_') {
			return true
		}
		if c1 != c2 {
			break
		}
	}
	return false
}

// tryOnePreferredLprojName attempts to match one preferred language
// against the bundle's localization set, appending the winning
// identifiers to lprojNames. The match ladder is: exact, full-name and
// abbreviation aliasing, separator variant, and (when the caller allows
// falling back) language-prefix truncation.
func tryOnePreferredLprojName(localizations []string, cur string, lprojNames *[]string, fallBackToLanguage bool) bool {
	if len(localizations) == 0 {
		return false
	}
	foundOne := false

	if containsString(localizations, cur) {
		appendUnique(lprojNames, cur)
		foundOne = true
		if len(cur) <= 2 {
			return true
		}
	}

	altLangStr := ""
	for i := range commonLanguageAbbreviations {
		if cur == commonLanguageAbbreviations[i] {
			altLangStr = commonLanguageNames[i]
			break
		}
		if cur == commonLanguageNames[i] {
			altLangStr = commonLanguageAbbreviations[i]
			break
		}
	}
	if foundOne && altLangStr != "" {
		return true
	}
	if altLangStr != "" {
		if containsString(localizations, altLangStr) {
			appendUnique(lprojNames, altLangStr)
			return true
		}
		return foundOne
	}

	if modified := modifiedLocalization(cur); modified != "" && containsString(localizations, modified) {
		appendUnique(lprojNames, modified)
		foundOne = true
	}

	if foundOne || fallBackToLanguage {
		if abbrev := languageAbbreviationForLocalization(cur); abbrev != "" && abbrev != cur &&
			containsString(localizations, abbrev) {
			appendUnique(lprojNames, abbrev)
			foundOne = true
		}
	}
	if foundOne || fallBackToLanguage {
		if full := languageNameForLocalization(cur); full != "" && full != cur &&
			containsString(localizations, full) {
			appendUnique(lprojNames, full)
			foundOne = true
		}
	}
	return foundOne
}

// walkPreferredLanguages runs the region-group walk over prefs against
// the localization set, appending matches to lprojNames.
//
// Consecutive entries sharing a 3+ character prefix form a region
// group; within the group, matches must be exact-ish (no language
// truncation). When the group ends without a match, a relaxed pass over
// the group allows truncating to the language abbreviation.
func walkPreferredLanguages(localizations, prefs []string, lprojNames *[]string) bool {
	foundOne := false
	startIdx := -1
	for idx := 0; !foundOne && idx < len(prefs); idx++ {
		cur := prefs[idx]
		var next string
		if idx+1 < len(prefs) {
			next = prefs[idx+1]
		}
		switch {
		case next != "" && localizationsHaveCommonPrefix(cur, next):
			foundOne = tryOnePreferredLprojName(localizations, cur, lprojNames, false)
			if startIdx < 0 {
				startIdx = idx
			}
		case startIdx >= 0 && startIdx <= idx:
			foundOne = tryOnePreferredLprojName(localizations, cur, lprojNames, false)
			for ; !foundOne && startIdx <= idx; startIdx++ {
				foundOne = tryOnePreferredLprojName(localizations, prefs[startIdx], lprojNames, true)
			}
			startIdx = -1
		default:
			foundOne = tryOnePreferredLprojName(localizations, cur, lprojNames, true)
			startIdx = -1
		}
	}
	return foundOne
}

// PreferredLocalizations orders the given localization set by the
// user's preferences (or the supplied prefs when non-nil), mirroring
// the search-list construction without a bundle.
func PreferredLocalizations(localizations, prefs []string) []string {
	var lprojNames []string
	if prefs == nil {
		prefs = UserLanguages()
	}
	foundOne := walkPreferredLanguages(localizations, prefs, &lprojNames)
	if !foundOne {
		foundOne = tryOnePreferredLprojName(localizations, "en_US", &lprojNames, true)
	}
	if !foundOne && len(localizations) > 0 {
		tryOnePreferredLprojName(localizations, localizations[0], &lprojNames, true)
	}
	if len(lprojNames) == 0 {
		lprojNames = append(lprojNames, DefaultLocalization())
	}
	return lprojNames
}

// localizationsForDirectory lists the <name>.lproj children of a
// resources directory.
func localizationsForDirectory(resourcesPath string) []string {
	entries, err := os.ReadDir(resourcesPath)
	if err != nil {
		return nil
	}
	var locs []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, lprojSuffix) {
			continue
		}
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		locs = append(locs, strings.TrimSuffix(name, lprojSuffix))
	}
	return locs
}

// LocalizationsForDirectory returns the localizations a bundle rooted
// at root provides: the info dictionary's predefined list joined with
// the .lproj scan, with the development region as the fallback.
func LocalizationsForDirectory(root string) []string {
	layout, err := DetectLayout(root)
	if err != nil {
		return nil
	}
	info := loadInfoDictionary(root, layout)
	predefined := info.getStringSlice(InfoKeyLocalizations)
	scanned := localizationsForDirectory(filepath.Join(root, layout.resourcesDir()))

	locs := append([]string(nil), predefined...)
	for _, l := range scanned {
		if !containsString(locs, l) {
			locs = append(locs, l)
		}
	}
	if len(locs) == 0 {
		if dev := info.getString(InfoKeyDevelopmentRegion); dev != "" {
			locs = append(locs, dev)
		}
	}
	return locs
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func appendUnique(s *[]string, v string) {
	if !containsString(*s, v) {
		*s = append(*s, v)
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isASCIIAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
