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
	"strings"

	"howett.net/plist"
)

// InfoDict is a parsed info dictionary: string keys to property-list
// values (strings, numbers, booleans, dates, data, arrays, maps).
type InfoDict map[string]interface{}

// Well-known info dictionary keys. The on-disk format is the CFBundle
// property list, so the key strings are the CFBundle ones.
const (
	InfoKeyExecutable              = "CFBundleExecutable"
	InfoKeyIdentifier              = "CFBundleIdentifier"
	InfoKeyVersion                 = "CFBundleVersion"
	InfoKeyNumericVersion          = "CFBundleNumericVersion"
	InfoKeyDevelopmentRegion       = "CFBundleDevelopmentRegion"
	InfoKeySupportedPlatforms      = "CFBundleSupportedPlatforms"
	InfoKeyLocalizations           = "CFBundleLocalizations"
	InfoKeyAllowMixedLocalizations = "CFBundleAllowMixedLocalizations"
	InfoKeyPackageType             = "CFBundlePackageType"
	InfoKeySignature               = "CFBundleSignature"
	InfoKeyIconFile                = "CFBundleIconFile"
	InfoKeyDocumentTypes           = "CFBundleDocumentTypes"
	InfoKeyURLTypes                = "CFBundleURLTypes"
	InfoKeyPrincipalClass          = "NSPrincipalClass"
	InfoKeyExecutablePath          = "CFBundleExecutablePath"

	// Plug-in registration keys.
	InfoKeyPlugInFactories               = "CFPlugInFactories"
	InfoKeyPlugInTypes                   = "CFPlugInTypes"
	InfoKeyPlugInDynamicRegistration     = "CFPlugInDynamicRegistration"
	InfoKeyPlugInDynamicRegisterFunction = "CFPlugInDynamicRegisterFunction"
	InfoKeyPlugInUnloadFunction          = "CFPlugInUnloadFunction"

	// infoKeySourceURL remembers the plist path when parsing failed and
	// an empty dictionary was stored instead.
	infoKeySourceURL = "CFBundleInfoPlistURL"
)

// overrideBlacklist lists base keys that never participate in
// platform/product override collapse.
var overrideBlacklist = []string{InfoKeyExecutable, InfoKeyIdentifier}

// loadInfoDictionary reads and post-processes the info dictionary for a
// bundle rooted at root with the given layout.
//
// The platform-suffixed variant (Info-<platform>.plist) is preferred
// over Info.plist; candidates are located by a single case-insensitive
// directory scan. A parse failure stores an empty dictionary that
// remembers the source path under a sentinel key.
func loadInfoDictionary(root string, layout Layout) InfoDict {
	dir := filepath.Join(root, layout.infoPlistDir())

	platformName := "info-" + CurrentPlatform() + ".plist"
	var platformPath, plainPath string
	if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			lower := strings.ToLower(entry.Name())
			switch lower {
			case platformName:
				platformPath = filepath.Join(dir, entry.Name())
			case "info.plist":
				plainPath = filepath.Join(dir, entry.Name())
			}
		}
	}

	path := platformPath
	if path == "" {
		path = plainPath
	}
	if path == "" {
		return nil
	}

	dict, err := parseInfoPlist(path)
	if err != nil {
		// Remember where the broken plist lives; the dictionary itself
		// is served empty.
		return InfoDict{infoKeySourceURL: path}
	}

	ProcessInfoDictionary(dict)
	stampNumericVersion(dict)
	return dict
}

// parseInfoPlist parses one property-list file, requiring a dictionary
// at the root.
func parseInfoPlist(path string) (InfoDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read info plist: %w", err)
	}
	var dict map[string]interface{}
	if _, err := plist.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("parse info plist: %w", err)
	}
	return dict, nil
}

// parseOverrideKey splits a key of the form base[-platform][~product],
// requiring recognized platform and product tokens and the minus to
// precede the tilde. ok is false for ordinary keys.
func parseOverrideKey(key string) (base, platform, product string, ok bool) {
	minusIdx := strings.LastIndex(key, "-")
	tildeIdx := strings.LastIndex(key, "~")
	if minusIdx < 0 && tildeIdx < 0 {
		return "", "", "", false
	}
	if minusIdx >= 0 && tildeIdx >= 0 && tildeIdx <= minusIdx {
		return "", "", "", false
	}

	if minusIdx >= 0 {
		base = key[:minusIdx]
		if tildeIdx >= 0 {
			platform = key[minusIdx+1 : tildeIdx]
		} else {
			platform = key[minusIdx+1:]
		}
	} else {
		base = key[:tildeIdx]
	}
	if tildeIdx >= 0 {
		product = key[tildeIdx+1:]
	}

	if base == "" {
		return "", "", "", false
	}
	if minusIdx >= 0 && platform == "" {
		return "", "", "", false
	}
	if tildeIdx >= 0 && product == "" {
		return "", "", "", false
	}

	// Both tokens must be recognized for the key to count as an
	// override at all; "x-y~z" with unknown tokens is an ordinary key.
	if platform != "" && !isKnownPlatform(platform) {
		return "", "", "", false
	}
	if product != "" && !isKnownProduct(product) {
		return "", "", "", false
	}
	if platform != "" && product != "" {
		if !isValidPlatformProductPair(platform, product) {
			return "", "", "", false
		}
	}
	return base, platform, product, true
}

// isValidPlatformProductPair accepts any pair of recognized platform
// and product tokens; no platform is barred from carrying a product
// suffix.
func isValidPlatformProductPair(platform, product string) bool {
	return isKnownPlatform(platform) && isKnownProduct(product)
}

// matchesCurrentPlatformAndProduct reports whether the override suffix
// pair applies on this host. An absent token always matches.
func matchesCurrentPlatformAndProduct(platform, product string) bool {
	if platform == "" && product == "" {
		return true
	}
	if platform == "" {
		return CurrentProduct() == product
	}
	if product == "" {
		return CurrentPlatform() == platform
	}
	return CurrentPlatform() == platform && CurrentProduct() == product
}

func isBlacklistedOverrideKey(base string) bool {
	for _, k := range overrideBlacklist {
		if base == k {
			return true
		}
	}
	return false
}

// sortedOverridesForBaseKey lists the override keys present in dict for
// base, most specific first: both suffixes, product only, platform
// only, then the base key itself.
func sortedOverridesForBaseKey(base string, dict InfoDict) []string {
	candidates := []string{
		base + "-" + CurrentPlatform() + "~" + CurrentProduct(),
		base + "~" + CurrentProduct(),
		base + "-" + CurrentPlatform(),
		base,
	}
	present := make([]string, 0, 4)
	for _, c := range candidates {
		if _, ok := dict[c]; ok {
			present = append(present, c)
		}
	}
	return present
}

// ProcessInfoDictionary collapses platform/product override keys in
// place. After it returns, no key of the form base-platform~product
// remains: the most specific matching variant has replaced the base
// value, and every variant key has been removed.
func ProcessInfoDictionary(dict InfoDict) {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}

	for _, key := range keys {
		base, platform, product, ok := parseOverrideKey(key)
		if !ok {
			continue
		}
		if _, stillThere := dict[key]; !stillThere {
			continue
		}
		if matchesCurrentPlatformAndProduct(platform, product) && !isBlacklistedOverrideKey(base) {
			overrides := sortedOverridesForBaseKey(base, dict)
			if len(overrides) > 0 {
				dict[base] = dict[overrides[0]]
				for _, o := range overrides {
					if o != base {
						delete(dict, o)
					}
				}
			}
		} else {
			delete(dict, key)
		}
	}
}

// stampNumericVersion parses a string version value and stores the
// packed number alongside the raw value.
func stampNumericVersion(dict InfoDict) {
	raw, ok := dict[InfoKeyVersion]
	if !ok {
		return
	}
	if s, isString := raw.(string); isString {
		dict[InfoKeyNumericVersion] = VersionNumberFromString(s)
	}
}

// GetString returns the string value at key, or "" when absent or of
// another type.
func (d InfoDict) GetString(key string) string { return d.getString(key) }

// GetBool interprets booleans and the historical "YES"/"NO" strings.
func (d InfoDict) GetBool(key string) bool { return d.getBool(key) }

// GetStringSlice coerces an array value into its string members.
func (d InfoDict) GetStringSlice(key string) []string { return d.getStringSlice(key) }

// getString returns the string value at key, or "" when absent or of
// another type.
func (d InfoDict) getString(key string) string {
	if d == nil {
		return ""
	}
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// getBool interprets booleans and the historical "YES"/"NO" strings.
func (d InfoDict) getBool(key string) bool {
	if d == nil {
		return false
	}
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "YES") || strings.EqualFold(v, "true")
	default:
		return false
	}
}

// getStringSlice coerces an array value into its string members.
func (d InfoDict) getStringSlice(key string) []string {
	if d == nil {
		return nil
	}
	arr, ok := d[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// numericVersion extracts the packed version, computing it from the raw
// string when the numeric key is absent.
func (d InfoDict) numericVersion() uint32 {
	if d == nil {
		return 0
	}
	switch v := d[InfoKeyNumericVersion].(type) {
	case uint32:
		return v
	case uint64:
		return uint32(v)
	case int64:
		return uint32(v)
	case int:
		return uint32(v)
	case float64:
		return uint32(v)
	}
	if s, ok := d[InfoKeyVersion].(string); ok {
		return VersionNumberFromString(s)
	}
	return 0
}

// readPkgInfo reads the 8-byte PkgInfo file: a four-byte package type
// followed by a four-byte creator code, both big-endian.
func readPkgInfo(root string, layout Layout) (pkgType, creator string, ok bool) {
	var path string
	switch layout {
	case LayoutSupportFiles:
		path = filepath.Join(root, supportFilesDirName, pkgInfoName)
	case LayoutContents:
		path = filepath.Join(root, contentsDirName, pkgInfoName)
	default:
		path = filepath.Join(root, pkgInfoName)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) < 8 {
		return "", "", false
	}
	return string(data[0:4]), string(data[4:8]), true
}
