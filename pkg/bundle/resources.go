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
)

// Pseudo-key markers. The NUL prefix keeps them out of the file-name
// namespace.
const (
	typeKeyPrefix = "\x00type."
	allFilesKey   = "\x00allfiles"
)

// fileVersion ranks the product/platform specificity of a file name.
type fileVersion int

const (
	versionNoProductNoPlatform fileVersion = iota + 1
	versionWithProductNoPlatform
	versionNoProductWithPlatform
	versionWithProductWithPlatform
	versionUnmatched
)

// expectedSuffixes returns the "~product" and "-platform" suffixes the
// query tables match against. The ipod product queries as iphone.
func expectedSuffixes() (product, platform string) {
	p := CurrentProduct()
	if p == ProductIPod {
		p = ProductIPhone
	}
	return "~" + p, "-" + CurrentPlatform()
}

// containsSupportedProduct reports whether s carries any recognized
// product suffix token.
func containsSupportedProduct(s string) bool {
	for _, p := range knownProducts {
		if strings.Contains(s, "~"+p) {
			return true
		}
	}
	return false
}

// containsSupportedPlatform reports whether s carries any recognized
// platform suffix token.
func containsSupportedPlatform(s string) bool {
	for _, p := range knownPlatforms {
		if strings.Contains(s, "-"+p) {
			return true
		}
	}
	return false
}

// versionForFileName classifies fileName against the expected product
// and platform suffixes, returning the matched ranges for deletion.
// The platform always precedes the product: name-platform~product.ext.
func versionForFileName(fileName, product, platform string) (ver fileVersion, productStart, productLen, platformStart, platformLen int) {
	foundProduct, foundPlatform := false, false
	dotLocation := len(fileName)

	for i := len(fileName) - 1; i > 0; i-- {
		c := fileName[i]
		switch {
		case c == '.':
			dotLocation = i
		case c == '~' && !foundProduct:
			pr := fileName[i:dotLocation]
			if len(product) > 1 && pr == product {
				foundProduct = true
				productStart, productLen = i, dotLocation-i
			}
		case c == '-':
			end := dotLocation
			if foundProduct {
				end = productStart
			}
			pl := fileName[i:end]
			if pl == platform {
				foundPlatform = true
				platformStart, platformLen = i, end-i
			}
			i = 0 // the platform is the leftmost suffix; stop
		}
		if i == 0 {
			break
		}
	}

	switch {
	case foundPlatform && foundProduct:
		ver = versionWithProductWithPlatform
	case foundPlatform:
		ver = versionNoProductWithPlatform
	case foundProduct:
		ver = versionWithProductNoPlatform
	default:
		ver = versionNoProductNoPlatform
	}
	return ver, productStart, productLen, platformStart, platformLen
}

// checkFileProductAndPlatform ranks an already-recorded path: a path
// carrying some other recognized product or platform suffix is
// unmatched on this host.
func checkFileProductAndPlatform(s, product, platform string) fileVersion {
	foundProd, foundPlat, wrong := false, false, false

	if strings.Contains(s, "~") {
		if len(product) > 1 && strings.Contains(s, product) {
			foundProd = true
		}
		if !foundProd {
			wrong = containsSupportedProduct(s)
		}
	}
	if !wrong && strings.Contains(s, "-") {
		if strings.Contains(s, platform) {
			foundPlat = true
		}
		if !foundPlat {
			wrong = containsSupportedPlatform(s)
		}
	}

	switch {
	case wrong:
		return versionUnmatched
	case foundPlat && foundProd:
		return versionWithProductWithPlatform
	case foundPlat:
		return versionNoProductWithPlatform
	case foundProd:
		return versionWithProductNoPlatform
	default:
		return versionNoProductNoPlatform
	}
}

// splitFileName derives the lookup keys for one file: the name with
// product and platform suffixes stripped, the type after the last dot,
// and the type after the first dot.
func splitFileName(fileName, product, platform string) (noProductOrPlatform, endType, startType string, ver fileVersion) {
	lastDot := strings.LastIndexByte(fileName, '.')
	if lastDot > 0 && lastDot != len(fileName)-1 {
		endType = fileName[lastDot+1:]
	}
	if firstDot := strings.IndexByte(fileName, '.'); firstDot >= 0 && firstDot != lastDot && firstDot != len(fileName)-1 {
		startType = fileName[firstDot+1:]
	}

	ver, ps, pl, fs, fl := versionForFileName(fileName, product, platform)
	foundPlatform := ver == versionNoProductWithPlatform || ver == versionWithProductWithPlatform
	foundProduct := ver == versionWithProductNoPlatform || ver == versionWithProductWithPlatform
	if foundPlatform || foundProduct {
		start, length := ps, pl
		if foundPlatform {
			start = fs
			length = fl
			if foundProduct {
				length += pl
			}
		}
		noProductOrPlatform = fileName[:start] + fileName[start+length:]
	}
	return noProductOrPlatform, endType, startType, ver
}

// queryTableBuilder accumulates one (resources-dir, subdir) table
// across the ordered directory scans. Type buckets and the all-files
// list accumulate across every scan, so array queries come back in
// scan order: non-localized, preferred, Base, remaining.
type queryTableBuilder struct {
	queryTable map[string]interface{}
	typeDir    map[string][]string
	allFiles   []string
	product    string // "~iphone" form
	platform   string // "-macos" form
}

func newQueryTableBuilder() *queryTableBuilder {
	product, platform := expectedSuffixes()
	return &queryTableBuilder{
		queryTable: make(map[string]interface{}),
		typeDir:    make(map[string][]string),
		product:    product,
		platform:   platform,
	}
}

// addValueForType appends a path to a type bucket.
func (qb *queryTableBuilder) addValueForType(t, value string) {
	qb.typeDir[t] = append(qb.typeDir[t], value)
}

// readDirectory scans one directory into the table. lprojName is the
// bare localization name ("fr") when scanning inside an .lproj;
// pathPrefix is the recorded path prefix for entries of this scan.
func (qb *queryTableBuilder) readDirectory(dirPath, subdirectory, lprojName string) {
	var pathPrefix string
	if lprojName != "" {
		pathPrefix = lprojName + lprojSuffix + "/"
	}
	if subdirectory != "" {
		pathPrefix += strings.TrimSuffix(subdirectory, "/") + "/"
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return
	}

	for _, entry := range entries {
		fileName := entry.Name()
		noPP, endType, startType, ver := splitFileName(fileName, qb.product, qb.platform)

		pathToFile := pathPrefix + fileName
		isDir := entry.IsDir()
		if !isDir && entry.Type()&os.ModeSymlink != 0 {
			if st, err := os.Stat(filepath.Join(dirPath, fileName)); err == nil {
				isDir = st.IsDir()
			}
		}
		if isDir {
			// A trailing slash marks directories so absolute URLs can
			// be formed with the right flavor later.
			pathToFile += "/"
		}

		qb.allFiles = append(qb.allFiles, pathToFile)
		if startType != "" {
			qb.addValueForType(startType, pathToFile)
		}
		if endType != "" {
			qb.addValueForType(endType, pathToFile)
		}

		// The full file name is always reachable as a key.
		if _, exists := qb.queryTable[fileName]; !exists {
			qb.queryTable[fileName] = pathToFile
		}
		if ver == versionNoProductNoPlatform || ver == versionUnmatched || noPP == "" {
			continue
		}

		// The suffix-stripped name maps to the most specific variant;
		// replacement only happens when the recorded path comes from
		// the localization being scanned.
		prev, exists := qb.queryTable[noPP]
		if !exists {
			qb.queryTable[noPP] = pathToFile
			continue
		}
		prevPath, ok := prev.(string)
		if !ok {
			continue
		}
		if lprojName != "" && !strings.HasPrefix(prevPath, lprojName) {
			continue
		}
		sub := prevPath
		if lprojName != "" {
			sub = prevPath[len(lprojName):]
		}
		switch checkFileProductAndPlatform(sub, qb.product, qb.platform) {
		case versionNoProductNoPlatform, versionNoProductWithPlatform:
			qb.queryTable[noPP] = pathToFile
		case versionWithProductNoPlatform:
			if ver == versionWithProductWithPlatform {
				qb.queryTable[noPP] = pathToFile
			}
		}
	}
}

// createQueryTable performs the ordered scans for one (bundle,
// resources-directory, subdirectory) triple: the non-localized
// directory, the highest-priority preferred localization, Base.lproj,
// then the remaining preferred localizations.
func createQueryTable(b *Bundle, bundlePath string, languages []string, resourcesDirectory, subdirectory string) map[string]interface{} {
	metricQueryTableBuilds.Inc()
	qb := newQueryTableBuilder()
	base := filepath.Join(bundlePath, resourcesDirectory)

	qb.readDirectory(filepath.Join(base, subdirectory), subdirectory, "")

	if b != nil && languages == nil {
		languages = b.LanguageSearchList()
	}

	if len(languages) >= 1 && languages[0] != baseLprojName {
		lproj := languages[0]
		qb.readDirectory(filepath.Join(base, lproj+lprojSuffix, subdirectory), subdirectory, lproj)
	}

	qb.readDirectory(filepath.Join(base, baseLprojName+lprojSuffix, subdirectory), subdirectory, baseLprojName)

	for i := 1; i < len(languages); i++ {
		lproj := languages[i]
		if lproj == baseLprojName {
			continue
		}
		qb.readDirectory(filepath.Join(base, lproj+lprojSuffix, subdirectory), subdirectory, lproj)
	}

	table := qb.queryTable
	for t, files := range qb.typeDir {
		table[typeKeyPrefix+t] = files
	}
	if len(qb.allFiles) > 0 {
		table[allFilesKey] = qb.allFiles
	}
	return table
}

// copyQueryTable returns the cached table for the triple, building it
// on first use. The cache lives under the bundle's per-bundle lock and
// is published atomically; a racing builder discards its copy.
func copyQueryTable(b *Bundle, bundlePath string, languages []string, resourcesDirectory, subdirectory string) map[string]interface{} {
	if b == nil {
		return createQueryTable(nil, bundlePath, languages, resourcesDirectory, subdirectory)
	}
	cacheKey := resourcesDirectory
	if subdirectory != "" {
		cacheKey = filepath.Join(resourcesDirectory, subdirectory)
	}

	b.mu.Lock()
	if b.queryTables != nil {
		if table, ok := b.queryTables[cacheKey]; ok {
			b.mu.Unlock()
			metricQueryCacheHits.Inc()
			return table
		}
	}
	b.mu.Unlock()

	// Built outside the lock: the scan may be slow and the language
	// search list may itself take the bundle lock.
	table := createQueryTable(b, bundlePath, languages, resourcesDirectory, subdirectory)

	b.mu.Lock()
	if b.queryTables == nil {
		b.queryTables = make(map[string]map[string]interface{})
	}
	if winner, ok := b.queryTables[cacheKey]; ok {
		table = winner
	} else {
		b.queryTables[cacheKey] = table
	}
	b.mu.Unlock()
	return table
}

// copyPathsForKey answers one key lookup: consult the layout-1
// non-localized table first, then the main table, filter or augment by
// an explicitly requested localization, and produce absolute paths.
func copyPathsForKey(b *Bundle, bundlePath string, languages []string, resourcesDirectory, subDir, key, lproj string, returnArray, localized bool, layout Layout) []string {
	var interResult []string
	var value interface{}

	if layout == LayoutSupportFiles {
		nlDir := filepath.Join(resourcesDirectory, nonLocalizedDirName)
		subTable := copyQueryTable(b, bundlePath, languages, nlDir, subDir)
		value = subTable[key]
	}
	if value == nil {
		subTable := copyQueryTable(b, bundlePath, languages, resourcesDirectory, subDir)
		value = subTable[key]
	}

	checkLP := true
	if localized && value != nil {
		candidates := valueAsPaths(value)
		limit := 1
		if returnArray {
			limit = len(candidates)
		}
		for i := 0; i < limit && i < len(candidates); i++ {
			pathValue := candidates[i]

			// Decide whether this entry lives inside an .lproj and so
			// must agree with the requested localization.
			searchForLocalization := false
			if subDir != "" {
				if idx := strings.Index(pathValue, subDir); idx > 0 {
					searchForLocalization = true
				}
			} else if pathValue != "" {
				if idx := strings.Index(pathValue, lprojSuffix+"/"); idx >= 0 && idx+len(lprojSuffix)+1 < len(pathValue) {
					searchForLocalization = true
				}
			}

			if searchForLocalization {
				if lproj == "" || !(strings.HasPrefix(pathValue, lproj) && len(pathValue) > len(lproj) && pathValue[len(lproj)] == '.') {
					break
				}
				checkLP = false
			}
			interResult = append(interResult, pathValue)
		}
		if !returnArray && len(interResult) != 0 {
			checkLP = false
		}
	} else if value != nil {
		interResult = append(interResult, valueAsPaths(value)...)
	}

	// Join with the requested localization's own table when the main
	// lookup did not already produce a match for it.
	if lproj != "" && checkLP {
		lprojSubdir := lproj + lprojSuffix
		if subDir != "" {
			lprojSubdir = filepath.Join(lprojSubdir, subDir)
		}
		subTable := copyQueryTable(b, bundlePath, languages, resourcesDirectory, lprojSubdir)
		if v := subTable[key]; v != nil {
			// Recorded paths already carry the lproj subdirectory prefix.
			interResult = append(interResult, valueAsPaths(v)...)
		}
	}

	if len(interResult) == 0 {
		return nil
	}
	base := filepath.Join(bundlePath, resourcesDirectory)
	if !returnArray {
		return []string{joinResourcePath(base, interResult[0])}
	}
	out := make([]string, 0, len(interResult))
	for _, p := range interResult {
		out = append(out, joinResourcePath(base, p))
	}
	return out
}

// joinResourcePath forms an absolute path, preserving the trailing
// slash that marks directories.
func joinResourcePath(base, rel string) string {
	isDir := strings.HasSuffix(rel, "/")
	p := filepath.Join(base, rel)
	if isDir {
		p += "/"
	}
	return p
}

func valueAsPaths(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

// findResources is the main entry point for resource lookup: it builds
// the composite key, runs the table query, and applies the bundle-root
// fallback for layouts whose resources directory may be empty.
func findResources(b *Bundle, bundlePath string, languages []string, resourceName, resourceType, subPath, lproj string, returnArray, localized bool) []string {
	metricResourceQueries.Inc()

	// Path components smuggled into the resource name become the
	// subdirectory.
	realName := resourceName
	subPathFromName := ""
	if idx := strings.LastIndexByte(resourceName, '/'); idx > 0 {
		realName = resourceName[idx+1:]
		subPathFromName = resourceName[:idx]
	}

	var key string
	switch {
	case realName != "" && resourceType != "":
		if strings.HasPrefix(resourceType, ".") {
			key = realName + resourceType
		} else {
			key = realName + "." + resourceType
		}
	case realName != "":
		key = realName
	case resourceType != "":
		t := strings.TrimPrefix(resourceType, ".")
		key = typeKeyPrefix + t
	default:
		key = allFilesKey
	}

	subDir := subPath
	if subDir == "" && subPathFromName != "" {
		subDir = subPathFromName
	}

	var layout Layout
	if b != nil {
		layout = b.layout
	} else {
		layout, _ = DetectLayout(bundlePath)
		if languages == nil {
			languages = searchListForDirectory(bundlePath, layout)
		}
	}

	resDir := layout.resourcesDir()
	result := copyPathsForKey(b, bundlePath, languages, resDir, subDir, key, lproj, returnArray, localized, layout)

	// Old-style and contents-style bundles may keep assets at the
	// bundle root; rerun there with an adjusted subdirectory.
	if len(result) == 0 && (layout == LayoutOldStyle || layout == LayoutContents) {
		adjusted := subDir
		switch {
		case layout == LayoutOldStyle && subDir == resourcesDirName,
			layout == LayoutContents && subDir == filepath.Join(contentsDirName, resourcesDirName):
			adjusted = ""
		case layout == LayoutOldStyle && strings.HasPrefix(subDir, resourcesDirName+"/"):
			adjusted = subDir[len(resourcesDirName)+1:]
		case layout == LayoutContents && strings.HasPrefix(subDir, filepath.Join(contentsDirName, resourcesDirName)+"/"):
			adjusted = subDir[len(contentsDirName)+len(resourcesDirName)+2:]
		default:
			resDir = ""
		}
		result = copyPathsForKey(b, bundlePath, languages, resDir, adjusted, key, lproj, returnArray, localized, layout)
	}
	return result
}

// searchListForDirectory computes a language search list for a bundle
// directory that has no registered Bundle object.
func searchListForDirectory(bundlePath string, layout Layout) []string {
	info := loadInfoDictionary(bundlePath, layout)
	devLang := info.getString(InfoKeyDevelopmentRegion)
	localizations := LocalizationsForDirectory(bundlePath)

	var langs []string
	found := walkPreferredLanguages(localizations, UserLanguages(), &langs)
	if !found && devLang != "" {
		found = tryOnePreferredLprojName(localizations, devLang, &langs, true)
	}
	if !found {
		tryOnePreferredLprojName(localizations, "en_US", &langs, true)
	}
	if devLang != "" {
		appendUnique(&langs, devLang)
	}
	if len(langs) == 0 {
		langs = append(langs, DefaultLocalization())
	}
	return langs
}

// ResourceURL resolves a single resource by name and type under an
// optional subdirectory, honoring the bundle's language search list.
// The empty string means not found.
func (b *Bundle) ResourceURL(name, resourceType, subDir string) string {
	paths := findResources(b, b.path, nil, name, resourceType, subDir, "", false, false)
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// ResourceURLs returns all resources of a type under an optional
// subdirectory, in scan order.
func (b *Bundle) ResourceURLs(resourceType, subDir string) []string {
	return findResources(b, b.path, nil, "", resourceType, subDir, "", true, false)
}

// AllResourceURLs lists every file the query table knows under the
// subdirectory, in scan order.
func (b *Bundle) AllResourceURLs(subDir string) []string {
	return findResources(b, b.path, nil, "", "", subDir, "", true, false)
}

// ResourceURLForLocalization resolves a resource within one specific
// localization instead of the search list.
func (b *Bundle) ResourceURLForLocalization(name, resourceType, subDir, localization string) string {
	paths := findResources(b, b.path, nil, name, resourceType, subDir, localization, false, true)
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// ResourceURLsForLocalization returns all resources of a type within
// one specific localization.
func (b *Bundle) ResourceURLsForLocalization(resourceType, subDir, localization string) []string {
	return findResources(b, b.path, nil, "", resourceType, subDir, localization, true, true)
}

// ResourceURLInDirectory answers a one-shot query against a bundle
// directory without registering a Bundle object (no caching).
func ResourceURLInDirectory(bundlePath, name, resourceType, subDir string) string {
	abs, err := filepath.Abs(bundlePath)
	if err != nil {
		return ""
	}
	paths := findResources(nil, abs, nil, name, resourceType, subDir, "", false, false)
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// ResourceURLsOfTypeInDirectory is the array variant of
// ResourceURLInDirectory.
func ResourceURLsOfTypeInDirectory(bundlePath, resourceType, subDir string) []string {
	abs, err := filepath.Abs(bundlePath)
	if err != nil {
		return nil
	}
	return findResources(nil, abs, nil, "", resourceType, subDir, "", true, false)
}
