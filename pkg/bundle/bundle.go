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

// Package bundle treats a structured directory tree (or an executable
// with embedded metadata) as a logical unit of code, metadata and
// localized resources, and loads, inspects and instantiates plug-in
// components from such units.
package bundle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/bundlekit/pkg/binmagic"
	"github.com/kraklabs/bundlekit/pkg/loader"
	"github.com/kraklabs/bundlekit/pkg/plugin"
)

// Bundle is a ref-counted handle onto one bundle directory. At most one
// Bundle exists per canonical path; New returns the existing instance
// retained when called twice for the same location.
type Bundle struct {
	path       string // canonical absolute path
	layout     Layout
	modTime    time.Time
	logger     *slog.Logger
	binaryType binmagic.BinaryType

	refMu sync.Mutex
	refs  int

	// mu is the per-bundle lock: info caches, local info, search
	// languages, string tables and the query-table cache.
	mu              sync.Mutex
	info            InfoDict
	localInfo       InfoDict
	searchLanguages []string
	stringTables    map[string]map[string]string
	queryTables     map[string]map[string]interface{}

	// loadMu is the per-bundle load lock: the loaded flag and the
	// loader back-end cookie.
	loadMu   sync.Mutex
	isLoaded bool
	handle   loader.Handle
	backend  loader.Backend

	plugIn *plugin.PlugIn
}

// registry holds the process-global bundle tables. All traversals take
// reg.mu; lock order is registry -> per-bundle -> load.
var reg = struct {
	mu              sync.Mutex
	byPath          map[string]*Bundle
	byIdentifier    map[string][]*Bundle
	scheduledUnload map[*Bundle]struct{}
	draining        bool
	mainBundle      *Bundle
	mainResolved    bool
}{
	byPath:          make(map[string]*Bundle),
	byIdentifier:    make(map[string][]*Bundle),
	scheduledUnload: make(map[*Bundle]struct{}),
}

// New creates (or retains) the bundle at path. The path must refer to a
// directory; its layout version is detected, the info dictionary is
// loaded and fixed up, and the bundle is registered in the global
// tables. Callers own one reference and release it with Release.
func New(path string) (*Bundle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("canonicalize bundle path: %w", err)
	}
	abs = filepath.Clean(abs)

	reg.mu.Lock()
	if existing, ok := reg.byPath[abs]; ok {
		existing.retain()
		reg.mu.Unlock()
		return existing, nil
	}
	reg.mu.Unlock()

	// Filesystem work happens outside the registry lock; a racing
	// creator is resolved below by re-checking the table.
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat bundle: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("not a bundle directory: %s", abs)
	}
	layout, err := DetectLayout(abs)
	if err != nil {
		return nil, fmt.Errorf("detect bundle layout: %w", err)
	}

	b := &Bundle{
		path:    abs,
		layout:  layout,
		modTime: st.ModTime(),
		logger:  slog.Default(),
		refs:    1,
	}
	b.info = loadInfoDictionary(abs, layout)

	reg.mu.Lock()
	if existing, ok := reg.byPath[abs]; ok {
		existing.retain()
		reg.mu.Unlock()
		return existing, nil
	}
	reg.byPath[abs] = b
	b.addToIdentifierTableLocked()
	metricBundlesLive.Inc()
	reg.mu.Unlock()

	b.initPlugInRecord()
	return b, nil
}

// addToIdentifierTableLocked inserts b into the identifier index in
// descending-version order; ties prefer the later insert. Caller holds
// reg.mu.
func (b *Bundle) addToIdentifierTableLocked() {
	id := b.info.getString(InfoKeyIdentifier)
	if id == "" {
		return
	}
	bundles := reg.byIdentifier[id]
	version := b.info.numericVersion()
	idx := sort.Search(len(bundles), func(i int) bool {
		return bundles[i].info.numericVersion() <= version
	})
	bundles = append(bundles, nil)
	copy(bundles[idx+1:], bundles[idx:])
	bundles[idx] = b
	reg.byIdentifier[id] = bundles
}

// removeFromTablesLocked drops b from all global tables. Caller holds
// reg.mu.
func (b *Bundle) removeFromTablesLocked() {
	if reg.byPath[b.path] == b {
		delete(reg.byPath, b.path)
		metricBundlesLive.Dec()
	}
	delete(reg.scheduledUnload, b)
	id := b.info.getString(InfoKeyIdentifier)
	if id == "" {
		return
	}
	bundles := reg.byIdentifier[id]
	for i, other := range bundles {
		if other == b {
			reg.byIdentifier[id] = append(bundles[:i], bundles[i+1:]...)
			break
		}
	}
	if len(reg.byIdentifier[id]) == 0 {
		delete(reg.byIdentifier, id)
	}
}

// initPlugInRecord attaches the plug-in sub-record when the info
// dictionary declares factories or dynamic registration.
func (b *Bundle) initPlugInRecord() {
	factories, _ := b.info[InfoKeyPlugInFactories].(map[string]interface{})
	dynamic := b.info.getBool(InfoKeyPlugInDynamicRegistration)
	if len(factories) == 0 && !dynamic {
		return
	}

	b.plugIn = plugin.NewPlugIn(b, !dynamic)

	// Static registrations from the info dictionary.
	for idStr, funcVal := range factories {
		funcName, _ := funcVal.(string)
		if err := b.plugIn.RegisterFactoryByName(idStr, funcName); err != nil {
			b.logger.Warn("skipping plug-in factory", "bundle", b.path, "factory", idStr, "error", err)
		}
	}
	if types, ok := b.info[InfoKeyPlugInTypes].(map[string]interface{}); ok {
		for typeStr, factoriesVal := range types {
			switch v := factoriesVal.(type) {
			case string:
				_ = b.plugIn.RegisterType(v, typeStr)
			case []interface{}:
				for _, f := range v {
					if fs, ok := f.(string); ok {
						_ = b.plugIn.RegisterType(fs, typeStr)
					}
				}
			}
		}
	}

	// Dynamic registration loads the executable and calls the register
	// function; load-on-demand is off for dynamically registering
	// plug-ins.
	if dynamic {
		registerFunc := b.info.getString(InfoKeyPlugInDynamicRegisterFunction)
		if registerFunc == "" {
			registerFunc = "PlugInDynamicRegister"
		}
		if err := b.Load(); err != nil {
			b.logger.Warn("plug-in dynamic registration load failed", "bundle", b.path, "error", err)
			return
		}
		if fn, ok := plugin.NamedDynamicRegister(registerFunc); ok {
			fn(b.plugIn)
		}
	}
}

// retain increments the reference count.
func (b *Bundle) retain() {
	b.refMu.Lock()
	b.refs++
	b.refMu.Unlock()
}

// Retain takes an additional reference on the bundle.
func (b *Bundle) Retain() *Bundle {
	b.retain()
	return b
}

// Release drops one reference. When the last reference goes away the
// bundle unloads its executable, leaves the global tables, and discards
// its caches.
func (b *Bundle) Release() {
	b.refMu.Lock()
	b.refs--
	last := b.refs == 0
	b.refMu.Unlock()
	if !last {
		return
	}

	if b.plugIn != nil {
		b.plugIn.Detach()
		b.plugIn = nil
	}
	_ = b.Unload()

	reg.mu.Lock()
	b.removeFromTablesLocked()
	reg.mu.Unlock()

	b.mu.Lock()
	b.localInfo = nil
	b.searchLanguages = nil
	b.stringTables = nil
	b.queryTables = nil
	b.mu.Unlock()
}

// Path returns the bundle's canonical absolute path.
func (b *Bundle) Path() string { return b.path }

// Layout returns the detected layout version.
func (b *Bundle) Layout() Layout { return b.layout }

// ModTime returns the directory's modification time at creation.
func (b *Bundle) ModTime() time.Time { return b.modTime }

// Identifier returns the bundle identifier, or "".
func (b *Bundle) Identifier() string {
	return b.info.getString(InfoKeyIdentifier)
}

// InfoDictionary returns the fixed-up info dictionary. It is immutable
// after creation; callers must not modify it.
func (b *Bundle) InfoDictionary() InfoDict { return b.info }

// VersionNumber returns the packed numeric version.
func (b *Bundle) VersionNumber() uint32 {
	return b.info.numericVersion()
}

// DevelopmentRegion returns the bundle's canonical localization.
func (b *Bundle) DevelopmentRegion() string {
	return b.info.getString(InfoKeyDevelopmentRegion)
}

// PackageInfo returns the package type and signature, consulting the
// info dictionary first and the PkgInfo file second.
func (b *Bundle) PackageInfo() (pkgType, creator string) {
	pkgType = b.info.getString(InfoKeyPackageType)
	creator = b.info.getString(InfoKeySignature)
	if pkgType != "" && creator != "" {
		return pkgType, creator
	}
	if t, c, ok := readPkgInfo(b.path, b.layout); ok {
		if pkgType == "" {
			pkgType = t
		}
		if creator == "" {
			creator = c
		}
	}
	if pkgType == "" {
		pkgType = "BNDL"
	}
	if creator == "" {
		creator = "????"
	}
	return pkgType, creator
}

// SupportFilesPath returns the support-files directory.
func (b *Bundle) SupportFilesPath() string {
	return filepath.Join(b.path, b.layout.supportFilesDir())
}

// ResourcesPath returns the resources directory.
func (b *Bundle) ResourcesPath() string {
	return filepath.Join(b.path, b.layout.resourcesDir())
}

// PrivateFrameworksPath returns the private frameworks directory.
func (b *Bundle) PrivateFrameworksPath() string {
	return filepath.Join(b.path, b.layout.privateFrameworksDir())
}

// SharedFrameworksPath returns the shared frameworks directory.
func (b *Bundle) SharedFrameworksPath() string {
	return filepath.Join(b.path, b.layout.sharedFrameworksDir())
}

// SharedSupportPath returns the shared support directory.
func (b *Bundle) SharedSupportPath() string {
	return filepath.Join(b.path, b.layout.sharedSupportDir())
}

// BuiltInPlugInsPath returns the built-in plug-ins directory,
// preferring the modern spelling and falling back to "Plug-ins".
func (b *Bundle) BuiltInPlugInsPath() string {
	primary := filepath.Join(b.path, b.layout.plugInsDir())
	if st, err := os.Stat(primary); err == nil && st.IsDir() {
		return primary
	}
	alternate := filepath.Join(b.path, b.layout.alternatePlugInsDir())
	if st, err := os.Stat(alternate); err == nil && st.IsDir() {
		return alternate
	}
	return primary
}

// BuiltInPlugInPaths lists bundle directories under the built-in
// plug-ins directory.
func (b *Bundle) BuiltInPlugInPaths() []string {
	dir := b.BuiltInPlugInsPath()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths
}

// ExecutablePath locates the bundle's executable from the executable
// name in the info dictionary, or "" when it cannot be resolved.
func (b *Bundle) ExecutablePath() string {
	if p := b.info.getString(InfoKeyExecutablePath); p != "" {
		return p
	}
	name := b.info.getString(InfoKeyExecutable)
	if name == "" {
		return ""
	}
	root := b.path
	if b.layout == LayoutContents && strings.HasSuffix(b.path, frameworkSuffix) {
		root = currentVersionPath(b.path)
	}
	var candidates []string
	switch b.layout {
	case LayoutContents:
		candidates = append(candidates,
			filepath.Join(root, contentsDirName, PlatformExecutablesSubdir(), name))
		for _, alt := range alternateExecSubdirs {
			candidates = append(candidates, filepath.Join(root, contentsDirName, alt, name))
		}
	case LayoutSupportFiles:
		candidates = append(candidates,
			filepath.Join(root, supportFilesDirName, executablesDirName, name))
	default:
		candidates = append(candidates, filepath.Join(root, name))
	}
	candidates = append(candidates, filepath.Join(root, name))
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
		if st, err := os.Stat(c + ".dll"); err == nil && !st.IsDir() {
			return c + ".dll"
		}
	}
	return ""
}

// BinaryType classifies the bundle's executable, caching the result.
func (b *Bundle) BinaryType() binmagic.BinaryType {
	b.mu.Lock()
	cached := b.binaryType
	b.mu.Unlock()
	if cached != binmagic.BinaryUnknown {
		return cached
	}
	exe := b.ExecutablePath()
	t := binmagic.GrokBinaryType(exe)
	if t == binmagic.BinaryMachDylib && strings.HasSuffix(b.path, frameworkSuffix) {
		t = binmagic.BinaryMachFramework
	}
	b.mu.Lock()
	b.binaryType = t
	b.mu.Unlock()
	return t
}

// Localizations returns the bundle's localization set: predefined
// localizations from the info dictionary plus the .lproj scan, with
// the development region as fallback.
func (b *Bundle) Localizations() []string {
	predefined := b.info.getStringSlice(InfoKeyLocalizations)
	scanned := localizationsForDirectory(b.ResourcesPath())

	locs := append([]string(nil), predefined...)
	for _, l := range scanned {
		if !containsString(locs, l) {
			locs = append(locs, l)
		}
	}
	if len(locs) == 0 {
		if dev := b.DevelopmentRegion(); dev != "" {
			locs = append(locs, dev)
		}
	}
	return locs
}

// allowMixedLocalizations reads the main bundle's info dictionary flag.
func allowMixedLocalizations() bool {
	main := mainBundleIfResolved()
	if main == nil {
		return false
	}
	return main.info.getBool(InfoKeyAllowMixedLocalizations)
}

// LanguageSearchList computes (and caches) the ordered localization
// list consulted for this bundle's resources.
func (b *Bundle) LanguageSearchList() []string {
	b.mu.Lock()
	if b.searchLanguages != nil {
		langs := b.searchLanguages
		b.mu.Unlock()
		return langs
	}
	b.mu.Unlock()

	langs := b.computeLanguageSearchList()

	// Publish under the bundle lock; a racing computation keeps the
	// winner and discards the local copy.
	b.mu.Lock()
	if b.searchLanguages == nil {
		b.searchLanguages = langs
	} else {
		langs = b.searchLanguages
	}
	b.mu.Unlock()
	return langs
}

func (b *Bundle) computeLanguageSearchList() []string {
	localizations := b.Localizations()
	devLang := b.DevelopmentRegion()
	var langs []string

	// If a main bundle exists and is distinct, try its first preferred
	// language first, unless mixed localizations are allowed.
	foundOne := false
	if !allowMixedLocalizations() {
		if main := mainBundleIfResolved(); main != nil && main != b {
			if mainLangs := main.LanguageSearchList(); len(mainLangs) > 0 {
				foundOne = tryOnePreferredLprojName(localizations, mainLangs[0], &langs, true)
			}
		}
	}

	if !foundOne {
		foundOne = walkPreferredLanguages(localizations, UserLanguages(), &langs)
		if !foundOne && devLang != "" {
			foundOne = tryOnePreferredLprojName(localizations, devLang, &langs, true)
		}
		if !foundOne {
			foundOne = tryOnePreferredLprojName(localizations, "en_US", &langs, true)
		}
	}

	// If the user prefers none of the bundle's languages, fall back on
	// a localization that is present.
	if len(langs) == 0 && len(localizations) > 0 {
		tryOnePreferredLprojName(localizations, localizations[0], &langs, true)
	}

	if devLang != "" {
		appendUnique(&langs, devLang)
	} else {
		for _, fallback := range []string{"en", "English", "en_US"} {
			if containsString(localizations, fallback) {
				appendUnique(&langs, fallback)
				break
			}
		}
	}

	// Base.lproj carries development-region-equivalent assets.
	if containsString(localizations, baseLprojName) {
		appendUnique(&langs, baseLprojName)
	}

	appendUnique(&langs, DefaultLocalization())
	return langs
}

// FindByIdentifier returns the registered bundle with the identifier.
// The latest version wins irrespective of load state, except that a
// loaded bundle is preferred over unloaded ones.
func FindByIdentifier(id string) *Bundle {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	bundles := reg.byIdentifier[id]
	if len(bundles) == 0 {
		return nil
	}
	for _, b := range bundles {
		if b.loaded() {
			return b
		}
	}
	return bundles[0]
}

// AllBundles snapshots every registered bundle.
func AllBundles() []*Bundle {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Bundle, 0, len(reg.byPath))
	for _, b := range reg.byPath {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Main returns the process's main bundle, bootstrapping it on first
// access from the executable path. When the executable does not live in
// a recognized bundle layout, the main bundle is marked "not a bundle"
// and carries a synthetic info dictionary whose executable-path key
// points at the process image.
func Main() *Bundle {
	reg.mu.Lock()
	if reg.mainResolved {
		b := reg.mainBundle
		reg.mu.Unlock()
		return b
	}
	reg.mu.Unlock()

	b := bootstrapMainBundle()

	reg.mu.Lock()
	if !reg.mainResolved {
		reg.mainBundle = b
		reg.mainResolved = true
	}
	b = reg.mainBundle
	reg.mu.Unlock()
	return b
}

func mainBundleIfResolved() *Bundle {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.mainBundle
}

// SetMain installs an explicit main bundle (tests and embedding hosts).
// Passing nil resets the bootstrap so the next Main() call re-derives it.
func SetMain(b *Bundle) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.mainBundle = b
	reg.mainResolved = b != nil
}

func bootstrapMainBundle() *Bundle {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	exe, _ = filepath.EvalSymlinks(exe)

	// Walk upward through recognized platform-executables directories
	// to a candidate bundle root.
	dir := filepath.Dir(exe)
	root := dir
	if containsString(alternateExecSubdirs, filepath.Base(dir)) {
		parent := filepath.Dir(dir)
		if strings.EqualFold(filepath.Base(parent), contentsDirName) {
			root = filepath.Dir(parent)
		}
	}

	b, err := New(root)
	if err == nil {
		// The candidate must actually look like a bundle: a non-empty
		// info dictionary, or a recognized layout.
		if len(b.info) > 0 || b.layout != LayoutFlat {
			return b
		}
		b.Release()
	}

	// Not a bundle: synthesize a handle around the executable itself.
	nb := &Bundle{
		path:    dir,
		layout:  LayoutNotABundle,
		logger:  slog.Default(),
		refs:    1,
		modTime: time.Now(),
	}
	nb.info = InfoDict{
		InfoKeyExecutable:     filepath.Base(exe),
		InfoKeyExecutablePath: exe,
	}
	if embedded := binmagic.InfoDictFromExecutable(exe); embedded != nil {
		for k, v := range embedded {
			nb.info[k] = v
		}
		ProcessInfoDictionary(nb.info)
		stampNumericVersion(nb.info)
	}
	reg.mu.Lock()
	if _, taken := reg.byPath[nb.path]; !taken {
		reg.byPath[nb.path] = nb
		nb.addToIdentifierTableLocked()
		metricBundlesLive.Inc()
	}
	reg.mu.Unlock()
	return nb
}

// FlushCaches discards the bundle's lazily built caches: the query
// tables, string tables, localized info and search languages. The next
// query rebuilds them from disk.
func (b *Bundle) FlushCaches() {
	b.mu.Lock()
	b.queryTables = nil
	b.stringTables = nil
	b.localInfo = nil
	b.searchLanguages = nil
	b.mu.Unlock()
}

// FlushCachesForPath flushes the caches of the registered bundle at
// path, if any.
func FlushCachesForPath(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	reg.mu.Lock()
	b := reg.byPath[filepath.Clean(abs)]
	reg.mu.Unlock()
	if b != nil {
		b.FlushCaches()
	}
}
