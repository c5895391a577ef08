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
	"github.com/kraklabs/bundlekit/pkg/binmagic"
	"github.com/kraklabs/bundlekit/pkg/loader"
	"github.com/kraklabs/bundlekit/pkg/plugin"
)

// backendForBinaryType selects the loader back-end for an executable
// classification. Mach-O main executables are never loadable.
func backendForBinaryType(t binmagic.BinaryType, exePath string) (loader.Backend, *loader.LoadError) {
	switch t {
	case binmagic.BinaryMachBundle, binmagic.BinaryMachDylib, binmagic.BinaryMachFramework,
		binmagic.BinaryELF, binmagic.BinaryDLL, binmagic.BinaryPEF:
		return loader.Host(), nil
	case binmagic.BinaryMachExecutable:
		return nil, loader.NewLoadError(loader.ErrNotLoadable, exePath, "main-executable image")
	case binmagic.BinaryUnreadable:
		return nil, loader.NewLoadError(loader.ErrNotFound, exePath, "executable unreadable")
	case binmagic.BinaryNone:
		return nil, loader.NewLoadError(loader.ErrNotFound, exePath, "no executable")
	default:
		// Unknown images still go to the host loader; it produces the
		// authoritative diagnostic.
		return loader.Host(), nil
	}
}

// loaded reports the load state without taking the load lock for long.
func (b *Bundle) loaded() bool {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()
	return b.isLoaded
}

// IsLoaded reports whether the bundle's executable is loaded.
func (b *Bundle) IsLoaded() bool { return b.loaded() }

// Load brings the bundle's executable into the process. Loading an
// already-loaded bundle is a no-op; loading a bundle scheduled for
// unload cancels the scheduled unload first.
func (b *Bundle) Load() error {
	exe := b.ExecutablePath()
	if exe == "" {
		return b.wrapLoadError(loader.NewLoadError(loader.ErrNotFound, "", "no executable in bundle"))
	}

	// Reloading a scheduled-for-unload bundle is supported; drop it
	// from the scheduled set before anything else.
	reg.mu.Lock()
	delete(reg.scheduledUnload, b)
	reg.mu.Unlock()

	if b.loaded() {
		return nil
	}
	// Classify and cross-check before touching the load lock; both may
	// take the per-bundle lock, which orders before it.
	backend, lerr := backendForBinaryType(b.BinaryType(), exe)
	if lerr != nil {
		return b.wrapLoadError(lerr)
	}
	if err := checkArchitectureCompatibility(exe); err != nil {
		return b.wrapLoadError(err)
	}
	if err := b.checkRuntimeCompatibility(exe); err != nil {
		return b.wrapLoadError(err)
	}

	// The back-end may call back into the bundle API; no lock is held
	// across the call.
	handle, err := backend.Load(exe, loader.BindLazy|loader.ScopeGlobal)
	if err != nil {
		if lerr, ok := err.(*loader.LoadError); ok {
			return b.wrapLoadError(lerr)
		}
		return err
	}

	b.loadMu.Lock()
	if b.isLoaded {
		// Lost a load race; keep the first image.
		b.loadMu.Unlock()
		_ = backend.Unload(handle)
		return nil
	}
	b.isLoaded = true
	b.handle = handle
	b.backend = backend
	b.loadMu.Unlock()

	metricLoads.Inc()
	if b.plugIn != nil {
		b.plugIn.ExecutableDidLoad()
	}
	b.logger.Debug("bundle loaded", "bundle", b.path, "backend", backend.Name())
	return nil
}

// Preflight diagnoses whether a load would succeed without leaving the
// executable loaded. The returned error is a structured LoadError.
func (b *Bundle) Preflight() error {
	exe := b.ExecutablePath()
	if exe == "" {
		return b.wrapLoadError(loader.NewLoadError(loader.ErrNotFound, "", "no executable in bundle"))
	}
	if b.loaded() {
		return nil
	}
	backend, lerr := backendForBinaryType(b.BinaryType(), exe)
	if lerr != nil {
		return b.wrapLoadError(lerr)
	}
	if err := checkArchitectureCompatibility(exe); err != nil {
		return b.wrapLoadError(err)
	}
	if err := b.checkRuntimeCompatibility(exe); err != nil {
		return b.wrapLoadError(err)
	}
	if err := backend.Preflight(exe); err != nil {
		if lerr, ok := err.(*loader.LoadError); ok {
			return b.wrapLoadError(lerr)
		}
		return err
	}
	return nil
}

// checkArchitectureCompatibility rejects a Mach-O executable none of
// whose slices match the host's preferred architectures. Images whose
// format carries no architecture list are left to the host loader.
func checkArchitectureCompatibility(exe string) *loader.LoadError {
	arches := binmagic.ExecutableArchitectures(exe)
	if len(arches) == 0 {
		return nil
	}
	hostArches := binmagic.HostArchitectures()
	if len(hostArches) == 0 {
		return nil
	}
	for _, want := range hostArches {
		for _, have := range arches {
			if have == want {
				return nil
			}
		}
	}
	return loader.NewLoadError(loader.ErrArchMismatch, exe, "no slice for the host architecture")
}

// checkRuntimeCompatibility cross-checks the object-runtime image-info
// flags embedded in the host and bundle executables.
func (b *Bundle) checkRuntimeCompatibility(exe string) *loader.LoadError {
	bundleVersion, bundleFlags, ok := binmagic.ImageInfo(exe)
	if !ok {
		return nil
	}
	hostVersion, hostFlags, ok := hostImageInfo()
	if !ok {
		return nil
	}
	// Version word 0 flags bit 1 marks the modern garbage-collected
	// runtime; mixing modes is the recognized incompatibility.
	const runtimeModeMask = 0x2
	if bundleVersion == hostVersion && bundleFlags&runtimeModeMask != hostFlags&runtimeModeMask {
		return loader.NewLoadError(loader.ErrRuntimeMismatch, exe, "image-info flags conflict with host")
	}
	return nil
}

// hostImageInfo reads the current process image's object-runtime
// image-info words.
func hostImageInfo() (version, flags uint32, ok bool) {
	main := mainBundleIfResolved()
	var exe string
	if main != nil {
		exe = main.info.getString(InfoKeyExecutablePath)
	}
	if exe == "" {
		return 0, 0, false
	}
	return binmagic.ImageInfo(exe)
}

// wrapLoadError completes a LoadError with the bundle's location.
func (b *Bundle) wrapLoadError(err *loader.LoadError) error {
	err.BundlePath = b.path
	if err.ExecutablePath == "" {
		err.ExecutablePath = b.ExecutablePath()
	}
	return err
}

// Unload drops the bundle's executable. It is a no-op when nothing is
// loaded. Before the image goes away, the plug-in record flushes the
// factory functions it resolved from it; the factories themselves stay
// registered and enabled.
func (b *Bundle) Unload() error {
	b.loadMu.Lock()
	if !b.isLoaded {
		b.loadMu.Unlock()
		return nil
	}
	backend := b.backend
	handle := b.handle
	plugIn := b.plugIn
	b.loadMu.Unlock()

	// Flush plug-in state first: cached function pointers die with the
	// image.
	if plugIn != nil {
		plugIn.ExecutableWillUnload()
	}

	err := backend.Unload(handle)

	b.loadMu.Lock()
	b.isLoaded = false
	b.handle = nil
	b.backend = nil
	b.loadMu.Unlock()

	reg.mu.Lock()
	delete(reg.scheduledUnload, b)
	reg.mu.Unlock()

	metricUnloads.Inc()
	b.logger.Debug("bundle unloaded", "bundle", b.path)
	return err
}

// Function returns the address of a symbol in the bundle's executable,
// loading the executable first if necessary. The address's lifetime is
// the caller's responsibility; no validation is attempted.
func (b *Bundle) Function(name string) (uintptr, bool) {
	if !b.loaded() {
		if err := b.Load(); err != nil {
			return 0, false
		}
	}
	b.loadMu.Lock()
	backend := b.backend
	handle := b.handle
	b.loadMu.Unlock()
	if backend == nil {
		return 0, false
	}
	return backend.Lookup(handle, name)
}

// ScheduleUnload marks the bundle for a later batch unload. Members of
// the scheduled set stay loaded until UnloadScheduledBundles runs.
func (b *Bundle) ScheduleUnload() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if b.loaded() {
		reg.scheduledUnload[b] = struct{}{}
	}
}

// ResolveFactoryFunction resolves a late-bound factory function name
// through the bundle's executable, loading it on demand. It implements
// the plug-in host contract.
func (b *Bundle) ResolveFactoryFunction(name string) (plugin.FactoryFunc, bool) {
	if fn, ok := plugin.NamedFactoryFunction(name); ok {
		return fn, true
	}
	addr, ok := b.Function(name)
	if !ok || addr == 0 {
		return nil, false
	}
	trampoline := factoryTrampoline()
	if trampoline == nil {
		return nil, false
	}
	return trampoline(addr), true
}

// UnloadScheduledBundles drains the scheduled-unload set, unloading
// each member. A recursion guard keeps an unload that re-enters the
// drain from running it twice.
func UnloadScheduledBundles() {
	reg.mu.Lock()
	if reg.draining {
		reg.mu.Unlock()
		return
	}
	reg.draining = true
	scheduled := make([]*Bundle, 0, len(reg.scheduledUnload))
	for b := range reg.scheduledUnload {
		scheduled = append(scheduled, b)
	}
	reg.mu.Unlock()

	for _, b := range scheduled {
		// Plug-ins with live instances or enabled factories must not
		// lose their executable.
		if b.plugIn != nil && !b.plugIn.UnloadSafe() {
			continue
		}
		_ = b.Unload()
	}

	reg.mu.Lock()
	reg.draining = false
	reg.mu.Unlock()
}

// factoryTrampolineHook adapts a raw function address into a callable
// FactoryFunc. Hosts with a C call bridge install one; without it,
// late-bound factories resolve only through the named-function
// registry.
var (
	factoryTrampolineHook func(addr uintptr) plugin.FactoryFunc
)

// SetFactoryTrampoline installs the address-to-FactoryFunc bridge.
func SetFactoryTrampoline(f func(addr uintptr) plugin.FactoryFunc) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	factoryTrampolineHook = f
}

func factoryTrampoline() func(addr uintptr) plugin.FactoryFunc {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return factoryTrampolineHook
}
