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

//go:build cgo && (linux || darwin || freebsd)

package loader

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

#ifndef RTLD_NOLOAD
#define RTLD_NOLOAD 0
#endif
#ifndef RTLD_FIRST
#define RTLD_FIRST 0
#endif
*/
import "C"

import (
	"os"
	"strings"
	"sync"
	"unsafe"
)

// DlopenBackend loads images through the POSIX dynamic loader.
type DlopenBackend struct {
	mu sync.Mutex // dlerror() is per-call global state
}

// NewDlopenBackend returns the dlopen-based loader back-end.
func NewDlopenBackend() *DlopenBackend {
	return &DlopenBackend{}
}

// Name identifies the back-end.
func (b *DlopenBackend) Name() string { return "dlopen" }

func (m Mode) dlopenFlags(checkOnly bool) C.int {
	var flags C.int
	if m&BindNow != 0 {
		flags |= C.RTLD_NOW
	} else {
		flags |= C.RTLD_LAZY
	}
	if m&ScopeGlobal != 0 {
		flags |= C.RTLD_GLOBAL
	} else {
		flags |= C.RTLD_LOCAL
	}
	if m&FirstMatch != 0 {
		flags |= C.RTLD_FIRST
	}
	if checkOnly {
		flags |= C.RTLD_NOLOAD
	}
	return flags
}

func (b *DlopenBackend) dlopen(path string, flags C.int) (unsafe.Pointer, string) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	b.mu.Lock()
	defer b.mu.Unlock()
	C.dlerror() // clear any stale diagnostic
	handle := C.dlopen(cpath, flags)
	if handle == nil {
		if msg := C.dlerror(); msg != nil {
			return nil, C.GoString(msg)
		}
		return nil, "dlopen failed"
	}
	return handle, ""
}

// Preflight dry-runs a load: open with RTLD_LAZY|RTLD_LOCAL, then
// immediately drop the reference.
func (b *DlopenBackend) Preflight(path string) error {
	if _, err := os.Stat(path); err != nil {
		return NewLoadError(ErrNotFound, path, err.Error())
	}
	handle, diag := b.dlopen(path, (BindLazy | ScopeLocal).dlopenFlags(false))
	if handle == nil {
		return NewLoadError(ErrLoad, path, diag)
	}
	b.mu.Lock()
	C.dlclose(handle)
	b.mu.Unlock()
	return nil
}

// Load brings the image into the process.
func (b *DlopenBackend) Load(path string, mode Mode) (Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewLoadError(ErrNotFound, path, err.Error())
	}
	handle, diag := b.dlopen(path, mode.dlopenFlags(false))
	if handle == nil {
		kind := ErrLoad
		if containsUndefinedSymbol(diag) {
			kind = ErrLink
		}
		return nil, NewLoadError(kind, path, diag)
	}
	return handle, nil
}

// Lookup resolves a symbol with dlsym.
func (b *DlopenBackend) Lookup(handle Handle, symbol string) (uintptr, bool) {
	ptr, ok := handle.(unsafe.Pointer)
	if !ok || ptr == nil {
		return 0, false
	}
	csym := C.CString(symbol)
	defer C.free(unsafe.Pointer(csym))

	b.mu.Lock()
	defer b.mu.Unlock()
	C.dlerror()
	addr := C.dlsym(ptr, csym)
	if addr == nil && C.dlerror() != nil {
		return 0, false
	}
	return uintptr(addr), true
}

// Unload drops the image reference.
func (b *DlopenBackend) Unload(handle Handle) error {
	ptr, ok := handle.(unsafe.Pointer)
	if !ok || ptr == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if C.dlclose(ptr) != 0 {
		if msg := C.dlerror(); msg != nil {
			return NewLoadError(ErrLoad, "", C.GoString(msg))
		}
	}
	return nil
}

// CheckLoaded asks the loader (RTLD_NOLOAD) whether the image is
// already resident, returning its handle without loading it.
func (b *DlopenBackend) CheckLoaded(path string) (Handle, bool) {
	handle, _ := b.dlopen(path, (BindLazy | ScopeLocal).dlopenFlags(true))
	if handle == nil {
		return nil, false
	}
	return handle, true
}

// LoadedImages is unsupported through plain dlfcn; platform-specific
// enumeration (dl_iterate_phdr, dyld) is not exposed here.
func (b *DlopenBackend) LoadedImages() []Image {
	return nil
}

func containsUndefinedSymbol(diag string) bool {
	// glibc: "undefined symbol: foo"; dyld: "symbol not found"
	return strings.Contains(diag, "undefined symbol") ||
		strings.Contains(strings.ToLower(diag), "symbol not found")
}
