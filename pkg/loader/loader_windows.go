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

//go:build windows

package loader

import (
	"os"

	"golang.org/x/sys/windows"
)

// WindowsBackend loads DLLs through LoadLibrary/GetProcAddress.
type WindowsBackend struct{}

// NewWindowsBackend returns the LoadLibrary-based loader back-end.
func NewWindowsBackend() *WindowsBackend {
	return &WindowsBackend{}
}

// Name identifies the back-end.
func (b *WindowsBackend) Name() string { return "windows" }

// Preflight loads and immediately frees the DLL.
func (b *WindowsBackend) Preflight(path string) error {
	if _, err := os.Stat(path); err != nil {
		return NewLoadError(ErrNotFound, path, err.Error())
	}
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return NewLoadError(ErrLoad, path, err.Error())
	}
	_ = windows.FreeLibrary(h)
	return nil
}

// Load brings the DLL into the process. Mode bits are advisory here;
// LoadLibrary has no lazy/global distinction.
func (b *WindowsBackend) Load(path string, _ Mode) (Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewLoadError(ErrNotFound, path, err.Error())
	}
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, NewLoadError(ErrLoad, path, err.Error())
	}
	return h, nil
}

// Lookup resolves an exported symbol with GetProcAddress.
func (b *WindowsBackend) Lookup(handle Handle, symbol string) (uintptr, bool) {
	h, ok := handle.(windows.Handle)
	if !ok || h == 0 {
		return 0, false
	}
	addr, err := windows.GetProcAddress(h, symbol)
	if err != nil {
		return 0, false
	}
	return addr, true
}

// Unload frees the DLL.
func (b *WindowsBackend) Unload(handle Handle) error {
	h, ok := handle.(windows.Handle)
	if !ok || h == 0 {
		return nil
	}
	if err := windows.FreeLibrary(h); err != nil {
		return NewLoadError(ErrLoad, "", err.Error())
	}
	return nil
}

// CheckLoaded asks whether the module is already resident without
// bumping its reference count.
func (b *WindowsBackend) CheckLoaded(path string) (Handle, bool) {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, false
	}
	var h windows.Handle
	// GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT
	err = windows.GetModuleHandleEx(0x2, pathp, &h)
	if err != nil || h == 0 {
		return nil, false
	}
	return h, true
}

// LoadedImages enumeration is not wired on Windows.
func (b *WindowsBackend) LoadedImages() []Image {
	return nil
}
