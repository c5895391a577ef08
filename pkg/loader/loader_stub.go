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

//go:build !windows && !(cgo && (linux || darwin || freebsd))

package loader

import "os"

// stubBackend is used when no host loader is available (cgo disabled or
// an unsupported platform). Preflight fails with ErrNotFound for a
// missing file and with ErrNotLoadable otherwise; Load always fails with
// ErrNotLoadable.
type stubBackend struct{}

func newHostBackend() Backend { return stubBackend{} }

func (stubBackend) Name() string { return "stub" }

func (stubBackend) Preflight(path string) error {
	if _, err := os.Stat(path); err != nil {
		return NewLoadError(ErrNotFound, path, err.Error())
	}
	return NewLoadError(ErrNotLoadable, path, "no dynamic loader available on this build")
}

func (stubBackend) Load(path string, _ Mode) (Handle, error) {
	return nil, NewLoadError(ErrNotLoadable, path, "no dynamic loader available on this build")
}

func (stubBackend) Lookup(Handle, string) (uintptr, bool) { return 0, false }

func (stubBackend) Unload(Handle) error { return nil }

func (stubBackend) CheckLoaded(string) (Handle, bool) { return nil, false }

func (stubBackend) LoadedImages() []Image { return nil }
