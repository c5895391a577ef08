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

package loader

import "sync"

var (
	hostMu       sync.Mutex
	hostOverride Backend
	hostOnce     sync.Once
	hostBackend  Backend
)

// Host returns the loader back-end for the current platform: dlopen on
// POSIX systems with cgo, LoadLibrary on Windows, and a stub elsewhere.
// SetHost overrides it (tests install a FakeBackend).
func Host() Backend {
	hostMu.Lock()
	defer hostMu.Unlock()
	if hostOverride != nil {
		return hostOverride
	}
	hostOnce.Do(func() {
		hostBackend = newHostBackend()
	})
	return hostBackend
}

// SetHost overrides the host back-end. Passing nil restores the
// platform default.
func SetHost(b Backend) {
	hostMu.Lock()
	defer hostMu.Unlock()
	hostOverride = b
}
