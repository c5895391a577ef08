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

package plugin

import "sync"

// Instance wraps a value produced by a factory. Its only structural
// contract is the strong reference to its factory: releasing the last
// reference decrements the factory's live-instance count, and may
// destroy a disabled factory or schedule a load-on-demand plug-in's
// executable for unload.
type Instance struct {
	value   interface{}
	factory *Factory

	mu   sync.Mutex
	refs int
}

// Value returns the factory-produced value.
func (i *Instance) Value() interface{} { return i.value }

// Factory returns the producing factory.
func (i *Instance) Factory() *Factory { return i.factory }

// Retain takes an additional reference.
func (i *Instance) Retain() *Instance {
	i.mu.Lock()
	i.refs++
	i.mu.Unlock()
	return i
}

// Release drops one reference; the last release detaches the instance
// from its factory.
func (i *Instance) Release() {
	i.mu.Lock()
	i.refs--
	last := i.refs == 0
	i.mu.Unlock()
	if last {
		i.factory.instanceReleased()
	}
}
