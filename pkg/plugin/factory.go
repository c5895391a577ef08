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

import (
	"github.com/google/uuid"
)

// Factory produces instances of one or more plug-in types.
//
// Invariants: while enabled, a factory is reachable from the factory-ID
// table and from each of its type buckets; a factory with zero
// instances and enabled == false is destroyed.
type Factory struct {
	id       uuid.UUID
	fn       FactoryFunc // direct function, or nil for late binding
	funcName string      // late-bound function name
	plugIn   *PlugIn     // owning plug-in, may be nil

	// Guarded by registry.mu.
	enabled       bool
	instanceCount int
	types         []uuid.UUID
}

// newFactory creates and registers a factory, replacing any factory
// previously registered under the same ID.
func newFactory(factoryID uuid.UUID, fn FactoryFunc, p *PlugIn, funcName string) *Factory {
	f := &Factory{
		id:       factoryID,
		fn:       fn,
		funcName: funcName,
		plugIn:   p,
		enabled:  true,
	}
	registry.mu.Lock()
	if prev := registry.byFactoryID[factoryID]; prev != nil {
		prev.removeFromTablesLocked()
	}
	registry.byFactoryID[factoryID] = f
	registry.mu.Unlock()

	if p != nil {
		p.addFactory(f)
	}
	return f
}

// ID returns the factory UUID.
func (f *Factory) ID() uuid.UUID { return f.id }

// PlugIn returns the owning plug-in record, or nil.
func (f *Factory) PlugIn() *PlugIn { return f.plugIn }

// Enabled reports whether the factory may create instances.
func (f *Factory) Enabled() bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return f.enabled
}

func (f *Factory) enabledLocked() bool { return f.enabled }

// InstanceCount returns the live-instance count.
func (f *Factory) InstanceCount() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return f.instanceCount
}

// Types snapshots the supported type UUIDs.
func (f *Factory) Types() []uuid.UUID {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return append([]uuid.UUID(nil), f.types...)
}

// AddType appends typeID to the factory's supported types and inserts
// the factory into the type bucket.
func (f *Factory) AddType(typeID uuid.UUID) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, t := range f.types {
		if t == typeID {
			return
		}
	}
	f.types = append(f.types, typeID)
	registry.byTypeID[typeID] = append(registry.byTypeID[typeID], f)
}

func (f *Factory) supportsTypeLocked(typeID uuid.UUID) bool {
	for _, t := range f.types {
		if t == typeID {
			return true
		}
	}
	return false
}

// disable flips the factory off; it is destroyed immediately when no
// instances are live.
func (f *Factory) disable() {
	registry.mu.Lock()
	f.enabled = false
	destroy := f.instanceCount == 0
	registry.mu.Unlock()
	if destroy {
		f.destroy()
	}
}

// instanceCreated bumps the factory's and the owning plug-in's
// live-instance counts.
func (f *Factory) instanceCreated() {
	registry.mu.Lock()
	f.instanceCount++
	registry.mu.Unlock()
	if f.plugIn != nil {
		f.plugIn.instanceCreated()
	}
}

// instanceReleased drops one instance. A disabled factory with no
// remaining instances is destroyed; a load-on-demand plug-in whose last
// instance went away is scheduled for unload.
func (f *Factory) instanceReleased() {
	registry.mu.Lock()
	f.instanceCount--
	destroy := !f.enabled && f.instanceCount == 0
	registry.mu.Unlock()

	if f.plugIn != nil {
		f.plugIn.instanceReleased()
	}
	if destroy {
		f.destroy()
	}
}

// destroy removes the factory from all tables and detaches it from its
// plug-in.
func (f *Factory) destroy() {
	registry.mu.Lock()
	f.removeFromTablesLocked()
	registry.mu.Unlock()
	if f.plugIn != nil {
		f.plugIn.removeFactory(f)
	}
}

// removeFromTablesLocked drops f from the by-ID table and every type
// bucket. Caller holds registry.mu.
func (f *Factory) removeFromTablesLocked() {
	if registry.byFactoryID[f.id] == f {
		delete(registry.byFactoryID, f.id)
	}
	for _, t := range f.types {
		bucket := registry.byTypeID[t]
		for i, other := range bucket {
			if other == f {
				registry.byTypeID[t] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(registry.byTypeID[t]) == 0 {
			delete(registry.byTypeID, t)
		}
	}
	f.types = nil
}
