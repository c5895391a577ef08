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

// Package plugin implements the process-global factory and instance
// registry for plug-in bundles.
//
// Factories are keyed by factory UUID and grouped by the type UUIDs
// they implement. Instances hold strong references to their factories;
// releasing the last instance of a disabled factory destroys it, and
// releasing the last instance of a load-on-demand plug-in schedules its
// executable for unload.
package plugin

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FactoryFunc produces one instance of a requested type.
type FactoryFunc func(typeID uuid.UUID) (interface{}, error)

// DynamicRegisterFunc is the signature of a plug-in's dynamic
// registration entry point.
type DynamicRegisterFunc func(p *PlugIn)

// Host is the narrow back-reference a plug-in record keeps to its
// bundle. It resolves late-bound factory function names and schedules
// executable unload when the last instance disappears.
type Host interface {
	Path() string
	ScheduleUnload()
	ResolveFactoryFunction(name string) (FactoryFunc, bool)
}

// registry is the process-global factory table. The single mutex is the
// "global lock" of the concurrency model; it is never held across a
// factory function call.
var registry = struct {
	mu             sync.Mutex
	byFactoryID    map[uuid.UUID]*Factory
	byTypeID       map[uuid.UUID][]*Factory
	namedFunctions map[string]FactoryFunc
	namedRegisters map[string]DynamicRegisterFunc
}{
	byFactoryID:    make(map[uuid.UUID]*Factory),
	byTypeID:       make(map[uuid.UUID][]*Factory),
	namedFunctions: make(map[string]FactoryFunc),
	namedRegisters: make(map[string]DynamicRegisterFunc),
}

// RegisterNamedFunction publishes a factory function under a name so
// info-dictionary registrations can bind to native Go code.
func RegisterNamedFunction(name string, fn FactoryFunc) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.namedFunctions[name] = fn
}

// NamedFactoryFunction looks up a natively registered factory function.
func NamedFactoryFunction(name string) (FactoryFunc, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	fn, ok := registry.namedFunctions[name]
	return fn, ok
}

// RegisterNamedDynamicRegister publishes a dynamic-registration entry
// point under its exported name.
func RegisterNamedDynamicRegister(name string, fn DynamicRegisterFunc) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.namedRegisters[name] = fn
}

// NamedDynamicRegister looks up a dynamic-registration entry point.
func NamedDynamicRegister(name string) (DynamicRegisterFunc, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	fn, ok := registry.namedRegisters[name]
	return fn, ok
}

// RegisterFactory inserts a factory with a direct function into the
// by-ID table. Re-registering an ID replaces the previous factory.
func RegisterFactory(factoryID uuid.UUID, fn FactoryFunc) *Factory {
	return newFactory(factoryID, fn, nil, "")
}

// RegisterFactoryByName inserts a late-bound factory whose function is
// resolved through the plug-in's bundle on first use.
func RegisterFactoryByName(factoryID uuid.UUID, p *PlugIn, funcName string) *Factory {
	return newFactory(factoryID, nil, p, funcName)
}

// RegisterType appends typeID to the factory's supported types and to
// the by-type bucket. Missing factories are ignored.
func RegisterType(factoryID, typeID uuid.UUID) {
	registry.mu.Lock()
	f := registry.byFactoryID[factoryID]
	registry.mu.Unlock()
	if f != nil {
		f.AddType(typeID)
	}
}

// UnregisterFactory disables the factory. No new instances can be
// created through it afterwards; the factory itself is destroyed once
// its live-instance count reaches zero.
func UnregisterFactory(factoryID uuid.UUID) {
	registry.mu.Lock()
	f := registry.byFactoryID[factoryID]
	registry.mu.Unlock()
	if f != nil {
		f.disable()
	}
}

// FindFactory returns the enabled factory registered under an ID.
// Disabled factories are unreachable even while instances keep them
// alive.
func FindFactory(factoryID uuid.UUID) *Factory {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	f := registry.byFactoryID[factoryID]
	if f == nil || !f.enabled {
		return nil
	}
	return f
}

// FactoriesForType lists the enabled factory IDs supporting typeID.
func FactoriesForType(typeID uuid.UUID) []uuid.UUID {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	bucket := registry.byTypeID[typeID]
	out := make([]uuid.UUID, 0, len(bucket))
	for _, f := range bucket {
		if f.enabledLocked() {
			out = append(out, f.id)
		}
	}
	return out
}

// CreateInstance verifies the factory is enabled and supports typeID,
// then invokes its function. On success the factory's live-instance
// count (and its plug-in's) is bumped; release the returned Instance to
// undo that.
func CreateInstance(factoryID, typeID uuid.UUID) (*Instance, error) {
	registry.mu.Lock()
	f := registry.byFactoryID[factoryID]
	if f == nil || !f.enabledLocked() {
		registry.mu.Unlock()
		return nil, fmt.Errorf("no enabled factory %s", factoryID)
	}
	if !f.supportsTypeLocked(typeID) {
		registry.mu.Unlock()
		return nil, fmt.Errorf("factory %s does not support type %s", factoryID, typeID)
	}
	fn := f.fn
	plugIn := f.plugIn
	funcName := f.funcName
	registry.mu.Unlock()

	// Late-bound factories resolve their function through the bundle's
	// loader on first use; no registry lock is held across the
	// resolution or the factory call (both may re-enter the plug-in API).
	if fn == nil {
		if plugIn == nil || plugIn.host == nil {
			return nil, fmt.Errorf("factory %s has no function and no plug-in", factoryID)
		}
		resolved, ok := plugIn.host.ResolveFactoryFunction(funcName)
		if !ok {
			return nil, fmt.Errorf("factory %s: cannot resolve function %q", factoryID, funcName)
		}
		registry.mu.Lock()
		if f.fn == nil {
			f.fn = resolved
		}
		fn = f.fn
		registry.mu.Unlock()
	}

	value, err := fn(typeID)
	if err != nil {
		return nil, fmt.Errorf("factory %s: %w", factoryID, err)
	}

	f.instanceCreated()
	return &Instance{value: value, factory: f, refs: 1}, nil
}
