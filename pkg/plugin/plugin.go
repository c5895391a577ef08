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
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PlugIn is the plug-in sub-record of a bundle: the factories it
// registered and the live-instance count driving load-on-demand
// unloads.
//
// The factory list is held by non-owning handle; factories keep the
// strong back-reference to their plug-in, which breaks the bundle <->
// factory <-> instance cycle (the global tables hold the only other
// references and drop them when the factory is destroyed).
type PlugIn struct {
	host Host

	mu            sync.Mutex
	loadOnDemand  bool
	instanceCount int
	factories     []*Factory
	detached      bool
}

// NewPlugIn creates the plug-in record for a bundle. loadOnDemand is
// true for statically registered plug-ins; dynamic registration keeps
// the executable resident.
func NewPlugIn(host Host, loadOnDemand bool) *PlugIn {
	return &PlugIn{host: host, loadOnDemand: loadOnDemand}
}

// Host returns the owning bundle's host interface.
func (p *PlugIn) Host() Host { return p.host }

// LoadOnDemand reports whether the executable may be unloaded when the
// last instance disappears.
func (p *PlugIn) LoadOnDemand() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadOnDemand
}

// SetLoadOnDemand lets a dynamic-registration function opt in to
// unload-on-idle.
func (p *PlugIn) SetLoadOnDemand(v bool) {
	p.mu.Lock()
	p.loadOnDemand = v
	p.mu.Unlock()
}

// InstanceCount returns the plug-in's live-instance count.
func (p *PlugIn) InstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instanceCount
}

// RegisterFactory registers a direct factory owned by this plug-in.
func (p *PlugIn) RegisterFactory(factoryID uuid.UUID, fn FactoryFunc) *Factory {
	return newFactory(factoryID, fn, p, "")
}

// RegisterFactoryByName registers a late-bound factory from an info
// dictionary entry; the ID string must be a UUID.
func (p *PlugIn) RegisterFactoryByName(factoryID, funcName string) error {
	id, err := uuid.Parse(factoryID)
	if err != nil {
		return fmt.Errorf("factory id %q: %w", factoryID, err)
	}
	newFactory(id, nil, p, funcName)
	return nil
}

// RegisterType binds a factory ID string to a type ID string, both
// UUIDs, from an info dictionary entry.
func (p *PlugIn) RegisterType(factoryID, typeID string) error {
	fid, err := uuid.Parse(factoryID)
	if err != nil {
		return fmt.Errorf("factory id %q: %w", factoryID, err)
	}
	tid, err := uuid.Parse(typeID)
	if err != nil {
		return fmt.Errorf("type id %q: %w", typeID, err)
	}
	RegisterType(fid, tid)
	return nil
}

// Factories snapshots the plug-in's factory handles.
func (p *PlugIn) Factories() []*Factory {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Factory(nil), p.factories...)
}

func (p *PlugIn) addFactory(f *Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories = append(p.factories, f)
}

func (p *PlugIn) removeFactory(f *Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, other := range p.factories {
		if other == f {
			p.factories = append(p.factories[:i], p.factories[i+1:]...)
			return
		}
	}
}

func (p *PlugIn) instanceCreated() {
	p.mu.Lock()
	p.instanceCount++
	p.mu.Unlock()
}

func (p *PlugIn) instanceReleased() {
	p.mu.Lock()
	p.instanceCount--
	schedule := p.instanceCount == 0 && p.loadOnDemand && !p.detached
	host := p.host
	p.mu.Unlock()
	if schedule && host != nil {
		host.ScheduleUnload()
	}
}

// UnloadSafe reports whether the plug-in's executable may be unloaded:
// no live instances and no enabled factories.
func (p *PlugIn) UnloadSafe() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instanceCount > 0 {
		return false
	}
	for _, f := range p.factories {
		if f.Enabled() {
			return false
		}
	}
	return true
}

// ExecutableDidLoad runs after the owning bundle loads its executable.
// It changes no state: factories stay enabled across unloads.
func (p *PlugIn) ExecutableDidLoad() {
	// Factories become eligible as soon as the image is resident;
	// nothing to flip today, the hook exists for symmetry with unload.
}

// ExecutableWillUnload flushes function pointers cached from the dying
// image; late-bound factories re-resolve on next use.
func (p *PlugIn) ExecutableWillUnload() {
	p.mu.Lock()
	factories := append([]*Factory(nil), p.factories...)
	p.mu.Unlock()
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, f := range factories {
		if f.funcName != "" {
			f.fn = nil
		}
	}
}

// Detach disables every factory and severs the host link; called when
// the owning bundle is being destroyed.
func (p *PlugIn) Detach() {
	p.mu.Lock()
	p.detached = true
	factories := append([]*Factory(nil), p.factories...)
	p.mu.Unlock()
	for _, f := range factories {
		f.disable()
	}
}
