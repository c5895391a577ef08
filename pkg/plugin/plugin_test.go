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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost implements Host for registry tests.
type fakeHost struct {
	path            string
	unloadsSchedule int
	factories       map[string]FactoryFunc
}

func (h *fakeHost) Path() string { return h.path }

func (h *fakeHost) ScheduleUnload() { h.unloadsSchedule++ }

func (h *fakeHost) ResolveFactoryFunction(name string) (FactoryFunc, bool) {
	fn, ok := h.factories[name]
	return fn, ok
}

type widget struct{ kind uuid.UUID }

func makeWidgetFactory() FactoryFunc {
	return func(typeID uuid.UUID) (interface{}, error) {
		return &widget{kind: typeID}, nil
	}
}

// TestFactoryLifecycle is the end-to-end scenario: register, create two
// instances, unregister, release both; the factory dies with the last
// instance and the plug-in becomes unload-eligible.
func TestFactoryLifecycle(t *testing.T) {
	host := &fakeHost{path: "/fake/plugin"}
	p := NewPlugIn(host, true)

	factoryID := uuid.New()
	typeID := uuid.New()

	f := p.RegisterFactory(factoryID, makeWidgetFactory())
	f.AddType(typeID)

	require.Equal(t, []uuid.UUID{factoryID}, FactoriesForType(typeID))

	i1, err := CreateInstance(factoryID, typeID)
	require.NoError(t, err)
	i2, err := CreateInstance(factoryID, typeID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.InstanceCount())
	assert.Equal(t, 2, p.InstanceCount())

	UnregisterFactory(factoryID)
	assert.Empty(t, FactoriesForType(typeID), "disabled factories are not discoverable")
	_, err = CreateInstance(factoryID, typeID)
	assert.Error(t, err, "no new instances through a disabled factory")

	// Existing instances continue to function.
	w, ok := i1.Value().(*widget)
	require.True(t, ok)
	assert.Equal(t, typeID, w.kind)

	i1.Release()
	assert.Equal(t, 1, f.InstanceCount(), "factory survives while instances remain")
	assert.Nil(t, FindFactory(factoryID), "disabled factory is not reachable by ID")

	i2.Release()
	assert.Equal(t, 0, f.InstanceCount())
	assert.Empty(t, p.Factories(), "destroyed factory detached from its plug-in")
	assert.Equal(t, 1, host.unloadsSchedule, "last instance schedules the plug-in unload")
	assert.True(t, p.UnloadSafe())
}

// TestFactoryReplacement: re-registering an ID replaces the previous
// factory.
func TestFactoryReplacement(t *testing.T) {
	factoryID := uuid.New()
	typeID := uuid.New()

	first := RegisterFactory(factoryID, makeWidgetFactory())
	first.AddType(typeID)
	second := RegisterFactory(factoryID, func(uuid.UUID) (interface{}, error) {
		return "second", nil
	})
	second.AddType(typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	assert.Same(t, second, FindFactory(factoryID))
	assert.Equal(t, []uuid.UUID{factoryID}, FactoriesForType(typeID))

	inst, err := CreateInstance(factoryID, typeID)
	require.NoError(t, err)
	defer inst.Release()
	assert.Equal(t, "second", inst.Value())
}

// TestCreateInstance_TypeChecks: the factory must be enabled and
// support the requested type.
func TestCreateInstance_TypeChecks(t *testing.T) {
	factoryID := uuid.New()
	typeID := uuid.New()
	otherType := uuid.New()

	f := RegisterFactory(factoryID, makeWidgetFactory())
	f.AddType(typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	_, err := CreateInstance(factoryID, otherType)
	assert.Error(t, err)

	_, err = CreateInstance(uuid.New(), typeID)
	assert.Error(t, err)
}

// TestLateBoundFactory: a name-registered factory resolves its function
// through the host on first use.
func TestLateBoundFactory(t *testing.T) {
	typeID := uuid.New()
	factoryID := uuid.New()

	host := &fakeHost{
		path: "/fake/late",
		factories: map[string]FactoryFunc{
			"CreateWidget": makeWidgetFactory(),
		},
	}
	p := NewPlugIn(host, true)
	require.NoError(t, p.RegisterFactoryByName(factoryID.String(), "CreateWidget"))
	RegisterType(factoryID, typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	inst, err := CreateInstance(factoryID, typeID)
	require.NoError(t, err)
	defer inst.Release()
	_, ok := inst.Value().(*widget)
	assert.True(t, ok)
}

// TestLateBoundFactory_ResolutionFailure surfaces the missing-symbol
// case as an error.
func TestLateBoundFactory_ResolutionFailure(t *testing.T) {
	typeID := uuid.New()
	factoryID := uuid.New()

	host := &fakeHost{path: "/fake/broken"}
	p := NewPlugIn(host, true)
	require.NoError(t, p.RegisterFactoryByName(factoryID.String(), "Missing"))
	RegisterType(factoryID, typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	_, err := CreateInstance(factoryID, typeID)
	assert.Error(t, err)
}

// TestFactoryErrorPropagation: factory function failures surface to the
// caller and leave the counts untouched.
func TestFactoryErrorPropagation(t *testing.T) {
	factoryID := uuid.New()
	typeID := uuid.New()

	f := RegisterFactory(factoryID, func(uuid.UUID) (interface{}, error) {
		return nil, fmt.Errorf("boom")
	})
	f.AddType(typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	_, err := CreateInstance(factoryID, typeID)
	require.Error(t, err)
	assert.Equal(t, 0, f.InstanceCount())
}

// TestInstanceRetainRelease: only the final release detaches.
func TestInstanceRetainRelease(t *testing.T) {
	factoryID := uuid.New()
	typeID := uuid.New()

	f := RegisterFactory(factoryID, makeWidgetFactory())
	f.AddType(typeID)
	t.Cleanup(func() { UnregisterFactory(factoryID) })

	inst, err := CreateInstance(factoryID, typeID)
	require.NoError(t, err)
	inst.Retain()
	inst.Release()
	assert.Equal(t, 1, f.InstanceCount())
	inst.Release()
	assert.Equal(t, 0, f.InstanceCount())
}

// TestNamedFunctionRegistry: native Go factory functions bind by name.
func TestNamedFunctionRegistry(t *testing.T) {
	RegisterNamedFunction("native.widget", makeWidgetFactory())
	fn, ok := NamedFactoryFunction("native.widget")
	require.True(t, ok)
	v, err := fn(uuid.New())
	require.NoError(t, err)
	assert.IsType(t, &widget{}, v)

	_, ok = NamedFactoryFunction("absent")
	assert.False(t, ok)
}
