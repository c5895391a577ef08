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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBackendLifecycle(t *testing.T) {
	fake := NewFakeBackend()
	fake.RegisterSymbol("/img/a.so", "Entry", 0x1000)

	_, ok := fake.CheckLoaded("/img/a.so")
	assert.False(t, ok)

	h, err := fake.Load("/img/a.so", BindLazy|ScopeLocal)
	require.NoError(t, err)

	addr, ok := fake.Lookup(h, "Entry")
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1000), addr)

	_, ok = fake.Lookup(h, "Nope")
	assert.False(t, ok)

	resident, ok := fake.CheckLoaded("/img/a.so")
	require.True(t, ok)
	assert.Equal(t, h, resident)

	images := fake.LoadedImages()
	require.Len(t, images, 1)
	assert.Equal(t, "/img/a.so", images[0].Path)

	require.NoError(t, fake.Unload(h))
	_, ok = fake.CheckLoaded("/img/a.so")
	assert.False(t, ok)

	// Symbols die with the image.
	_, ok = fake.Lookup(h, "Entry")
	assert.False(t, ok)
}

func TestFakeBackendRefCounting(t *testing.T) {
	fake := NewFakeBackend()
	h1, err := fake.Load("/img/b.so", 0)
	require.NoError(t, err)
	h2, err := fake.Load("/img/b.so", 0)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "same path shares one image")

	require.NoError(t, fake.Unload(h1))
	assert.True(t, fake.IsLoaded("/img/b.so"))
	require.NoError(t, fake.Unload(h2))
	assert.False(t, fake.IsLoaded("/img/b.so"))
}

func TestFakeBackendForcedFailure(t *testing.T) {
	fake := NewFakeBackend()
	fake.FailLoads("/img/c.so", NewLoadError(ErrLink, "/img/c.so", "unresolved symbol"))

	err := fake.Preflight("/img/c.so")
	require.Error(t, err)

	_, err = fake.Load("/img/c.so", 0)
	require.Error(t, err)
	lerr, ok := err.(*LoadError)
	require.True(t, ok)
	assert.Equal(t, ErrLink, lerr.Kind)
}

func TestLoadErrorWording(t *testing.T) {
	kinds := []ErrorKind{ErrNotFound, ErrNotLoadable, ErrArchMismatch, ErrRuntimeMismatch, ErrLoad, ErrLink}
	for _, kind := range kinds {
		e := NewLoadError(kind, "/x/exe", "diag")
		assert.NotEmpty(t, e.Description, kind.String())
		assert.NotEmpty(t, e.Reason, kind.String())
		assert.NotEmpty(t, e.Suggestion, kind.String())
		assert.Contains(t, e.Error(), kind.String())
		assert.Contains(t, e.Error(), "diag")
	}
}

func TestHostOverride(t *testing.T) {
	fake := NewFakeBackend()
	SetHost(fake)
	t.Cleanup(func() { SetHost(nil) })
	assert.Equal(t, "fake", Host().Name())
}
