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
	"sync"
)

// FakeBackend is an in-memory loader for tests. Images are "loaded" by
// path; symbols are registered per path ahead of time.
type FakeBackend struct {
	mu       sync.Mutex
	nextID   uintptr
	symbols  map[string]map[string]uintptr // path -> symbol -> addr
	loaded   map[string]*fakeImage         // path -> image
	byHandle map[uintptr]*fakeImage
	failWith map[string]*LoadError // path -> forced failure

	// LoadCount and UnloadCount track back-end traffic for assertions.
	LoadCount   int
	UnloadCount int
}

type fakeImage struct {
	path string
	id   uintptr
	refs int
}

// NewFakeBackend creates an empty fake loader.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		nextID:   1,
		symbols:  make(map[string]map[string]uintptr),
		loaded:   make(map[string]*fakeImage),
		byHandle: make(map[uintptr]*fakeImage),
		failWith: make(map[string]*LoadError),
	}
}

// Name identifies the back-end.
func (b *FakeBackend) Name() string { return "fake" }

// RegisterSymbol makes symbol resolvable at addr once path is loaded.
func (b *FakeBackend) RegisterSymbol(path, symbol string, addr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.symbols[path] == nil {
		b.symbols[path] = make(map[string]uintptr)
	}
	b.symbols[path][symbol] = addr
}

// FailLoads forces Load and Preflight for path to fail with err.
func (b *FakeBackend) FailLoads(path string, err *LoadError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith[path] = err
}

// IsLoaded reports whether path currently has a live image.
func (b *FakeBackend) IsLoaded(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.loaded[path]
	return ok && img.refs > 0
}

// Preflight honors forced failures and otherwise succeeds.
func (b *FakeBackend) Preflight(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failWith[path]; ok {
		return err
	}
	return nil
}

// Load records the image as loaded and hands back a handle.
func (b *FakeBackend) Load(path string, _ Mode) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failWith[path]; ok {
		return nil, err
	}
	img, ok := b.loaded[path]
	if !ok {
		img = &fakeImage{path: path, id: b.nextID}
		b.nextID++
		b.loaded[path] = img
		b.byHandle[img.id] = img
	}
	img.refs++
	b.LoadCount++
	return img.id, nil
}

// Lookup resolves a registered symbol.
func (b *FakeBackend) Lookup(handle Handle, symbol string) (uintptr, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := handle.(uintptr)
	if !ok {
		return 0, false
	}
	img, ok := b.byHandle[id]
	if !ok || img.refs <= 0 {
		return 0, false
	}
	addr, ok := b.symbols[img.path][symbol]
	return addr, ok
}

// Unload drops one reference, discarding the image at zero.
func (b *FakeBackend) Unload(handle Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := handle.(uintptr)
	if !ok {
		return nil
	}
	img, ok := b.byHandle[id]
	if !ok {
		return nil
	}
	img.refs--
	b.UnloadCount++
	if img.refs <= 0 {
		delete(b.loaded, img.path)
		delete(b.byHandle, img.id)
	}
	return nil
}

// CheckLoaded reports residency without loading.
func (b *FakeBackend) CheckLoaded(path string) (Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.loaded[path]
	if !ok || img.refs <= 0 {
		return nil, false
	}
	return img.id, true
}

// LoadedImages lists the live images.
func (b *FakeBackend) LoadedImages() []Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	images := make([]Image, 0, len(b.loaded))
	for _, img := range b.loaded {
		images = append(images, Image{Path: img.path, Base: img.id})
	}
	return images
}
