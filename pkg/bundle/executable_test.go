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

package bundle

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/bundlekit/pkg/binmagic"
	"github.com/kraklabs/bundlekit/pkg/loader"
)

// installFakeLoader swaps the host loader for a fake for one test.
func installFakeLoader(t *testing.T) *loader.FakeBackend {
	t.Helper()
	fake := loader.NewFakeBackend()
	loader.SetHost(fake)
	t.Cleanup(func() { loader.SetHost(nil) })
	return fake
}

func TestLoadUnloadLifecycle(t *testing.T) {
	fake := installFakeLoader(t)
	root := makeIdentifiedBundle(t, "com.example.lifecycle", "1.0.0")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	require.False(t, b.IsLoaded())
	require.NoError(t, b.Load())
	assert.True(t, b.IsLoaded())
	assert.True(t, fake.IsLoaded(b.ExecutablePath()), "back-end must report a live handle")

	// Loading twice is idempotent.
	require.NoError(t, b.Load())
	assert.Equal(t, 1, fake.LoadCount)

	require.NoError(t, b.Unload())
	assert.False(t, b.IsLoaded())
	assert.False(t, fake.IsLoaded(b.ExecutablePath()))

	// Unloading when not loaded is a no-op.
	require.NoError(t, b.Unload())
	assert.Equal(t, 1, fake.UnloadCount)
}

func TestFunctionLookup(t *testing.T) {
	fake := installFakeLoader(t)
	root := makeIdentifiedBundle(t, "com.example.symbols", "1.0.0")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	fake.RegisterSymbol(b.ExecutablePath(), "DoThing", 0xdead)

	// Function loads on demand.
	addr, ok := b.Function("DoThing")
	require.True(t, ok)
	assert.Equal(t, uintptr(0xdead), addr)
	assert.True(t, b.IsLoaded())

	_, ok = b.Function("Missing")
	assert.False(t, ok)
}

func TestPreflightFailures(t *testing.T) {
	fake := installFakeLoader(t)
	root := makeIdentifiedBundle(t, "com.example.preflight", "1.0.0")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Preflight())

	fake.FailLoads(b.ExecutablePath(), loader.NewLoadError(loader.ErrArchMismatch, b.ExecutablePath(), "no matching slice"))
	err = b.Preflight()
	require.Error(t, err)
	lerr, ok := err.(*loader.LoadError)
	require.True(t, ok)
	assert.Equal(t, loader.ErrArchMismatch, lerr.Kind)
	assert.Equal(t, b.Path(), lerr.BundlePath)
	assert.NotEmpty(t, lerr.Description)
	assert.NotEmpty(t, lerr.Suggestion)

	err = b.Load()
	require.Error(t, err)
	assert.False(t, b.IsLoaded())
}

func TestPreflightMissingExecutable(t *testing.T) {
	installFakeLoader(t)
	root := t.TempDir()
	writeInfoPlist(t, makeContentsInfoPath(root), map[string]string{
		InfoKeyExecutable: "ghost",
	})

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	err = b.Preflight()
	require.Error(t, err)
	lerr, ok := err.(*loader.LoadError)
	require.True(t, ok)
	assert.Equal(t, loader.ErrNotFound, lerr.Kind)
}

func makeContentsInfoPath(root string) string {
	return filepath.Join(root, "Contents", "Info.plist")
}

// makeMachOBundle writes a layout-2 bundle whose executable is a
// minimal little-endian 64-bit Mach-O loadable bundle for cpuType.
func makeMachOBundle(t *testing.T, identifier string, cpuType int32) *Bundle {
	t.Helper()
	root := t.TempDir()
	writeInfoPlist(t, makeContentsInfoPath(root), map[string]string{
		InfoKeyExecutable: "demo",
		InfoKeyIdentifier: identifier,
	})
	mkdirs(t, root, "Contents/"+PlatformExecutablesSubdir())

	// mach_header_64: magic, cputype, cpusubtype, filetype=MH_BUNDLE,
	// ncmds=0, sizeofcmds=0, flags, reserved.
	header := make([]byte, 32)
	binary.LittleEndian.PutUint32(header[0:], 0xfeedfacf)
	binary.LittleEndian.PutUint32(header[4:], uint32(cpuType))
	binary.LittleEndian.PutUint32(header[8:], 3)
	binary.LittleEndian.PutUint32(header[12:], 0x8)
	exe := filepath.Join(root, "Contents", PlatformExecutablesSubdir(), "demo")
	require.NoError(t, os.WriteFile(exe, header, 0o755))

	b, err := New(root)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

// TestArchitectureMismatch: a Mach-O whose only slice matches no host
// architecture fails preflight and load with architecture-mismatch
// before the back-end is consulted.
func TestArchitectureMismatch(t *testing.T) {
	fake := installFakeLoader(t)

	// A CPU type no host preference table contains.
	const bogusCPUType = 0x99
	b := makeMachOBundle(t, "com.example.archmismatch", bogusCPUType)

	err := b.Preflight()
	require.Error(t, err)
	lerr, ok := err.(*loader.LoadError)
	require.True(t, ok)
	assert.Equal(t, loader.ErrArchMismatch, lerr.Kind)
	assert.Equal(t, b.Path(), lerr.BundlePath)

	err = b.Load()
	require.Error(t, err)
	lerr, ok = err.(*loader.LoadError)
	require.True(t, ok)
	assert.Equal(t, loader.ErrArchMismatch, lerr.Kind)
	assert.False(t, b.IsLoaded())
	assert.Equal(t, 0, fake.LoadCount, "the back-end must not see a mismatched image")
}

// TestArchitectureMatchLoads: a slice for the host's own architecture
// passes the check and reaches the back-end.
func TestArchitectureMatchLoads(t *testing.T) {
	hostArches := binmagic.HostArchitectures()
	if len(hostArches) == 0 {
		t.Skip("host architecture not in the selector table")
	}
	fake := installFakeLoader(t)
	b := makeMachOBundle(t, "com.example.archmatch", hostArches[0])

	require.NoError(t, b.Preflight())
	require.NoError(t, b.Load())
	assert.True(t, b.IsLoaded())
	assert.Equal(t, 1, fake.LoadCount)
	require.NoError(t, b.Unload())
}

func TestScheduledUnload(t *testing.T) {
	fake := installFakeLoader(t)
	root := makeIdentifiedBundle(t, "com.example.scheduled", "1.0.0")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Load())
	b.ScheduleUnload()
	assert.True(t, b.IsLoaded(), "scheduling does not unload immediately")

	UnloadScheduledBundles()
	assert.False(t, b.IsLoaded())
	assert.False(t, fake.IsLoaded(b.ExecutablePath()))
}

// TestReloadCancelsScheduledUnload: reloading a scheduled-for-unload
// bundle is a supported idempotent operation.
func TestReloadCancelsScheduledUnload(t *testing.T) {
	installFakeLoader(t)
	root := makeIdentifiedBundle(t, "com.example.rescheduled", "1.0.0")

	b, err := New(root)
	require.NoError(t, err)
	defer b.Release()

	require.NoError(t, b.Load())
	b.ScheduleUnload()
	require.NoError(t, b.Load())

	UnloadScheduledBundles()
	assert.True(t, b.IsLoaded(), "reload must cancel the scheduled unload")
	require.NoError(t, b.Unload())
}
