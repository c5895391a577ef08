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

package binmagic

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.embedded</string>
</dict>
</plist>
`

// buildMachO64 constructs a minimal little-endian 64-bit Mach-O image
// with one __TEXT segment holding an __info_plist section.
func buildMachO64(filetype uint32, cpuType int32, plistPayload []byte) []byte {
	const (
		headerSize  = 32
		segmentSize = 72
		sectionSize = 80
		contentOff  = 512
	)
	le := binary.LittleEndian
	buf := make([]byte, contentOff+len(plistPayload))

	// mach_header_64
	le.PutUint32(buf[0:], 0xfeedfacf)
	le.PutUint32(buf[4:], uint32(cpuType))
	le.PutUint32(buf[8:], 3) // cpusubtype
	le.PutUint32(buf[12:], filetype)
	le.PutUint32(buf[16:], 1)                       // ncmds
	le.PutUint32(buf[20:], segmentSize+sectionSize) // sizeofcmds

	// LC_SEGMENT_64
	cmd := buf[headerSize:]
	le.PutUint32(cmd[0:], 0x19)
	le.PutUint32(cmd[4:], segmentSize+sectionSize)
	copy(cmd[8:24], "__TEXT")
	le.PutUint32(cmd[64:], 1) // nsects

	// section_64
	sect := cmd[segmentSize:]
	copy(sect[0:16], "__info_plist")
	copy(sect[16:32], "__TEXT")
	le.PutUint64(sect[40:], uint64(len(plistPayload))) // size
	le.PutUint32(sect[48:], contentOff)                // offset

	copy(buf[contentOff:], plistPayload)
	return buf
}

func TestGrokMachOBundle(t *testing.T) {
	data := buildMachO64(machTypeBundle, cpuTypeX86_64, []byte(testPlist))
	info := GrokData(data)

	assert.Equal(t, BinaryMachBundle, info.Type)
	assert.Equal(t, "bundle", info.Extension)
	assert.Equal(t, []int32{cpuTypeX86_64}, info.Architectures)
	require.NotNil(t, info.InfoDict, "embedded info plist must be extracted")
	assert.Equal(t, "com.example.embedded", info.InfoDict["CFBundleIdentifier"])
}

func TestGrokMachOKinds(t *testing.T) {
	cases := []struct {
		filetype uint32
		wantType BinaryType
		wantExt  string
	}{
		{machTypeObject, BinaryMachObject, "o"},
		{machTypeExecute, BinaryMachExecutable, "tool"},
		{machTypeCore, BinaryMachCore, "core"},
		{machTypeDylib, BinaryMachDylib, "dylib"},
		{machTypeBundle, BinaryMachBundle, "bundle"},
	}
	for _, tc := range cases {
		info := GrokData(buildMachO64(tc.filetype, cpuTypeARM64, nil))
		assert.Equal(t, tc.wantType, info.Type, "filetype %#x", tc.filetype)
		assert.Equal(t, tc.wantExt, info.Extension, "filetype %#x", tc.filetype)
	}
}

// TestGrokFatFile: the fat header yields every slice's architecture and
// recurses into the selected slice.
func TestGrokFatFile(t *testing.T) {
	sliceA := buildMachO64(machTypeBundle, cpuTypeX86_64, nil)
	sliceB := buildMachO64(machTypeBundle, cpuTypeARM64, nil)

	be := binary.BigEndian
	const sliceAOff = 4096
	sliceBOff := sliceAOff + len(sliceA)

	fat := make([]byte, sliceBOff+len(sliceB))
	be.PutUint32(fat[0:], fatMagic)
	be.PutUint32(fat[4:], 2)
	// fat_arch entries
	be.PutUint32(fat[8:], uint32(cpuTypeX86_64))
	be.PutUint32(fat[16:], sliceAOff)
	be.PutUint32(fat[20:], uint32(len(sliceA)))
	be.PutUint32(fat[28:], uint32(cpuTypeARM64))
	be.PutUint32(fat[36:], uint32(sliceBOff))
	be.PutUint32(fat[40:], uint32(len(sliceB)))
	copy(fat[sliceAOff:], sliceA)
	copy(fat[sliceBOff:], sliceB)

	info := GrokData(fat)
	assert.Equal(t, BinaryMachBundle, info.Type)
	assert.Equal(t, "bundle", info.Extension)
	assert.ElementsMatch(t, []int32{cpuTypeX86_64, cpuTypeARM64}, info.Architectures)
}

// TestGrokJavaClass: the fat magic with a non-zero minor version is a
// Java class file, not a fat Mach-O.
func TestGrokJavaClass(t *testing.T) {
	data := []byte{0xca, 0xfe, 0xba, 0xbe, 0x00, 0x34, 0x00, 0x3e}
	info := GrokData(data)
	assert.Equal(t, "class", info.Extension)
	assert.Equal(t, BinaryUnknown, info.Type)
}

func TestGrokPEFAndELF(t *testing.T) {
	pef := append([]byte("Joy!peff"), make([]byte, 40)...)
	info := GrokData(pef)
	assert.Equal(t, BinaryPEF, info.Type)
	assert.Equal(t, "pef", info.Extension)

	elf := append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, make([]byte, 56)...)
	info = GrokData(elf)
	assert.Equal(t, BinaryELF, info.Type)
	assert.Equal(t, "elf", info.Extension)
}

// TestGrokZeroLength: a zero-length file classifies as txt.
func TestGrokZeroLength(t *testing.T) {
	info := GrokData(nil)
	assert.Equal(t, "txt", info.Extension)

	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	ext, ok := FileType(path)
	require.True(t, ok)
	assert.Equal(t, "txt", ext)
}

func TestGrokPlainTextAndScripts(t *testing.T) {
	info := GrokData([]byte("just some plain text\nwith lines\n"))
	assert.Equal(t, "txt", info.Extension)

	info = GrokData([]byte("#!/usr/bin/python\nprint('hi')\n"))
	assert.Equal(t, "py", info.Extension)

	info = GrokData([]byte("#!/bin/sh\necho hi\n"))
	assert.Equal(t, "sh", info.Extension)

	info = GrokData([]byte("#!/usr/bin/perl -w\nprint\n"))
	assert.Equal(t, "pl", info.Extension)
}

func TestGrokXMLAndPlist(t *testing.T) {
	info := GrokData([]byte(`<?xml version="1.0"?><root/>`))
	assert.Equal(t, "xml", info.Extension)

	info = GrokData([]byte(testPlist))
	assert.Equal(t, "plist", info.Extension)

	info = GrokData([]byte("bplist00\x00\x00"))
	assert.Equal(t, "plist", info.Extension)
}

// TestGrokPNGDiscriminator: the PNG magic requires its full signature.
func TestGrokPNGDiscriminator(t *testing.T) {
	good := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0}
	info := GrokData(good)
	assert.Equal(t, "png", info.Extension)

	bad := []byte{0x89, 'P', 'N', 'G', 0xff, 0xff, 0xff, 0xff, 0, 0}
	info = GrokData(bad)
	assert.NotEqual(t, "png", info.Extension)
}

// TestGrokZipKinds: a plain zip stays zip; a manifest makes it a jar.
func TestGrokZipKinds(t *testing.T) {
	makeZipEntry := func(name string) []byte {
		entry := make([]byte, 30+len(name))
		copy(entry[0:4], []byte{0x50, 0x4b, 0x03, 0x04})
		binary.LittleEndian.PutUint16(entry[26:28], uint16(len(name)))
		copy(entry[30:], name)
		return entry
	}

	jar := append(makeZipEntry("META-INF/MANIFEST.MF"), make([]byte, 64)...)
	info := GrokData(jar)
	assert.Equal(t, "jar", info.Extension)

	plain := append(makeZipEntry("hello.txt"), make([]byte, 64)...)
	info = GrokData(plain)
	assert.Equal(t, "zip", info.Extension)
}

func TestGrokUnknownBinary(t *testing.T) {
	info := GrokData([]byte{0x00, 0x11, 0xa2, 0xb3, 0xc4, 0xd5, 0xe6, 0xf7})
	assert.Equal(t, BinaryUnknown, info.Type)
}

func TestGrokFileUnreadable(t *testing.T) {
	info, err := GrokFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, BinaryUnreadable, info.Type)
}

func TestGrokBinaryTypeDLLSuffix(t *testing.T) {
	assert.Equal(t, BinaryDLL, GrokBinaryType("C:/thing/foo.DLL"))
	assert.Equal(t, BinaryNone, GrokBinaryType(""))
}

func TestImageInfoExtraction(t *testing.T) {
	// Add an __objc_imageinfo section alongside the plist section.
	le := binary.LittleEndian
	base := buildMachO64(machTypeBundle, cpuTypeX86_64, []byte(testPlist))

	// Rewrite as a two-section segment: easier to rebuild from scratch.
	const (
		headerSize  = 32
		segmentSize = 72
		sectionSize = 80
		infoOff     = 1024
	)
	buf := make([]byte, infoOff+8)
	copy(buf, base[:headerSize])
	le.PutUint32(buf[20:], segmentSize+sectionSize) // sizeofcmds unchanged

	cmd := buf[headerSize:]
	le.PutUint32(cmd[0:], 0x19)
	le.PutUint32(cmd[4:], segmentSize+sectionSize)
	copy(cmd[8:24], "__DATA")
	le.PutUint32(cmd[64:], 1)

	sect := cmd[segmentSize:]
	copy(sect[0:16], "__objc_imageinfo")
	copy(sect[16:32], "__DATA")
	le.PutUint64(sect[40:], 8)
	le.PutUint32(sect[48:], infoOff)
	le.PutUint32(buf[infoOff:], 2)      // version
	le.PutUint32(buf[infoOff+4:], 0x42) // flags

	info := GrokData(buf)
	assert.True(t, info.HasObjC)
	assert.Equal(t, uint32(2), info.ObjCVersion)
	assert.Equal(t, uint32(0x42), info.ObjCFlags)
}

func TestGrokTrailingGarbageTolerated(t *testing.T) {
	data := buildMachO64(machTypeDylib, cpuTypeARM64, nil)
	data = append(data, bytes.Repeat([]byte{0xaa}, 128)...)
	info := GrokData(data)
	assert.Equal(t, BinaryMachDylib, info.Type)
}
