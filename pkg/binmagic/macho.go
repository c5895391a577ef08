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
	"io"
	"runtime"

	"howett.net/plist"
)

// Magic numbers as read big-endian from the first four bytes. The
// reversed ("cigam") forms indicate a little-endian image.
const (
	machMagic32 = 0xfeedface
	machCigam32 = 0xcefaedfe
	machMagic64 = 0xfeedfacf
	machCigam64 = 0xcffaedfe
	fatMagic    = 0xcafebabe
	fatCigam    = 0xbebafeca
	pefMagic    = 0x4a6f7921 // "Joy!"
	pefCigam    = 0x21796f4a
	elfMagic    = 0x7f454c46
)

// Mach-O file types, plus a synthetic value for PEF containers.
const (
	machTypeUnknown = 0
	machTypeObject  = 0x1
	machTypeExecute = 0x2
	machTypeCore    = 0x4
	machTypeDylib   = 0x6
	machTypeBundle  = 0x8
	machTypePEF     = 0x1000
)

// Load commands and CPU types.
const (
	loadCmdSegment   = 0x1
	loadCmdSegment64 = 0x19
	loadCmdLoadDylib = 0xc

	cpuArchABI64  = 0x01000000
	cpuTypeX86    = 7
	cpuTypeX86_64 = cpuTypeX86 | cpuArchABI64
	cpuTypeARM    = 12
	cpuTypeARM64  = cpuTypeARM | cpuArchABI64
	cpuTypePPC    = 18
	cpuTypePPC64  = cpuTypePPC | cpuArchABI64
)

// Segment/section names searched for embedded payloads.
const (
	textSegment        = "__TEXT"
	plistSection       = "__info_plist"
	objcSegment        = "__OBJC"
	imageInfoSection   = "__image_info"
	objcSegment64      = "__DATA"
	imageInfoSection64 = "__objc_imageinfo"
	libX11Prefix       = "/usr/X11R6/lib/libX"
)

// Fixed structure sizes from the Mach-O ABI.
const (
	machHeaderSize32  = 28
	machHeaderSize64  = 32
	segmentCmdSize32  = 56
	segmentCmdSize64  = 72
	sectionSize32     = 68
	sectionSize64     = 80
	fatHeaderSize     = 8
	fatArchSize       = 20
	maxCommandBytes   = 4096
	dylibCmdNameBytes = 24
	maxEmbeddedPlist  = 1 << 20
)

// machGrokResult aggregates everything extractable from one thin image.
type machGrokResult struct {
	machType    uint32
	cpuType     int32
	infoDict    map[string]interface{}
	hasObjC     bool
	objcVersion uint32
	objcFlags   uint32
	isX11       bool
}

// machOrderForMagic maps a big-endian read of the magic to the image's
// byte order and width. ok is false for non-thin magics.
func machOrderForMagic(magic uint32) (order binary.ByteOrder, sixtyFour, ok bool) {
	switch magic {
	case machMagic32:
		return binary.BigEndian, false, true
	case machCigam32:
		return binary.LittleEndian, false, true
	case machMagic64:
		return binary.BigEndian, true, true
	case machCigam64:
		return binary.LittleEndian, true, true
	}
	return nil, false, false
}

// grokMachThin parses a thin Mach-O image starting at offset within r.
// It walks the load commands to locate the __TEXT,__info_plist section
// and the __OBJC,__image_info (or 64-bit equivalent) section.
func grokMachThin(r io.ReaderAt, offset int64, order binary.ByteOrder, sixtyFour bool) machGrokResult {
	result := machGrokResult{machType: machTypeUnknown}

	headerSize := machHeaderSize32
	if sixtyFour {
		headerSize = machHeaderSize64
	}
	header := make([]byte, headerSize)
	if _, err := r.ReadAt(header, offset); err != nil {
		return result
	}

	// mach_header: magic, cputype, cpusubtype, filetype, ncmds, sizeofcmds, flags
	result.cpuType = int32(order.Uint32(header[4:8]))
	result.machType = order.Uint32(header[12:16])
	ncmds := order.Uint32(header[16:20])
	sizeofcmds := order.Uint32(header[20:24])

	if sizeofcmds > maxCommandBytes {
		sizeofcmds = maxCommandBytes
	}
	cmds := make([]byte, sizeofcmds)
	if n, err := r.ReadAt(cmds, offset+int64(headerSize)); err != nil {
		if n == 0 {
			return result
		}
		cmds = cmds[:n]
	}

	pos := 0
	for i := uint32(0); i < ncmds && pos+8 <= len(cmds); i++ {
		cmd := order.Uint32(cmds[pos : pos+4])
		cmdsize := int(order.Uint32(cmds[pos+4 : pos+8]))
		if cmdsize < 8 || pos+cmdsize > len(cmds) {
			break
		}
		body := cmds[pos : pos+cmdsize]

		switch {
		case cmd == loadCmdSegment && !sixtyFour:
			result.scanSegment32(r, offset, body, order)
		case cmd == loadCmdSegment64 && sixtyFour:
			result.scanSegment64(r, offset, body, order)
		case cmd == loadCmdLoadDylib && result.machType == machTypeExecute:
			if cmdsize > dylibCmdNameBytes {
				name := body[dylibCmdNameBytes:]
				if n := bytes.IndexByte(name, 0); n >= 0 {
					name = name[:n]
				}
				if bytes.HasPrefix(name, []byte(libX11Prefix)) {
					result.isX11 = true
				}
			}
		}
		pos += cmdsize
	}
	return result
}

func (g *machGrokResult) scanSegment32(r io.ReaderAt, base int64, body []byte, order binary.ByteOrder) {
	if len(body) < segmentCmdSize32 {
		return
	}
	segName := cString(body[8:24])
	nsects := int(order.Uint32(body[48:52]))
	for i := 0; i < nsects; i++ {
		off := segmentCmdSize32 + i*sectionSize32
		if off+sectionSize32 > len(body) {
			return
		}
		sect := body[off : off+sectionSize32]
		sectName := cString(sect[0:16])
		sectLength := int64(order.Uint32(sect[40:44]))
		sectOffset := int64(order.Uint32(sect[48:52]))
		g.noteSection(r, base, segName, sectName, sectOffset, sectLength, order)
	}
}

func (g *machGrokResult) scanSegment64(r io.ReaderAt, base int64, body []byte, order binary.ByteOrder) {
	if len(body) < segmentCmdSize64 {
		return
	}
	segName := cString(body[8:24])
	nsects := int(order.Uint32(body[64:68]))
	for i := 0; i < nsects; i++ {
		off := segmentCmdSize64 + i*sectionSize64
		if off+sectionSize64 > len(body) {
			return
		}
		sect := body[off : off+sectionSize64]
		sectName := cString(sect[0:16])
		sectLength := int64(order.Uint64(sect[40:48]))
		sectOffset := int64(order.Uint32(sect[48:52]))
		g.noteSection(r, base, segName, sectName, sectOffset, sectLength, order)
	}
}

// noteSection captures the embedded info plist or the image-info words
// when the visited section is one of the recognized pairs.
func (g *machGrokResult) noteSection(r io.ReaderAt, base int64, segName, sectName string, offset, length int64, order binary.ByteOrder) {
	if length <= 0 || offset <= 0 {
		return
	}
	switch {
	case segName == textSegment && sectName == plistSection && g.infoDict == nil:
		if length > maxEmbeddedPlist {
			return
		}
		data := make([]byte, length)
		if _, err := r.ReadAt(data, base+offset); err != nil {
			return
		}
		var dict map[string]interface{}
		if _, err := plist.Unmarshal(data, &dict); err == nil {
			g.infoDict = dict
		}
	case (segName == objcSegment && sectName == imageInfoSection) ||
		(segName == objcSegment64 && sectName == imageInfoSection64):
		if length < 8 {
			return
		}
		words := make([]byte, 8)
		if _, err := r.ReadAt(words, base+offset); err != nil {
			return
		}
		g.hasObjC = true
		g.objcVersion = order.Uint32(words[0:4])
		g.objcFlags = order.Uint32(words[4:8])
	}
}

// fatArch is one slice descriptor in a fat header.
type fatArch struct {
	cpuType    int32
	cpuSubtype int32
	offset     uint32
	size       uint32
	align      uint32
}

// HostArchitectures lists the CPU types the current host can execute,
// preferred first. Empty when the host architecture is not in the
// selector table.
func HostArchitectures() []int32 {
	return append([]int32(nil), hostArchPreference()...)
}

// hostArchPreference lists acceptable CPU types for the current host in
// preference order; it stands in for the fat-arch selector table.
func hostArchPreference() []int32 {
	switch runtime.GOARCH {
	case "amd64":
		return []int32{cpuTypeX86_64, cpuTypeX86}
	case "386":
		return []int32{cpuTypeX86}
	case "arm64":
		return []int32{cpuTypeARM64, cpuTypeARM}
	case "arm":
		return []int32{cpuTypeARM}
	case "ppc64":
		return []int32{cpuTypePPC64, cpuTypePPC}
	default:
		return nil
	}
}

// selectFatArch picks the slice for the host: the first exact CPU-type
// match in host preference order, then the first slice as a fallback.
func selectFatArch(arches []fatArch) *fatArch {
	for _, want := range hostArchPreference() {
		for i := range arches {
			if arches[i].cpuType == want {
				return &arches[i]
			}
		}
	}
	if len(arches) > 0 {
		return &arches[0]
	}
	return nil
}

// grokFat parses a fat header at the start of r, collects the slice
// architecture list, selects the best slice, and recurses into the thin
// grokker at the slice offset.
func grokFat(r io.ReaderAt, order binary.ByteOrder) (machGrokResult, []int32) {
	var result machGrokResult
	header := make([]byte, fatHeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return result, nil
	}
	nfat := order.Uint32(header[4:8])
	const maxFat = (512 - fatHeaderSize) / fatArchSize
	if nfat > maxFat {
		nfat = maxFat
	}

	arches := make([]fatArch, 0, nfat)
	archList := make([]int32, 0, nfat)
	buf := make([]byte, fatArchSize)
	for i := uint32(0); i < nfat; i++ {
		if _, err := r.ReadAt(buf, int64(fatHeaderSize)+int64(i)*fatArchSize); err != nil {
			break
		}
		arch := fatArch{
			cpuType:    int32(order.Uint32(buf[0:4])),
			cpuSubtype: int32(order.Uint32(buf[4:8])),
			offset:     order.Uint32(buf[8:12]),
			size:       order.Uint32(buf[12:16]),
			align:      order.Uint32(buf[16:20]),
		}
		arches = append(arches, arch)
		if !containsInt32(archList, arch.cpuType) {
			archList = append(archList, arch.cpuType)
		}
	}

	best := selectFatArch(arches)
	if best == nil {
		return result, archList
	}
	magic := make([]byte, 4)
	if _, err := r.ReadAt(magic, int64(best.offset)); err != nil {
		return result, archList
	}
	if sliceOrder, sixtyFour, ok := machOrderForMagic(binary.BigEndian.Uint32(magic)); ok {
		result = grokMachThin(r, int64(best.offset), sliceOrder, sixtyFour)
	}
	return result, archList
}

func containsInt32(s []int32, v int32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func cString(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return string(b)
}
