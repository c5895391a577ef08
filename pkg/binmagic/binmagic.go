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

// Package binmagic classifies files by their magic bytes.
//
// The classifier reads the first 512 bytes of a file, matches the
// leading four bytes against a table of known magics, and disambiguates
// collisions by consulting further bytes. Some formats are confirmed by
// reads beyond that prefix: up to 4096 bytes of Mach-O load commands,
// the embedded sections and fat slices at their own offsets, a trailing
// 512-byte window for disk images and a trailing 1024-byte window for
// zip central directories. For Mach-O images (thin and
// fat, both byte orders) it additionally extracts the architecture
// list, the embedded info dictionary from the __TEXT,__info_plist
// section, and the object-runtime image-info words.
package binmagic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// BinaryType is the dynamic-load classification of an executable file.
type BinaryType int

const (
	// BinaryUnknown means the magic bytes match no known executable format.
	BinaryUnknown BinaryType = iota
	// BinaryUnreadable means the file exists but could not be read.
	BinaryUnreadable
	// BinaryNone means no executable URL was supplied at all.
	BinaryNone
	// BinaryMachExecutable is a Mach-O main executable (not dynamically loadable).
	BinaryMachExecutable
	// BinaryMachBundle is a Mach-O loadable bundle.
	BinaryMachBundle
	// BinaryMachDylib is a Mach-O dynamic library.
	BinaryMachDylib
	// BinaryMachFramework is a Mach-O dylib packaged as a framework.
	BinaryMachFramework
	// BinaryMachCore is a Mach-O core file.
	BinaryMachCore
	// BinaryMachObject is a Mach-O relocatable object file.
	BinaryMachObject
	// BinaryPEF is a Preferred Executable Format (CFM) container.
	BinaryPEF
	// BinaryDLL is a Windows dynamic-link library.
	BinaryDLL
	// BinaryELF is an ELF image.
	BinaryELF
)

// String returns the observed extension-style name for the binary type.
func (t BinaryType) String() string {
	switch t {
	case BinaryUnreadable:
		return "unreadable"
	case BinaryNone:
		return "none"
	case BinaryMachExecutable:
		return "tool"
	case BinaryMachBundle:
		return "bundle"
	case BinaryMachDylib:
		return "dylib"
	case BinaryMachFramework:
		return "framework"
	case BinaryMachCore:
		return "core"
	case BinaryMachObject:
		return "o"
	case BinaryPEF:
		return "pef"
	case BinaryDLL:
		return "dll"
	case BinaryELF:
		return "elf"
	default:
		return "unknown"
	}
}

// Info is the full result of a grok pass over one file.
type Info struct {
	// Extension is the observed file-type extension ("mach" is refined
	// to tool/bundle/dylib/core/o/x11app for Mach-O files).
	Extension string

	// Type is the executable classification.
	Type BinaryType

	// MachType is the raw Mach-O filetype field (or the synthetic PEF value).
	MachType uint32

	// Architectures lists the CPU types present (one for thin images,
	// all slices for fat files).
	Architectures []int32

	// InfoDict is the embedded __TEXT,__info_plist dictionary, if any.
	InfoDict map[string]interface{}

	// HasObjC reports whether an object-runtime image-info section was found.
	HasObjC bool

	// ObjCVersion and ObjCFlags are the image-info words.
	ObjCVersion uint32
	ObjCFlags   uint32

	// IsX11 reports whether the executable links the X11 libraries.
	IsX11 bool
}

const (
	magicBytesToRead = 512
	dmgBytesToRead   = 512
	zipBytesToRead   = 1024
	oleBytesToRead   = 512
)

// magicNumbers maps the first four bytes (read big-endian) to an
// extension candidate. Ambiguous entries are refined by grokAmbiguous.
var magicNumbers = []uint32{
	0xcafebabe, 0xbebafeca, 0xfeedface, 0xcefaedfe, 0xfeedfacf, 0xcffaedfe, 0x4a6f7921, 0x21796f4a,
	0x7f454c46, 0xffd8ffe0, 0x4d4d002a, 0x49492a00, 0x47494638, 0x89504e47, 0x69636e73, 0x00000100,
	0x7b5c7274, 0x25504446, 0x2e7261fd, 0x2e524d46, 0x2e736e64, 0x2e736400, 0x464f524d, 0x52494646,
	0x38425053, 0x000001b3, 0x000001ba, 0x4d546864, 0x504b0304, 0x53495421, 0x53495432, 0x53495435,
	0x53495444, 0x53747566, 0x30373037, 0x3c212d2d, 0x25215053, 0xd0cf11e0, 0x62656769, 0x3d796265,
	0x6b6f6c79, 0x3026b275, 0x0000000c, 0xfe370023, 0x09020600, 0x09040600, 0x4f676753, 0x664c6143,
	0x00010000, 0x74727565, 0x4f54544f, 0x41433130, 0xc809fe02, 0x0809fe02, 0x2356524d, 0x67696d70,
	0x3c435058, 0x28445746, 0x424f4d53, 0x49544f4c, 0x72746664, 0x63616666, 0x802a5fd7, 0x762f3101,
}

var magicExtensions = []string{
	"mach", "mach", "mach", "mach", "mach", "mach", "pef", "pef",
	"elf", "jpeg", "tiff", "tiff", "gif", "png", "icns", "ico",
	"rtf", "pdf", "ra", "rm", "au", "au", "iff", "riff",
	"psd", "mpeg", "mpeg", "mid", "zip", "sit", "sit", "sit",
	"sit", "sit", "cpio", "html", "ps", "ole", "uu", "ync",
	"dmg", "wmv", "jp2", "doc", "xls", "xls", "ogg", "flac",
	"ttf", "ttf", "otf", "dwg", "dgn", "dgn", "wrl", "xcf",
	"cpx", "dwf", "bom", "lit", "rtfd", "caf", "cin", "exr",
}

var ooExtensions = []string{"sxc", "sxd", "sxg", "sxi", "sxm", "sxw"}
var odExtensions = []string{"odc", "odf", "odg", "oth", "odi", "odm", "odp", "ods", "odt"}

// GrokFile classifies the file at path. The returned Info always has
// its Type set; Type is BinaryUnreadable (with a non-nil error) when
// the file exists but cannot be opened or read.
func GrokFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Info{Type: BinaryUnreadable, Extension: ""}, fmt.Errorf("open executable: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		if err == nil {
			err = fmt.Errorf("not a regular file: %s", path)
		}
		return &Info{Type: BinaryUnreadable}, fmt.Errorf("stat executable: %w", err)
	}

	head := make([]byte, magicBytesToRead)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return &Info{Type: BinaryUnreadable}, fmt.Errorf("read executable: %w", err)
	}
	head = head[:n]

	info := grok(head, f, st.Size())
	return info, nil
}

// GrokData classifies an in-memory byte buffer.
func GrokData(data []byte) *Info {
	head := data
	if len(head) > magicBytesToRead {
		head = head[:magicBytesToRead]
	}
	return grok(head, bytes.NewReader(data), int64(len(data)))
}

// GrokBinaryType classifies an executable path into a BinaryType.
// A ".dll" suffix short-circuits to BinaryDLL; everything else is
// decided by the magic bytes.
func GrokBinaryType(path string) BinaryType {
	if path == "" {
		return BinaryNone
	}
	if strings.HasSuffix(strings.ToLower(path), ".dll") {
		return BinaryDLL
	}
	info, err := GrokFile(path)
	if err != nil {
		return BinaryUnreadable
	}
	return info.Type
}

// FileType returns the observed extension for the file at path.
func FileType(path string) (string, bool) {
	info, err := GrokFile(path)
	if err != nil {
		return "", false
	}
	return info.Extension, info.Extension != ""
}

// FileTypeForData returns the observed extension for a byte buffer.
func FileTypeForData(data []byte) (string, bool) {
	info := GrokData(data)
	return info.Extension, info.Extension != ""
}

// ExecutableArchitectures returns the CPU types present in the
// executable at path (nil when the file is not Mach-O or unreadable).
func ExecutableArchitectures(path string) []int32 {
	info, err := GrokFile(path)
	if err != nil {
		return nil
	}
	return info.Architectures
}

// ImageInfo returns the object-runtime image-info version and flags
// embedded in the executable at path.
func ImageInfo(path string) (version, flags uint32, ok bool) {
	info, err := GrokFile(path)
	if err != nil || !info.HasObjC {
		return 0, 0, false
	}
	return info.ObjCVersion, info.ObjCFlags, true
}

// InfoDictFromExecutable returns the info dictionary embedded in the
// executable's __TEXT,__info_plist section, or nil.
func InfoDictFromExecutable(path string) map[string]interface{} {
	info, err := GrokFile(path)
	if err != nil {
		return nil
	}
	return info.InfoDict
}

// grok is the single classification pass shared by file and data entry
// points. head holds the first 512 bytes; r allows random access for
// the deeper probes (fat slices, zip trailers, OLE directories).
func grok(head []byte, r io.ReaderAt, fileLength int64) *Info {
	info := &Info{Type: BinaryUnknown}

	if len(head) == 0 {
		info.Extension = "txt"
		return info
	}
	if len(head) < 4 {
		info.Extension = classifyText(head, fileLength, r)
		return info
	}

	magic := binary.BigEndian.Uint32(head[0:4])
	ext := ""
	for i, m := range magicNumbers {
		if m == magic {
			ext = magicExtensions[i]
			break
		}
	}

	if ext != "" {
		ext = grokAmbiguous(info, magic, ext, head, r, fileLength)
	}
	if ext == "" {
		ext = grokSecondary(head, r, fileLength)
	}
	if ext == "" {
		ext = classifyText(head, fileLength, r)
	}
	// Trailing-window dmg check applies when nothing matched, and also
	// refines bz2 (compressed dmg images begin with a bzip2 stream).
	if (ext == "" || ext == "bz2") && len(head) >= magicBytesToRead && fileLength >= dmgBytesToRead {
		if trailerIsDiskImage(r, fileLength) {
			ext = "dmg"
		}
	}

	info.Extension = ext
	return info
}

// grokAmbiguous refines a magic-table hit that needs more bytes to
// confirm, running the Mach-O machinery for the mach/pef entries.
// Returns "" when the candidate is rejected.
func grokAmbiguous(info *Info, magic uint32, ext string, head []byte, r io.ReaderAt, fileLength int64) string {
	u16at := func(off int) uint16 {
		if off+2 > len(head) {
			return 0
		}
		return binary.BigEndian.Uint16(head[off : off+2])
	}
	u32at := func(off int) uint32 {
		if off+4 > len(head) {
			return 0
		}
		return binary.BigEndian.Uint32(head[off : off+4])
	}

	switch {
	case magic == fatMagic && len(head) >= 8 && u16at(4) != 0:
		// Java class files share the fat magic; real fat headers have a
		// tiny slice count so the upper half of nfat_arch is zero.
		return "class"

	case ext == "mach" || ext == "pef":
		return grokExecutable(info, magic, head, r)

	case ext == "elf":
		info.Type = BinaryELF
		return ext

	case magic == 0x7b5c7274 && (len(head) < 6 || head[4] != 'f'):
		return ""
	case magic == 0x25504446 && (len(head) < 6 || head[4] != '-'):
		return ""
	case magic == 0x00010000 && (len(head) < 6 || head[4] != 0):
		return ""
	case magic == 0x47494638 && (len(head) < 6 || (u16at(4) != 0x3761 && u16at(4) != 0x3961)):
		return ""
	case magic == 0x0000000c && (len(head) < 6 || u16at(4) != 0x6a50):
		return ""
	case magic == 0x2356524d && (len(head) < 6 || u16at(4) != 0x4c20):
		return ""
	case magic == 0x28445746 && (len(head) < 6 || u16at(4) != 0x2056):
		return ""
	case magic == 0x30373037 && (len(head) < 6 || head[4] != 0x30 || !isDigit(head[5])):
		return ""
	case magic == 0x41433130 && (len(head) < 6 || head[4] != 0x31 || !isDigit(head[5])):
		return ""
	case magic == 0x89504e47 && (len(head) < 8 || u32at(4) != 0x0d0a1a0a):
		return ""
	case magic == 0x53747566 && (len(head) < 8 || u32at(4) != 0x66497420):
		return ""
	case magic == 0x3026b275 && (len(head) < 8 || u32at(4) != 0x8e66cf11):
		return ""
	case magic == 0x67696d70 && (len(head) < 8 || u32at(4) != 0x20786366):
		return ""
	case magic == 0x424f4d53 && (len(head) < 8 || u32at(4) != 0x746f7265):
		return ""
	case magic == 0x49544f4c && (len(head) < 8 || u32at(4) != 0x49544c53):
		return ""
	case magic == 0x72746664 && (len(head) < 8 || u32at(4) != 0x00000000):
		return ""
	case magic == 0x3d796265 && (len(head) < 12 || u32at(4) != 0x67696e20 || (u32at(8) != 0x6c696e65 && u32at(8) != 0x70617274)):
		return ""
	case magic == 0x63616666 && (len(head) < 12 || head[4] != 0 || u32at(8) != 0x64657363):
		return ""

	case magic == 0x504b0304:
		return grokZip(head, r, fileLength)

	case magic == 0x25215053:
		if len(head) >= 11 && bytes.Equal(head[4:11], []byte("-Adobe-")) {
			return "ps"
		}
		if len(head) >= 14 && bytes.Equal(head[4:14], []byte("-AdobeFont")) {
			return "pfa"
		}
		return ""

	case magic == 0x464f524d: // IFF
		if len(head) >= 12 {
			switch u32at(8) {
			case 0x41494646:
				return "aiff"
			case 0x41494643:
				return "aifc"
			}
		}
		return ""

	case magic == 0x52494646: // RIFF
		if len(head) >= 12 {
			switch u32at(8) {
			case 0x57415645:
				return "wav"
			case 0x41564920:
				return "avi"
			}
		}
		return ""

	case magic == 0xd0cf11e0: // OLE compound document
		if len(head) >= 52 {
			sector := int64(binary.LittleEndian.Uint32(head[48:52]))
			return grokOLE(r, 512*(1+sector))
		}
		return ext

	case magic == 0x62656769: // "begi", possibly uuencoded
		return grokUU(head)
	}
	return ext
}

// grokExecutable handles the mach/pef table entries: runs the thin or
// fat Mach-O parser, fills the Info side channels, and maps the mach
// filetype to an extension and a BinaryType.
func grokExecutable(info *Info, magic uint32, head []byte, r io.ReaderAt) string {
	var result machGrokResult
	switch magic {
	case pefMagic, pefCigam:
		result.machType = machTypePEF
	case fatMagic:
		result, info.Architectures = grokFat(r, binary.BigEndian)
	case fatCigam:
		result, info.Architectures = grokFat(r, binary.LittleEndian)
	default:
		if order, sixtyFour, ok := machOrderForMagic(magic); ok && len(head) >= machHeaderSize64 {
			result = grokMachThin(r, 0, order, sixtyFour)
			info.Architectures = []int32{result.cpuType}
		}
	}

	info.MachType = result.machType
	info.InfoDict = result.infoDict
	info.HasObjC = result.hasObjC
	info.ObjCVersion = result.objcVersion
	info.ObjCFlags = result.objcFlags
	info.IsX11 = result.isX11

	switch result.machType {
	case machTypeObject:
		info.Type = BinaryMachObject
		return "o"
	case machTypeExecute:
		info.Type = BinaryMachExecutable
		if result.isX11 {
			return "x11app"
		}
		return "tool"
	case machTypePEF:
		info.Type = BinaryPEF
		return "pef"
	case machTypeCore:
		info.Type = BinaryMachCore
		return "core"
	case machTypeDylib:
		info.Type = BinaryMachDylib
		return "dylib"
	case machTypeBundle:
		info.Type = BinaryMachBundle
		return "bundle"
	}
	return ""
}

// zipEntry visitor flags used to detect office-document sub-kinds.
type zipFlags struct {
	hasMetaInf, hasContentXML, hasManifestMF, hasManifestXML bool
	hasRels, hasContentTypes                                 bool
	hasWordDoc, hasExcelDoc, hasPowerPointDoc                bool
	hasOPF, hasSMIL                                          bool
}

// grokZip walks zip entry headers in the leading bytes and, when no
// mimetype entry decides, in a trailing window over the central
// directory, to discriminate jar/office/opendocument kinds.
func grokZip(head []byte, r io.ReaderAt, fileLength int64) string {
	ext := "zip"
	var flags zipFlags
	foundMimetype := false

	scan := func(b []byte) {
		for i := 0; i+30 < len(b); i++ {
			if b[i] != 0x50 || b[i+1] != 0x4b {
				continue
			}
			var nameLen, offset int
			if b[i+2] == 0x01 && b[i+3] == 0x02 {
				nameLen = int(binary.LittleEndian.Uint16(b[i+28 : i+30]))
				offset = 46
			} else if b[i+2] == 0x03 && b[i+3] == 0x04 {
				nameLen = int(binary.LittleEndian.Uint16(b[i+26 : i+28]))
				offset = 30
			}
			if offset == 0 || i+offset+nameLen > len(b) {
				continue
			}
			name := string(b[i+offset : i+offset+nameLen])
			lower := strings.ToLower(name)
			switch {
			case nameLen == 8 && offset == 30 && lower == "mimetype":
				if e, ok := zipMimeTypeExtension(b[i:]); ok {
					ext = e
					foundMimetype = true
					return
				}
			case nameLen == 9 && lower == "meta-inf/":
				flags.hasMetaInf = true
			case nameLen == 11 && lower == "content.xml":
				flags.hasContentXML = true
			case nameLen == 11 && lower == "_rels/.rels":
				flags.hasRels = true
			case nameLen == 19 && lower == "[content_types].xml":
				flags.hasContentTypes = true
			case nameLen == 20 && lower == "meta-inf/manifest.mf":
				flags.hasManifestMF = true
			case nameLen == 21 && lower == "meta-inf/manifest.xml":
				flags.hasManifestXML = true
			case nameLen > 4 && strings.HasSuffix(lower, ".opf"):
				flags.hasOPF = true
			case nameLen > 4 && strings.HasSuffix(lower, ".sml"),
				nameLen > 5 && strings.HasSuffix(lower, ".smil"):
				flags.hasSMIL = true
			case nameLen > 9 && strings.HasPrefix(lower, "word/") && strings.HasSuffix(lower, ".xml"):
				flags.hasWordDoc = true
			case nameLen > 10 && strings.HasPrefix(lower, "excel/") && strings.HasSuffix(lower, ".xml"):
				flags.hasExcelDoc = true
			case nameLen > 15 && strings.HasPrefix(lower, "powerpoint/") && strings.HasSuffix(lower, ".xml"):
				flags.hasPowerPointDoc = true
			}
			i += offset + nameLen - 1
		}
	}

	scan(head)
	if !foundMimetype {
		if fileLength >= zipBytesToRead {
			tail := make([]byte, zipBytesToRead)
			if _, err := r.ReadAt(tail, fileLength-zipBytesToRead); err == nil {
				scan(tail)
			}
		}
		switch {
		case flags.hasManifestMF:
			ext = "jar"
		case (flags.hasRels || flags.hasContentTypes) && flags.hasWordDoc:
			ext = "docx"
		case (flags.hasRels || flags.hasContentTypes) && flags.hasExcelDoc:
			ext = "xlsx"
		case (flags.hasRels || flags.hasContentTypes) && flags.hasPowerPointDoc:
			ext = "pptx"
		case flags.hasManifestXML || flags.hasContentXML:
			ext = "odt"
		case flags.hasMetaInf:
			ext = "jar"
		case flags.hasOPF && flags.hasSMIL:
			ext = "dtb"
		case flags.hasOPF:
			ext = "oeb"
		}
	}
	return ext
}

// zipMimeTypeExtension inspects a stored (uncompressed) mimetype entry
// for the OpenOffice / OpenDocument application types.
func zipMimeTypeExtension(entry []byte) (string, bool) {
	if len(entry) < 30 {
		return "", false
	}
	nameLen := int(binary.LittleEndian.Uint16(entry[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(entry[28:30]))
	start := 30 + nameLen + extraLen
	if start+56 > len(entry) || binary.LittleEndian.Uint16(entry[8:10]) != 0 {
		return "", false
	}
	data := strings.ToLower(string(entry[start:]))
	switch {
	case strings.HasPrefix(data, "application/vnd."):
		data = data[16:]
	case strings.HasPrefix(data, "application/x-vnd."):
		data = data[18:]
	default:
		return "", false
	}
	if strings.HasPrefix(data, "sun.xml.") {
		data = data[8:]
		order := []struct {
			prefix string
			idx    int
		}{{"calc", 0}, {"draw", 1}, {"writer.global", 2}, {"impress", 3}, {"math", 4}, {"writer", 5}}
		for _, o := range order {
			if strings.HasPrefix(data, o.prefix) {
				return ooExtensions[o.idx], true
			}
		}
	} else if strings.HasPrefix(data, "oasis.opendocument.") {
		data = data[19:]
		order := []struct {
			prefix string
			idx    int
		}{{"chart", 0}, {"formula", 1}, {"graphics", 2}, {"text-web", 3}, {"image", 4},
			{"text-master", 5}, {"presentation", 6}, {"spreadsheet", 7}, {"text", 8}}
		for _, o := range order {
			if strings.HasPrefix(data, o.prefix) {
				return odExtensions[o.idx], true
			}
		}
	}
	return "", false
}

// grokOLE reads the first directory sector of an OLE compound file and
// matches storage names to pick the legacy office kind.
func grokOLE(r io.ReaderAt, offset int64) string {
	ext := "ole"
	buf := make([]byte, oleBytesToRead)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return ext
	}
	checkName := func(name string, entry []byte) bool {
		for j := 0; j < len(name); j++ {
			if 2*j >= len(entry) || entry[2*j] != name[j] {
				return false
			}
		}
		return true
	}
	for i := 0; i < 4; i++ {
		entry := buf[128*i : 128*i+128]
		nameLen := int(entry[64]) / 2
		switch {
		case nameLen == len("Book")+1 && checkName("Book", entry):
			return "xls"
		case nameLen == len("Workbook")+1 && checkName("Workbook", entry):
			return "xls"
		case nameLen == len("WordDocument")+1 && checkName("WordDocument", entry):
			return "doc"
		case nameLen == len("PowerPoint Document")+1 && checkName("PowerPoint Document", entry):
			return "ppt"
		}
	}
	return ext
}

// grokUU verifies the "begin NNN " line and a well-formed first encoded
// line before accepting a uuencoded classification.
func grokUU(head []byte) string {
	if len(head) < 76 || head[4] != 'n' || head[5] != ' ' ||
		!isDigit(head[6]) || !isDigit(head[7]) || !isDigit(head[8]) || head[9] != ' ' {
		return ""
	}
	endOfLine := 0
	for i := 10; endOfLine == 0 && i < len(head); i++ {
		if head[i] == '\n' {
			endOfLine = i
		}
	}
	if endOfLine < 10 || endOfLine+62 >= len(head) || head[endOfLine+1] != 'M' || head[endOfLine+62] != '\n' {
		return ""
	}
	for i := endOfLine + 1; i < endOfLine+62; i++ {
		if head[i] < 0x20 || head[i] > 0x7e {
			return ""
		}
	}
	return "uu"
}

// grokSecondary covers formats identified by bytes beyond the leading
// four, or by two-byte magics.
func grokSecondary(head []byte, r io.ReaderAt, fileLength int64) string {
	if len(head) < 2 {
		return ""
	}
	shortMagic := binary.BigEndian.Uint16(head[0:2])
	u32at := func(off int) uint32 {
		if off+4 > len(head) {
			return 0
		}
		return binary.BigEndian.Uint32(head[off : off+4])
	}

	switch {
	case len(head) >= 5 && head[3] == 0 && head[4] == 0 &&
		((head[1] == 1 && (head[2]&0xf7) == 1) || (head[1] == 0 && ((head[2]&0xf7) == 2 || (head[2]&0xf7) == 3))):
		return "tga"
	case len(head) >= 8 && (u32at(4) == 0x6d6f6f76 || u32at(4) == 0x6d646174 || u32at(4) == 0x77696465):
		return "mov"
	case len(head) >= 8 && (u32at(4) == 0x69647363 || u32at(4) == 0x69646174):
		return "qtif"
	case len(head) >= 8 && u32at(4) == 0x424f424f:
		return "cwk"
	case len(head) >= 8 && u32at(0) == 0x62706c69 && binary.BigEndian.Uint16(head[4:6]) == 0x7374 &&
		isDigit(head[6]) && isDigit(head[7]):
		// binary plist; scan for a web archive payload
		if bytes.Contains(head[8:], []byte("WebMainResource")) {
			return "webarchive"
		}
		return "plist"
	case shortMagic == 0 && len(head) >= 12 && u32at(4) == 0x66747970:
		return grokFtyp(u32at(8))
	case shortMagic == 0x424d && len(head) >= 18:
		btyp := binary.LittleEndian.Uint32(head[14:18])
		if btyp == 40 || btyp == 12 || btyp == 64 || btyp == 108 || btyp == 124 {
			return "bmp"
		}
		return ""
	case len(head) >= 20 && bytes.Equal(head[6:20], []byte("%!PS-AdobeFont")):
		return "pfb"
	case len(head) >= 40 && u32at(34) == 0x42696e48 && binary.BigEndian.Uint16(head[38:40]) == 0x6578:
		return "hqx"
	case len(head) >= 128 && u32at(102) == 0x6d42494e:
		return "bin"
	case len(head) >= 265 && u32at(257) == 0x75737461 &&
		(u32at(261) == 0x72202000 || binary.BigEndian.Uint16(head[261:263]) == 0x7200):
		return "tar"
	case shortMagic == 0xfeff || shortMagic == 0xfffe:
		return "txt"
	case shortMagic == 0x1f9d:
		return "Z"
	case shortMagic == 0x1f8b:
		return "gz"
	case shortMagic == 0x71c7 || shortMagic == 0xc771:
		return "cpio"
	case shortMagic == 0xf702:
		return "dvi"
	case shortMagic == 0x01da && len(head) >= 4 && (head[2] == 0 || head[2] == 1) && head[3] > 0 && head[3] < 16:
		return "sgi"
	case shortMagic == 0x2321: // "#!"
		return grokShebang(head)
	case shortMagic == 0xffd8 && len(head) >= 3 && head[2] == 0xff:
		return "jpeg"
	case shortMagic == 0x4657 && len(head) >= 3 && head[2] == 0x53:
		return "swf"
	case shortMagic == 0x4357 && len(head) >= 3 && head[2] == 0x53:
		return "swc"
	case shortMagic == 0x4944 && len(head) >= 4 && head[2] == '3' && head[3] < 0x20:
		return "mp3"
	case shortMagic == 0x425a && len(head) >= 4 && isDigit(head[2]) && isDigit(head[3]):
		return "bz"
	case shortMagic == 0x425a && len(head) >= 8 && head[2] == 'h' && isDigit(head[3]) &&
		(u32at(4) == 0x31415926 || u32at(4) == 0x17724538):
		return "bz2"
	case len(head) >= 4 && (binary.BigEndian.Uint16(head[2:4]) == 0x0011 || binary.BigEndian.Uint16(head[2:4]) == 0x0012):
		return "tfm"
	}
	return ""
}

func grokFtyp(ftyp uint32) string {
	switch ftyp {
	case 0x6d703431, 0x6d703432, 0x69736f6d, 0x69736f32:
		return "mp4"
	case 0x4d344120:
		return "m4a"
	case 0x4d344220:
		return "m4b"
	case 0x4d345020:
		return "m4p"
	case 0x4d345620, 0x4d345648, 0x4d345650:
		return "m4v"
	}
	if ftyp>>16 == 0x3367 {
		switch ftyp & 0xffff {
		case 0x6536, 0x6537, 0x6736, 0x7034, 0x7035, 0x7036, 0x7236, 0x7336, 0x7337:
			return "3gp"
		case 0x3261:
			return "3g2"
		}
	}
	return ""
}

// grokShebang extracts the interpreter from a "#!" line.
func grokShebang(head []byte) string {
	endOfLine := 0
	for i := 2; endOfLine == 0 && i < len(head); i++ {
		if head[i] == '\n' {
			endOfLine = i
		}
	}
	if endOfLine <= 3 {
		return ""
	}
	lastSlash := 0
	for i := endOfLine - 1; lastSlash == 0 && i > 1; i-- {
		if head[i] == '/' {
			lastSlash = i
		}
	}
	if lastSlash == 0 {
		return ""
	}
	interp := string(head[lastSlash+1 : endOfLine])
	switch {
	case strings.HasPrefix(interp, "perl"):
		return "pl"
	case strings.HasPrefix(interp, "python"):
		return "py"
	case strings.HasPrefix(interp, "ruby"):
		return "rb"
	default:
		return "sh"
	}
}

// classifyText decides between plain text (with html/xml/plist sniffing),
// an all-zero prefix (possibly a PICT preamble), and nothing at all.
func classifyText(head []byte, fileLength int64, r io.ReaderAt) string {
	isPlain, isZero, isSpace := true, true, true
	ext := ""

	start := 0
	if len(head) >= 3 && head[0] == 0xef && head[1] == 0xbb && head[2] == 0xbf {
		// UTF-8 BOM
		isZero = false
		start = 3
	}

	for i := start; (isPlain || isZero) && ext == "" && i < len(head) && i < magicBytesToRead; i++ {
		c := head[i]
		if isPlain && c == '<' && i+14 <= len(head) && asciiHasCaseInsensitivePrefix(head[i+1:], "!doctype html") {
			ext = "html"
		}
		if isSpace && c == '<' && i+14 <= len(head) {
			rest := head[i+1:]
			switch {
			case asciiHasCaseInsensitivePrefix(rest, "!doctype html"),
				asciiHasCaseInsensitivePrefix(rest, "head"),
				asciiHasCaseInsensitivePrefix(rest, "title"),
				asciiHasCaseInsensitivePrefix(rest, "script"),
				asciiHasCaseInsensitivePrefix(rest, "html"):
				ext = "html"
			case asciiHasCaseInsensitivePrefix(rest, "?xml"):
				ext = sniffXML(head[i+5:])
			}
		}
		if c != 0 {
			isZero = false
		}
		if isZero || c >= 0x7f || (c < 0x20 && !isAsciiSpace(c)) {
			isPlain = false
		}
		if isZero || !isAsciiSpace(c) {
			isSpace = false
		}
	}
	if ext != "" {
		return ext
	}
	if isPlain {
		if len(head) >= 16 && bytes.Equal(head[0:16], []byte("StartFontMetrics")) {
			return "afm"
		}
		return "txt"
	}
	if isZero && len(head) >= magicBytesToRead && fileLength >= 526 {
		probe := make([]byte, 14)
		if _, err := r.ReadAt(probe, 512); err == nil {
			if binary.BigEndian.Uint32(probe[10:14]) == 0x001102ff {
				return "pict"
			}
		}
	}
	return ""
}

// sniffXML refines an XML prolog match by the first document element.
func sniffXML(rest []byte) string {
	for i := 0; i < 128 && i+20 <= len(rest); i++ {
		if rest[i] != '<' {
			continue
		}
		tag := rest[i+1:]
		switch {
		case asciiHasCaseInsensitivePrefix(tag, "abiword"):
			return "abw"
		case asciiHasCaseInsensitivePrefix(tag, "!doctype svg"):
			return "svg"
		case asciiHasCaseInsensitivePrefix(tag, "!doctype rdf"):
			return "rdf"
		case asciiHasCaseInsensitivePrefix(tag, "!doctype x3d"):
			return "x3d"
		case asciiHasCaseInsensitivePrefix(tag, "!doctype html"):
			return "html"
		case asciiHasCaseInsensitivePrefix(tag, "!doctype plist"):
			if bytes.Contains(rest[i:], []byte("WebMainResource")) {
				return "webarchive"
			}
			return "plist"
		}
	}
	return "xml"
}

// trailerIsDiskImage checks the trailing 512 bytes for the dmg koly
// trailer or the encrypted-image "cdsaencr" suffix.
func trailerIsDiskImage(r io.ReaderAt, fileLength int64) bool {
	tail := make([]byte, dmgBytesToRead)
	if _, err := r.ReadAt(tail, fileLength-dmgBytesToRead); err != nil {
		return false
	}
	if binary.BigEndian.Uint32(tail[0:4]) == 0x6b6f6c79 {
		return true
	}
	return binary.BigEndian.Uint32(tail[dmgBytesToRead-8:dmgBytesToRead-4]) == 0x63647361 &&
		binary.BigEndian.Uint32(tail[dmgBytesToRead-4:]) == 0x656e6372
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAsciiSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func asciiHasCaseInsensitivePrefix(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	return strings.EqualFold(string(b[:len(prefix)]), prefix)
}
