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
	"fmt"
	"strings"
)

// Release stages packed into a version number's low byte.
const (
	stageDevelopment = 0x20
	stageAlpha       = 0x40
	stageBeta        = 0x60
	stageRelease     = 0x80
)

const maxVersionLen = 10

// VersionNumberFromString parses a version string of the form
// [MAJOR[MAJOR].]MINOR.BUILD[stage BUILD] into a packed 32-bit number:
// two BCD major digits in the top byte, one minor digit each at bits
// 19-16 and 15-12, and the release stage (0x20 d, 0x40 a, 0x60 b, 0x80
// f) plus the stage build number in the low byte. The stage occupies
// the byte's top three bits, leaving the build the low five (0-31).
//
// The string can begin with "." for major version 0 and can end at any
// point, but elements cannot be skipped. Malformed input returns 0.
func VersionNumberFromString(s string) uint32 {
	var major1, major2, minor1, minor2, build uint32
	stage := uint32(stageRelease)

	if s == "" || len(s) > maxVersionLen {
		return 0
	}
	chars := s
	digitsDone := false

	next := func() byte { return chars[0] }
	advance := func() { chars = chars[1:] }
	isDigit := func(c byte) bool { return c >= '0' && c <= '9' }

	// Major version: up to two digits, or a leading "." for zero.
	if isDigit(next()) {
		major2 = uint32(next() - '0')
		advance()
		if len(chars) > 0 {
			if isDigit(next()) {
				major1 = major2
				major2 = uint32(next() - '0')
				advance()
				if len(chars) > 0 {
					if next() == '.' {
						advance()
					} else {
						digitsDone = true
					}
				}
			} else if next() == '.' {
				advance()
			} else {
				digitsDone = true
			}
		}
	} else if next() == '.' {
		advance()
	} else {
		digitsDone = true
	}

	// First minor digit, optionally followed by a dot.
	if len(chars) > 0 && !digitsDone {
		if isDigit(next()) {
			minor1 = uint32(next() - '0')
			advance()
			if len(chars) > 0 {
				if next() == '.' {
					advance()
				} else {
					digitsDone = true
				}
			}
		} else {
			digitsDone = true
		}
	}

	// Second minor digit.
	if len(chars) > 0 && !digitsDone {
		if isDigit(next()) {
			minor2 = uint32(next() - '0')
			advance()
		} else {
			digitsDone = true
		}
	}

	// Release stage letter: must be d, a, b, or f if anything remains.
	if len(chars) > 0 {
		switch next() {
		case 'd':
			stage = stageDevelopment
		case 'a':
			stage = stageAlpha
		case 'b':
			stage = stageBeta
		case 'f':
			stage = stageRelease
		default:
			return 0
		}
		advance()
	}

	// Stage build digits. The stage and build share the low byte, so
	// the build number has five bits; anything larger is malformed.
	for i := 0; i < 3; i++ {
		if len(chars) == 0 {
			break
		}
		if !isDigit(next()) {
			return 0
		}
		build = build*10 + uint32(next()-'0')
		advance()
	}

	if build > 0x1F || len(chars) > 0 {
		return 0
	}

	return major1<<28 | major2<<24 | minor1<<16 | minor2<<12 | stage | build
}

// VersionStringFromNumber formats a packed version number back into its
// canonical string. For any number VersionNumberFromString produces,
// parsing the result yields that number again; the string can differ
// from the one originally parsed ("1.0.0" formats as "1.0").
func VersionStringFromNumber(v uint32) string {
	if v == 0 {
		return ""
	}
	major1 := v >> 28 & 0xF
	major2 := v >> 24 & 0xF
	minor1 := v >> 16 & 0xF
	minor2 := v >> 12 & 0xF
	stage := v & 0xE0
	build := v & 0x1F

	var sb strings.Builder
	if major1 > 0 {
		fmt.Fprintf(&sb, "%d%d", major1, major2)
	} else {
		fmt.Fprintf(&sb, "%d", major2)
	}
	fmt.Fprintf(&sb, ".%d", minor1)
	if minor2 > 0 || stage != stageRelease || build > 0 {
		fmt.Fprintf(&sb, ".%d", minor2)
	}
	if stage != stageRelease || build > 0 {
		stageChar := byte('f')
		switch stage {
		case stageDevelopment:
			stageChar = 'd'
		case stageAlpha:
			stageChar = 'a'
		case stageBeta:
			stageChar = 'b'
		}
		fmt.Fprintf(&sb, "%c%d", stageChar, build)
	}
	return sb.String()
}
