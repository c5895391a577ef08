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
	"testing"
)

// TestVersionNumberFromString covers the packing of well-formed and
// malformed version strings.
func TestVersionNumberFromString(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"1.2.3", 0x01023080},
		{"1.2", 0x01020080},
		{"1.2.3b4", 0x01023064},
		{"10.9.1", 0x10091080},
		{"", 0},
		{"1.2.3x4", 0}, // unknown stage letter
		{"1.0.0", 0x01000080},
		{"2.0.0", 0x02000080},
		{"1.2.3d1", 0x01023021},
		{"1.2.3a2", 0x01023042},
		{"1.2.3f9", 0x01023089},
		{".5", 0x00050080},
		{"12.3.4", 0x12034080},
		{"1.2.3b31", 0x0102307f}, // largest build the low byte can hold
		{"1.2.3b99", 0},          // build beyond the 5-bit capacity
		{"1.2.3b32", 0},          // first value that would collide with the stage bits
		{"1.2.3b999", 0},         // build out of range
		{"1.2.3b", 0x01023060},
		{"abc", 0},
		{"1.2.3.4", 0},     // elements cannot be skipped or repeated
		{"99999999999", 0}, // too long
	}
	for _, tc := range cases {
		got := VersionNumberFromString(tc.in)
		if got != tc.want {
			t.Errorf("VersionNumberFromString(%q) = %#010x, want %#010x", tc.in, got, tc.want)
		}
	}
}

// TestVersionRoundTrip verifies that string -> number -> string gives
// back either the original string or a canonical form that packs to the
// same number. Builds beyond the low
// byte's five build bits are rejected at parse time rather than packed
// into the stage bits, so every accepted string round-trips.
func TestVersionRoundTrip(t *testing.T) {
	for _, s := range []string{"1.2.3", "1.2", "1.2.3b4", "10.9.1", "1.0", "2.0.1", "1.2.3d1", "1.2.3b31"} {
		n := VersionNumberFromString(s)
		if n == 0 {
			t.Fatalf("VersionNumberFromString(%q) unexpectedly malformed", s)
		}
		back := VersionStringFromNumber(n)
		want := s
		// "1.0" formats canonically without a trailing zero component.
		if back != want {
			// 1.0 and 1.0.0 pack identically; accept the canonical form.
			if VersionNumberFromString(back) != n {
				t.Errorf("round trip %q -> %#x -> %q does not re-pack", s, n, back)
			}
		}
	}
}
