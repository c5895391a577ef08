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

package errors

import (
	stderrors "errors"
	"testing"
)

func TestCLIErrorFormatting(t *testing.T) {
	cause := stderrors.New("underlying")
	err := NewConfigError("Bad config", "the file is malformed", "fix it", cause)

	if got := err.Error(); got != "Bad config: the file is malformed (underlying)" {
		t.Errorf("unexpected Error(): %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("Unwrap must expose the cause")
	}
	if err.ExitCode() != 2 {
		t.Errorf("config errors exit 2, got %d", err.ExitCode())
	}
}

func TestExitCodesPerCategory(t *testing.T) {
	cases := []struct {
		err  *CLIError
		want int
	}{
		{NewInternalError("m", "d", "s", nil), 1},
		{NewConfigError("m", "d", "s", nil), 2},
		{NewInputError("m", "d", "s", nil), 3},
		{NewPermissionError("m", "d", "s", nil), 4},
		{NewNotFoundError("m", "d", "s", nil), 5},
	}
	for _, tc := range cases {
		if got := tc.err.ExitCode(); got != tc.want {
			t.Errorf("category %d: exit code %d, want %d", tc.err.Category, got, tc.want)
		}
	}
}
