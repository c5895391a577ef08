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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/bundlekit/internal/errors"
	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/binmagic"
)

// grokReport is the JSON shape of the grok command.
type grokReport struct {
	Path          string   `json:"path"`
	Extension     string   `json:"extension,omitempty"`
	BinaryType    string   `json:"binary_type"`
	Architectures []int32  `json:"architectures,omitempty"`
	HasObjC       bool     `json:"has_objc,omitempty"`
	ObjCVersion   uint32   `json:"objc_version,omitempty"`
	ObjCFlags     uint32   `json:"objc_flags,omitempty"`
	IsX11         bool     `json:"is_x11,omitempty"`
	InfoDictKeys  []string `json:"embedded_info_keys,omitempty"`
}

func runGrok(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("grok", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit grok <file>

Classifies a file by its magic bytes: the observed extension, the
executable binary type, the architecture list for Mach-O images, and
any embedded info dictionary.
`)
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	info, err := binmagic.GrokFile(path)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot read file",
			fmt.Sprintf("Failed to read %s", path),
			"Check that the file exists and is readable",
			err,
		))
	}

	report := grokReport{
		Path:          path,
		Extension:     info.Extension,
		BinaryType:    info.Type.String(),
		Architectures: info.Architectures,
		HasObjC:       info.HasObjC,
		ObjCVersion:   info.ObjCVersion,
		ObjCFlags:     info.ObjCFlags,
		IsX11:         info.IsX11,
	}
	for k := range info.InfoDict {
		report.InfoDictKeys = append(report.InfoDictKeys, k)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return
	}

	ui.Label("File", report.Path)
	if report.Extension != "" {
		ui.Label("Type", report.Extension)
	} else {
		ui.Label("Type", ui.DimText("unknown"))
	}
	ui.Label("Binary", report.BinaryType)
	if len(report.Architectures) > 0 {
		archs := ""
		for i, a := range report.Architectures {
			if i > 0 {
				archs += ", "
			}
			archs += fmt.Sprintf("0x%x", a)
		}
		ui.Label("Architectures", archs)
	}
	if report.HasObjC {
		ui.Label("Image info", fmt.Sprintf("version=%d flags=0x%x", report.ObjCVersion, report.ObjCFlags))
	}
	if report.IsX11 {
		ui.Info("Links X11")
	}
	if len(report.InfoDictKeys) > 0 {
		ui.SubHeader(fmt.Sprintf("Embedded info dictionary (%s keys)", ui.CountText(len(report.InfoDictKeys))))
		for _, k := range report.InfoDictKeys {
			ui.Info("  " + k)
		}
	}
}
