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
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/bundlekit/internal/errors"
	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/bundle"
)

// inspectReport is the JSON shape of the inspect command.
type inspectReport struct {
	Path           string   `json:"path"`
	Layout         int      `json:"layout"`
	Identifier     string   `json:"identifier,omitempty"`
	Version        string   `json:"version,omitempty"`
	NumericVersion string   `json:"numeric_version,omitempty"`
	Development    string   `json:"development_region,omitempty"`
	Executable     string   `json:"executable,omitempty"`
	BinaryType     string   `json:"binary_type"`
	PackageType    string   `json:"package_type"`
	Signature      string   `json:"signature"`
	Localizations  []string `json:"localizations,omitempty"`
	PlugIns        []string `json:"plugins,omitempty"`
	Loaded         bool     `json:"loaded"`
}

func runInspect(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit inspect <path>

Shows a bundle's layout version, identity, version, development region,
executable, binary type, package info and localizations.
`)
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	b := openBundle(fs.Arg(0))
	defer b.Release()

	pkgType, creator := b.PackageInfo()
	report := inspectReport{
		Path:          b.Path(),
		Layout:        int(b.Layout()),
		Identifier:    b.Identifier(),
		Version:       b.InfoDictionary().GetString(bundle.InfoKeyVersion),
		Development:   b.DevelopmentRegion(),
		Executable:    b.ExecutablePath(),
		BinaryType:    b.BinaryType().String(),
		PackageType:   pkgType,
		Signature:     creator,
		Localizations: b.Localizations(),
		PlugIns:       b.BuiltInPlugInPaths(),
		Loaded:        b.IsLoaded(),
	}
	if v := b.VersionNumber(); v != 0 {
		report.NumericVersion = fmt.Sprintf("0x%08x", v)
	}

	if globals.JSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode report",
				"JSON marshaling failed unexpectedly",
				"This is a bug. Please report it",
				err,
			))
		}
		fmt.Println(string(out))
		return
	}

	ui.Header("Bundle")
	ui.Label("Path", report.Path)
	ui.Label("Layout", fmt.Sprintf("%d", report.Layout))
	if report.Identifier != "" {
		ui.Label("Identifier", report.Identifier)
	}
	if report.Version != "" {
		version := report.Version
		if report.NumericVersion != "" {
			version += " " + ui.DimText("("+report.NumericVersion+")")
		}
		ui.Label("Version", version)
	}
	if report.Development != "" {
		ui.Label("Development region", report.Development)
	}
	ui.Label("Package", report.PackageType+"/"+report.Signature)

	ui.SubHeader("Executable")
	if report.Executable != "" {
		ui.Label("Path", report.Executable)
	} else {
		ui.Dim("  (none)")
	}
	ui.Label("Binary type", report.BinaryType)

	if len(report.Localizations) > 0 {
		ui.SubHeader("Localizations")
		ui.Info("  " + strings.Join(report.Localizations, ", "))
	}
	if len(report.PlugIns) > 0 {
		ui.SubHeader(fmt.Sprintf("Built-in plug-ins (%s)", ui.CountText(len(report.PlugIns))))
		for _, p := range report.PlugIns {
			ui.Info("  " + p)
		}
	}
}
