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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/bundle"
)

// scanHit summarizes one discovered bundle.
type scanHit struct {
	Path       string `json:"path"`
	Layout     int    `json:"layout"`
	Identifier string `json:"identifier,omitempty"`
	Version    string `json:"version,omitempty"`
	IsPlugIn   bool   `json:"is_plugin"`
}

// bundleDirSuffixes mark directory names treated as bundle candidates
// without probing their contents.
var bundleDirSuffixes = []string{".bundle", ".framework", ".app", ".plugin", ".kext"}

func runScan(args []string, cfg *Config, globals GlobalFlags) {
	flags := flag.NewFlagSet("scan", flag.ExitOnError)
	deep := flags.Bool("deep", false, "Probe every directory for bundle layouts, not just suffixed names")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit scan <dir> [--deep]

Walks a directory tree for bundles. By default only directories with a
recognized bundle suffix (.bundle, .framework, .app, .plugin, .kext)
are probed; --deep probes every directory for a bundle layout.
`)
	}
	_ = flags.Parse(args)
	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(1)
	}
	root := flags.Arg(0)

	// Count candidates first so the bar has a total.
	var candidates []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		for _, ex := range cfg.Scan.Exclude {
			if name == ex {
				return filepath.SkipDir
			}
		}
		if hasBundleSuffix(name) {
			candidates = append(candidates, path)
			return filepath.SkipDir
		}
		if *deep {
			candidates = append(candidates, path)
		}
		return nil
	})

	var bar *progressbar.ProgressBar
	if !globals.Quiet && len(candidates) > 1 {
		bar = progressbar.NewOptions(len(candidates),
			progressbar.OptionSetDescription("probing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}

	var hits []scanHit
	for _, path := range candidates {
		if bar != nil {
			_ = bar.Add(1)
		}
		layout, err := bundle.DetectLayout(path)
		if err != nil {
			continue
		}
		if layout == bundle.LayoutFlat && !hasBundleSuffix(filepath.Base(path)) {
			continue
		}
		b, err := bundle.New(path)
		if err != nil {
			continue
		}
		info := b.InfoDictionary()
		_, isPlugIn := info[bundle.InfoKeyPlugInFactories]
		isPlugIn = isPlugIn || info.GetBool(bundle.InfoKeyPlugInDynamicRegistration)
		hits = append(hits, scanHit{
			Path:       b.Path(),
			Layout:     int(b.Layout()),
			Identifier: b.Identifier(),
			Version:    info.GetString(bundle.InfoKeyVersion),
			IsPlugIn:   isPlugIn,
		})
		b.Release()
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(hits) == 0 {
		ui.Dim("no bundles found")
		return
	}
	ui.Header(fmt.Sprintf("Found %s bundles", ui.CountText(len(hits))))
	for _, h := range hits {
		line := fmt.Sprintf("  %s (layout %d)", h.Path, h.Layout)
		if h.Identifier != "" {
			line += " " + ui.Cyan(h.Identifier)
			if h.Version != "" {
				line += " " + ui.DimText(h.Version)
			}
		}
		if h.IsPlugIn {
			line += " " + ui.Yellow("[plugin]")
		}
		ui.Info(line)
	}
}

func hasBundleSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range bundleDirSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
