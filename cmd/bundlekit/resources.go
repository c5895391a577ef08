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

	"github.com/kraklabs/bundlekit/internal/ui"
)

func runResources(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("resources", flag.ExitOnError)
	resourceType := fs.StringP("type", "t", "", "Resource type (file extension)")
	subDir := fs.StringP("subdir", "d", "", "Subdirectory within the resources directory")
	locale := fs.StringP("locale", "l", "", "Pin the lookup to one localization")
	all := fs.Bool("all", false, "Return every matching path in scan order")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit resources <path> [<name>] [options]

Resolves resources through the bundle's query engine. With --all (or
without a name), every matching path is returned in scan order:
non-localized first, then the first preferred localization, then Base,
then the remaining localizations of the search list.

Options:
  -t, --type     Resource type (extension), e.g. png
  -d, --subdir   Subdirectory below the resources directory
  -l, --locale   Pin the lookup to one localization, e.g. fr
      --all      Return an array of matches
`)
	}
	_ = fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		os.Exit(1)
	}

	b := openBundle(fs.Arg(0))
	defer b.Release()
	name := fs.Arg(1)

	var result []string
	switch {
	case *all || name == "":
		if *locale != "" {
			result = b.ResourceURLsForLocalization(*resourceType, *subDir, *locale)
		} else if *resourceType == "" {
			result = b.AllResourceURLs(*subDir)
		} else {
			result = b.ResourceURLs(*resourceType, *subDir)
		}
	case *locale != "":
		if p := b.ResourceURLForLocalization(name, *resourceType, *subDir, *locale); p != "" {
			result = []string{p}
		}
	default:
		if p := b.ResourceURL(name, *resourceType, *subDir); p != "" {
			result = []string{p}
		}
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if len(result) == 0 {
			os.Exit(5)
		}
		return
	}

	if len(result) == 0 {
		ui.Warning("no matching resource")
		os.Exit(5)
	}
	for _, p := range result {
		ui.Info(p)
	}
}
