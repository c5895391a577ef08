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

	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/bundle"
)

func runLocales(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("locales", flag.ExitOnError)
	prefs := fs.String("prefs", "", "Comma-separated preferred languages (overrides environment)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit locales <path> [--prefs a,b,c]

Shows a bundle's localization set and the ordered search list the
resource engine consults for it.
`)
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	if *prefs != "" {
		var list []string
		for _, p := range strings.Split(*prefs, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		bundle.SetUserLanguagesFunc(func() []string { return list })
	}

	b := openBundle(fs.Arg(0))
	defer b.Release()

	localizations := b.Localizations()
	searchList := b.LanguageSearchList()

	if globals.JSON {
		out, _ := json.MarshalIndent(map[string][]string{
			"localizations": localizations,
			"search_list":   searchList,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	ui.Header("Localizations")
	ui.Info("  " + strings.Join(localizations, ", "))
	ui.SubHeader("Search list")
	for i, l := range searchList {
		ui.Infof("  %d. %s", i+1, l)
	}
}
