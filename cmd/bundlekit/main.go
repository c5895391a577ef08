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
// Package main implements the bundlekit CLI for inspecting bundles,
// querying their resources, and serving registry status.
//
// Usage:
//
//	bundlekit inspect <path>              Show bundle layout, identity and executable
//	bundlekit resources <path> <name>     Resolve a resource through the query engine
//	bundlekit locales <path>              Show the localization search list
//	bundlekit grok <file>                 Classify a file by magic bytes
//	bundlekit scan <dir>                  Find bundles under a directory tree
//	bundlekit serve                       HTTP status + /metrics endpoint
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/bundle"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .bundlekit/config.yaml (default: auto-discover)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument (the command name) so
	// subcommand flags pass through to subcommand handlers.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `bundlekit - bundle and plug-in runtime

bundlekit treats a structured directory tree as a logical unit of code,
metadata and localized resources. The CLI inspects bundle layouts,
resolves resources through the localization-aware query engine, and
classifies executables by their magic bytes.

Usage:
  bundlekit <command> [options]

Commands:
  inspect       Show a bundle's layout, identity, version and executable
  resources     Resolve resources through the query engine
  locales       Show a bundle's localization search list
  grok          Classify a file by its magic bytes
  scan          Find bundles under a directory tree
  serve         Start a local HTTP status server (with /metrics)
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to .bundlekit/config.yaml
  -V, --version     Show version and exit

Examples:
  bundlekit inspect Foo.bundle
  bundlekit resources Foo.bundle icon --type png
  bundlekit resources Foo.bundle icon --type png --locale fr
  bundlekit locales Foo.bundle --prefs de_DE,fr_FR
  bundlekit grok Contents/MacOS/Foo
  bundlekit scan /Library/PlugIns
  bundlekit serve --addr :8484

Environment Variables:
  BUNDLEKIT_CONFIG_PATH  Config file override
  BUNDLEKIT_LANGUAGES    Comma-separated preferred-language override
  BUNDLEKIT_PLATFORM     Platform identifier override (macos, linux, ...)
  BUNDLEKIT_PRODUCT      Product identifier override (iphone, ipad, ...)

For detailed command help: bundlekit <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("bundlekit version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to keep progress output out of pipes.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	cfg := LoadConfigOrDefault(*configPath)
	cfg.Apply()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "inspect":
		runInspect(cmdArgs, globals)
	case "resources":
		runResources(cmdArgs, globals)
	case "locales":
		runLocales(cmdArgs, globals)
	case "grok":
		runGrok(cmdArgs, globals)
	case "scan":
		runScan(cmdArgs, cfg, globals)
	case "serve":
		os.Exit(runServe(cmdArgs, globals))
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// openBundle creates a bundle handle or exits with a structured error.
func openBundle(path string) *bundle.Bundle {
	b, err := bundle.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open bundle at %s: %v\n", path, err)
		os.Exit(1)
	}
	return b
}
