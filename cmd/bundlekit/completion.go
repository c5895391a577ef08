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
	"fmt"
	"os"
)

const bashCompletion = `# bash completion for bundlekit
_bundlekit() {
    local cur prev commands
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    commands="inspect resources locales grok scan serve completion"
    if [ ${COMP_CWORD} -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- "${cur}") )
    else
        COMPREPLY=( $(compgen -f -- "${cur}") )
    fi
}
complete -F _bundlekit bundlekit
`

const zshCompletion = `#compdef bundlekit
_bundlekit() {
    local -a commands
    commands=(
        'inspect:Show a bundle'\''s layout, identity and executable'
        'resources:Resolve resources through the query engine'
        'locales:Show a bundle'\''s localization search list'
        'grok:Classify a file by its magic bytes'
        'scan:Find bundles under a directory tree'
        'serve:Start a local HTTP status server'
        'completion:Generate shell completion script'
    )
    if (( CURRENT == 2 )); then
        _describe 'command' commands
    else
        _files
    fi
}
_bundlekit
`

const fishCompletion = `# fish completion for bundlekit
complete -c bundlekit -n '__fish_use_subcommand' -a inspect -d 'Show bundle layout and identity'
complete -c bundlekit -n '__fish_use_subcommand' -a resources -d 'Resolve resources'
complete -c bundlekit -n '__fish_use_subcommand' -a locales -d 'Show localization search list'
complete -c bundlekit -n '__fish_use_subcommand' -a grok -d 'Classify a file by magic bytes'
complete -c bundlekit -n '__fish_use_subcommand' -a scan -d 'Find bundles under a directory'
complete -c bundlekit -n '__fish_use_subcommand' -a serve -d 'HTTP status server'
complete -c bundlekit -n '__fish_use_subcommand' -a completion -d 'Completion scripts'
`

func runCompletion(args []string) {
	shell := ""
	if len(args) > 0 {
		shell = args[0]
	}
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Usage: bundlekit completion bash|zsh|fish\n")
		os.Exit(1)
	}
}
