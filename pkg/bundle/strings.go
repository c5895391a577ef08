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
	"os"
	"strings"

	"howett.net/plist"
)

const (
	defaultStringTableName = "Localizable"
	stringTableType        = "strings"
	infoPlistStringsTable  = "InfoPlist"
)

// LocalizedString looks key up in the named string table (default
// "Localizable"), resolved through the resource engine so the user's
// preferred localization wins. A missing key returns fallback, or the
// key itself when fallback is empty.
func (b *Bundle) LocalizedString(key, fallback, tableName string) string {
	return b.LocalizedStringForLocalization(key, fallback, tableName, "")
}

// LocalizedStringForLocalization is LocalizedString pinned to one
// localization. Only unpinned lookups are cached; the cache holds the
// preferred-language table as determined by normal lookup rules.
func (b *Bundle) LocalizedStringForLocalization(key, fallback, tableName, localization string) string {
	if key == "" {
		return fallback
	}
	if tableName == "" {
		tableName = defaultStringTableName
	}

	var table map[string]string
	if localization == "" {
		b.mu.Lock()
		if b.stringTables != nil {
			table = b.stringTables[tableName]
		}
		b.mu.Unlock()
	}

	if table == nil {
		// Load outside the lock: the resource query and the plist
		// parser both may call back into the bundle API.
		table = b.loadStringTable(tableName, localization)

		if localization == "" && !strings.HasSuffix(tableName, ".nocache") {
			b.mu.Lock()
			if b.stringTables == nil {
				b.stringTables = make(map[string]map[string]string)
			}
			// A racing loader may have published first; keep the winner.
			if winner, ok := b.stringTables[tableName]; ok {
				table = winner
			} else {
				b.stringTables[tableName] = table
			}
			b.mu.Unlock()
		}
	}

	if v, ok := table[key]; ok {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return key
}

// loadStringTable reads <table>.strings through the resource engine.
// A missing or malformed table is served empty.
func (b *Bundle) loadStringTable(tableName, localization string) map[string]string {
	var tablePath string
	if localization != "" {
		tablePath = b.ResourceURLForLocalization(tableName, stringTableType, "", localization)
	} else {
		tablePath = b.ResourceURL(tableName, stringTableType, "")
	}
	if tablePath == "" {
		return map[string]string{}
	}
	return parseStringsFile(tablePath)
}

// parseStringsFile parses a .strings file (a property list whose root
// is a dictionary of strings).
func parseStringsFile(path string) map[string]string {
	table := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return table
	}
	var raw map[string]interface{}
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return table
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			table[k] = s
		}
	}
	return table
}

// LocalInfoDictionary returns the info dictionary overlaid with the
// localized InfoPlist.strings values from the current resource search
// path, cached until FlushCaches or bundle teardown.
func (b *Bundle) LocalInfoDictionary() InfoDict {
	b.mu.Lock()
	if b.localInfo != nil {
		local := b.localInfo
		b.mu.Unlock()
		return local
	}
	b.mu.Unlock()

	local := make(InfoDict, len(b.info)+4)
	for k, v := range b.info {
		local[k] = v
	}
	if overlayPath := b.ResourceURL(infoPlistStringsTable, stringTableType, ""); overlayPath != "" {
		for k, v := range parseStringsFile(overlayPath) {
			local[k] = v
		}
	}
	ProcessInfoDictionary(local)

	b.mu.Lock()
	if b.localInfo == nil {
		b.localInfo = local
	} else {
		local = b.localInfo
	}
	b.mu.Unlock()
	return local
}
