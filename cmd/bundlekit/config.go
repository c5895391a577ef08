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
	"path/filepath"
	"strings"

	"github.com/kraklabs/bundlekit/internal/errors"
	"github.com/kraklabs/bundlekit/pkg/bundle"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".bundlekit"
	defaultConfigFile = "config.yaml"
	configVersion     = "1"
)

// Config represents the .bundlekit/config.yaml configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Locales LocalesConfig `yaml:"locales,omitempty"`
	Host    HostConfig    `yaml:"host,omitempty"`
	Scan    ScanConfig    `yaml:"scan,omitempty"`
}

// LocalesConfig configures localization lookup behavior.
type LocalesConfig struct {
	// Default is the backstop localization appended last to every
	// language search list that lacks it (default "en").
	Default string `yaml:"default,omitempty"`

	// Preferred overrides the user's preferred-language list.
	Preferred []string `yaml:"preferred,omitempty"`
}

// HostConfig overrides host identity used for variant matching.
type HostConfig struct {
	Platform string `yaml:"platform,omitempty"` // macos, iphoneos, windows, linux, ...
	Product  string `yaml:"product,omitempty"`  // iphone, ipod, ipad
	// ExecutablesSubdir overrides the Contents/<dir> executables
	// directory name (host-specific hook).
	ExecutablesSubdir string `yaml:"executables_subdir,omitempty"`
}

// ScanConfig configures the scan command.
type ScanConfig struct {
	Exclude []string `yaml:"exclude,omitempty"` // directory names to skip
}

// DefaultConfig returns a config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Version: configVersion,
		Scan: ScanConfig{
			Exclude: []string{".git", "node_modules", "vendor"},
		},
	}
}

// LoadConfigOrDefault loads the configuration or falls back to the
// defaults when no file is present. A malformed file is fatal.
func LoadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		if cliErr, ok := err.(*errors.CLIError); ok && cliErr.Category == errors.CategoryNotFound {
			return DefaultConfig()
		}
		errors.FatalError(err)
	}
	return cfg
}

// LoadConfig loads configuration from the specified path or finds it by
// walking parent directories. Environment variables override the file.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("BUNDLEKIT_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Recreate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Apply installs the configuration into the bundle runtime.
func (c *Config) Apply() {
	if c.Locales.Default != "" {
		bundle.SetDefaultLocalization(c.Locales.Default)
	}
	if len(c.Locales.Preferred) > 0 {
		prefs := append([]string(nil), c.Locales.Preferred...)
		bundle.SetUserLanguagesFunc(func() []string { return prefs })
	}
	if c.Host.Platform != "" {
		bundle.SetCurrentPlatform(c.Host.Platform)
	}
	if c.Host.Product != "" {
		bundle.SetCurrentProduct(c.Host.Product)
	}
	if c.Host.ExecutablesSubdir != "" {
		bundle.SetExecutablesSubdirOverride(c.Host.ExecutablesSubdir)
	}
}

// findConfigFile searches for .bundlekit/config.yaml in the current and
// parent directories.
func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}
	for {
		configPath := filepath.Join(dir, defaultConfigDir, defaultConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.NewNotFoundError(
		"Configuration not found",
		"No .bundlekit/config.yaml file found in current directory or any parent directory",
		"Defaults are used when no configuration exists",
		nil,
	)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BUNDLEKIT_LANGUAGES"); v != "" {
		c.Locales.Preferred = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Locales.Preferred = append(c.Locales.Preferred, p)
			}
		}
	}
	if v := os.Getenv("BUNDLEKIT_PLATFORM"); v != "" {
		c.Host.Platform = v
	}
	if v := os.Getenv("BUNDLEKIT_PRODUCT"); v != "" {
		c.Host.Product = v
	}
}
