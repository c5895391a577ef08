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

// Package ui provides colorized terminal output helpers for the CLI.
//
// Colors are disabled automatically when stdout is not a terminal, when
// NO_COLOR is set, or when InitColors(true) is called.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	subColor     = color.New(color.FgWhite, color.Bold)
	labelColor   = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	countColor   = color.New(color.FgMagenta)
	cyanColor    = color.New(color.FgCyan)
	greenColor   = color.New(color.FgGreen)
	yellowColor  = color.New(color.FgYellow)
)

// InitColors enables or disables color output globally.
// Color is also disabled when stdout is not a TTY.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a prominent section header.
func Header(text string) {
	headerColor.Println(text)
}

// SubHeader prints a secondary section header.
func SubHeader(text string) {
	subColor.Println(text)
}

// Label prints "name: value" with a colored name.
func Label(name, value string) {
	fmt.Printf("%s %s\n", labelColor.Sprintf("%s:", name), value)
}

// Info prints an informational line.
func Info(text string) {
	fmt.Println(text)
}

// Infof prints a formatted informational line.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Success prints a success line.
func Success(text string) {
	successColor.Println(text)
}

// Successf prints a formatted success line.
func Successf(format string, args ...interface{}) {
	successColor.Printf(format+"\n", args...)
}

// Warning prints a warning line to stderr.
func Warning(text string) {
	warningColor.Fprintln(os.Stderr, text)
}

// Warningf prints a formatted warning line to stderr.
func Warningf(format string, args ...interface{}) {
	warningColor.Fprintf(os.Stderr, format+"\n", args...)
}

// Dim prints a de-emphasized line.
func Dim(text string) {
	dimColor.Println(text)
}

// DimText returns text styled de-emphasized.
func DimText(text string) string {
	return dimColor.Sprint(text)
}

// CountText returns a count styled for emphasis.
func CountText(n int) string {
	return countColor.Sprintf("%d", n)
}

// Cyan returns text styled cyan.
func Cyan(text string) string {
	return cyanColor.Sprint(text)
}

// Green returns text styled green.
func Green(text string) string {
	return greenColor.Sprint(text)
}

// Yellow returns text styled yellow.
func Yellow(text string) string {
	return yellowColor.Sprint(text)
}
