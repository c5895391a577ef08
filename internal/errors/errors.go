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

// Package errors provides structured, user-facing errors for the CLI.
//
// Every error carries a short message, a longer detail line, and a
// suggestion telling the user what to do next. FatalError renders the
// error to stderr and exits with a category-specific exit code.
package errors

import (
	"fmt"
	"os"
)

// Category classifies a CLI error for exit-code purposes.
type Category int

const (
	// CategoryInternal is an unexpected failure (a bug or broken state).
	CategoryInternal Category = iota
	// CategoryConfig is a configuration file problem.
	CategoryConfig
	// CategoryInput is invalid user input (bad arguments, bad paths).
	CategoryInput
	// CategoryPermission is a filesystem permission problem.
	CategoryPermission
	// CategoryNotFound means a requested object does not exist.
	CategoryNotFound
)

// exit codes per category, stable for scripting
var exitCodes = map[Category]int{
	CategoryInternal:   1,
	CategoryConfig:     2,
	CategoryInput:      3,
	CategoryPermission: 4,
	CategoryNotFound:   5,
}

// CLIError is a structured error with enough context to render a
// helpful message to a human.
type CLIError struct {
	Category   Category
	Message    string // short, one line
	Detail     string // what exactly happened
	Suggestion string // what the user should try
	Cause      error  // underlying error, may be nil
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Message, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code for this error's category.
func (e *CLIError) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

func newError(cat Category, message, detail, suggestion string, cause error) *CLIError {
	return &CLIError{
		Category:   cat,
		Message:    message,
		Detail:     detail,
		Suggestion: suggestion,
		Cause:      cause,
	}
}

// NewInternalError creates an error for unexpected internal failures.
func NewInternalError(message, detail, suggestion string, cause error) *CLIError {
	return newError(CategoryInternal, message, detail, suggestion, cause)
}

// NewConfigError creates an error for configuration problems.
func NewConfigError(message, detail, suggestion string, cause error) *CLIError {
	return newError(CategoryConfig, message, detail, suggestion, cause)
}

// NewInputError creates an error for invalid user input.
func NewInputError(message, detail, suggestion string, cause error) *CLIError {
	return newError(CategoryInput, message, detail, suggestion, cause)
}

// NewPermissionError creates an error for filesystem permission problems.
func NewPermissionError(message, detail, suggestion string, cause error) *CLIError {
	return newError(CategoryPermission, message, detail, suggestion, cause)
}

// NewNotFoundError creates an error for missing bundles, files or keys.
func NewNotFoundError(message, detail, suggestion string, cause error) *CLIError {
	return newError(CategoryNotFound, message, detail, suggestion, cause)
}

// FatalError prints the error to stderr and exits the process.
//
// CLIError values are rendered with their detail and suggestion lines;
// any other error is printed as-is and exits with code 1.
func FatalError(err error) {
	if cliErr, ok := err.(*CLIError); ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cliErr.Message)
		if cliErr.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cliErr.Detail)
		}
		if cliErr.Cause != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", cliErr.Cause)
		}
		if cliErr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "\n%s\n", cliErr.Suggestion)
		}
		os.Exit(cliErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
