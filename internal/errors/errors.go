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

// Package errors defines the CLI's typed error taxonomy: every fatal error
// a command surfaces carries a short message, a detail explaining what
// happened, and an actionable suggestion, so FatalError can print something
// a user can act on instead of a bare Go error string.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind classifies a CLIError for --json output and exit-code selection.
type Kind string

const (
	KindConfig     Kind = "config"
	KindInput      Kind = "input"
	KindPermission Kind = "permission"
	KindDatabase   Kind = "database"
	KindNetwork    Kind = "network"
	KindInternal   Kind = "internal"
)

// CLIError is a user-facing error: Message is the one-line summary, Detail
// explains what went wrong, Suggestion names the next step, and Cause (if
// any) is the underlying error this one wraps.
type CLIError struct {
	Kind       Kind
	Message    string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *CLIError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *CLIError) Unwrap() error { return e.Cause }

func newError(kind Kind, message, detail, suggestion string, cause error) error {
	return &CLIError{Kind: kind, Message: message, Detail: detail, Suggestion: suggestion, Cause: cause}
}

// NewConfigError reports a problem loading or validating .flow/config.yaml.
func NewConfigError(message, detail, suggestion string, cause error) error {
	return newError(KindConfig, message, detail, suggestion, cause)
}

// NewInputError reports a problem with a query's own arguments (unknown
// exception type, missing function name, ...).
func NewInputError(message, detail, suggestion string, cause error) error {
	return newError(KindInput, message, detail, suggestion, cause)
}

// NewPermissionError reports a filesystem permission failure, e.g. writing
// the project cache or a report file.
func NewPermissionError(message, detail, suggestion string, cause error) error {
	return newError(KindPermission, message, detail, suggestion, cause)
}

// NewDatabaseError reports a problem opening or querying the persistent
// extraction cache.
func NewDatabaseError(message, detail, suggestion string, cause error) error {
	return newError(KindDatabase, message, detail, suggestion, cause)
}

// NewNetworkError reports a problem reaching an external endpoint (not
// currently used by any built-in command, but kept for parity with the
// taxonomy every other CLIError kind follows, and for report-upload
// integrations built on top of this package).
func NewNetworkError(message, detail, suggestion string, cause error) error {
	return newError(KindNetwork, message, detail, suggestion, cause)
}

// NewInternalError reports a bug: a codepath excflow itself did not expect
// to reach, as opposed to a problem with the user's input or environment.
func NewInternalError(message, detail, suggestion string, cause error) error {
	return newError(KindInternal, message, detail, suggestion, cause)
}

// jsonError is the shape FatalError prints under --json.
type jsonError struct {
	Error      string `json:"error"`
	Kind       Kind   `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FatalError prints err to stderr and exits with status 1. A *CLIError
// prints its message, detail and suggestion (as JSON when jsonOutput is
// set); any other error is wrapped as an internal error first, so every
// exit path gets the same shape.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	cliErr, ok := err.(*CLIError)
	if !ok {
		cliErr = &CLIError{Kind: KindInternal, Message: err.Error(), Cause: err}
	}

	if jsonOutput {
		payload := jsonError{Error: cliErr.Message, Kind: cliErr.Kind, Detail: cliErr.Detail, Suggestion: cliErr.Suggestion}
		enc, encErr := json.Marshal(payload)
		if encErr == nil {
			fmt.Fprintln(os.Stderr, string(enc))
		} else {
			fmt.Fprintln(os.Stderr, cliErr.Error())
		}
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", cliErr.Message)
	if cliErr.Detail != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", cliErr.Detail)
	}
	if cliErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", cliErr.Suggestion)
	}
	os.Exit(1)
}
