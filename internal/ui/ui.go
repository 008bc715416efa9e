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

// Package ui renders the CLI's human-facing text output: colored headers,
// labels and status lines when writing to a real terminal, plain text
// otherwise.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	subHeadColor = color.New(color.FgCyan)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	warnColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
	countColor   = color.New(color.FgWhite, color.Bold)
)

// InitColors disables color output when noColor is set, when NO_COLOR is
// present in the environment, or when stdout is not a terminal; it mirrors
// fatih/color's own isatty check but makes the decision explicit at
// startup instead of on first use.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section title.
func Header(text string) { headerColor.Println(text) }

// SubHeader prints a secondary section title.
func SubHeader(text string) { subHeadColor.Println(text) }

// Label formats a field label for use inline with fmt.Printf.
func Label(text string) string { return labelColor.Sprint(text) }

// DimText formats low-priority text (paths, timestamps).
func DimText(text string) string { return dimColor.Sprint(text) }

// CountText formats a count for a summary line.
func CountText(n int) string { return countColor.Sprint(n) }

// Info prints an informational line to stdout.
func Info(text string) { fmt.Println(text) }

// Infof prints a formatted informational line to stdout.
func Infof(format string, args ...interface{}) { fmt.Printf(format+"\n", args...) }

// Warning prints a yellow warning line to stderr.
func Warning(text string) { warnColor.Fprintln(os.Stderr, text) }

// Warningf prints a formatted yellow warning line to stderr.
func Warningf(format string, args ...interface{}) { warnColor.Fprintf(os.Stderr, format+"\n", args...) }

// Success prints a green success line to stdout.
func Success(text string) { successColor.Println(text) }

// Successf prints a formatted green success line to stdout.
func Successf(format string, args ...interface{}) { successColor.Printf(format+"\n", args...) }
