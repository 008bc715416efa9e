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

// Package main implements the excflow CLI.
//
// Usage:
//
//	excflow audit [path] [--json|--sarif]   Report every entrypoint's escaping exceptions
//	excflow routes-to <exception> [--path dir]    Trace an exception back to the entrypoints that can trigger it
//	excflow query <subcommand> [--path dir]       Run a single read-only query (find_raises, find_callers, find_catches, find_escapes, trace, subclasses, exceptions, stats)
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/excflow/internal/ui"
)

// version is set via -ldflags at build time.
var version = "dev"

// GlobalFlags holds flags shared by every subcommand.
type GlobalFlags struct {
	JSON    bool
	SARIF   bool
	NoColor bool
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format")
		sarifOutput = flag.Bool("sarif", false, "Output as a SARIF 2.1.0 log (audit only)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress progress output")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `excflow - whole-program exception-flow analyzer for Python

Usage:
  excflow <command> [options] [path]

Commands:
  audit        Report every entrypoint's escaping exceptions
  routes-to    Trace an exception type back to the entrypoints that can trigger it
  query        Run a single read-only query

Global Options:
  --json        Output in JSON format
  --sarif       Output as a SARIF 2.1.0 log (audit only)
  --no-color    Disable color output (respects NO_COLOR)
  -q, --quiet   Suppress progress output
  -V, --version Show version and exit

For detailed command help: excflow <command> --help
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("excflow version %s\n", version)
		os.Exit(0)
	}
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *jsonOutput || *sarifOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, SARIF: *sarifOutput, NoColor: *noColor, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "audit":
		runAudit(cmdArgs, globals)
	case "routes-to":
		runRoutesTo(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
