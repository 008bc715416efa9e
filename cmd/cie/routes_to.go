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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/excflow/internal/audit"
	"github.com/kraklabs/excflow/internal/errors"
	"github.com/kraklabs/excflow/internal/ui"
)

func runRoutesTo(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("routes-to", flag.ExitOnError)
	includeSubclasses := fs.Bool("subclasses", false, "Also match subclasses of the exception type")
	projectDir := fs.String("path", ".", "Project directory to analyze")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: excflow routes-to <exception-type> [options]

Trace an exception type back from its raise sites to every entrypoint
that can trigger it.
`)
	}
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		errors.FatalError(errors.NewInputError(
			"Missing exception type",
			"routes-to requires the exception type to trace",
			"Run 'excflow routes-to ValueError'",
			nil,
		), globals.JSON)
	}
	excType := fs.Arg(0)

	model, cfg := buildModel(*projectDir, globals.Quiet)
	paths := audit.RoutesTo(model, excType, *includeSubclasses, 0, 0, cfg)

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(paths)
		return
	}

	if len(paths) == 0 {
		ui.Warningf("No entrypoint can trigger %s", excType)
		return
	}
	for _, p := range paths {
		fmt.Printf("%s %s (%s:%d)\n", ui.Label("entrypoint"), p.Entrypoint.Function, p.Entrypoint.File, p.Entrypoint.Line)
		for i := len(p.Path) - 1; i >= 0; i-- {
			fmt.Printf("  %s%s\n", indent(len(p.Path)-1-i), p.Path[i])
		}
		fmt.Println()
	}
}

func indent(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += "  "
	}
	return out
}
