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

	"github.com/kraklabs/excflow/internal/errors"
	"github.com/kraklabs/excflow/internal/integrations/builtin"
	"github.com/kraklabs/excflow/internal/propagate"
	"github.com/kraklabs/excflow/internal/query"
	"github.com/kraklabs/excflow/internal/ui"
)

const queryUsage = `Usage: excflow query <subcommand> [args] [options]

Subcommands:
  find_raises <exception>     Every raise site of <exception> (or its subclasses with --subclasses)
  find_callers <name>         Every call site calling a function named <name>
  find_catches <exception>    Every catch site and global handler that can catch <exception>
  find_escapes <function>     <function>'s classified exception flow
  trace <function>            <function>'s bounded call tree annotated with raises
  subclasses <class>          Transitive subclasses of <class>
  exceptions                  Every class/parent edge in the exception hierarchy
  stats                       Model size and resolution-coverage summary

Options:
  --path <dir>        Project directory to analyze (default ".")
  --subclasses        Include transitive subclasses (find_raises, find_catches)
  --depth <n>         Max call-tree depth (trace)
  --show-all          Include non-raising subtrees (trace)
`

func runQuery(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, queryUsage)
		os.Exit(1)
	}
	sub := args[0]
	subArgs := args[1:]

	fs := flag.NewFlagSet("query "+sub, flag.ExitOnError)
	projectDir := fs.String("path", ".", "Project directory to analyze")
	includeSubclasses := fs.Bool("subclasses", false, "Include transitive subclasses")
	depth := fs.Int("depth", 0, "Max call-tree depth")
	showAll := fs.Bool("show-all", false, "Include non-raising subtrees")
	fs.Usage = func() { fmt.Fprint(os.Stderr, queryUsage) }
	_ = fs.Parse(subArgs)

	model, cfg := buildModel(*projectDir, globals.Quiet)
	reg := builtin.DefaultRegistry()

	var result interface{}

	switch sub {
	case "find_raises":
		requireArg(fs, sub, "exception type")
		result = query.FindRaises(model, fs.Arg(0), *includeSubclasses)

	case "find_callers":
		requireArg(fs, sub, "function name")
		result = query.FindCallers(model, fs.Arg(0))

	case "find_catches":
		requireArg(fs, sub, "exception type")
		result = query.FindCatches(model, fs.Arg(0), *includeSubclasses)

	case "find_escapes":
		requireArg(fs, sub, "function name")
		flow, ok := query.FindEscapes(model, fs.Arg(0), cfg, reg.ExceptionResponse)
		if !ok {
			errors.FatalError(errors.NewInputError(
				"Function not found",
				fmt.Sprintf("No function named %q in the program model", fs.Arg(0)),
				"Check the spelling, or use a fully-qualified file::name key",
				nil,
			), globals.JSON)
		}
		result = flow

	case "trace":
		requireArg(fs, sub, "function name")
		_, key, ok := model.GetFunctionByName(fs.Arg(0))
		if !ok {
			errors.FatalError(errors.NewInputError(
				"Function not found",
				fmt.Sprintf("No function named %q in the program model", fs.Arg(0)),
				"Check the spelling, or use a fully-qualified file::name key",
				nil,
			), globals.JSON)
		}
		propResult := propagate.Run(model, propagate.Options{ResolutionMode: cfg.ResolutionMode, Config: cfg})
		result = query.Trace(model, propResult, key, *depth, *showAll, cfg)

	case "subclasses":
		requireArg(fs, sub, "class name")
		result = query.Subclasses(model, fs.Arg(0))

	case "exceptions":
		result = query.Exceptions(model)

	case "stats":
		result = query.ComputeStats(model)

	default:
		fmt.Fprintf(os.Stderr, "Unknown query subcommand: %s\n\n", sub)
		fmt.Fprint(os.Stderr, queryUsage)
		os.Exit(1)
	}

	printQueryResult(result, globals)
}

func requireArg(fs *flag.FlagSet, sub, what string) {
	if fs.NArg() == 0 {
		errors.FatalError(errors.NewInputError(
			fmt.Sprintf("Missing %s", what),
			fmt.Sprintf("query %s requires a %s argument", sub, what),
			fmt.Sprintf("Run 'excflow query %s <%s>'", sub, what),
			nil,
		), false)
	}
}

func printQueryResult(result interface{}, globals GlobalFlags) {
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to render result: %v\n", err)
		os.Exit(1)
	}
	ui.SubHeader("Result")
	fmt.Println(string(b))
}
