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
	"log"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/excflow/internal/audit"
	"github.com/kraklabs/excflow/internal/format"
	"github.com/kraklabs/excflow/internal/integrations/builtin"
	"github.com/kraklabs/excflow/internal/metrics"
)

func runAudit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	serveMetrics := fs.String("serve-metrics", "", "Serve Prometheus metrics for this run on the given address (e.g. :9090) until the process exits")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: excflow audit [path] [options]

Report every entrypoint's escaping exceptions, classified as caught
locally, caught by a same-file or remote global handler, caught only by a
generic catch-all, framework-handled, or uncaught.
`)
	}
	_ = fs.Parse(args)

	projectDir := "."
	if fs.NArg() > 0 {
		projectDir = fs.Arg(0)
	}

	mtr := metrics.NewRegistry()

	buildStart := time.Now()
	model, cfg := buildModelWithMetrics(projectDir, globals.Quiet, mtr)
	mtr.BuildDuration.Observe(time.Since(buildStart).Seconds())

	reg := builtin.DefaultRegistry()

	propagateStart := time.Now()
	entries := audit.Audit(model, cfg, reg.ExceptionResponse)
	mtr.PropagateDuration.Observe(time.Since(propagateStart).Seconds())

	mtr.EntrypointsTotal.Set(float64(len(entries)))
	for _, e := range entries {
		mtr.UncaughtTotal.Add(float64(len(e.Flow.Uncaught)))
		mtr.GenericCaughtTotal.Add(float64(len(e.Flow.CaughtByGeneric)))
	}

	if *serveMetrics != "" {
		http.Handle("/metrics", mtr.Handler())
		if !globals.Quiet {
			fmt.Fprintf(os.Stderr, "Serving metrics on %s/metrics (Ctrl-C to stop)\n", *serveMetrics)
		}
		log.Fatal(http.ListenAndServe(*serveMetrics, nil))
	}

	switch {
	case globals.SARIF:
		if err := format.WriteSARIF(os.Stdout, entries); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to render SARIF: %v\n", err)
			os.Exit(1)
		}
	case globals.JSON:
		if err := format.WriteJSON(os.Stdout, entries); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to render JSON: %v\n", err)
			os.Exit(1)
		}
	default:
		format.WriteText(os.Stdout, entries)
	}

	for _, e := range entries {
		if e.HasIssues() {
			os.Exit(1)
		}
	}
}
