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

// Package format renders audit results as human-readable text, JSON, or a
// SARIF report a code-scanning dashboard can ingest.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	humanize "github.com/dustin/go-humanize"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/kraklabs/excflow/internal/audit"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/ui"
)

// WriteText renders entries as a human-readable report, grouping issues
// under each entrypoint in the teacher's "Header / SubHeader / Label"
// style.
func WriteText(w io.Writer, entries []audit.EntrypointAudit) {
	total := 0
	for _, e := range entries {
		total += len(e.Flow.Uncaught) + len(e.Flow.CaughtByGeneric)
	}
	fmt.Fprintf(w, "%s %s entrypoints, %s unhandled exception paths\n\n",
		ui.Label("Audit:"), humanize.Comma(int64(len(entries))), humanize.Comma(int64(total)))

	for _, e := range entries {
		if !e.HasIssues() {
			continue
		}
		fmt.Fprintf(w, "%s %s (%s:%d)\n", ui.Label("entrypoint"), e.Entrypoint.Function, e.Entrypoint.File, e.Entrypoint.Line)
		for _, exc := range sortedKeys(e.Flow.Uncaught) {
			fmt.Fprintf(w, "  %s %s escapes uncaught\n", ui.Label("-"), exc)
		}
		for exc, h := range e.Flow.CaughtByGeneric {
			fmt.Fprintf(w, "  %s %s only caught by generic handler %s:%d\n", ui.Label("-"), exc, h.File, h.Line)
		}
		fmt.Fprintln(w)
	}
}

func sortedKeys(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func handlerKeys(handlers map[string]pymodel.GlobalHandler) []string {
	out := make([]string, 0, len(handlers))
	for exc := range handlers {
		out = append(out, exc)
	}
	sort.Strings(out)
	return out
}

// jsonEntry is the stable --json shape for one audited entrypoint.
type jsonEntry struct {
	File     string   `json:"file"`
	Function string   `json:"function"`
	Line     int      `json:"line"`
	Uncaught []string `json:"uncaught,omitempty"`
	Generic  []string `json:"caught_by_generic,omitempty"`
	Remote   []string `json:"caught_by_remote_global,omitempty"`
	HasIssue bool     `json:"has_issue"`
}

// WriteJSON renders entries as a JSON array, one object per entrypoint.
func WriteJSON(w io.Writer, entries []audit.EntrypointAudit) error {
	out := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, jsonEntry{
			File:     e.Entrypoint.File,
			Function: e.Entrypoint.Function,
			Line:     e.Entrypoint.Line,
			Uncaught: sortedKeys(e.Flow.Uncaught),
			Generic:  handlerKeys(e.Flow.CaughtByGeneric),
			Remote:   handlerKeys(e.Flow.CaughtByRemoteGlobal),
			HasIssue: e.HasIssues(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteSARIF renders entries as a SARIF 2.1.0 log, one result per uncaught
// or generically-caught exception type, suitable for upload to a
// code-scanning dashboard (e.g. GitHub's).
func WriteSARIF(w io.Writer, entries []audit.EntrypointAudit) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}
	run := sarif.NewRunWithInformationURI("excflow", "https://github.com/kraklabs/excflow")

	ruleUncaught := run.AddRule("uncaught-exception").
		WithDescription("An exception type can escape this entrypoint with no handler on any call path.")
	ruleGeneric := run.AddRule("generic-catch-all").
		WithDescription("An exception type reaching this entrypoint is only caught by a generic Exception/BaseException handler.")

	for _, e := range entries {
		run.AddDistinctArtifact(e.Entrypoint.File)

		for _, exc := range sortedKeys(e.Flow.Uncaught) {
			result := run.CreateResultForRule(ruleUncaught.ID).
				WithLevel("error").
				WithMessage(sarif.NewTextMessage(fmt.Sprintf("%s can escape %s unhandled", exc, e.Entrypoint.Function))).
				WithLocation(sarif.NewLocationWithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(e.Entrypoint.File)).
						WithRegion(sarif.NewRegion().WithStartLine(e.Entrypoint.Line)),
				))
			run.AddResult(result)
		}
		for exc := range e.Flow.CaughtByGeneric {
			result := run.CreateResultForRule(ruleGeneric.ID).
				WithLevel("warning").
				WithMessage(sarif.NewTextMessage(fmt.Sprintf("%s reaching %s is only caught by a generic handler", exc, e.Entrypoint.Function))).
				WithLocation(sarif.NewLocationWithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(e.Entrypoint.File)).
						WithRegion(sarif.NewRegion().WithStartLine(e.Entrypoint.Line)),
				))
			run.AddResult(result)
		}
	}

	report.AddRun(run)
	return report.PrettyWrite(w)
}
