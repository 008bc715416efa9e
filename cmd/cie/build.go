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
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/excflow/internal/builder"
	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/errors"
	"github.com/kraklabs/excflow/internal/integrations/builtin"
	"github.com/kraklabs/excflow/internal/metrics"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/ui"
)

// runID tags one invocation's log lines, distinct from any particular
// entrypoint or exception type, so a CI pipeline correlating excflow runs
// against its own job IDs has something stable to grep for.
var runID = uuid.New().String()

// buildModel walks projectDir, extracts every Python file, detects
// framework entrypoints and injects Django dispatch edges, returning the
// resulting ProgramModel and the project's resolved FlowConfig.
func buildModel(projectDir string, quiet bool) (*pymodel.ProgramModel, config.FlowConfig) {
	return buildModelWithMetrics(projectDir, quiet, nil)
}

// buildModelWithMetrics is buildModel plus optional Prometheus counters for
// excflow audit --serve-metrics; mtr may be nil.
func buildModelWithMetrics(projectDir string, quiet bool, mtr *metrics.Registry) (*pymodel.ProgramModel, config.FlowConfig) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		// A malformed config never aborts the analysis: Load has already
		// fallen back to the defaults, so warn and go on with them.
		ui.Warningf("Failed to read .flow/config.yaml under %s (%v); using defaults", projectDir, err)
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.Default(-1, fmt.Sprintf("[%s] extracting", runID[:8]))
	}

	model, stats, err := builder.Build(context.Background(), builder.Options{
		ProjectDir:  projectDir,
		ExcludeDirs: cfg.Exclude,
		UseCache:    true,
		Registry:    builtin.DefaultRegistry(),
		Progress: func(done, total int, stage string) {
			if bar == nil {
				return
			}
			bar.ChangeMax(total)
			_ = bar.Set(done)
		},
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot build the program model",
			fmt.Sprintf("Failed to walk and extract %s", projectDir),
			"Check that the path exists and excflow has permission to read it",
			err,
		), quiet)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if mtr != nil {
		mtr.FilesParsed.Add(float64(stats.FilesParsed))
		mtr.FilesCached.Add(float64(stats.FilesCached))
		mtr.ParseErrors.Add(float64(stats.ParseErrors))
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "[%s] %d files parsed, %d cached, %d parse errors, %d entrypoints\n",
			runID[:8], stats.FilesParsed, stats.FilesCached, stats.ParseErrors, len(model.Entrypoints))
	}
	return model, cfg
}
