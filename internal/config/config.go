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

// Package config loads the project's .flow/config.yaml analysis settings.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/excflow/internal/pymodel"
)

// FlowConfig is the typed configuration the core consumes. Parsing the YAML
// file itself is caller territory per spec §1; this package provides the
// loader as a convenience but the core operates purely on this struct.
type FlowConfig struct {
	ResolutionMode     pymodel.ResolutionMode `yaml:"resolution_mode"`
	Exclude            []string               `yaml:"exclude"`
	HandledBaseClasses []string               `yaml:"handled_base_classes"`
	AsyncBoundaries    []string               `yaml:"async_boundaries"`
}

// Default returns the zero-value configuration: default resolution mode, no
// extra excludes, no handled base classes, no async boundaries.
func Default() FlowConfig {
	return FlowConfig{ResolutionMode: pymodel.ResolutionModeDefault}
}

// IsAsyncBoundary reports whether calleeName matches one of the configured
// async-boundary glob patterns (e.g. "*.apply_async", "*.delay"). Edges
// matching a boundary are excluded from the propagator's forward graph
// before the fixpoint runs, so exceptions thrown by async-launched work do
// not propagate back to the caller.
func (c FlowConfig) IsAsyncBoundary(calleeName string) bool {
	for _, pattern := range c.AsyncBoundaries {
		if ok, _ := filepath.Match(pattern, calleeName); ok {
			return true
		}
		// extract.go only ever records the bare attribute name for a method
		// call (e.g. "delay", not "task.delay"), so a "*.delay"-style pattern
		// must also match against the bare method name directly.
		method := calleeName
		if idx := strings.LastIndex(calleeName, "."); idx >= 0 {
			method = calleeName[idx+1:]
		}
		trimmed := strings.TrimPrefix(pattern, "*.")
		if ok, _ := filepath.Match(trimmed, method); ok {
			return true
		}
	}
	return false
}

// Load reads .flow/config.yaml under directory. A missing file is not an
// error: it returns the default configuration. An unreadable or malformed
// file returns the default configuration together with the error, so the
// caller can warn and go on with the defaults (spec §7: malformed or
// missing config is handled locally, never aborts an analysis).
func Load(directory string) (FlowConfig, error) {
	path := filepath.Join(directory, ".flow", "config.yaml")
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from a caller-supplied project directory
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), err
	}

	var raw struct {
		ResolutionMode     string   `yaml:"resolution_mode"`
		Exclude            []string `yaml:"exclude"`
		HandledBaseClasses []string `yaml:"handled_base_classes"`
		AsyncBoundaries    []string `yaml:"async_boundaries"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Default(), err
	}

	mode := pymodel.ResolutionMode(raw.ResolutionMode)
	switch mode {
	case pymodel.ResolutionModeStrict, pymodel.ResolutionModeDefault, pymodel.ResolutionModeAggressive:
	default:
		mode = pymodel.ResolutionModeDefault
	}

	return FlowConfig{
		ResolutionMode:     mode,
		Exclude:            raw.Exclude,
		HandledBaseClasses: raw.HandledBaseClasses,
		AsyncBoundaries:    raw.AsyncBoundaries,
	}, nil
}
