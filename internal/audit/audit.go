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

// Package audit implements the two integration-level queries that consume
// the propagator's per-entrypoint classification: audit, which reports every
// escaping exception type reaching each entrypoint classified against
// handlers, and routes-to, which traces a given exception type backwards
// from its raise sites to the entrypoints that can trigger it.
package audit

import (
	"sort"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/propagate"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/query"
)

// EntrypointAudit is one entrypoint's classified exception flow.
type EntrypointAudit struct {
	Entrypoint  pymodel.Entrypoint
	FunctionKey string
	Flow        propagate.ExceptionFlow
}

// HasIssues reports whether this entry carries anything an `excflow audit`
// run should flag: an uncaught type, or one hidden behind a generic
// catch-all. A remote global handler is tracked but is not, by itself, an
// issue.
func (a EntrypointAudit) HasIssues() bool {
	return len(a.Flow.Uncaught) > 0 || len(a.Flow.CaughtByGeneric) > 0
}

// Audit runs the propagator once over model and classifies every
// entrypoint's escaping exceptions against the five-way taxonomy in
// propagate.ComputeExceptionFlow. Entrypoints that cannot be resolved to a
// known function are silently skipped (the integration that registered them
// named a function extraction never saw, e.g. in an excluded directory).
func Audit(model *pymodel.ProgramModel, cfg config.FlowConfig, frameworkResponse propagate.FrameworkResponseFunc) []EntrypointAudit {
	result := propagate.Run(model, propagate.Options{ResolutionMode: cfg.ResolutionMode, Config: cfg})
	idx := propagate.BuildGlobalHandlerIndex(model)

	var out []EntrypointAudit
	for _, ep := range model.Entrypoints {
		key, ok := propagate.ResolveEntrypointFunctionKey(ep, model)
		if !ok {
			continue
		}
		flow := propagate.ComputeExceptionFlow(key, model, result, idx, cfg, frameworkResponse)
		out = append(out, EntrypointAudit{Entrypoint: ep, FunctionKey: key, Flow: flow})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entrypoint.File != out[j].Entrypoint.File {
			return out[i].Entrypoint.File < out[j].Entrypoint.File
		}
		return out[i].Entrypoint.Function < out[j].Entrypoint.Function
	})
	return out
}

// DefaultRoutesToMaxDepth and DefaultRoutesToMaxPaths bound routes-to's
// reverse-DFS the same way trace's forward walk is bounded.
const (
	DefaultRoutesToMaxDepth = 12
	DefaultRoutesToMaxPaths = 50
)

// RouteToPath is one path from a raise site back to an entrypoint that can
// trigger it, innermost function first and the entrypoint's function key
// last.
type RouteToPath struct {
	Entrypoint pymodel.Entrypoint
	RaiseSite  pymodel.RaiseSite
	Path       []string
}

// RoutesTo finds every raise site matching exceptionType (or, when
// includeSubclasses, a transitive subclass), then reverse-DFS's through the
// call graph from each site, restricted to callers themselves reachable
// from some entrypoint, to find which entrypoints can trigger it. Results
// are deduped by entrypoint: once some raise site is shown to reach an
// entrypoint, a second path to the same entrypoint is dropped. maxDepth and
// maxPaths <= 0 fall back to the package defaults.
func RoutesTo(model *pymodel.ProgramModel, exceptionType string, includeSubclasses bool, maxDepth, maxPaths int, cfg config.FlowConfig) []RouteToPath {
	if maxDepth <= 0 {
		maxDepth = DefaultRoutesToMaxDepth
	}
	if maxPaths <= 0 {
		maxPaths = DefaultRoutesToMaxPaths
	}

	raises := query.FindRaises(model, exceptionType, includeSubclasses)
	if len(raises) == 0 {
		return nil
	}

	forwardGraph := propagate.BuildForwardCallGraph(model, cfg)
	reverseGraph := query.BuildReverseCallGraph(model)

	entrypointsByKey := make(map[string]pymodel.Entrypoint)
	reachableFromEntrypoints := make(map[string]bool)
	for _, ep := range model.Entrypoints {
		key, ok := propagate.ResolveEntrypointFunctionKey(ep, model)
		if !ok {
			continue
		}
		entrypointsByKey[key] = ep
		for reached := range propagate.ReachableFunctions(key, model, forwardGraph) {
			reachableFromEntrypoints[reached] = true
		}
	}

	seenEntrypoint := make(map[string]bool)
	var out []RouteToPath
	for _, rs := range raises {
		if len(out) >= maxPaths {
			break
		}
		startKey := rs.File + "::" + rs.Function
		for _, path := range reverseDFSToEntrypoints(startKey, reverseGraph, reachableFromEntrypoints, entrypointsByKey, maxDepth) {
			if len(out) >= maxPaths {
				break
			}
			epKey := path[len(path)-1]
			if seenEntrypoint[epKey] {
				continue
			}
			seenEntrypoint[epKey] = true
			out = append(out, RouteToPath{Entrypoint: entrypointsByKey[epKey], RaiseSite: rs, Path: path})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entrypoint.File != out[j].Entrypoint.File {
			return out[i].Entrypoint.File < out[j].Entrypoint.File
		}
		return out[i].Entrypoint.Function < out[j].Entrypoint.Function
	})
	return out
}

// reverseDFSToEntrypoints walks backwards from start through reverseGraph,
// only stepping into callers present in allowed, and collects every path
// that lands on an entrypoint function key (several may reach the same
// entrypoint; RoutesTo keeps the first per entrypoint). A node is a terminal once
// it is an entrypoint: its own callers are not explored further, matching
// routes-to's "collecting every path that lands on an entrypoint function".
func reverseDFSToEntrypoints(start string, reverseGraph map[string]map[string]bool, allowed map[string]bool, entrypoints map[string]pymodel.Entrypoint, maxDepth int) [][]string {
	var results [][]string
	visiting := make(map[string]bool)

	var walk func(node string, path []string, depth int)
	walk = func(node string, path []string, depth int) {
		newPath := append(append([]string(nil), path...), node)

		if _, isEntry := entrypoints[node]; isEntry {
			results = append(results, newPath)
			return
		}
		if depth >= maxDepth || visiting[node] {
			return
		}
		visiting[node] = true
		defer delete(visiting, node)

		for caller := range reverseGraph[node] {
			if allowed[caller] {
				walk(caller, newPath, depth+1)
			}
		}
		if simple := pymodel.SimpleNameOfKey(node); simple != node {
			for caller := range reverseGraph[simple] {
				if allowed[caller] {
					walk(caller, newPath, depth+1)
				}
			}
		}
	}

	walk(start, nil, 0)
	return results
}
