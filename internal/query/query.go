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

// Package query implements the framework-agnostic read-only operations over
// a built ProgramModel: find_raises, find_callers, find_catches,
// find_escapes, trace, subclasses, exceptions and stats. Every operation is
// a pure function of the model (plus, where propagation is needed, a
// propagate.Result) and returns a fully-typed result record, never a free
// -form map or string.
package query

import (
	"sort"

	"github.com/sahilm/fuzzy"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/propagate"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/resolve"
)

// maxSuggestions bounds how many fuzzy-matched names find_callers offers
// when the exact lookup comes up empty.
const maxSuggestions = 5

// FindRaises returns every RaiseSite whose exception type matches
// exceptionType, or (when includeSubclasses is set) any transitive
// subclass, matched on simple names. Results are sorted by file then line
// for deterministic presentation.
func FindRaises(model *pymodel.ProgramModel, exceptionType string, includeSubclasses bool) []pymodel.RaiseSite {
	simple := pymodel.SimpleTypeName(exceptionType)
	wanted := map[string]bool{simple: true}
	if includeSubclasses {
		for _, sub := range model.Hierarchy.GetAllSubclasses(simple) {
			wanted[sub] = true
		}
	}

	var out []pymodel.RaiseSite
	for _, rs := range model.RaiseSites {
		if wanted[pymodel.SimpleTypeName(rs.ExceptionType)] {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// CallerResult is find_callers' result record: either the matching call
// sites, or (when none matched) a list of similarly-named callees the
// caller likely meant.
type CallerResult struct {
	Calls       []pymodel.CallSite
	Suggestions []string
}

// FindCallers returns every CallSite whose simple callee name equals name.
// When nothing matches, it fuzzy-matches name against every distinct callee
// name in the model and returns up to maxSuggestions candidates.
func FindCallers(model *pymodel.ProgramModel, name string) CallerResult {
	var out []pymodel.CallSite
	for _, cs := range model.CallSites {
		if cs.CalleeName == name {
			out = append(out, cs)
		}
	}
	if len(out) > 0 {
		sort.Slice(out, func(i, j int) bool {
			if out[i].File != out[j].File {
				return out[i].File < out[j].File
			}
			return out[i].Line < out[j].Line
		})
		return CallerResult{Calls: out}
	}
	return CallerResult{Suggestions: suggestSimilarNames(model, name)}
}

func suggestSimilarNames(model *pymodel.ProgramModel, name string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, cs := range model.CallSites {
		if !seen[cs.CalleeName] {
			seen[cs.CalleeName] = true
			names = append(names, cs.CalleeName)
		}
	}
	sort.Strings(names) // stable input order so equal-scoring matches tie-break deterministically

	matches := fuzzy.Find(name, names)
	var out []string
	for i, m := range matches {
		if i >= maxSuggestions {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

// CatchResult is find_catches' result record.
type CatchResult struct {
	CatchSites     []pymodel.CatchSite
	GlobalHandlers []pymodel.GlobalHandler
}

// FindCatches returns every catch site that can actually catch exceptionType
// (or a transitive subclass, when requested) and lies on some call chain
// from a matching raise site, restricted by reachability: the catch site's
// enclosing function must be reachable, via the reverse call graph, from
// some function that raises the type. Global handlers matching the type are
// always included, since by definition they are reachable from anywhere.
func FindCatches(model *pymodel.ProgramModel, exceptionType string, includeSubclasses bool) CatchResult {
	raises := FindRaises(model, exceptionType, includeSubclasses)
	if len(raises) == 0 {
		return CatchResult{GlobalHandlers: matchingGlobalHandlers(model, exceptionType, includeSubclasses)}
	}

	reverseGraph := BuildReverseCallGraph(model)
	reachable := make(map[string]bool)
	for _, rs := range raises {
		fnKey := rs.File + "::" + rs.Function
		for key := range reverseBFS(fnKey, reverseGraph) {
			reachable[key] = true
		}
	}

	var catches []pymodel.CatchSite
	for _, cs := range model.CatchSites {
		fnKey := cs.File + "::" + cs.Function
		if !reachable[fnKey] {
			continue
		}
		if catchesAnyOf(cs, raises, model) {
			catches = append(catches, cs)
		}
	}
	sort.Slice(catches, func(i, j int) bool {
		if catches[i].File != catches[j].File {
			return catches[i].File < catches[j].File
		}
		return catches[i].Line < catches[j].Line
	})

	return CatchResult{CatchSites: catches, GlobalHandlers: matchingGlobalHandlers(model, exceptionType, includeSubclasses)}
}

func catchesAnyOf(cs pymodel.CatchSite, raises []pymodel.RaiseSite, model *pymodel.ProgramModel) bool {
	seen := make(map[string]bool)
	for _, rs := range raises {
		if seen[rs.ExceptionType] {
			continue
		}
		seen[rs.ExceptionType] = true
		if propagate.ExceptionIsCaught(rs.ExceptionType, cs, model.Hierarchy) {
			return true
		}
	}
	return false
}

func matchingGlobalHandlers(model *pymodel.ProgramModel, exceptionType string, includeSubclasses bool) []pymodel.GlobalHandler {
	simple := pymodel.SimpleTypeName(exceptionType)
	var out []pymodel.GlobalHandler
	for _, h := range model.GlobalHandlers {
		if h.IsGeneric() {
			out = append(out, h)
			continue
		}
		handledSimple := pymodel.SimpleTypeName(h.HandledType)
		if handledSimple == simple || model.Hierarchy.IsSubclassOf(simple, handledSimple) {
			out = append(out, h)
			continue
		}
		if includeSubclasses && model.Hierarchy.IsSubclassOf(handledSimple, simple) {
			out = append(out, h)
		}
	}
	return out
}

// BuildReverseCallGraph inverts the propagator's forward call graph so
// find_catches (and routes-to) can walk from a raise site back to every
// (transitive) caller. Each callee is indexed both by its qualified key and
// its bare simple name, since an unresolved call site only carries the
// simple name.
func BuildReverseCallGraph(model *pymodel.ProgramModel) map[string]map[string]bool {
	reverse := make(map[string]map[string]bool)
	add := func(callee, caller string) {
		if reverse[callee] == nil {
			reverse[callee] = make(map[string]bool)
		}
		reverse[callee][caller] = true
	}
	for _, cs := range model.CallSites {
		caller := cs.CallerQualified
		if caller == "" {
			caller = cs.File + "::" + cs.CallerFunction
		}
		if cs.CalleeQualified != "" {
			add(cs.CalleeQualified, caller)
		}
		add(cs.CalleeName, caller)
	}
	return reverse
}

// reverseBFS returns every function key reachable from start by walking
// backwards through the reverse call graph, start included.
func reverseBFS(start string, reverseGraph map[string]map[string]bool) map[string]bool {
	visited := map[string]bool{start: true}
	worklist := []string{start}
	for len(worklist) > 0 {
		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for caller := range reverseGraph[current] {
			if !visited[caller] {
				visited[caller] = true
				worklist = append(worklist, caller)
			}
		}
		simple := pymodel.SimpleNameOfKey(current)
		if simple != current {
			for caller := range reverseGraph[simple] {
				if !visited[caller] {
					visited[caller] = true
					worklist = append(worklist, caller)
				}
			}
		}
	}
	return visited
}

// FindEscapes resolves functionName to a function key, runs the propagator
// with the given resolution mode, and returns its ExceptionFlow classified
// against global handlers, configured handled base classes and the given
// framework integration. ok is false if functionName does not resolve to
// any function in the model.
func FindEscapes(model *pymodel.ProgramModel, functionName string, cfg config.FlowConfig, frameworkResponse propagate.FrameworkResponseFunc) (propagate.ExceptionFlow, bool) {
	_, key, ok := model.GetFunctionByName(functionName)
	if !ok {
		return propagate.ExceptionFlow{}, false
	}

	result := propagate.Run(model, propagate.Options{ResolutionMode: cfg.ResolutionMode, Config: cfg})
	idx := propagate.BuildGlobalHandlerIndex(model)
	return propagate.ComputeExceptionFlow(key, model, result, idx, cfg, frameworkResponse), true
}

// DefaultTraceMaxDepth bounds trace's call tree when the caller does not
// specify one.
const DefaultTraceMaxDepth = 10

// TraceNode is one node of trace's bounded call tree: a function (or, for a
// polymorphic call site, a virtual node standing in for every concrete
// override) plus its own direct/propagated raises and the subtrees for
// every call it makes.
type TraceNode struct {
	FunctionKey      string
	DirectRaises     []string
	PropagatedRaises []string
	Polymorphic      bool
	Children         []*TraceNode
}

// hasRaises reports whether node or any descendant carries a raise, used by
// Trace's show_all=false pruning.
func (n *TraceNode) hasRaises() bool {
	if n == nil {
		return false
	}
	if len(n.DirectRaises) > 0 || len(n.PropagatedRaises) > 0 {
		return true
	}
	for _, c := range n.Children {
		if c.hasRaises() {
			return true
		}
	}
	return false
}

// Trace builds a bounded call tree rooted at functionKey. maxDepth <= 0
// falls back to DefaultTraceMaxDepth. When showAll is false, any subtree
// (and the polymorphic branch containing it) whose root and descendants
// raise nothing is pruned from the result.
func Trace(model *pymodel.ProgramModel, result propagate.Result, functionKey string, maxDepth int, showAll bool, cfg config.FlowConfig) *TraceNode {
	if maxDepth <= 0 {
		maxDepth = DefaultTraceMaxDepth
	}
	graph := propagate.BuildForwardCallGraph(model, cfg)
	methodToQualified := make(map[string][]string)
	for key := range graph {
		if pymodel.IsMethodKey(key) {
			simple := pymodel.SimpleNameOfKey(key)
			methodToQualified[simple] = appendUniqueStr(methodToQualified[simple], key)
		}
	}

	visiting := make(map[string]bool)
	return traceNode(model, graph, methodToQualified, result, functionKey, maxDepth, showAll, visiting, 0)
}

func traceNode(model *pymodel.ProgramModel, graph map[string]map[string]bool, methodToQualified map[string][]string, result propagate.Result, key string, maxDepth int, showAll bool, visiting map[string]bool, depth int) *TraceNode {
	node := &TraceNode{
		FunctionKey:      key,
		DirectRaises:     sortedKeys(result.DirectRaises[key]),
		PropagatedRaises: sortedKeys(result.PropagatedRaises[key]),
	}

	if depth >= maxDepth || visiting[key] {
		return node
	}
	visiting[key] = true
	defer delete(visiting, key)

	calleeNames := make([]string, 0, len(graph[key]))
	for callee := range graph[key] {
		calleeNames = append(calleeNames, callee)
	}
	sort.Strings(calleeNames)

	for _, callee := range calleeNames {
		expanded := resolve.ExpandPolymorphicCall(callee, model.Hierarchy, methodToQualified)
		if len(expanded) > 1 {
			poly := &TraceNode{FunctionKey: callee, Polymorphic: true}
			for _, concrete := range expanded {
				child := traceNode(model, graph, methodToQualified, result, concrete, maxDepth, showAll, visiting, depth+1)
				if showAll || child.hasRaises() {
					poly.Children = append(poly.Children, child)
				}
			}
			if showAll || len(poly.Children) > 0 {
				node.Children = append(node.Children, poly)
			}
			continue
		}
		for _, single := range expanded {
			child := traceNode(model, graph, methodToQualified, result, single, maxDepth, showAll, visiting, depth+1)
			if showAll || child.hasRaises() {
				node.Children = append(node.Children, child)
			}
		}
	}

	return node
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUniqueStr(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Subclasses returns the transitive closure of subclasses of className,
// sorted, never including className itself.
func Subclasses(model *pymodel.ProgramModel, className string) []string {
	subs := append([]string(nil), model.Hierarchy.GetAllSubclasses(className)...)
	sort.Strings(subs)
	return subs
}

// HierarchyEdge is one parent/child edge in an exceptions() listing.
type HierarchyEdge struct {
	Class  string
	Parent string
}

// Exceptions returns every class/parent edge known to the model's hierarchy,
// sorted by class then parent, for a full hierarchy listing.
func Exceptions(model *pymodel.ProgramModel) []HierarchyEdge {
	var out []HierarchyEdge
	for class, parents := range model.Hierarchy.Parent {
		for _, parent := range parents {
			out = append(out, HierarchyEdge{Class: class, Parent: parent})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].Parent < out[j].Parent
	})
	return out
}

// Stats is stats()' result record: simple projections over model size.
type Stats struct {
	Functions          int
	Classes            int
	RaiseSites         int
	CatchSites         int
	CallSites          int
	UnresolvedCalls    int
	Entrypoints        int
	GlobalHandlers     int
	DetectedFrameworks []string
}

// ComputeStats summarizes model's size and resolution coverage.
func ComputeStats(model *pymodel.ProgramModel) Stats {
	stats := Stats{
		Functions:      len(model.Functions),
		Classes:        len(model.Classes),
		RaiseSites:     len(model.RaiseSites),
		CatchSites:     len(model.CatchSites),
		CallSites:      len(model.CallSites),
		Entrypoints:    len(model.Entrypoints),
		GlobalHandlers: len(model.GlobalHandlers),
	}
	for _, cs := range model.CallSites {
		if cs.ResolutionKind == pymodel.ResolutionUnresolved {
			stats.UnresolvedCalls++
		}
	}
	for fw := range model.DetectedFrameworks {
		stats.DetectedFrameworks = append(stats.DetectedFrameworks, fw)
	}
	sort.Strings(stats.DetectedFrameworks)
	return stats
}
