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

// Package propagate runs the monotone fixpoint that decides which exception
// types can escape from every function in a ProgramModel, and classifies
// each against local catches, global handlers, and framework conversion.
package propagate

import (
	"strings"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/hierarchy"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/resolve"
	"github.com/kraklabs/excflow/internal/stubs"
)

// DefaultMaxIterations bounds the fixpoint the same way the original
// implementation does: a call graph with a cycle could otherwise loop
// forever on each new piece of evidence it manufactures.
const DefaultMaxIterations = 100

// DefaultFallbackCacheSize bounds the scoped-fallback memoization table.
const DefaultFallbackCacheSize = 4096

type evidenceKey struct {
	excType string
	file    string
	line    int
}

// propagatedRaise is one witness: a raise site plus the call-path edges
// connecting some ancestor function down to it.
type propagatedRaise struct {
	exceptionType string
	raiseSite     pymodel.RaiseSite
	path          []pymodel.ResolutionEdge
}

// Result holds the output of one fixpoint run.
type Result struct {
	DirectRaises          map[string]map[string]bool
	PropagatedRaises      map[string]map[string]bool
	CatchesByFunction     map[string][]pymodel.CatchSite
	propagatedWithEvidence map[string]map[evidenceKey]propagatedRaise
}

// Options configures one propagation run.
type Options struct {
	MaxIterations  int
	ResolutionMode pymodel.ResolutionMode
	Stubs          *stubs.Library
	FallbackCache  *resolve.Fallback // optional; a fresh one is created if nil
	Config         config.FlowConfig // AsyncBoundaries excluded from the forward graph before the fixpoint runs
}

// buildForwardCallGraph builds the propagator's internal graph with no
// async-boundary suppression, so every call edge is kept.
func buildForwardCallGraph(model *pymodel.ProgramModel) map[string]map[string]bool {
	return buildForwardCallGraphFiltered(model, config.FlowConfig{})
}

func buildForwardCallGraphFiltered(model *pymodel.ProgramModel, cfg config.FlowConfig) map[string]map[string]bool {
	graph := make(map[string]map[string]bool)
	for _, cs := range model.CallSites {
		if cfg.IsAsyncBoundary(cs.CalleeName) {
			continue
		}
		caller := cs.CallerQualified
		if caller == "" {
			caller = cs.File + "::" + cs.CallerFunction
		}
		callee := cs.CalleeQualified
		if callee == "" {
			callee = cs.CalleeName
		}
		if graph[caller] == nil {
			graph[caller] = make(map[string]bool)
		}
		graph[caller][callee] = true
	}
	return graph
}

type callerCalleeKey struct{ caller, callee string }

func buildCallSiteLookup(model *pymodel.ProgramModel) map[callerCalleeKey][]pymodel.CallSite {
	lookup := make(map[callerCalleeKey][]pymodel.CallSite)
	for _, cs := range model.CallSites {
		caller := cs.CallerQualified
		if caller == "" {
			caller = cs.File + "::" + cs.CallerFunction
		}
		callee := cs.CalleeQualified
		if callee == "" {
			callee = cs.CalleeName
		}
		key := callerCalleeKey{caller, callee}
		lookup[key] = append(lookup[key], cs)
	}
	return lookup
}

func computeDirectRaises(model *pymodel.ProgramModel) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, rs := range model.RaiseSites {
		key := rs.File + "::" + rs.Function
		if out[key] == nil {
			out[key] = make(map[string]bool)
		}
		out[key][rs.ExceptionType] = true
	}
	return out
}

func computeCatchesByFunction(model *pymodel.ProgramModel) map[string][]pymodel.CatchSite {
	out := make(map[string][]pymodel.CatchSite)
	for _, cs := range model.CatchSites {
		key := cs.File + "::" + cs.Function
		out[key] = append(out[key], cs)
	}
	return out
}

// ExceptionIsCaught reports whether exceptionType would be caught by
// catchSite, accounting for bare except, exact/simple-name matches, generic
// Exception/BaseException clauses, and subclass relationships.
func ExceptionIsCaught(exceptionType string, catchSite pymodel.CatchSite, h *hierarchy.ClassHierarchy) bool {
	if catchSite.HasBareExcept {
		return true
	}
	excSimple := pymodel.SimpleName(exceptionType)

	for _, caught := range catchSite.CaughtTypes {
		caughtSimple := pymodel.SimpleName(caught)
		if exceptionType == caught || excSimple == caughtSimple {
			return true
		}
		if caughtSimple == "Exception" || caughtSimple == "BaseException" {
			return true
		}
		if h.IsSubclassOf(excSimple, caughtSimple) {
			return true
		}
	}
	return false
}

func createResolutionEdge(cs pymodel.CallSite, caller, callee string, usedFallback, isPolymorphic bool, matchCount int) pymodel.ResolutionEdge {
	kind := cs.ResolutionKind
	switch {
	case usedFallback:
		kind = pymodel.ResolutionNameFallback
	case isPolymorphic:
		kind = pymodel.ResolutionPolymorphic
	}
	return pymodel.ResolutionEdge{
		Caller:         caller,
		Callee:         callee,
		File:           cs.File,
		Line:           cs.Line,
		ResolutionKind: kind,
		IsHeuristic:    kind.IsHeuristic(),
		MatchCount:     matchCount,
	}
}

// Run executes the exception-propagation fixpoint over model.
func Run(model *pymodel.ProgramModel, opts Options) Result {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.ResolutionMode == "" {
		opts.ResolutionMode = pymodel.ResolutionModeDefault
	}
	fallback := opts.FallbackCache
	if fallback == nil {
		fallback = resolve.NewFallback(DefaultFallbackCacheSize)
	}

	directRaises := computeDirectRaises(model)
	catchesByFunction := computeCatchesByFunction(model)
	forwardGraph := buildForwardCallGraphFiltered(model, opts.Config)
	callSiteLookup := buildCallSiteLookup(model)

	propagated := make(map[string]map[string]bool)
	evidence := make(map[string]map[evidenceKey]propagatedRaise)

	for fn, raises := range directRaises {
		propagated[fn] = cloneSet(raises)
		evidence[fn] = make(map[evidenceKey]propagatedRaise)
		for excType := range raises {
			for _, rs := range model.RaiseSites {
				if rs.File+"::"+rs.Function == fn && rs.ExceptionType == excType {
					key := evidenceKey{excType, rs.File, rs.Line}
					evidence[fn][key] = propagatedRaise{exceptionType: excType, raiseSite: rs}
				}
			}
		}
	}

	nameIndex := resolve.NameIndex{}
	methodToQualified := make(map[string][]string)
	for qualifiedKey := range propagated {
		simple := pymodel.SimpleNameOfKey(qualifiedKey)
		nameIndex.Add(resolve.NameKey{Name: simple, IsMethod: pymodel.IsMethodKey(qualifiedKey)}, qualifiedKey)
		if strings.Contains(qualifiedKey, "::") {
			methodToQualified[simple] = appendUnique(methodToQualified[simple], qualifiedKey)
		}
	}

	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		changed := false

		for caller, callees := range forwardGraph {
			if propagated[caller] == nil {
				propagated[caller] = make(map[string]bool)
			}
			if evidence[caller] == nil {
				evidence[caller] = make(map[evidenceKey]propagatedRaise)
			}

			for callee := range callees {
				callSites := callSiteLookup[callerCalleeKey{caller, callee}]
				var callSite *pymodel.CallSite
				if len(callSites) > 0 {
					callSite = &callSites[0]
				}

				expandedCallees := resolve.ExpandPolymorphicCall(callee, model.Hierarchy, methodToQualified)
				isPolymorphic := len(expandedCallees) > 1

				for _, expandedCallee := range expandedCallees {
					usedFallback := false
					fallbackMatchCount := 1
					calleeExceptions := cloneSet(propagated[expandedCallee])
					calleeEvidence := propagated2Evidence(evidence[expandedCallee])

					if len(calleeExceptions) == 0 {
						calleeSimple := pymodel.SimpleNameOfKey(expandedCallee)
						isMethod := callSite != nil && callSite.IsMethodCall
						callerFile := caller
						if idx := strings.Index(caller, "::"); idx >= 0 {
							callerFile = caller[:idx]
						}
						importMap := model.ImportMaps[callerFile]

						matchedKeys, _ := fallback.Lookup(calleeSimple, isMethod, callerFile, importMap, nameIndex)
						if len(matchedKeys) > 0 {
							fallbackMatchCount = len(matchedKeys)
						}

						for _, qualifiedKey := range matchedKeys {
							for exc := range propagated[qualifiedKey] {
								calleeExceptions[exc] = true
							}
							for k, v := range evidence[qualifiedKey] {
								if _, exists := calleeEvidence[k]; !exists {
									calleeEvidence[k] = v
								}
							}
							if len(calleeExceptions) > 0 {
								usedFallback = true
							}
						}
					}

					if opts.Stubs != nil && len(calleeExceptions) == 0 {
						parts := strings.Split(expandedCallee, ".")
						if len(parts) >= 2 {
							module := parts[0]
							fn := parts[len(parts)-1]
							if stubExceptions, ok := opts.Stubs.GetRaises(module, fn); ok {
								for _, e := range stubExceptions {
									if calleeExceptions == nil {
										calleeExceptions = make(map[string]bool)
									}
									calleeExceptions[e] = true
								}
							}
						}
					}

					if opts.ResolutionMode == pymodel.ResolutionModeStrict && (usedFallback || isPolymorphic) {
						continue
					}

					for excType := range calleeExceptions {
						isCaught := false
						for _, catchSite := range catchesByFunction[caller] {
							if ExceptionIsCaught(excType, catchSite, model.Hierarchy) {
								if !catchSite.HasReraise {
									isCaught = true
									break
								}
							}
						}

						if !isCaught && !propagated[caller][excType] {
							propagated[caller][excType] = true
							changed = true

							callerSimple := pymodel.SimpleNameOfKey(caller)
							callerIsMethod := pymodel.IsMethodKey(caller)
							nameIndex.Add(resolve.NameKey{Name: callerSimple, IsMethod: callerIsMethod}, caller)
						}

						if !isCaught && callSite != nil {
							for key, propRaise := range calleeEvidence {
								if key.excType != excType {
									continue
								}
								if _, exists := evidence[caller][key]; exists {
									continue
								}
								edge := createResolutionEdge(*callSite, caller, expandedCallee, usedFallback, isPolymorphic, fallbackMatchCount)
								newPath := append([]pymodel.ResolutionEdge{edge}, propRaise.path...)
								evidence[caller][key] = propagatedRaise{
									exceptionType: excType,
									raiseSite:     propRaise.raiseSite,
									path:          newPath,
								}
							}
						}
					}
				}
			}
		}

		if !changed {
			break
		}
	}

	return Result{
		DirectRaises:           directRaises,
		PropagatedRaises:       propagated,
		CatchesByFunction:      catchesByFunction,
		propagatedWithEvidence: evidence,
	}
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

func propagated2Evidence(in map[evidenceKey]propagatedRaise) map[evidenceKey]propagatedRaise {
	out := make(map[evidenceKey]propagatedRaise, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
