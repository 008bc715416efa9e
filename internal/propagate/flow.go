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

package propagate

import (
	"sort"
	"strings"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/pymodel"
	"github.com/kraklabs/excflow/internal/resolve"
)

// BuildForwardCallGraph exposes the propagator's internal caller->callee
// graph (after async-boundary filtering) for query-layer callers that need
// to walk the same edges the fixpoint does, such as trace's call-tree walk
// and routes-to's entrypoint reachability.
func BuildForwardCallGraph(model *pymodel.ProgramModel, cfg config.FlowConfig) map[string]map[string]bool {
	return buildForwardCallGraphFiltered(model, cfg)
}

// ReachableFunctions computes every function key reachable from start by
// following forwardGraph, expanding polymorphic callees and, when a hop's
// simple name has no qualified entry in forwardGraph at all, falling back to
// any qualified key sharing that simple name (the same escape hatch the
// fixpoint's name-fallback uses, applied here to graph traversal instead of
// exception-set lookup).
func ReachableFunctions(start string, model *pymodel.ProgramModel, forwardGraph map[string]map[string]bool) map[string]bool {
	simpleToQualified := make(map[string][]string)
	for key := range forwardGraph {
		simple := pymodel.SimpleNameOfKey(key)
		simpleToQualified[simple] = appendUnique(simpleToQualified[simple], key)
	}

	methodToQualified := make(map[string][]string)
	for key := range forwardGraph {
		if pymodel.IsMethodKey(key) {
			simple := pymodel.SimpleNameOfKey(key)
			methodToQualified[simple] = appendUnique(methodToQualified[simple], key)
		}
	}

	reachable := map[string]bool{start: true}
	worklist := []string{start}

	for len(worklist) > 0 {
		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		callees := forwardGraph[current]
		if len(callees) == 0 {
			for _, candidate := range simpleToQualified[pymodel.SimpleNameOfKey(current)] {
				for callee := range forwardGraph[candidate] {
					callees = mergeSet(callees, callee)
				}
			}
		}

		for callee := range callees {
			for _, expanded := range resolve.ExpandPolymorphicCall(callee, model.Hierarchy, methodToQualified) {
				if !reachable[expanded] {
					reachable[expanded] = true
					worklist = append(worklist, expanded)
				}
				simple := pymodel.SimpleNameOfKey(expanded)
				if !reachable[simple] {
					reachable[simple] = true
				}
			}
		}
	}

	return reachable
}

func mergeSet(set map[string]bool, v string) map[string]bool {
	if set == nil {
		set = make(map[string]bool)
	}
	set[v] = true
	return set
}

// GlobalHandlerIndex holds every global handler in the model for
// classification; unlike a per-type map, it keeps enough information to
// distinguish a same-file match from a cross-file ("remote") one and a
// generic catch-all from a specific type match.
type GlobalHandlerIndex struct {
	handlers []pymodel.GlobalHandler
}

// BuildGlobalHandlerIndex indexes model's global handlers for lookup.
func BuildGlobalHandlerIndex(model *pymodel.ProgramModel) GlobalHandlerIndex {
	return GlobalHandlerIndex{handlers: append([]pymodel.GlobalHandler(nil), model.GlobalHandlers...)}
}

// ReraiseIdentifiers lists the common bare-identifier names Python code uses
// to re-raise a caught exception (`raise e`, `raise err`, ...) plus the
// sentinel used for a bare `raise` with no expression. Audit results filter
// these out: a raise statement that only re-throws whatever it caught does
// not introduce a new exception type to report.
var ReraiseIdentifiers = map[string]bool{
	"e": true, "err": true, "exc": true, "exception": true,
	"ex": true, "error": true, "Unknown": true,
}

// ExceptionFlow is the per-entrypoint classification of every exception type
// that can be raised anywhere in its reachable call graph.
type ExceptionFlow struct {
	FunctionKey string

	// CaughtLocally lists types raised directly in this function and caught
	// by one of its own catch clauses. The propagator keeps every direct
	// raise in the function's escape set, so these are listed here and in
	// none of the other categories — informational only.
	CaughtLocally []string

	// CaughtByGlobal: matched by a non-generic global handler in the same
	// file as the entrypoint.
	CaughtByGlobal map[string]pymodel.GlobalHandler

	// CaughtByRemoteGlobal: matched by a non-generic global handler in a
	// different file. Tracked but not an audit issue by default.
	CaughtByRemoteGlobal map[string]pymodel.GlobalHandler

	// CaughtByGeneric: matched only by a generic catch-all handler (e.g.
	// @errorhandler(Exception)). Flagged as an issue: it hides the specific
	// type from callers of the handler.
	CaughtByGeneric map[string]pymodel.GlobalHandler

	// FrameworkHandled: converted into a response by a framework integration
	// or a configured handled base class; value is a response description.
	FrameworkHandled map[string]string

	Uncaught []string

	Evidence map[string][]pymodel.ExceptionEvidence
}

// FrameworkResponseFunc answers, for a given exception type, whether some
// detected framework converts it into a response rather than letting it
// crash the process (e.g. FastAPI's HTTPException base class).
type FrameworkResponseFunc func(exceptionType string) (response string, handled bool)

// ComputeExceptionFlow classifies every exception type result propagated to
// functionKey (after restricting to functions reachable from it) against the
// five-way audit taxonomy: caught by a same-file global handler, caught by a
// cross-file ("remote") global handler, caught only by a generic catch-all,
// converted by a framework integration or a configured handled base class, or
// fully uncaught. cfg's HandledBaseClasses names application exception base
// classes known (outside what's visible to extraction, e.g. middleware
// registered in another service) to always convert into a response; any
// escaping type that is, or subclasses, one of these is classified alongside
// framework-handled types. A direct raise that a non-re-raising catch clause
// of functionKey itself covers goes to CaughtLocally and into none of the
// five.
func ComputeExceptionFlow(functionKey string, model *pymodel.ProgramModel, result Result, globalHandlers GlobalHandlerIndex, cfg config.FlowConfig, frameworkResponse FrameworkResponseFunc) ExceptionFlow {
	forwardGraph := buildForwardCallGraphFiltered(model, cfg)
	reachable := ReachableFunctions(functionKey, model, forwardGraph)
	entrypointFile := pymodel.FileOfKey(functionKey)

	flow := ExceptionFlow{
		FunctionKey:          functionKey,
		CaughtByGlobal:       make(map[string]pymodel.GlobalHandler),
		CaughtByRemoteGlobal: make(map[string]pymodel.GlobalHandler),
		CaughtByGeneric:      make(map[string]pymodel.GlobalHandler),
		FrameworkHandled:     make(map[string]string),
		Evidence:             make(map[string][]pymodel.ExceptionEvidence),
	}

	caughtLocally := make(map[string]bool)
	for excType := range result.DirectRaises[functionKey] {
		for _, cs := range result.CatchesByFunction[functionKey] {
			if !cs.HasReraise && ExceptionIsCaught(excType, cs, model.Hierarchy) {
				flow.CaughtLocally = appendUnique(flow.CaughtLocally, excType)
				caughtLocally[excType] = true
				break
			}
		}
	}
	sort.Strings(flow.CaughtLocally)

	escaping := result.PropagatedRaises[functionKey]
	evidence := result.propagatedWithEvidence[functionKey]

	excTypes := make([]string, 0, len(escaping))
	for excType := range escaping {
		if ReraiseIdentifiers[excType] || caughtLocally[excType] {
			continue
		}
		excTypes = append(excTypes, excType)
	}
	sort.Strings(excTypes)

	for _, excType := range excTypes {
		var witnesses []pymodel.ExceptionEvidence
		for key, raise := range evidence {
			if key.excType != excType {
				continue
			}
			if !reachable[raise.raiseSite.File+"::"+raise.raiseSite.Function] {
				continue
			}
			witnesses = append(witnesses, pymodel.ExceptionEvidence{
				RaiseSite:  raise.raiseSite,
				CallPath:   raise.path,
				Confidence: pymodel.ComputeConfidence(raise.path),
			})
		}
		flow.Evidence[excType] = witnesses

		handler, kind := matchGlobalHandler(excType, entrypointFile, globalHandlers, model)
		switch kind {
		case globalMatchSameFile:
			flow.CaughtByGlobal[excType] = handler
			continue
		case globalMatchRemote:
			flow.CaughtByRemoteGlobal[excType] = handler
			continue
		case globalMatchGeneric:
			flow.CaughtByGeneric[excType] = handler
			continue
		}

		if isConfiguredHandledBaseClass(excType, cfg.HandledBaseClasses, model) {
			flow.FrameworkHandled[excType] = "handled by configured base class"
			continue
		}

		if frameworkResponse != nil {
			if response, handled := frameworkResponse(excType); handled {
				flow.FrameworkHandled[excType] = response
				continue
			}
		}

		flow.Uncaught = append(flow.Uncaught, excType)
	}

	return flow
}

func isConfiguredHandledBaseClass(excType string, handledBaseClasses []string, model *pymodel.ProgramModel) bool {
	simple := pymodel.SimpleTypeName(excType)
	for _, base := range handledBaseClasses {
		baseSimple := pymodel.SimpleTypeName(base)
		if simple == baseSimple || model.Hierarchy.IsSubclassOf(simple, baseSimple) {
			return true
		}
	}
	return false
}

type globalMatchKind int

const (
	noGlobalMatch globalMatchKind = iota
	globalMatchSameFile
	globalMatchRemote
	globalMatchGeneric
)

// matchGlobalHandler finds the best global handler for excType, preferring a
// same-file non-generic match over a cross-file one, and only falling back
// to a generic catch-all when no specific handler matches anywhere.
func matchGlobalHandler(excType, entrypointFile string, idx GlobalHandlerIndex, model *pymodel.ProgramModel) (pymodel.GlobalHandler, globalMatchKind) {
	simple := pymodel.SimpleTypeName(excType)

	var sameFile, remote, generic *pymodel.GlobalHandler
	for i := range idx.handlers {
		h := idx.handlers[i]
		if h.IsGeneric() {
			if generic == nil {
				generic = &idx.handlers[i]
			}
			continue
		}
		handledSimple := pymodel.SimpleTypeName(h.HandledType)
		matches := h.HandledType == excType || handledSimple == simple || model.Hierarchy.IsSubclassOf(simple, handledSimple)
		if !matches {
			continue
		}
		if h.File == entrypointFile {
			if sameFile == nil {
				sameFile = &idx.handlers[i]
			}
		} else if remote == nil {
			remote = &idx.handlers[i]
		}
	}

	switch {
	case sameFile != nil:
		return *sameFile, globalMatchSameFile
	case remote != nil:
		return *remote, globalMatchRemote
	case generic != nil:
		return *generic, globalMatchGeneric
	default:
		return pymodel.GlobalHandler{}, noGlobalMatch
	}
}

// ResolveEntrypointFunctionKey finds the function key in model matching an
// entrypoint's declared file and function, tolerating a simple-name-only
// match when the entrypoint metadata does not carry a qualified name.
func ResolveEntrypointFunctionKey(entrypoint pymodel.Entrypoint, model *pymodel.ProgramModel) (string, bool) {
	hint := entrypoint.FuncKeyHint()
	if _, ok := model.Functions[hint]; ok {
		return hint, true
	}
	for key, fn := range model.Functions {
		if fn.File == entrypoint.File && (fn.Name == entrypoint.Function || strings.HasSuffix(key, "::"+entrypoint.Function)) {
			return key, true
		}
	}
	for key, fn := range model.Functions {
		if fn.Name == entrypoint.Function {
			return key, true
		}
	}
	// A class-based-view or main-guard entrypoint has no FunctionDef of its
	// own: injectDjangoDispatchCalls and the module-level "<module>" scope
	// both record call/raise/catch sites against a synthetic key that never
	// appears in model.Functions. Accept hint if it already shows up as a
	// node elsewhere in the extracted graph.
	for _, cs := range model.CallSites {
		if cs.CallerQualified == hint {
			return hint, true
		}
	}
	for _, rs := range model.RaiseSites {
		if rs.File+"::"+rs.Function == hint {
			return hint, true
		}
	}
	for _, cs := range model.CatchSites {
		if cs.File+"::"+cs.Function == hint {
			return hint, true
		}
	}
	return "", false
}

// EvidenceFor returns the evidence witnesses recorded for functionKey raising
// exceptionType, or nil if propagation never recorded that pair.
func (r Result) EvidenceFor(functionKey, exceptionType string) []pymodel.ExceptionEvidence {
	var out []pymodel.ExceptionEvidence
	for key, raise := range r.propagatedWithEvidence[functionKey] {
		if key.excType != exceptionType {
			continue
		}
		out = append(out, pymodel.ExceptionEvidence{
			RaiseSite:  raise.raiseSite,
			CallPath:   raise.path,
			Confidence: pymodel.ComputeConfidence(raise.path),
		})
	}
	return out
}

// GetExceptionsForEntrypoint is a convenience wrapper combining entrypoint
// resolution and flow classification, matching the deprecated but still
// widely called helper in the tool this analyzer's algorithm is modeled on.
func GetExceptionsForEntrypoint(entrypoint pymodel.Entrypoint, model *pymodel.ProgramModel, result Result, globalHandlers GlobalHandlerIndex, cfg config.FlowConfig, frameworkResponse FrameworkResponseFunc) (ExceptionFlow, bool) {
	key, ok := ResolveEntrypointFunctionKey(entrypoint, model)
	if !ok {
		return ExceptionFlow{}, false
	}
	return ComputeExceptionFlow(key, model, result, globalHandlers, cfg, frameworkResponse), true
}
