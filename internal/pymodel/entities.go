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

package pymodel

// ResolutionKind tags how a call site's callee was bound. It is a closed
// tagged union: the resolver and propagator switch on it exhaustively and
// never fall back to reflection.
type ResolutionKind string

const (
	ResolutionImport           ResolutionKind = "import"
	ResolutionSelf             ResolutionKind = "self"
	ResolutionConstructor      ResolutionKind = "constructor"
	ResolutionReturnType       ResolutionKind = "return_type"
	ResolutionModuleAttribute  ResolutionKind = "module_attribute"
	ResolutionNameFallback     ResolutionKind = "name_fallback"
	ResolutionPolymorphic      ResolutionKind = "polymorphic"
	ResolutionFastAPIDepends   ResolutionKind = "fastapi_depends"
	ResolutionImplicitDispatch ResolutionKind = "implicit_dispatch"
	ResolutionStub             ResolutionKind = "stub"
	ResolutionUnresolved       ResolutionKind = "unresolved"
)

// IsHeuristic reports whether a resolution kind involves guesswork rather
// than a precise syntactic binding. Heuristic kinds cap confidence at medium
// or low (see Confidence).
func (k ResolutionKind) IsHeuristic() bool {
	return k == ResolutionNameFallback || k == ResolutionPolymorphic
}

// EntrypointKind classifies how external input reaches a function.
type EntrypointKind string

const (
	EntrypointHTTPRoute   EntrypointKind = "http_route"
	EntrypointCLIScript   EntrypointKind = "cli_script"
	EntrypointQueueHandler EntrypointKind = "queue_handler"
	EntrypointScheduledJob EntrypointKind = "scheduled_job"
	EntrypointTest         EntrypointKind = "test"
	EntrypointUnknown      EntrypointKind = "unknown"
)

// ResolutionMode controls how aggressively the propagator fills in missing
// resolution with heuristics.
type ResolutionMode string

const (
	ResolutionModeStrict     ResolutionMode = "strict"
	ResolutionModeDefault    ResolutionMode = "default"
	ResolutionModeAggressive ResolutionMode = "aggressive"
)

// Confidence is the precision signal attached to an evidence path.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FunctionDef describes one function or method definition.
type FunctionDef struct {
	Name             string
	QualifiedName    string
	File             string
	Line             int
	IsMethod         bool
	IsAsync          bool
	ContainingClass  string // "" if not a method
	ReturnAnnotation string // syntactic type name, empty if unannotated
	IsAbstract       bool
}

// Key returns this function's stable identity.
func (f FunctionDef) Key() string {
	return FuncKey(f.File, f.QualifiedName)
}

// ClassDef describes one class definition.
type ClassDef struct {
	Name            string
	QualifiedName   string
	File            string
	Line            int
	Bases           []string // syntactic base-class names, as written
	IsAbstract      bool
	AbstractMethods map[string]bool // method simple name -> abstract
}

// Key returns this class's stable identity.
func (c ClassDef) Key() string {
	return ClassKey(c.File, c.QualifiedName)
}

// RaiseSite records one `raise` statement.
type RaiseSite struct {
	File          string
	Line          int
	Function      string // qualified name of enclosing function
	ExceptionType string // "Unknown" if bare `raise` with no expression
	IsBareRaise   bool
	Snippet       string
	MessageExpr   string // optional, raw text of the message/args expression
}

// CatchSite records one `except` clause.
type CatchSite struct {
	File           string
	Line           int
	Function       string
	CaughtTypes    []string // simple or dotted names as written; empty if bare except
	HasBareExcept  bool
	HasReraise     bool
}

// CallSite records one call expression and its (possibly partial) resolution.
type CallSite struct {
	File            string
	Line            int
	CallerFunction  string // simple name of enclosing function
	CallerQualified string // function key of the enclosing function, when known
	CalleeName      string // simple callee name as written
	CalleeQualified string // resolved function key, empty if unresolved
	IsMethodCall    bool
	ResolutionKind  ResolutionKind
}

// Entrypoint is a function externally reachable input can trigger.
type Entrypoint struct {
	File     string
	Function string
	Line     int
	Kind     EntrypointKind
	Metadata map[string]string
}

// FuncKeyHint returns the function key this entrypoint resolves to, when the
// metadata carries enough information; callers typically look the function
// up by (File, Function) against ProgramModel directly.
func (e Entrypoint) FuncKeyHint() string {
	return e.File + "::" + e.Function
}

// GlobalHandlerGenericTypes lists the type names considered "catch-all" when
// deciding GlobalHandler.IsGeneric.
var GlobalHandlerGenericTypes = map[string]bool{
	"Exception":     true,
	"BaseException": true,
}

// GlobalHandler is an application-wide exception handler registered outside
// any single function body (e.g. a Flask @errorhandler).
type GlobalHandler struct {
	File        string
	Line        int
	Function    string
	HandledType string
}

// IsGeneric reports whether this handler catches a top-level catch-all type.
func (h GlobalHandler) IsGeneric() bool {
	return GlobalHandlerGenericTypes[SimpleTypeName(h.HandledType)]
}

// ImportInfo records one import or from-import statement.
type ImportInfo struct {
	File       string
	Module     string
	Name       string // imported name; "" for a bare `import module`
	Alias      string
	IsFromImport bool
}

// ResolutionEdge is one hop in an evidence path: a resolved call from caller
// to callee, tagged with the resolution kind that produced it.
type ResolutionEdge struct {
	Caller         string
	Callee         string
	File           string
	Line           int
	ResolutionKind ResolutionKind
	IsHeuristic    bool
	MatchCount     int // number of candidate keys the name-fallback matched
}

// ExceptionEvidence is one witness explaining why a type is in a function's
// escape set: the original raise site plus the chain of edges from the
// function down to it (outer-first).
type ExceptionEvidence struct {
	RaiseSite  RaiseSite
	CallPath   []ResolutionEdge
	Confidence Confidence
}

// ComputeConfidence derives a confidence level from an evidence path's edges.
// An empty path (a direct raise) is always high confidence. Any heuristic
// edge (name-fallback or polymorphic) caps confidence at medium or low;
// multi-candidate fallback or polymorphic expansion caps it at low.
func ComputeConfidence(path []ResolutionEdge) Confidence {
	high := true
	low := false
	for _, edge := range path {
		switch edge.ResolutionKind {
		case ResolutionImport, ResolutionSelf, ResolutionConstructor, ResolutionModuleAttribute:
			// precise, does not affect confidence
		case ResolutionReturnType:
			high = false
		case ResolutionNameFallback:
			high = false
			if edge.MatchCount > 1 {
				low = true
			}
		case ResolutionPolymorphic:
			high = false
			low = true
		case ResolutionFastAPIDepends, ResolutionImplicitDispatch, ResolutionStub:
			// synthetic but precise edges; do not lower confidence on their own
		default:
			high = false
		}
	}
	switch {
	case low:
		return ConfidenceLow
	case !high:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}
