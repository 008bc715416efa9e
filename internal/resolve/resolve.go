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

// Package resolve implements the two Phase B fallbacks the propagator
// reaches for once a call site's Phase A resolution (see internal/extract)
// comes up empty during the fixpoint: scoped name-fallback matching and
// polymorphic method-call expansion.
package resolve

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kraklabs/excflow/internal/hierarchy"
)

// NameKey is the (simple function name, is-method) pair scoped name-fallback
// candidates are indexed by.
type NameKey struct {
	Name     string
	IsMethod bool
}

// FallbackScope names which tier of the same_file > direct_import >
// same_package > project priority order produced a match.
type FallbackScope string

const (
	ScopeNone         FallbackScope = "none"
	ScopeSameFile     FallbackScope = "same_file"
	ScopeDirectImport FallbackScope = "direct_import"
	ScopeSamePackage  FallbackScope = "same_package"
	ScopeProject      FallbackScope = "project"
)

// NameIndex maps a (simple name, is-method) key to every known qualified
// function key sharing that name, built once per propagation run from the
// whole-program model.
type NameIndex map[NameKey][]string

// Add records qualified as a candidate for key, skipping duplicates.
func (idx NameIndex) Add(key NameKey, qualified string) {
	for _, existing := range idx[key] {
		if existing == qualified {
			return
		}
	}
	idx[key] = append(idx[key], qualified)
}

type fallbackCacheKey struct {
	name       string
	isMethod   bool
	callerFile string
}

type fallbackResult struct {
	candidates []string
	scope      FallbackScope
}

// Fallback performs scoped name-fallback lookups, memoizing results in a
// bounded LRU so a long-running `excflow watch` session cannot grow an
// unbounded cache the way the original's module-global dict would.
type Fallback struct {
	cache *lru.Cache[fallbackCacheKey, fallbackResult]
}

// NewFallback returns a Fallback whose memoization table holds up to
// capacity entries. A typical whole-project run touches far fewer distinct
// (name, is-method, caller file) triples than this, so evictions are rare
// outside of `watch` mode across many file-change cycles.
func NewFallback(capacity int) *Fallback {
	c, _ := lru.New[fallbackCacheKey, fallbackResult](capacity)
	return &Fallback{cache: c}
}

// Lookup resolves calleeSimple (as called from callerFile, a method call or
// not) against index, preferring same-file candidates, then candidates
// reachable via callerFile's own imports, then candidates in the same
// directory, and finally any project-wide candidate with that name.
func (f *Fallback) Lookup(calleeSimple string, isMethod bool, callerFile string, importMap map[string]string, index NameIndex) ([]string, FallbackScope) {
	cacheKey := fallbackCacheKey{name: calleeSimple, isMethod: isMethod, callerFile: callerFile}
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.candidates, cached.scope
	}

	candidates := index[NameKey{Name: calleeSimple, IsMethod: isMethod}]
	if len(candidates) == 0 {
		return f.store(cacheKey, nil, ScopeNone)
	}

	prefix := callerFile + "::"
	var sameFile []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			sameFile = append(sameFile, c)
		}
	}
	if len(sameFile) > 0 {
		return f.store(cacheKey, sameFile, ScopeSameFile)
	}

	importedModules := make(map[string]bool, len(importMap))
	for _, mod := range importMap {
		importedModules[mod] = true
	}
	var directImports []string
	for _, c := range candidates {
		for mod := range importedModules {
			if strings.HasPrefix(c, mod) {
				directImports = append(directImports, c)
				break
			}
		}
	}
	if len(directImports) > 0 {
		return f.store(cacheKey, directImports, ScopeDirectImport)
	}

	if idx := strings.LastIndex(callerFile, "/"); idx >= 0 {
		callerDir := callerFile[:idx]
		var samePackage []string
		for _, c := range candidates {
			file := c
			if sep := strings.Index(c, "::"); sep >= 0 {
				file = c[:sep]
			}
			if strings.HasPrefix(file, callerDir+"/") {
				samePackage = append(samePackage, c)
			}
		}
		if len(samePackage) > 0 {
			return f.store(cacheKey, samePackage, ScopeSamePackage)
		}
	}

	return f.store(cacheKey, candidates, ScopeProject)
}

func (f *Fallback) store(key fallbackCacheKey, candidates []string, scope FallbackScope) ([]string, FallbackScope) {
	f.cache.Add(key, fallbackResult{candidates: candidates, scope: scope})
	return candidates, scope
}

// Clear empties the memoization table; used between independent analysis
// runs in long-lived processes (e.g. tests, `excflow watch`).
func (f *Fallback) Clear() {
	f.cache.Purge()
}

// ExpandPolymorphicCall expands a method-call callee key into every concrete
// override reachable through the class hierarchy when callee names an
// abstract method, returning []string{callee} unchanged otherwise (including
// when the method is abstract but has no concrete implementations, per the
// "no subclass" edge case).
func ExpandPolymorphicCall(callee string, h *hierarchy.ClassHierarchy, methodToQualified map[string][]string) []string {
	lastSep := strings.LastIndex(callee, ".")
	if lastSep < 0 {
		return []string{callee}
	}
	methodName := callee[lastSep+1:]
	rest := callee[:lastSep]
	classSep := strings.LastIndex(rest, ".")
	className := rest
	if classSep >= 0 {
		className = rest[classSep+1:]
	}
	if colonIdx := strings.LastIndex(className, ":"); colonIdx >= 0 {
		className = className[colonIdx+1:]
	}

	if className == "" || !h.IsAbstractMethod(className, methodName) {
		return []string{callee}
	}

	implementations := h.GetConcreteImplementations(className, methodName)
	if len(implementations) == 0 {
		return []string{callee}
	}

	var result []string
	for _, impl := range implementations {
		matched := false
		for _, qualified := range methodToQualified[methodName] {
			if strings.Contains(qualified, impl.ClassName) {
				result = append(result, qualified)
				matched = true
				break
			}
		}
		if !matched {
			result = append(result, impl.ClassName+"."+methodName)
		}
	}
	if len(result) == 0 {
		return []string{callee}
	}
	return result
}
