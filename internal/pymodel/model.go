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

import "github.com/kraklabs/excflow/internal/hierarchy"

// ProgramModel is the merged, whole-program view built by the program
// builder from every file's extraction. It is build-then-read: nothing
// mutates it once construction finishes (synthetic edge injection happens
// during construction, not after).
type ProgramModel struct {
	Functions map[string]FunctionDef // keyed by FuncKey
	Classes   map[string]ClassDef    // keyed by ClassKey

	RaiseSites []RaiseSite
	CatchSites []CatchSite
	CallSites  []CallSite

	Entrypoints    []Entrypoint
	GlobalHandlers []GlobalHandler

	Hierarchy *hierarchy.ClassHierarchy

	// ImportMaps maps file -> (local binding -> fully-qualified target).
	ImportMaps map[string]map[string]string

	// ReturnTypes maps function key -> syntactic return-type annotation.
	ReturnTypes map[string]string

	DetectedFrameworks map[string]bool
}

// NewProgramModel returns an empty model with all maps initialized and the
// hierarchy seeded with the language's builtin exception tree.
func NewProgramModel() *ProgramModel {
	return &ProgramModel{
		Functions:          make(map[string]FunctionDef),
		Classes:            make(map[string]ClassDef),
		ImportMaps:         make(map[string]map[string]string),
		ReturnTypes:        make(map[string]string),
		DetectedFrameworks: make(map[string]bool),
		Hierarchy:          hierarchy.NewWithBuiltins(),
	}
}

// GetFunctionByName returns the first function definition whose simple or
// qualified name matches name, preferring an exact qualified-name match.
func (m *ProgramModel) GetFunctionByName(name string) (FunctionDef, string, bool) {
	for key, fn := range m.Functions {
		if fn.QualifiedName == name {
			return fn, key, true
		}
	}
	for key, fn := range m.Functions {
		if fn.Name == name || SimpleName(fn.QualifiedName) == name {
			return fn, key, true
		}
	}
	return FunctionDef{}, "", false
}

// GetCallers returns every call site whose resolved qualified callee equals
// funcKey.
func (m *ProgramModel) GetCallers(funcKey string) []CallSite {
	var out []CallSite
	for _, cs := range m.CallSites {
		if cs.CalleeQualified == funcKey {
			out = append(out, cs)
		}
	}
	return out
}

// GetCallersByName returns every call site whose simple callee name matches
// name, regardless of resolution status.
func (m *ProgramModel) GetCallersByName(name string) []CallSite {
	var out []CallSite
	for _, cs := range m.CallSites {
		if cs.CalleeName == name {
			out = append(out, cs)
		}
	}
	return out
}

// ResolveName resolves a local binding in file through that file's import
// map, returning the fully-qualified target.
func (m *ProgramModel) ResolveName(file, name string) (string, bool) {
	imports, ok := m.ImportMaps[file]
	if !ok {
		return "", false
	}
	target, ok := imports[name]
	return target, ok
}

// GetReturnType returns the recorded return-type annotation for a function
// key, if any.
func (m *ProgramModel) GetReturnType(funcKey string) (string, bool) {
	t, ok := m.ReturnTypes[funcKey]
	return t, ok
}

// AddClassToHierarchy records a class definition into both Classes and the
// hierarchy's parent/child maps, keeping them in sync. It is idempotent.
func (m *ProgramModel) AddClassToHierarchy(c ClassDef) {
	m.Classes[c.Key()] = c
	m.Hierarchy.AddClass(c.Name, c.Bases)
	for method, abstract := range c.AbstractMethods {
		if abstract {
			m.Hierarchy.MarkAbstractMethod(c.Name, method)
		} else {
			m.Hierarchy.MarkConcreteMethod(c.Name, method)
		}
	}
}
