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

package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/hierarchy"
)

func TestFallbackPrefersSameFile(t *testing.T) {
	idx := NameIndex{}
	idx.Add(NameKey{Name: "helper", IsMethod: false}, "other.py::helper")
	idx.Add(NameKey{Name: "helper", IsMethod: false}, "caller.py::helper")

	f := NewFallback(64)
	candidates, scope := f.Lookup("helper", false, "caller.py", map[string]string{}, idx)
	assert.Equal(t, ScopeSameFile, scope)
	assert.Equal(t, []string{"caller.py::helper"}, candidates)
}

func TestFallbackFallsBackToDirectImport(t *testing.T) {
	idx := NameIndex{}
	idx.Add(NameKey{Name: "load", IsMethod: false}, "pkg/repo.py::load")

	f := NewFallback(64)
	candidates, scope := f.Lookup("load", false, "pkg/service.py", map[string]string{"repo": "pkg/repo.py"}, idx)
	assert.Equal(t, ScopeDirectImport, scope)
	assert.Equal(t, []string{"pkg/repo.py::load"}, candidates)
}

func TestFallbackFallsBackToSamePackage(t *testing.T) {
	idx := NameIndex{}
	idx.Add(NameKey{Name: "util", IsMethod: false}, "pkg/other.py::util")

	f := NewFallback(64)
	candidates, scope := f.Lookup("util", false, "pkg/service.py", map[string]string{}, idx)
	assert.Equal(t, ScopeSamePackage, scope)
	assert.Equal(t, []string{"pkg/other.py::util"}, candidates)
}

func TestFallbackFallsBackToProjectWide(t *testing.T) {
	idx := NameIndex{}
	idx.Add(NameKey{Name: "util", IsMethod: false}, "other_pkg/mod.py::util")

	f := NewFallback(64)
	candidates, scope := f.Lookup("util", false, "pkg/service.py", map[string]string{}, idx)
	assert.Equal(t, ScopeProject, scope)
	assert.Equal(t, []string{"other_pkg/mod.py::util"}, candidates)
}

func TestFallbackNoCandidatesIsNone(t *testing.T) {
	f := NewFallback(64)
	candidates, scope := f.Lookup("missing", false, "a.py", map[string]string{}, NameIndex{})
	assert.Equal(t, ScopeNone, scope)
	assert.Nil(t, candidates)
}

func TestFallbackIsMemoized(t *testing.T) {
	idx := NameIndex{}
	idx.Add(NameKey{Name: "helper", IsMethod: false}, "caller.py::helper")

	f := NewFallback(64)
	first, _ := f.Lookup("helper", false, "caller.py", map[string]string{}, idx)
	idx.Add(NameKey{Name: "helper", IsMethod: false}, "other.py::helper")
	second, _ := f.Lookup("helper", false, "caller.py", map[string]string{}, idx)
	assert.Equal(t, first, second, "a cached lookup must not see index mutations made after it was first resolved")
}

func TestExpandPolymorphicCallNonMethod(t *testing.T) {
	h := hierarchy.New()
	result := ExpandPolymorphicCall("some_func", h, nil)
	assert.Equal(t, []string{"some_func"}, result)
}

func TestExpandPolymorphicCallConcreteMethodUnchanged(t *testing.T) {
	h := hierarchy.New()
	h.AddClass("Widget", nil)
	h.MarkConcreteMethod("Widget", "render")
	result := ExpandPolymorphicCall("pkg.py::Widget.render", h, nil)
	assert.Equal(t, []string{"pkg.py::Widget.render"}, result)
}

func TestExpandPolymorphicCallAbstractNoSubclasses(t *testing.T) {
	h := hierarchy.New()
	h.AddClass("Service", nil)
	h.MarkAbstractMethod("Service", "process")
	result := ExpandPolymorphicCall("a.py::Service.process", h, map[string][]string{})
	assert.Equal(t, []string{"a.py::Service.process"}, result)
}

func TestExpandPolymorphicCallExpandsToConcreteSubclasses(t *testing.T) {
	h := hierarchy.New()
	h.AddClass("Service", nil)
	h.MarkAbstractMethod("Service", "process")
	h.AddClass("ServiceA", []string{"Service"})
	h.MarkConcreteMethod("ServiceA", "process")
	h.AddClass("ServiceB", []string{"Service"})
	h.MarkConcreteMethod("ServiceB", "process")

	methodToQualified := map[string][]string{
		"process": {"a.py::ServiceA.process", "b.py::ServiceB.process"},
	}
	result := ExpandPolymorphicCall("x.py::Service.process", h, methodToQualified)
	require.Len(t, result, 2)
	assert.ElementsMatch(t, []string{"a.py::ServiceA.process", "b.py::ServiceB.process"}, result)
}
