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

package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsSeeded(t *testing.T) {
	h := NewWithBuiltins()
	assert.True(t, h.IsSubclassOf("ValueError", "Exception"))
	assert.True(t, h.IsSubclassOf("FileNotFoundError", "OSError"))
	assert.True(t, h.IsSubclassOf("FileNotFoundError", "Exception"))
	assert.False(t, h.IsSubclassOf("ValueError", "OSError"))
}

func TestIsSubclassOfReflexive(t *testing.T) {
	h := NewWithBuiltins()
	assert.True(t, h.IsSubclassOf("ValueError", "ValueError"))
}

func TestGetSubclassesExcludesSelf(t *testing.T) {
	h := NewWithBuiltins()
	subs := h.GetAllSubclasses("OSError")
	for _, s := range subs {
		assert.NotEqual(t, "OSError", s)
	}
	assert.Contains(t, subs, "FileNotFoundError")
	assert.Contains(t, subs, "BrokenPipeError") // transitive via ConnectionError
}

func TestCustomHierarchy(t *testing.T) {
	h := NewWithBuiltins()
	h.AddClass("AppError", []string{"Exception"})
	h.AddClass("ValidationError", []string{"AppError"})

	require.True(t, h.IsSubclassOf("ValidationError", "AppError"))
	require.True(t, h.IsSubclassOf("ValidationError", "Exception"))
}

func TestCyclicHierarchyDoesNotHang(t *testing.T) {
	h := New()
	// Ill-formed source could produce a cycle; traversal must stay bounded.
	h.AddClass("A", []string{"B"})
	h.AddClass("B", []string{"A"})
	assert.True(t, h.IsSubclassOf("A", "B"))
	assert.False(t, h.IsSubclassOf("A", "C"))
}

func TestAbstractMethodNoSubclasses(t *testing.T) {
	h := New()
	h.AddClass("Service", nil)
	h.MarkAbstractMethod("Service", "process")

	assert.True(t, h.IsAbstractMethod("Service", "process"))
	assert.Empty(t, h.GetConcreteImplementations("Service", "process"))
}

func TestPolymorphicConcreteImplementations(t *testing.T) {
	h := New()
	h.AddClass("Service", nil)
	h.MarkAbstractMethod("Service", "process")
	h.AddClass("ServiceA", []string{"Service"})
	h.MarkConcreteMethod("ServiceA", "process")
	h.AddClass("ServiceB", []string{"Service"})
	h.MarkConcreteMethod("ServiceB", "process")

	impls := h.GetConcreteImplementations("Service", "process")
	require.Len(t, impls, 2)
	names := []string{impls[0].ClassName, impls[1].ClassName}
	assert.ElementsMatch(t, []string{"ServiceA", "ServiceB"}, names)
}

func TestAbstractInheritedUnlessOverridden(t *testing.T) {
	h := New()
	h.AddClass("Base", nil)
	h.MarkAbstractMethod("Base", "run")
	h.AddClass("StillAbstract", []string{"Base"})
	h.AddClass("Concrete", []string{"Base"})
	h.MarkConcreteMethod("Concrete", "run")

	assert.True(t, h.IsAbstractMethod("StillAbstract", "run"))
	assert.False(t, h.IsAbstractMethod("Concrete", "run"))
}
