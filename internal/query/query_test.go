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

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/propagate"
	"github.com/kraklabs/excflow/internal/pymodel"
)

func threeTierModel() *pymodel.ProgramModel {
	model := pymodel.NewProgramModel()
	model.Functions["app.py::handler"] = pymodel.FunctionDef{Name: "handler", QualifiedName: "handler", File: "app.py"}
	model.Functions["service.py::do_work"] = pymodel.FunctionDef{Name: "do_work", QualifiedName: "do_work", File: "service.py"}
	model.Functions["service.py::inner"] = pymodel.FunctionDef{Name: "inner", QualifiedName: "inner", File: "service.py"}

	model.CallSites = []pymodel.CallSite{
		{File: "app.py", Line: 10, CallerFunction: "handler", CallerQualified: "app.py::handler", CalleeName: "do_work", CalleeQualified: "service.py::do_work"},
		{File: "service.py", Line: 20, CallerFunction: "do_work", CallerQualified: "service.py::do_work", CalleeName: "inner", CalleeQualified: "service.py::inner"},
	}
	model.RaiseSites = []pymodel.RaiseSite{
		{File: "service.py", Line: 21, Function: "inner", ExceptionType: "ValueError"},
	}
	model.CatchSites = []pymodel.CatchSite{
		{File: "app.py", Line: 9, Function: "handler", CaughtTypes: []string{"ValueError"}},
		{File: "service.py", Line: 30, Function: "unrelated", CaughtTypes: []string{"KeyError"}},
	}
	return model
}

func TestFindRaisesMatchesSimpleNameAndSubclasses(t *testing.T) {
	model := threeTierModel()
	model.RaiseSites = append(model.RaiseSites, pymodel.RaiseSite{File: "app.py", Line: 5, Function: "handler", ExceptionType: "UnicodeDecodeError"})

	exact := FindRaises(model, "ValueError", false)
	require.Len(t, exact, 1)
	assert.Equal(t, "service.py", exact[0].File)

	withSubs := FindRaises(model, "ValueError", true)
	assert.Len(t, withSubs, 2) // ValueError itself plus UnicodeDecodeError
}

func TestFindCallersReturnsMatchesAndSuggestions(t *testing.T) {
	model := threeTierModel()

	found := FindCallers(model, "do_work")
	require.Len(t, found.Calls, 1)
	assert.Nil(t, found.Suggestions)

	missing := FindCallers(model, "do_worc")
	assert.Empty(t, missing.Calls)
	assert.Contains(t, missing.Suggestions, "do_work")
}

func TestFindCatchesRestrictsByReachability(t *testing.T) {
	model := threeTierModel()

	result := FindCatches(model, "ValueError", false)
	require.Len(t, result.CatchSites, 1)
	assert.Equal(t, "handler", result.CatchSites[0].Function)
}

func TestFindCatchesIncludesGlobalHandlersUnconditionally(t *testing.T) {
	model := threeTierModel()
	model.GlobalHandlers = []pymodel.GlobalHandler{
		{File: "errors.py", Line: 1, Function: "on_value_error", HandledType: "ValueError"},
	}

	result := FindCatches(model, "ValueError", false)
	require.Len(t, result.GlobalHandlers, 1)
	assert.Equal(t, "on_value_error", result.GlobalHandlers[0].Function)
}

func TestFindEscapesResolvesAndClassifies(t *testing.T) {
	model := threeTierModel()

	flow, ok := FindEscapes(model, "do_work", config.Default(), nil)
	require.True(t, ok)
	assert.Contains(t, flow.Uncaught, "ValueError")
}

func TestFindEscapesUnknownFunctionReturnsNotOK(t *testing.T) {
	model := threeTierModel()
	_, ok := FindEscapes(model, "nonexistent", config.Default(), nil)
	assert.False(t, ok)
}

func TestTraceBuildsCallTreeWithRaises(t *testing.T) {
	model := threeTierModel()
	result := propagate.Run(model, propagate.Options{})

	root := Trace(model, result, "app.py::handler", 0, true, config.Default())
	require.NotNil(t, root)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "service.py::do_work", root.Children[0].FunctionKey)
	require.Len(t, root.Children[0].Children, 1)
	assert.Contains(t, root.Children[0].Children[0].DirectRaises, "ValueError")
}

func TestTracePrunesRaiseFreeSubtreesWhenShowAllFalse(t *testing.T) {
	model := threeTierModel()
	// inner no longer raises: nothing should survive pruning below do_work.
	model.RaiseSites = nil
	result := propagate.Run(model, propagate.Options{})

	root := Trace(model, result, "app.py::handler", 0, false, config.Default())
	assert.Empty(t, root.Children)
}

func TestSubclassesExcludesSelf(t *testing.T) {
	model := pymodel.NewProgramModel()
	subs := Subclasses(model, "OSError")
	assert.Contains(t, subs, "FileNotFoundError")
	assert.NotContains(t, subs, "OSError")
}

func TestComputeStatsCountsModelSize(t *testing.T) {
	model := threeTierModel()
	stats := ComputeStats(model)
	assert.Equal(t, 3, stats.Functions)
	assert.Equal(t, 1, stats.RaiseSites)
	assert.Equal(t, 2, stats.CatchSites)
}
