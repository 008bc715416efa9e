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

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/config"
	"github.com/kraklabs/excflow/internal/pymodel"
)

// routeModel builds: handler (HTTP route entrypoint) -> service -> worker,
// where worker raises ValueError with nothing in the chain catching it.
func routeModel() *pymodel.ProgramModel {
	model := pymodel.NewProgramModel()
	model.Functions["views.py::handler"] = pymodel.FunctionDef{Name: "handler", QualifiedName: "handler", File: "views.py"}
	model.Functions["service.py::process"] = pymodel.FunctionDef{Name: "process", QualifiedName: "process", File: "service.py"}
	model.Functions["worker.py::do_work"] = pymodel.FunctionDef{Name: "do_work", QualifiedName: "do_work", File: "worker.py"}

	model.CallSites = []pymodel.CallSite{
		{File: "views.py", Line: 5, CallerFunction: "handler", CallerQualified: "views.py::handler", CalleeName: "process", CalleeQualified: "service.py::process"},
		{File: "service.py", Line: 15, CallerFunction: "process", CallerQualified: "service.py::process", CalleeName: "do_work", CalleeQualified: "worker.py::do_work"},
	}
	model.RaiseSites = []pymodel.RaiseSite{
		{File: "worker.py", Line: 16, Function: "do_work", ExceptionType: "ValueError"},
	}
	model.Entrypoints = []pymodel.Entrypoint{
		{File: "views.py", Function: "handler", Line: 4, Kind: pymodel.EntrypointHTTPRoute},
	}
	return model
}

func TestAuditClassifiesUncaughtEscapeAsIssue(t *testing.T) {
	model := routeModel()
	entries := Audit(model, config.Default(), nil)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Flow.Uncaught, "ValueError")
	assert.True(t, entries[0].HasIssues())
}

func TestAuditGenericHandlerIsFlaggedAsIssue(t *testing.T) {
	model := routeModel()
	model.GlobalHandlers = []pymodel.GlobalHandler{
		{File: "views.py", Line: 1, Function: "handle_any", HandledType: "Exception"},
	}
	entries := Audit(model, config.Default(), nil)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Flow.CaughtByGeneric, "ValueError")
	assert.True(t, entries[0].HasIssues())
}

func TestAuditRemoteGlobalHandlerIsNotAnIssue(t *testing.T) {
	model := routeModel()
	model.GlobalHandlers = []pymodel.GlobalHandler{
		{File: "errors.py", Line: 1, Function: "on_value_error", HandledType: "ValueError"},
	}
	entries := Audit(model, config.Default(), nil)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Flow.CaughtByRemoteGlobal, "ValueError")
	assert.False(t, entries[0].HasIssues())
}

func TestRoutesToFindsEntrypointReachingRaise(t *testing.T) {
	model := routeModel()
	paths := RoutesTo(model, "ValueError", false, 0, 0, config.Default())
	require.Len(t, paths, 1)
	assert.Equal(t, "handler", paths[0].Entrypoint.Function)
	assert.Equal(t, "worker.py::do_work", paths[0].Path[0])
	assert.Equal(t, "views.py::handler", paths[0].Path[len(paths[0].Path)-1])
}

func TestRoutesToReturnsEmptyForUnraisedType(t *testing.T) {
	model := routeModel()
	paths := RoutesTo(model, "KeyError", false, 0, 0, config.Default())
	assert.Empty(t, paths)
}

func TestRoutesToDedupesByEntrypoint(t *testing.T) {
	model := routeModel()
	// A second raise site of the same type reachable from the same entrypoint
	// should not produce a second path to "handler".
	model.RaiseSites = append(model.RaiseSites, pymodel.RaiseSite{File: "worker.py", Line: 30, Function: "do_work", ExceptionType: "ValueError"})
	paths := RoutesTo(model, "ValueError", false, 0, 0, config.Default())
	assert.Len(t, paths, 1)
}
