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

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/pymodel"
)

func TestExtractImportsAndFunctions(t *testing.T) {
	src := `
import os
from requests import get as http_get

def process(path):
    data = http_get(path)
    return os.path.exists(path)
`
	result, err := Extract([]byte(src), "service.py", "service.py")
	require.NoError(t, err)

	require.Len(t, result.Functions, 1)
	assert.Equal(t, "process", result.Functions[0].QualifiedName)
	assert.False(t, result.Functions[0].IsMethod)

	assert.Equal(t, "os", result.ImportMap["os"])
	assert.Equal(t, "requests.get", result.ImportMap["http_get"])
}

func TestExtractClassAndMethodQualifiedNames(t *testing.T) {
	src := `
class Widget:
    def render(self):
        return self.build()

    def build(self):
        raise ValueError("bad widget")
`
	result, err := Extract([]byte(src), "widget.py", "widget.py")
	require.NoError(t, err)

	require.Len(t, result.Classes, 1)
	assert.Equal(t, "Widget", result.Classes[0].Name)

	names := map[string]bool{}
	for _, fn := range result.Functions {
		names[fn.QualifiedName] = true
		assert.True(t, fn.IsMethod)
		assert.Equal(t, "Widget", fn.ContainingClass)
	}
	assert.True(t, names["Widget.render"])
	assert.True(t, names["Widget.build"])

	require.Len(t, result.RaiseSites, 1)
	assert.Equal(t, "ValueError", result.RaiseSites[0].ExceptionType)
	assert.Equal(t, "Widget.build", result.RaiseSites[0].Function)
}

func TestExtractSelfCallResolution(t *testing.T) {
	src := `
class Service:
    def handle(self):
        return self.helper()

    def helper(self):
        pass
`
	result, err := Extract([]byte(src), "svc.py", "svc.py")
	require.NoError(t, err)

	var found bool
	for _, cs := range result.CallSites {
		if cs.CalleeName == "helper" {
			found = true
			assert.Equal(t, pymodel.ResolutionSelf, cs.ResolutionKind)
			assert.Equal(t, "svc.py::Service.helper", cs.CalleeQualified)
		}
	}
	assert.True(t, found, "expected a resolved self.helper() call site")
}

func TestExtractBareRaiseIsUnknown(t *testing.T) {
	src := `
def reraiser():
    try:
        risky()
    except ValueError:
        raise
`
	result, err := Extract([]byte(src), "r.py", "r.py")
	require.NoError(t, err)

	require.Len(t, result.RaiseSites, 1)
	assert.True(t, result.RaiseSites[0].IsBareRaise)
	assert.Equal(t, "Unknown", result.RaiseSites[0].ExceptionType)

	require.Len(t, result.CatchSites, 1)
	assert.Equal(t, []string{"ValueError"}, result.CatchSites[0].CaughtTypes)
	assert.True(t, result.CatchSites[0].HasReraise)
}

func TestExtractAbstractMethodDetection(t *testing.T) {
	src := `
from abc import ABC, abstractmethod

class Base(ABC):
    @abstractmethod
    def process(self):
        ...

class Impl(Base):
    def process(self):
        return 1
`
	result, err := Extract([]byte(src), "base.py", "base.py")
	require.NoError(t, err)

	require.Len(t, result.Classes, 2)
	byName := map[string]pymodel.ClassDef{}
	for _, c := range result.Classes {
		byName[c.Name] = c
	}
	assert.True(t, byName["Base"].IsAbstract)
	assert.True(t, byName["Base"].AbstractMethods["process"])

	var baseProcess, implProcess pymodel.FunctionDef
	for _, fn := range result.Functions {
		if fn.ContainingClass == "Base" {
			baseProcess = fn
		}
		if fn.ContainingClass == "Impl" {
			implProcess = fn
		}
	}
	assert.True(t, baseProcess.IsAbstract)
	assert.False(t, implProcess.IsAbstract)
}

func TestExtractFastAPIDependsSyntheticEdge(t *testing.T) {
	src := `
from fastapi import Depends

def get_db():
    pass

def read_items(db=Depends(get_db)):
    return db.query()
`
	result, err := Extract([]byte(src), "routes.py", "routes.py")
	require.NoError(t, err)

	var found bool
	for _, cs := range result.CallSites {
		if cs.ResolutionKind == pymodel.ResolutionFastAPIDepends {
			found = true
			assert.Equal(t, "get_db", cs.CalleeName)
		}
	}
	assert.True(t, found, "expected a synthetic fastapi_depends call site")
}

func TestExtractConstructorResolution(t *testing.T) {
	src := `
from mypkg import Repo

def run():
    repo = Repo()
    return repo.load()
`
	result, err := Extract([]byte(src), "run.py", "run.py")
	require.NoError(t, err)

	var found bool
	for _, cs := range result.CallSites {
		if cs.CalleeName == "load" {
			found = true
			assert.Equal(t, pymodel.ResolutionConstructor, cs.ResolutionKind)
			assert.Equal(t, "mypkg.Repo.load", cs.CalleeQualified)
		}
	}
	assert.True(t, found)
}

func TestExtractMalformedSourceDoesNotPanic(t *testing.T) {
	src := "def broken(:::\n   this is not python at all ###"
	result, err := Extract([]byte(src), "broken.py", "broken.py")
	require.NoError(t, err)
	assert.NotNil(t, result.ImportMap)
}
