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

package integrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanDecoratedFunction(t *testing.T) {
	src := `
from flask import Flask
app = Flask(__name__)

@app.route("/widgets", methods=["GET", "POST"])
def list_widgets():
    return []
`
	scanned := Scan([]byte(src))
	require.Len(t, scanned.Functions, 1)

	fn := scanned.Functions[0]
	assert.Equal(t, "list_widgets", fn.Name)
	require.Len(t, fn.Decorators, 1)

	dec := fn.Decorators[0]
	assert.Equal(t, "app.route", dec.Name)
	require.Len(t, dec.Args, 2)
	assert.Equal(t, "/widgets", dec.Args[0].String)
	assert.Equal(t, "methods", dec.Args[1].Keyword)
	assert.Equal(t, []string{"GET", "POST"}, dec.Args[1].List)
}

func TestScanClassWithMethods(t *testing.T) {
	src := `
from rest_framework.views import APIView

class WidgetView(APIView):
    def get(self, request):
        return None

    def post(self, request):
        return None
`
	scanned := Scan([]byte(src))
	require.Len(t, scanned.Classes, 1)

	cls := scanned.Classes[0]
	assert.Equal(t, "WidgetView", cls.Name)
	assert.Equal(t, []string{"APIView"}, cls.Bases)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, "get", cls.Methods[0].Name)
	assert.Equal(t, "WidgetView", cls.Methods[0].ContainingClass)
	assert.Equal(t, "post", cls.Methods[1].Name)
}

func TestScanDetectsMainGuard(t *testing.T) {
	src := `
def main():
    pass

if __name__ == "__main__":
    main()
`
	scanned := Scan([]byte(src))
	assert.True(t, scanned.HasMainGuard)
}

func TestScanNoMainGuardWithoutIt(t *testing.T) {
	src := `
def handler(event, context):
    return {"statusCode": 200}
`
	scanned := Scan([]byte(src))
	assert.False(t, scanned.HasMainGuard)
}

func TestScanModuleLevelCall(t *testing.T) {
	src := `
from django.urls import path
from . import views

urlpatterns = [
    path("widgets/", views.WidgetView.as_view()),
]
`
	scanned := Scan([]byte(src))
	var found bool
	for _, c := range scanned.Calls {
		if c.Name == "path" {
			found = true
			require.Len(t, c.Args, 2)
			assert.Equal(t, "widgets/", c.Args[0].String)
		}
	}
	assert.True(t, found, "expected a module-level call to path()")
}

func TestScanInvalidSourceReturnsZeroValue(t *testing.T) {
	scanned := Scan([]byte("\x00\x01\x02"))
	assert.Empty(t, scanned.Functions)
	assert.Empty(t, scanned.Classes)
}
