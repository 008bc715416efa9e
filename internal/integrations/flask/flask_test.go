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

package flask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/pymodel"
)

func TestFlaskRouteDecorator(t *testing.T) {
	src := `
@app.route("/widgets/<id>", methods=["GET", "DELETE"])
def widget_detail(id):
    pass
`
	eps := New().DetectEntrypoints([]byte(src), "views.py")
	require.Len(t, eps, 1)
	assert.Equal(t, pymodel.EntrypointHTTPRoute, eps[0].Kind)
	assert.Equal(t, "/widgets/<id>", eps[0].Metadata["http_path"])
	assert.Equal(t, "GET", eps[0].Metadata["http_method"])
}

func TestFlaskVerbShortcut(t *testing.T) {
	src := `
@app.post("/widgets")
def create_widget():
    pass
`
	eps := New().DetectEntrypoints([]byte(src), "views.py")
	require.Len(t, eps, 1)
	assert.Equal(t, "POST", eps[0].Metadata["http_method"])
}

func TestFlaskRestfulResource(t *testing.T) {
	src := `
from flask_restful import Resource

class WidgetResource(Resource):
    def get(self, id):
        pass
`
	eps := New().DetectEntrypoints([]byte(src), "resources.py")
	require.Len(t, eps, 1)
	assert.Equal(t, "WidgetResource", eps[0].Function)
}

func TestFlaskErrorHandler(t *testing.T) {
	src := `
@app.errorhandler(ValueError)
def handle_value_error(error):
    pass
`
	handlers := New().DetectGlobalHandlers([]byte(src), "app.py")
	require.Len(t, handlers, 1)
	assert.Equal(t, "ValueError", handlers[0].HandledType)
}

func TestFlaskExceptionResponse(t *testing.T) {
	resp, handled := New().ExceptionResponse("werkzeug.exceptions.NotFound")
	assert.True(t, handled)
	assert.NotEmpty(t, resp)

	_, handled = New().ExceptionResponse("ValueError")
	assert.False(t, handled)
}
