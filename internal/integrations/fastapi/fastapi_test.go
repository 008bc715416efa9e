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

package fastapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/pymodel"
)

func TestFastAPIVerbDecorator(t *testing.T) {
	src := `
@router.get("/widgets/{id}")
def read_widget(id: int):
    pass
`
	eps := New().DetectEntrypoints([]byte(src), "routers.py")
	require.Len(t, eps, 1)
	assert.Equal(t, pymodel.EntrypointHTTPRoute, eps[0].Kind)
	assert.Equal(t, "/widgets/{id}", eps[0].Metadata["http_path"])
	assert.Equal(t, "GET", eps[0].Metadata["http_method"])
}

func TestFastAPIWebsocketDecorator(t *testing.T) {
	src := `
@app.websocket("/ws")
def ws_endpoint(websocket):
    pass
`
	eps := New().DetectEntrypoints([]byte(src), "main.py")
	require.Len(t, eps, 1)
	assert.Equal(t, "WEBSOCKET", eps[0].Metadata["http_method"])
}

func TestFastAPIExceptionHandler(t *testing.T) {
	src := `
@app.exception_handler(RequestValidationError)
def handle_validation(request, exc):
    pass
`
	handlers := New().DetectGlobalHandlers([]byte(src), "main.py")
	require.Len(t, handlers, 1)
	assert.Equal(t, "RequestValidationError", handlers[0].HandledType)
}

func TestFastAPIExceptionResponse(t *testing.T) {
	resp, handled := New().ExceptionResponse("starlette.exceptions.HTTPException")
	assert.True(t, handled)
	assert.NotEmpty(t, resp)

	_, handled = New().ExceptionResponse("KeyError")
	assert.False(t, handled)
}
