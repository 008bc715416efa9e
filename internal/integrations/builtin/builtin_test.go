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

package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryDetectsAcrossFrameworks(t *testing.T) {
	reg := DefaultRegistry()
	names := make(map[string]bool)
	for _, i := range reg.All() {
		names[i.Name()] = true
	}
	assert.True(t, names["flask"])
	assert.True(t, names["fastapi"])
	assert.True(t, names["django"])
	assert.True(t, names["cli"])
}

func TestDefaultRegistryDetectEntrypointsFanOut(t *testing.T) {
	reg := DefaultRegistry()

	flaskSrc := []byte(`
@app.route("/widgets")
def list_widgets():
    pass
`)
	eps := reg.DetectEntrypoints(flaskSrc, "views.py")
	require.Len(t, eps, 1)
	assert.Equal(t, "flask", eps[0].Metadata["framework"])

	cliSrc := []byte(`
if __name__ == "__main__":
    pass
`)
	eps = reg.DetectEntrypoints(cliSrc, "script.py")
	require.Len(t, eps, 1)
	assert.Equal(t, "cli", eps[0].Metadata["framework"])
}

func TestDefaultRegistryExceptionResponseFirstMatch(t *testing.T) {
	reg := DefaultRegistry()
	resp, handled := reg.ExceptionResponse("werkzeug.exceptions.NotFound")
	assert.True(t, handled)
	assert.NotEmpty(t, resp)

	_, handled = reg.ExceptionResponse("CompletelyUnknownError")
	assert.False(t, handled)
}
