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

package stubs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinStubsLoadAndMerge(t *testing.T) {
	dir := t.TempDir()
	lib, err := Load(dir)
	require.NoError(t, err)

	raises, ok := lib.GetRaises("os", "remove")
	require.True(t, ok)
	assert.Contains(t, raises, "FileNotFoundError")
	assert.Contains(t, raises, "PermissionError")

	_, ok = lib.GetRaises("nonexistent", "fn")
	assert.False(t, ok)
}

func TestUserStubsOverrideBuiltins(t *testing.T) {
	dir := t.TempDir()
	stubDir := filepath.Join(dir, ".flow", "stubs")
	require.NoError(t, os.MkdirAll(stubDir, 0o755))
	content := []byte("os.remove: [CustomError]\nmypkg.do_thing: [AppError]\n")
	require.NoError(t, os.WriteFile(filepath.Join(stubDir, "custom.yaml"), content, 0o644))

	lib, err := Load(dir)
	require.NoError(t, err)

	raises, ok := lib.GetRaises("os", "remove")
	require.True(t, ok)
	assert.NotContains(t, raises, "FileNotFoundError") // builtin entry replaced
	assert.Contains(t, raises, "CustomError")          // user entry wins

	raises, ok = lib.GetRaises("mypkg", "do_thing")
	require.True(t, ok)
	assert.Equal(t, []string{"AppError"}, raises)
}

func TestValidateRejectsEmptyEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mod.fn: []\n"), 0o644))
	err := Validate(path)
	assert.Error(t, err)
}

func TestValidateAcceptsWellFormedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mod.fn: [ValueError]\n"), 0o644))
	assert.NoError(t, Validate(path))
}

func TestAddStubMergesWithoutDuplicating(t *testing.T) {
	lib := NewLibrary()
	lib.AddStub("m", "f", []string{"A", "B"})
	lib.AddStub("m", "f", []string{"B", "C"})
	raises, ok := lib.GetRaises("m", "f")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, raises)
}
