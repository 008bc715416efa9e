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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/pymodel"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, pymodel.ResolutionModeDefault, cfg.ResolutionMode)
	assert.Empty(t, cfg.Exclude)
}

func TestLoadParsesConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".flow"), 0o755))
	content := []byte(`
resolution_mode: strict
exclude:
  - "*/migrations/*"
  - "*/tests/*"
handled_base_classes:
  - AppError
async_boundaries:
  - "*.apply_async"
  - "*.delay"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".flow", "config.yaml"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, pymodel.ResolutionModeStrict, cfg.ResolutionMode)
	assert.Equal(t, []string{"*/migrations/*", "*/tests/*"}, cfg.Exclude)
	assert.Equal(t, []string{"AppError"}, cfg.HandledBaseClasses)
	assert.True(t, cfg.IsAsyncBoundary("task.delay"))
	assert.True(t, cfg.IsAsyncBoundary("task.apply_async"))
	assert.False(t, cfg.IsAsyncBoundary("task.run"))
}

func TestLoadUnknownModeFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".flow"), 0o755))
	content := []byte("resolution_mode: bogus\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".flow", "config.yaml"), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, pymodel.ResolutionModeDefault, cfg.ResolutionMode)
}
