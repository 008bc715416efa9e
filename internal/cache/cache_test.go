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

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/excflow/internal/extract"
)

func writeTempFile(t *testing.T, dir, name, content string) os.FileInfo {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func TestCacheMissThenHit(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	defer c.Close()

	info := writeTempFile(t, dir, "a.py", "def f(): pass\n")
	_, ok := c.Get("a.py", info)
	assert.False(t, ok)

	extraction := extract.FileExtraction{
		ImportMap:          map[string]string{},
		ReturnTypes:        map[string]string{},
		DetectedFrameworks: map[string]bool{},
	}
	require.NoError(t, c.Put("a.py", info, []byte("def f(): pass\n"), extraction))

	got, ok := c.Get("a.py", info)
	assert.True(t, ok)
	assert.NotNil(t, got.ImportMap)
}

func TestCacheMissOnSizeChange(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	defer c.Close()

	info := writeTempFile(t, dir, "a.py", "x = 1\n")
	extraction := extract.FileExtraction{ImportMap: map[string]string{}, ReturnTypes: map[string]string{}, DetectedFrameworks: map[string]bool{}}
	require.NoError(t, c.Put("a.py", info, []byte("x = 1\n"), extraction))

	// Simulate a later edit: same path, different size and mtime.
	time.Sleep(10 * time.Millisecond)
	newInfo := writeTempFile(t, dir, "a.py", "x = 12345\n")
	_, ok := c.Get("a.py", newInfo)
	assert.False(t, ok)
}

func TestCacheClearAndStats(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	defer c.Close()

	info := writeTempFile(t, dir, "a.py", "pass\n")
	extraction := extract.FileExtraction{ImportMap: map[string]string{}, ReturnTypes: map[string]string{}, DetectedFrameworks: map[string]bool{}}
	require.NoError(t, c.Put("a.py", info, []byte("pass\n"), extraction))

	stats, err := c.StatsOf()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	require.NoError(t, c.Clear())
	stats, err = c.StatsOf()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestOpenWipesStaleSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)

	info := writeTempFile(t, dir, "a.py", "pass\n")
	extraction := extract.FileExtraction{ImportMap: map[string]string{}, ReturnTypes: map[string]string{}, DetectedFrameworks: map[string]bool{}}
	require.NoError(t, c.Put("a.py", info, []byte("pass\n"), extraction))
	require.NoError(t, c.setMeta("schema_version", "999999"))
	require.NoError(t, c.Close())

	c2, err := Open(dir)
	require.NoError(t, err)
	defer c2.Close()

	_, ok := c2.Get("a.py", info)
	assert.False(t, ok, "a stale schema_version must wipe cached entries")
}
