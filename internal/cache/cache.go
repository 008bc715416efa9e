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

// Package cache persists per-file extraction results across runs in a
// single-writer SQLite database under .flow/cache.db. A cache hit is decided
// purely from file stat metadata (mtime, size); the stored content hash
// exists only for `excflow cache stats` diagnostics, never as a hit
// predicate, so a clock-skewed mtime with unchanged content still
// re-extracts rather than silently trusting a coincidence.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/kraklabs/excflow/internal/extract"
)

// SchemaVersion bumps whenever the on-disk table layout changes. ToolVersion
// bumps whenever an extraction-semantics change would make rows written by
// an older binary unsafe to reuse. Either mismatch wipes the cache.
const (
	SchemaVersion = 1
	ToolVersion   = "1"
)

// Cache wraps a single *sql.DB handle. Callers share one Cache across the
// whole-project extraction worker pool; database/sql already serializes
// writes through its internal connection pool, and SQLite itself is
// single-writer, so no additional locking is needed here.
type Cache struct {
	db   *sql.DB
	path string
}

// Stats summarizes cache contents for `excflow cache stats`.
type Stats struct {
	Entries   int
	TotalSize int64
	Path      string
}

// Open opens (creating if necessary) the cache database at
// projectDir/.flow/cache.db. A schema or tool version mismatch drops and
// recreates every table rather than attempting a migration.
func Open(projectDir string) (*Cache, error) {
	dir := filepath.Join(projectDir, ".flow")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, "cache.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer; avoid SQLITE_BUSY under the worker pool

	c := &Cache{db: db, path: path}
	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) ensureSchema() error {
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS cache_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("cache: creating cache_meta: %w", err)
	}

	storedSchema := c.meta("schema_version")
	storedTool := c.meta("tool_version")
	expectedSchema := fmt.Sprintf("%d", SchemaVersion)

	if storedSchema != expectedSchema || storedTool != ToolVersion {
		if _, err := c.db.Exec(`DROP TABLE IF EXISTS file_cache`); err != nil {
			return fmt.Errorf("cache: dropping stale file_cache: %w", err)
		}
		if err := c.setMeta("schema_version", expectedSchema); err != nil {
			return err
		}
		if err := c.setMeta("tool_version", ToolVersion); err != nil {
			return err
		}
	}

	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_cache (
			path TEXT PRIMARY KEY,
			mtime_unix INTEGER NOT NULL,
			size INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			extraction_json BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("cache: creating file_cache: %w", err)
	}
	return nil
}

func (c *Cache) meta(key string) string {
	var value string
	row := c.db.QueryRow(`SELECT value FROM cache_meta WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		return ""
	}
	return value
}

func (c *Cache) setMeta(key, value string) error {
	_, err := c.db.Exec(`INSERT INTO cache_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("cache: writing meta %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached extraction for path if its mtime and size match
// what is on disk now, or ok=false on a miss (no entry, or stat mismatch).
func (c *Cache) Get(path string, info os.FileInfo) (extract.FileExtraction, bool) {
	var (
		storedMtime int64
		storedSize  int64
		raw         []byte
	)
	row := c.db.QueryRow(`SELECT mtime_unix, size, extraction_json FROM file_cache WHERE path = ?`, path)
	if err := row.Scan(&storedMtime, &storedSize, &raw); err != nil {
		return extract.FileExtraction{}, false
	}

	if storedMtime != info.ModTime().UnixNano() || storedSize != info.Size() {
		return extract.FileExtraction{}, false
	}

	var extraction extract.FileExtraction
	if err := json.Unmarshal(raw, &extraction); err != nil {
		return extract.FileExtraction{}, false
	}
	return extraction, true
}

// Put stores an extraction result for path keyed by its current stat info.
func (c *Cache) Put(path string, info os.FileInfo, content []byte, extraction extract.FileExtraction) error {
	raw, err := json.Marshal(extraction)
	if err != nil {
		return fmt.Errorf("cache: marshaling extraction for %s: %w", path, err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	_, err = c.db.Exec(`
		INSERT INTO file_cache (path, mtime_unix, size, content_hash, extraction_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime_unix = excluded.mtime_unix,
			size = excluded.size,
			content_hash = excluded.content_hash,
			extraction_json = excluded.extraction_json
	`, path, info.ModTime().UnixNano(), info.Size(), hash, raw)
	if err != nil {
		return fmt.Errorf("cache: writing entry for %s: %w", path, err)
	}
	return nil
}

// Clear deletes every cached entry without touching schema/tool version
// rows, for `excflow cache clear`.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM file_cache`)
	if err != nil {
		return fmt.Errorf("cache: clearing: %w", err)
	}
	return nil
}

// StatsOf reports the number of cached entries and the on-disk database
// size, for `excflow cache stats`.
func (c *Cache) StatsOf() (Stats, error) {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM file_cache`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("cache: counting entries: %w", err)
	}
	var size int64
	if info, err := os.Stat(c.path); err == nil {
		size = info.Size()
	}
	return Stats{Entries: count, TotalSize: size, Path: c.path}, nil
}
