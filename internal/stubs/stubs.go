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

// Package stubs loads hand-written exception signatures for third-party and
// standard-library functions the extractor cannot see the body of. The
// propagator consults a stub only after direct raises and scoped name
// fallback both come up empty (spec §4.5 Phase C).
package stubs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds stub entries keyed by dotted module path, then by function
// or method simple name, each mapping to the exception type names it raises.
type Library struct {
	entries map[string]map[string][]string
}

// NewLibrary returns an empty stub library.
func NewLibrary() *Library {
	return &Library{entries: make(map[string]map[string][]string)}
}

// AddStub records that module.function raises the given exception types,
// merging with (not replacing) any types already recorded for that pair.
func (l *Library) AddStub(module, function string, raises []string) {
	if l.entries[module] == nil {
		l.entries[module] = make(map[string][]string)
	}
	existing := l.entries[module][function]
	for _, r := range raises {
		if !containsStr(existing, r) {
			existing = append(existing, r)
		}
	}
	l.entries[module][function] = existing
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetRaises returns the exception types stubbed for module.function, and
// whether a stub entry exists at all (distinguishing "stubbed, raises
// nothing" from "no stub").
func (l *Library) GetRaises(module, function string) ([]string, bool) {
	fns, ok := l.entries[module]
	if !ok {
		return nil, false
	}
	raises, ok := fns[function]
	return raises, ok
}

// stubFile is the on-disk YAML shape: a flat map of "module.function" (or
// bare "function" for builtins) to a list of exception type names.
type stubFile map[string][]string

func loadStubFile(path string, into *Library) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a fixed builtin dir or the project's own .flow/stubs
	if err != nil {
		return err
	}
	var parsed stubFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("stubs: parsing %s: %w", path, err)
	}
	for key, raises := range parsed {
		module, function := splitStubKey(key)
		into.AddStub(module, function, raises)
	}
	return nil
}

func splitStubKey(key string) (module, function string) {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}

// Load merges the builtin stub set with any user stubs found under
// projectDir/.flow/stubs/*.yaml. A user entry replaces the builtin entry for
// the same module.function key; entries for one key spread over several user
// files are merged with each other.
func Load(projectDir string) (*Library, error) {
	lib := NewLibrary()
	for name, content := range builtinStubs {
		var parsed stubFile
		if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
			return nil, fmt.Errorf("stubs: parsing builtin %s: %w", name, err)
		}
		for key, raises := range parsed {
			module, function := splitStubKey(key)
			lib.AddStub(module, function, raises)
		}
	}

	userDir := filepath.Join(projectDir, ".flow", "stubs")
	entries, err := os.ReadDir(userDir)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return lib, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	user := NewLibrary()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if err := loadStubFile(filepath.Join(userDir, entry.Name()), user); err != nil {
			return lib, err
		}
	}
	for module, fns := range user.entries {
		if lib.entries[module] == nil {
			lib.entries[module] = make(map[string][]string)
		}
		for function, raises := range fns {
			lib.entries[module][function] = raises
		}
	}
	return lib, nil
}

// Validate checks that a stub file at path parses and every value is a
// non-empty list of strings; used by `excflow stubs validate`.
func Validate(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied CLI argument, validated by design
	if err != nil {
		return err
	}
	var parsed stubFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	for key, raises := range parsed {
		if len(raises) == 0 {
			return fmt.Errorf("entry %q has no exception types", key)
		}
	}
	return nil
}

// Modules returns the sorted list of module paths with at least one stub
// entry, for `excflow stubs list`.
func (l *Library) Modules() []string {
	out := make([]string, 0, len(l.entries))
	for m := range l.entries {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
