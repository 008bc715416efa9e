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

// Package pymodel holds the entity types and the whole-program model that
// the rest of the analyzer operates on. Entities are plain value types keyed
// by deterministic strings, never by pointer identity.
package pymodel

import "strings"

// FuncKey builds the stable identity of a function: "<relative-file>::<qualified-name>".
// Qualified names nest class names with ".", e.g. "UserView.get".
func FuncKey(file, qualifiedName string) string {
	return file + "::" + qualifiedName
}

// ClassKey builds the stable identity of a class the same way a function key is built.
func ClassKey(file, qualifiedName string) string {
	return file + "::" + qualifiedName
}

// SplitFuncKey splits a function key back into its file and qualified-name parts.
// Returns ok=false if key does not contain the "::" separator.
func SplitFuncKey(key string) (file, qualified string, ok bool) {
	idx := strings.Index(key, "::")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+2:], true
}

// SimpleName returns the last dotted component of a qualified name, e.g.
// "UserView.get" -> "get", "validate_input" -> "validate_input".
func SimpleName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}

// SimpleNameOfKey extracts the simple (method or function) name from a function key,
// tolerating bare qualified names without a "::" separator.
func SimpleNameOfKey(key string) string {
	_, qualified, ok := SplitFuncKey(key)
	if !ok {
		return SimpleName(key)
	}
	return SimpleName(qualified)
}

// IsMethodKey reports whether a function key's qualified name contains a "."
// meaning it is a method on some class rather than a bare module-level function.
func IsMethodKey(key string) bool {
	_, qualified, ok := SplitFuncKey(key)
	if !ok {
		qualified = key
	}
	return strings.Contains(qualified, ".")
}

// ClassNameOfMethodKey returns the class component of a "Class.method" qualified
// name. Returns "" if the key names a bare function rather than a method.
func ClassNameOfMethodKey(key string) string {
	_, qualified, ok := SplitFuncKey(key)
	if !ok {
		qualified = key
	}
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return ""
	}
	return qualified[:idx]
}

// FileOfKey returns the file component of a function or class key.
func FileOfKey(key string) string {
	file, _, ok := SplitFuncKey(key)
	if !ok {
		return ""
	}
	return file
}

// SimpleTypeName strips any dotted module prefix from an exception/class type
// name, e.g. "requests.exceptions.Timeout" -> "Timeout". Hierarchy comparisons
// always operate on this simple form since source rarely carries a fully
// qualified name for exception types.
func SimpleTypeName(t string) string {
	return SimpleName(t)
}
