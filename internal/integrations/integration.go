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

// Package integrations defines the framework-plugin contract and the
// built-in Flask, FastAPI, Django and CLI-script detectors that populate a
// ProgramModel's entrypoints and global handlers from each file's raw
// source, and that answer whether a framework converts a given exception
// type into a response rather than letting it escape.
package integrations

import "github.com/kraklabs/excflow/internal/pymodel"

// Integration detects framework-specific entrypoints and global exception
// handlers in a single file's source, and knows which exception types that
// framework itself converts into a response.
type Integration interface {
	// Name identifies the integration for config and CLI purposes (e.g.
	// "flask", "fastapi", "django", "cli").
	Name() string

	// DetectEntrypoints scans one file's source for externally triggerable
	// entrypoints this framework defines (routes, CLI commands, Celery
	// tasks, scheduled jobs, ...).
	DetectEntrypoints(source []byte, file string) []pymodel.Entrypoint

	// DetectGlobalHandlers scans one file's source for application-wide
	// exception handlers this framework registers (e.g. Flask
	// @app.errorhandler, FastAPI exception_handler).
	DetectGlobalHandlers(source []byte, file string) []pymodel.GlobalHandler

	// ExceptionResponse reports whether this framework itself converts
	// exceptionType into a response (e.g. FastAPI's HTTPException base
	// class always becomes an HTTP response, never an unhandled crash).
	ExceptionResponse(exceptionType string) (response string, handled bool)
}

// Registry holds every active integration and fans detection out across
// all of them, matching the custom_detectors aggregation this analyzer's
// single-threaded Python counterpart performs sequentially per file.
type Registry struct {
	integrations []Integration
}

// NewRegistry returns a registry containing the given integrations, in
// the order they should be consulted.
func NewRegistry(active ...Integration) *Registry {
	return &Registry{integrations: active}
}

// All returns the registered integrations.
func (r *Registry) All() []Integration {
	return r.integrations
}

// DetectEntrypoints runs every registered integration's entrypoint
// detector against source and concatenates the results.
func (r *Registry) DetectEntrypoints(source []byte, file string) []pymodel.Entrypoint {
	var out []pymodel.Entrypoint
	for _, integ := range r.integrations {
		out = append(out, integ.DetectEntrypoints(source, file)...)
	}
	return out
}

// DetectGlobalHandlers runs every registered integration's global-handler
// detector against source and concatenates the results.
func (r *Registry) DetectGlobalHandlers(source []byte, file string) []pymodel.GlobalHandler {
	var out []pymodel.GlobalHandler
	for _, integ := range r.integrations {
		out = append(out, integ.DetectGlobalHandlers(source, file)...)
	}
	return out
}

// ExceptionResponse asks every registered integration in turn whether it
// converts exceptionType into a response, returning the first match. This
// is the FrameworkResponseFunc the propagator's classification step needs.
func (r *Registry) ExceptionResponse(exceptionType string) (string, bool) {
	for _, integ := range r.integrations {
		if response, ok := integ.ExceptionResponse(exceptionType); ok {
			return response, ok
		}
	}
	return "", false
}
