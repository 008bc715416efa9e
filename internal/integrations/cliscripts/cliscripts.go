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

// Package cliscripts detects the "main-guard" entrypoint convention: a
// module-level "if __name__ == \"__main__\":" block, the way a script
// invoked directly (`python script.py`) is triggered rather than imported.
// It has no global-handler or framework-response notion of its own; a CLI
// script's own try/except blocks around its main-guard body are ordinary
// local catches, not global handlers.
package cliscripts

import (
	"github.com/kraklabs/excflow/internal/integrations"
	"github.com/kraklabs/excflow/internal/pymodel"
)

// detector implements integrations.Integration for main-guard scripts.
type detector struct{}

// New returns the CLI-script Integration.
func New() integrations.Integration {
	return detector{}
}

func (detector) Name() string { return "cli" }

func (detector) DetectEntrypoints(source []byte, file string) []pymodel.Entrypoint {
	scanned := integrations.Scan(source)
	if !scanned.HasMainGuard {
		return nil
	}
	return []pymodel.Entrypoint{
		{
			// "<module>" matches the function key extract.Extract assigns to
			// raise/call/catch sites at module scope, so this entrypoint
			// resolves to the same key the main-guard body's own raises and
			// calls are recorded under.
			File:     file,
			Function: "<module>",
			Line:     1,
			Kind:     pymodel.EntrypointCLIScript,
			Metadata: map[string]string{"framework": "cli"},
		},
	}
}

func (detector) DetectGlobalHandlers([]byte, string) []pymodel.GlobalHandler { return nil }

func (detector) ExceptionResponse(string) (string, bool) { return "", false }
