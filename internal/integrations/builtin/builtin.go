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

// Package builtin wires the four built-in framework integrations into one
// Registry. It is split out from internal/integrations itself to avoid an
// import cycle: flask/fastapi/django/cliscripts all import
// internal/integrations for the shared Integration/GenericDetector types,
// so the thing that imports all four has to sit one level up.
package builtin

import (
	"github.com/kraklabs/excflow/internal/integrations"
	"github.com/kraklabs/excflow/internal/integrations/cliscripts"
	"github.com/kraklabs/excflow/internal/integrations/django"
	"github.com/kraklabs/excflow/internal/integrations/fastapi"
	"github.com/kraklabs/excflow/internal/integrations/flask"
)

// DefaultRegistry returns a Registry with every built-in framework
// integration active.
func DefaultRegistry() *integrations.Registry {
	return integrations.NewRegistry(
		flask.New(),
		fastapi.New(),
		django.New(),
		cliscripts.New(),
	)
}
