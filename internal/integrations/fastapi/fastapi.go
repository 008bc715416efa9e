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

// Package fastapi configures the generic detector engine for FastAPI and
// Starlette route/handler conventions: the "@app.get"/"@app.post"/...
// verb decorators and APIRouter's "@router.get"/... equivalents, plus
// "@app.exception_handler" global handlers.
package fastapi

import "github.com/kraklabs/excflow/internal/integrations"

// New returns the FastAPI Integration.
func New() *integrations.GenericDetector {
	return integrations.NewGenericDetector(
		"fastapi",
		[]integrations.DecoratorRoutePattern{
			{DecoratorGlob: "get", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "GET"},
			{DecoratorGlob: "post", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "POST"},
			{DecoratorGlob: "put", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "PUT"},
			{DecoratorGlob: "patch", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "PATCH"},
			{DecoratorGlob: "delete", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "DELETE"},
			{DecoratorGlob: "options", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "OPTIONS"},
			{DecoratorGlob: "head", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "HEAD"},
			{DecoratorGlob: "websocket", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "WEBSOCKET"},
		},
		nil,
		[]integrations.HandlerPattern{
			{DecoratorGlob: "exception_handler"},
		},
		exceptionResponse,
	)
}

func exceptionResponse(exceptionType string) (string, bool) {
	switch lastComponent(exceptionType) {
	case "HTTPException", "StarletteHTTPException", "RequestValidationError", "ValidationError":
		return "translated to an HTTP error response by FastAPI's default exception handling", true
	default:
		return "", false
	}
}

func lastComponent(dotted string) string {
	for i := len(dotted) - 1; i >= 0; i-- {
		if dotted[i] == '.' {
			return dotted[i+1:]
		}
	}
	return dotted
}
