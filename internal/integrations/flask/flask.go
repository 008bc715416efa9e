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

// Package flask configures the generic detector engine for Flask and
// Flask-RESTful view conventions: "@app.route"/"@bp.route" and the
// "@app.get"/"@app.post"/... shortcuts added in Flask 2, plus
// "@app.errorhandler" global handlers and flask_restful.Resource
// class-based views.
package flask

import "github.com/kraklabs/excflow/internal/integrations"

// New returns the Flask Integration.
func New() *integrations.GenericDetector {
	return integrations.NewGenericDetector(
		"flask",
		[]integrations.DecoratorRoutePattern{
			{DecoratorGlob: "route", PathSource: "arg[0]", MethodSource: "kwarg[methods]", DefaultMethod: "GET"},
			{DecoratorGlob: "get", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "GET"},
			{DecoratorGlob: "post", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "POST"},
			{DecoratorGlob: "put", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "PUT"},
			{DecoratorGlob: "patch", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "PATCH"},
			{DecoratorGlob: "delete", PathSource: "arg[0]", MethodSource: "decorator_name", DefaultMethod: "DELETE"},
		},
		[]integrations.ClassRoutePattern{
			{
				BaseClasses: map[string]bool{"Resource": true, "MethodView": true},
				MethodNames: map[string]bool{"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true},
			},
		},
		[]integrations.HandlerPattern{
			{DecoratorGlob: "errorhandler"},
		},
		exceptionResponse,
	)
}

func exceptionResponse(exceptionType string) (string, bool) {
	switch lastComponent(exceptionType) {
	case "HTTPException", "BadRequest", "NotFound", "Forbidden", "Unauthorized", "MethodNotAllowed", "Conflict", "UnprocessableEntity":
		return "translated to an HTTP error response by werkzeug's HTTPException handling", true
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
