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

package integrations

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kraklabs/excflow/internal/pymodel"
)

// DecoratorRoutePattern describes one family of route-registering
// decorators, e.g. Flask's "@app.route(path, methods=[...])" or FastAPI's
// "@app.get(path)". DecoratorGlob is matched against both the decorator's
// full dotted name and its last component, so "route" matches "app.route"
// and "bp.route" alike. PathSource and MethodSource name where to read the
// path and HTTP method from: "arg[i]" for a positional argument,
// "kwarg[name]" for a keyword argument, or, for MethodSource only,
// "decorator_name" to take the method from the decorator's own last
// component (FastAPI's "@app.post" style).
type DecoratorRoutePattern struct {
	DecoratorGlob string
	PathSource    string
	MethodSource  string
	DefaultMethod string
}

// ClassRoutePattern matches class-based views: a class inheriting from one
// of BaseClasses that defines at least one of MethodNames is an entrypoint.
// Base class and method matching both ignore any module qualification, so
// "rest_framework.views.APIView" matches a BaseClasses entry of "APIView".
type ClassRoutePattern struct {
	BaseClasses map[string]bool
	MethodNames map[string]bool
}

// HandlerPattern matches global exception handler registrations, such as
// Flask's "@app.errorhandler(ValueError)" or FastAPI's
// "@app.exception_handler(ValueError)". ExceptionArgSource defaults to
// "arg[0]".
type HandlerPattern struct {
	DecoratorGlob      string
	ExceptionArgSource string
}

// GenericDetector implements Integration by pattern-matching a Scanned
// file against configured decorator/class route patterns and handler
// patterns. It backs every built-in framework detector; only the pattern
// tables and the exception-response function differ between frameworks.
type GenericDetector struct {
	name            string
	decoratorRoutes []DecoratorRoutePattern
	classRoutes     []ClassRoutePattern
	handlers        []HandlerPattern
	responses       func(exceptionType string) (string, bool)
}

// NewGenericDetector builds a GenericDetector for one framework's patterns.
// responses may be nil if the framework has no known exception->response
// mapping.
func NewGenericDetector(name string, decoratorRoutes []DecoratorRoutePattern, classRoutes []ClassRoutePattern, handlers []HandlerPattern, responses func(string) (string, bool)) *GenericDetector {
	return &GenericDetector{
		name:            name,
		decoratorRoutes: decoratorRoutes,
		classRoutes:     classRoutes,
		handlers:        handlers,
		responses:       responses,
	}
}

func (g *GenericDetector) Name() string { return g.name }

// DetectEntrypoints scans source and matches every function/method against
// decoratorRoutes and every class against classRoutes. A parse failure
// yields no entrypoints from this file rather than aborting detection.
func (g *GenericDetector) DetectEntrypoints(source []byte, file string) []pymodel.Entrypoint {
	scanned := Scan(source)
	var out []pymodel.Entrypoint

	for _, fn := range scanned.Functions {
		for _, dec := range fn.Decorators {
			pattern, ok := matchDecoratorRoute(g.decoratorRoutes, dec.Name)
			if !ok {
				continue
			}
			path, _ := resolveArgSource(pattern.PathSource, dec.Args)
			method := resolveMethod(pattern, dec)

			fnName := fn.Name
			if fn.ContainingClass != "" {
				fnName = fn.ContainingClass + "." + fn.Name
			}
			out = append(out, pymodel.Entrypoint{
				File:     file,
				Function: fnName,
				Line:     fn.Line,
				Kind:     pymodel.EntrypointHTTPRoute,
				Metadata: map[string]string{
					"framework":   g.name,
					"view_type":   "function",
					"http_method": method,
					"http_path":   path,
				},
			})
		}
	}

	for _, cls := range scanned.Classes {
		for _, pattern := range g.classRoutes {
			if !classMatchesBases(cls.Bases, pattern.BaseClasses) {
				continue
			}
			if !classHasAnyMethod(cls.Methods, pattern.MethodNames) {
				continue
			}
			out = append(out, pymodel.Entrypoint{
				File:     file,
				Function: cls.Name,
				Line:     cls.Line,
				Kind:     pymodel.EntrypointHTTPRoute,
				Metadata: map[string]string{
					"framework": g.name,
					"view_type": "class",
					"class":     cls.Name,
				},
			})
			break
		}
	}

	return out
}

// DetectGlobalHandlers scans source and matches every decorated function
// against handlers, reading the handled exception type from the
// configured argument source (arg[0] by default).
func (g *GenericDetector) DetectGlobalHandlers(source []byte, file string) []pymodel.GlobalHandler {
	scanned := Scan(source)
	var out []pymodel.GlobalHandler
	for _, fn := range scanned.Functions {
		for _, dec := range fn.Decorators {
			for _, pattern := range g.handlers {
				if !globMatch(pattern.DecoratorGlob, dec.Name) {
					continue
				}
				argSource := pattern.ExceptionArgSource
				if argSource == "" {
					argSource = "arg[0]"
				}
				excType, ok := resolveArgSource(argSource, dec.Args)
				if !ok || excType == "" {
					continue
				}
				out = append(out, pymodel.GlobalHandler{File: file, Line: fn.Line, Function: fn.Name, HandledType: excType})
			}
		}
	}
	return out
}

func (g *GenericDetector) ExceptionResponse(exceptionType string) (string, bool) {
	if g.responses == nil {
		return "", false
	}
	return g.responses(exceptionType)
}

func matchDecoratorRoute(patterns []DecoratorRoutePattern, decoratorName string) (DecoratorRoutePattern, bool) {
	for _, p := range patterns {
		if globMatch(p.DecoratorGlob, decoratorName) {
			return p, true
		}
	}
	return DecoratorRoutePattern{}, false
}

func resolveMethod(pattern DecoratorRoutePattern, dec DecoratorCall) string {
	if pattern.MethodSource == "decorator_name" {
		return strings.ToUpper(lastDotted(dec.Name))
	}
	if m, ok := resolveArgSource(pattern.MethodSource, dec.Args); ok && m != "" {
		return strings.ToUpper(m)
	}
	if pattern.DefaultMethod != "" {
		return pattern.DefaultMethod
	}
	return "GET"
}

// resolveArgSource reads source ("arg[i]" or "kwarg[name]") out of args,
// returning the argument's firstValue. An empty or unrecognized source
// reports false.
func resolveArgSource(source string, args []ArgValue) (string, bool) {
	switch {
	case source == "":
		return "", false
	case strings.HasPrefix(source, "arg[") && strings.HasSuffix(source, "]"):
		idx, err := strconv.Atoi(source[len("arg[") : len(source)-1])
		if err != nil {
			return "", false
		}
		pos := 0
		for _, a := range args {
			if a.Keyword != "" {
				continue
			}
			if pos == idx {
				return a.firstValue()
			}
			pos++
		}
		return "", false
	case strings.HasPrefix(source, "kwarg[") && strings.HasSuffix(source, "]"):
		name := source[len("kwarg[") : len(source)-1]
		for _, a := range args {
			if a.Keyword == name {
				return a.firstValue()
			}
		}
		return "", false
	default:
		return "", false
	}
}

func classMatchesBases(bases []string, wanted map[string]bool) bool {
	for _, b := range bases {
		if wanted[simpleName(b)] {
			return true
		}
	}
	return false
}

func classHasAnyMethod(methods []ScannedFunction, wanted map[string]bool) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, m := range methods {
		if wanted[m.Name] {
			return true
		}
	}
	return false
}

func simpleName(dotted string) string {
	return dotted[strings.LastIndex(dotted, ".")+1:]
}

func lastDotted(dotted string) string {
	return dotted[strings.LastIndex(dotted, ".")+1:]
}

// globMatch matches pattern against name, and, if that fails, against
// name's last dotted component: a pattern of "route" matches a decorator
// named "app.route" the same way "*.route" would, so built-in configs don't
// need to restate the wildcard for every attribute form.
func globMatch(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	if ok, _ := filepath.Match(pattern, name); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, lastDotted(name))
	return ok
}
