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

// Package django detects Django and Django REST Framework view entrypoints
// and DRF exception handlers. Unlike Flask/FastAPI, a Django view's URL
// lives in a separate urls.py, not in the view's own decorator or base
// class, so DetectEntrypoints alone can only emit a placeholder http_path
// (e.g. "<drf:UserView>"). CorrelateURLPatterns is a second, cross-file
// pass a caller runs once every file has been scanned, replacing each
// placeholder with the URL its urls.py registration names.
package django

import (
	"strings"

	"github.com/kraklabs/excflow/internal/integrations"
	"github.com/kraklabs/excflow/internal/pymodel"
)

var viewBaseClasses = map[string]bool{
	"APIView": true, "ViewSet": true, "ModelViewSet": true, "ReadOnlyModelViewSet": true,
	"GenericAPIView": true, "GenericViewSet": true, "ListAPIView": true, "CreateAPIView": true,
	"RetrieveAPIView": true, "UpdateAPIView": true, "DestroyAPIView": true,
	"ListCreateAPIView": true, "RetrieveUpdateAPIView": true, "RetrieveDestroyAPIView": true,
	"RetrieveUpdateDestroyAPIView": true,
	"View":                         true, "TemplateView": true, "RedirectView": true, "FormView": true,
	"DetailView": true, "ListView": true,
}

var dispatchMethodNames = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true,
	"list": true, "create": true, "retrieve": true, "update": true, "partial_update": true, "destroy": true,
}

type detector struct{}

// New returns the Django/DRF Integration.
func New() integrations.Integration {
	return detector{}
}

func (detector) Name() string { return "django" }

// DetectEntrypoints emits one entrypoint per view class (matching the
// builder's injectDjangoDispatchCalls, which fans a single class-level
// entrypoint out to each dispatch method rather than minting one
// entrypoint per method) and one per @api_view function-based view.
// http_path starts out as a "<drf:ClassName>" placeholder; run
// CorrelateURLPatterns afterwards to resolve it from urls.py.
func (detector) DetectEntrypoints(source []byte, file string) []pymodel.Entrypoint {
	scanned := integrations.Scan(source)
	var out []pymodel.Entrypoint

	for _, cls := range scanned.Classes {
		if !hasViewBase(cls.Bases) {
			continue
		}
		if !hasDispatchMethod(cls.Methods) {
			continue
		}
		out = append(out, pymodel.Entrypoint{
			File:     file,
			Function: cls.Name,
			Line:     cls.Line,
			Kind:     pymodel.EntrypointHTTPRoute,
			Metadata: map[string]string{
				"framework": "django",
				"view_type": "class",
				"class":     cls.Name,
				"http_path": "<drf:" + cls.Name + ">",
			},
		})
	}

	for _, fn := range scanned.Functions {
		if fn.ContainingClass != "" {
			continue
		}
		methods, ok := apiViewMethods(fn.Decorators)
		if !ok {
			continue
		}
		out = append(out, pymodel.Entrypoint{
			File:     file,
			Function: fn.Name,
			Line:     fn.Line,
			Kind:     pymodel.EntrypointHTTPRoute,
			Metadata: map[string]string{
				"framework":   "django",
				"view_type":   "function",
				"http_method": methods,
				"http_path":   "<drf:" + fn.Name + ">",
			},
		})
	}

	return out
}

func (detector) DetectGlobalHandlers(source []byte, file string) []pymodel.GlobalHandler {
	scanned := integrations.Scan(source)
	var out []pymodel.GlobalHandler
	for _, fn := range scanned.Functions {
		for _, dec := range fn.Decorators {
			name := lastComponent(dec.Name)
			if name != "exception_handler" && name != "api_exception_handler" {
				continue
			}
			handled := "Exception"
			if len(dec.Args) > 0 {
				if v := argFirstValue(dec.Args[0]); v != "" {
					handled = v
				}
			}
			out = append(out, pymodel.GlobalHandler{File: file, Line: fn.Line, Function: fn.Name, HandledType: handled})
		}
	}
	return out
}

func (detector) ExceptionResponse(exceptionType string) (string, bool) {
	switch lastComponent(exceptionType) {
	case "APIException", "ValidationError", "NotAuthenticated", "PermissionDenied", "NotFound", "MethodNotAllowed", "Throttled", "Http404":
		return "translated to an HTTP error response by DRF's default exception handler", true
	default:
		return "", false
	}
}

func hasViewBase(bases []string) bool {
	for _, b := range bases {
		if viewBaseClasses[lastComponent(b)] {
			return true
		}
	}
	return false
}

func hasDispatchMethod(methods []integrations.ScannedFunction) bool {
	for _, m := range methods {
		if dispatchMethodNames[m.Name] {
			return true
		}
	}
	return false
}

// apiViewMethods reports whether fn is decorated with @api_view([...]) and,
// if so, returns its declared HTTP methods joined with ",".
func apiViewMethods(decorators []integrations.DecoratorCall) (string, bool) {
	for _, dec := range decorators {
		if lastComponent(dec.Name) != "api_view" {
			continue
		}
		var methods []string
		for _, a := range dec.Args {
			if a.Keyword != "" && a.Keyword != "methods" {
				continue
			}
			if len(a.List) > 0 {
				methods = append(methods, a.List...)
			} else if a.IsString {
				methods = append(methods, a.String)
			}
		}
		if len(methods) == 0 {
			methods = []string{"GET"}
		}
		return strings.Join(methods, ","), true
	}
	return "", false
}

func lastComponent(dotted string) string {
	return dotted[strings.LastIndex(dotted, ".")+1:]
}

func argFirstValue(a integrations.ArgValue) string {
	switch {
	case a.IsString:
		return a.String
	case len(a.List) > 0:
		return a.List[0]
	default:
		return a.Name
	}
}

var urlRegistrationCalls = map[string]bool{"path": true, "re_path": true, "url": true}

// CorrelateURLPatterns resolves the "<drf:ClassName>"/"<drf:view_name>"
// placeholders DetectEntrypoints leaves behind, by scanning every given
// file's source for urls.py-style path()/re_path()/url() registrations and
// matching their view argument (either "ClassName.as_view()" or a bare
// function reference) back to the class or function name embedded in the
// placeholder. Entrypoints with no matching registration keep their
// placeholder path unresolved, matching the "don't abort on a view this
// pass couldn't place" principle the rest of this package follows.
func CorrelateURLPatterns(entrypoints []pymodel.Entrypoint, sources map[string][]byte) []pymodel.Entrypoint {
	pathByView := make(map[string]string)
	for _, source := range sources {
		for _, call := range integrations.Scan(source).Calls {
			if !urlRegistrationCalls[call.Name] {
				continue
			}
			path, view, ok := urlPatternViewAndPath(call.Args)
			if !ok {
				continue
			}
			pathByView[lastComponent(view)] = path
		}
	}

	out := make([]pymodel.Entrypoint, len(entrypoints))
	for i, ep := range entrypoints {
		out[i] = ep
		if ep.Metadata["framework"] != "django" {
			continue
		}
		view := ep.Metadata["class"]
		if view == "" {
			view = ep.Function
		}
		if path, ok := pathByView[view]; ok {
			meta := make(map[string]string, len(ep.Metadata))
			for k, v := range ep.Metadata {
				meta[k] = v
			}
			meta["http_path"] = path
			out[i].Metadata = meta
		}
	}
	return out
}

func urlPatternViewAndPath(args []integrations.ArgValue) (path, view string, ok bool) {
	positional := make([]integrations.ArgValue, 0, len(args))
	for _, a := range args {
		if a.Keyword == "" {
			positional = append(positional, a)
		}
	}
	if len(positional) < 2 {
		return "", "", false
	}
	if !positional[0].IsString {
		return "", "", false
	}
	viewArg := positional[1].Name
	viewArg = strings.TrimSuffix(viewArg, ".as_view")
	if viewArg == "" {
		return "", "", false
	}
	return positional[0].String, viewArg, true
}
