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
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var scanParserPool = sync.Pool{
	New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(python.GetLanguage())
		return p
	},
}

// ArgValue is one positional or keyword argument of a decorator or call,
// resolved only as far as the generic detector engine needs: string
// literals, string-literal lists (Flask's `methods=[...]`), and bare
// names/attributes for anything else (e.g. `UserView.as_view()`).
type ArgValue struct {
	Keyword  string // "" for a positional argument
	IsString bool
	String   string
	List     []string // string elements of a list literal, if this arg is one
	Name     string   // dotted identifier/attribute/call text, when not a literal
}

// firstValue returns the single value a route/handler pattern should read
// from this argument: the string itself, the first element of a list
// literal, or the bare name, in that preference order.
func (a ArgValue) firstValue() (string, bool) {
	switch {
	case a.IsString:
		return a.String, true
	case len(a.List) > 0:
		return a.List[0], true
	case a.Name != "":
		return a.Name, true
	default:
		return "", false
	}
}

// DecoratorCall is one decorator applied to a function or class: its dotted
// name (e.g. "app.route", "errorhandler") and, if it was a call rather than
// a bare decorator, its arguments.
type DecoratorCall struct {
	Name string
	Args []ArgValue
}

// ScannedFunction is one function or method definition and the decorators
// applied to it.
type ScannedFunction struct {
	Name            string
	Line            int
	ContainingClass string // "" for a module-level function
	Decorators      []DecoratorCall
}

// ScannedClass is one class definition: its syntactic base names and the
// methods defined directly on it (not on nested classes).
type ScannedClass struct {
	Name    string
	Line    int
	Bases   []string
	Methods []ScannedFunction
}

// ScannedCall is one module-level call expression (not nested in any
// function or class body), used to detect registration patterns that live
// outside the definition they register, such as Django's urlpatterns list
// or Flask-RESTful's api.add_resource.
type ScannedCall struct {
	Name string
	Line int
	Args []ArgValue
}

// Scanned holds every syntactic fact the built-in framework detectors
// pattern-match against, gathered in one tree-sitter pass over a file.
type Scanned struct {
	Functions    []ScannedFunction
	Classes      []ScannedClass
	Calls        []ScannedCall
	HasMainGuard bool
}

// Scan parses source with the Python grammar and extracts Scanned. A file
// that fails to parse yields a zero-value Scanned: one bad file must never
// stop detection across the rest of the project, the same contract
// extract.Extract makes for structural extraction.
func Scan(source []byte) Scanned {
	parser, _ := scanParserPool.Get().(*sitter.Parser)
	defer scanParserPool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return Scanned{}
	}
	defer tree.Close()

	s := &scanner{source: source}
	s.walk(tree.RootNode(), nil, 0)
	return Scanned{Functions: s.functions, Classes: s.classes, Calls: s.calls, HasMainGuard: s.hasMainGuard}
}

type scanner struct {
	source       []byte
	functions    []ScannedFunction
	classes      []ScannedClass
	calls        []ScannedCall
	hasMainGuard bool
}

func (s *scanner) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(s.source[n.StartByte():n.EndByte()])
}

func (s *scanner) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (s *scanner) dottedName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "dotted_name":
		return s.text(n)
	case "attribute":
		base := s.dottedName(n.ChildByFieldName("object"))
		attr := s.text(n.ChildByFieldName("attribute"))
		if base != "" {
			return base + "." + attr
		}
		return attr
	case "call":
		return s.dottedName(n.ChildByFieldName("function"))
	default:
		return ""
	}
}

func stripQuotes(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, prefix := range []string{"rb", "br", "Rb", "rB", "r", "b", "f", "R", "B", "F"} {
		if strings.HasPrefix(raw, prefix) && len(raw) > len(prefix) {
			rest := raw[len(prefix):]
			if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
				raw = rest
				break
			}
		}
	}
	if len(raw) >= 2 {
		quote := raw[0]
		if (quote == '"' || quote == '\'') && raw[len(raw)-1] == quote {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

func (s *scanner) argValue(n *sitter.Node) ArgValue {
	if n.Type() == "keyword_argument" {
		v := s.argValue(n.ChildByFieldName("value"))
		v.Keyword = s.text(n.ChildByFieldName("name"))
		return v
	}
	switch n.Type() {
	case "string", "concatenated_string":
		return ArgValue{IsString: true, String: stripQuotes(s.text(n))}
	case "list":
		var items []string
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "string" || c.Type() == "concatenated_string" {
				items = append(items, stripQuotes(s.text(c)))
			}
		}
		return ArgValue{List: items}
	default:
		return ArgValue{Name: s.dottedName(n)}
	}
}

func (s *scanner) callArgs(call *sitter.Node) []ArgValue {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	var out []ArgValue
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case "(", ")", ",":
			continue
		}
		out = append(out, s.argValue(child))
	}
	return out
}

func (s *scanner) decoratorsOf(n *sitter.Node) []DecoratorCall {
	parent := n.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return nil
	}
	var out []DecoratorCall
	for i := 0; i < int(parent.ChildCount()); i++ {
		child := parent.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		var target *sitter.Node
		for j := 0; j < int(child.ChildCount()); j++ {
			c := child.Child(j)
			switch c.Type() {
			case "identifier", "attribute", "call":
				target = c
			}
		}
		if target == nil {
			continue
		}
		if target.Type() == "call" {
			out = append(out, DecoratorCall{Name: s.dottedName(target.ChildByFieldName("function")), Args: s.callArgs(target)})
		} else {
			out = append(out, DecoratorCall{Name: s.dottedName(target)})
		}
	}
	return out
}

func (s *scanner) isMainGuard(n *sitter.Node) bool {
	cond := n.ChildByFieldName("condition")
	if cond == nil {
		return false
	}
	text := strings.ReplaceAll(s.text(cond), " ", "")
	switch text {
	case `__name__=="__main__"`, `__name__=='__main__'`, `"__main__"==__name__`, `'__main__'==__name__`:
		return true
	default:
		return false
	}
}

func (s *scanner) handleModuleCall(n *sitter.Node) {
	name := s.dottedName(n.ChildByFieldName("function"))
	if name == "" {
		return
	}
	s.calls = append(s.calls, ScannedCall{Name: name, Line: s.line(n), Args: s.callArgs(n)})
}

func (s *scanner) handleFunction(n *sitter.Node, classStack []string, funcDepth int) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	containingClass := ""
	if len(classStack) > 0 {
		containingClass = classStack[len(classStack)-1]
	}
	s.functions = append(s.functions, ScannedFunction{
		Name:            s.text(nameNode),
		Line:            s.line(n),
		ContainingClass: containingClass,
		Decorators:      s.decoratorsOf(n),
	})
	if body := n.ChildByFieldName("body"); body != nil {
		s.walk(body, classStack, funcDepth+1)
	}
}

func (s *scanner) handleClass(n *sitter.Node, classStack []string, funcDepth int) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	className := s.text(nameNode)

	var bases []string
	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		for i := 0; i < int(superclasses.ChildCount()); i++ {
			arg := superclasses.Child(i)
			switch arg.Type() {
			case "identifier", "attribute":
				if b := s.dottedName(arg); b != "" {
					bases = append(bases, b)
				}
			}
		}
	}

	newStack := append(append([]string(nil), classStack...), className)
	before := len(s.functions)

	if body := n.ChildByFieldName("body"); body != nil {
		s.walk(body, newStack, funcDepth)
	}

	var methods []ScannedFunction
	for _, fn := range s.functions[before:] {
		if fn.ContainingClass == className {
			methods = append(methods, fn)
		}
	}

	s.classes = append(s.classes, ScannedClass{Name: className, Line: s.line(n), Bases: bases, Methods: methods})
}

func (s *scanner) walk(n *sitter.Node, classStack []string, funcDepth int) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "class_definition":
		s.handleClass(n, classStack, funcDepth)
		return
	case "function_definition":
		s.handleFunction(n, classStack, funcDepth)
		return
	case "call":
		if funcDepth == 0 && len(classStack) == 0 {
			s.handleModuleCall(n)
		}
	case "if_statement":
		if funcDepth == 0 && len(classStack) == 0 && s.isMainGuard(n) {
			s.hasMainGuard = true
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		s.walk(n.Child(i), classStack, funcDepth)
	}
}
