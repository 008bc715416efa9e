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

// Package extract parses a single Python source file with tree-sitter and
// records the structural facts the rest of the analyzer builds on: imports,
// class/function definitions, raise/catch sites, call sites with their Phase
// A resolution, and FastAPI Depends() synthetic edges.
package extract

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/kraklabs/excflow/internal/pymodel"
)

// FileExtraction holds everything recorded from one source file.
type FileExtraction struct {
	Functions          []pymodel.FunctionDef
	Classes            []pymodel.ClassDef
	RaiseSites         []pymodel.RaiseSite
	CatchSites         []pymodel.CatchSite
	CallSites          []pymodel.CallSite
	Imports            []pymodel.ImportInfo
	ImportMap          map[string]string
	ReturnTypes        map[string]string
	DetectedFrameworks map[string]bool
	ParseErrorCount    int
}

var parserPool = sync.Pool{
	New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(python.GetLanguage())
		return p
	},
}

// Extract parses source (the contents of file, whose project-relative path
// is relPath) and returns its structural facts. A file that fails to parse
// entirely returns an empty, non-nil extraction and no error: one
// unparseable file must never abort a whole-project run (spec §4.1).
func Extract(source []byte, file, relPath string) (FileExtraction, error) {
	parser, _ := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return FileExtraction{ImportMap: map[string]string{}, ReturnTypes: map[string]string{}, DetectedFrameworks: map[string]bool{}}, nil
	}
	defer tree.Close()

	w := &walker{
		source:      source,
		file:        file,
		relPath:     relPath,
		importMap:   make(map[string]string),
		returnTypes: make(map[string]string),
		frameworks:  make(map[string]bool),
		localTypes:  make(map[string]string),
		abstractM:   make(map[string]map[string]bool),
		classBases:  make(map[string][]string),
	}
	root := tree.RootNode()
	w.errorCount = countErrors(root)
	w.walk(root)

	return FileExtraction{
		Functions:          w.functions,
		Classes:            w.classes,
		RaiseSites:         w.raiseSites,
		CatchSites:         w.catchSites,
		CallSites:          w.callSites,
		Imports:            w.imports,
		ImportMap:          w.importMap,
		ReturnTypes:        w.returnTypes,
		DetectedFrameworks: w.frameworks,
		ParseErrorCount:    w.errorCount,
	}, nil
}

func countErrors(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrors(n.Child(i))
	}
	return count
}

type walker struct {
	source []byte
	file   string
	// relPath is the path embedded in function/raise-site keys (project
	// relative); file is kept alongside it for CallSite.File bookkeeping,
	// mirroring the Python extractor's file/relative_path split.
	relPath string

	classStack    []string
	functionStack []string
	localTypes    map[string]string
	abstractM     map[string]map[string]bool // class -> method -> true
	classBases    map[string][]string

	functions   []pymodel.FunctionDef
	classes     []pymodel.ClassDef
	raiseSites  []pymodel.RaiseSite
	catchSites  []pymodel.CatchSite
	callSites   []pymodel.CallSite
	imports     []pymodel.ImportInfo
	importMap   map[string]string
	returnTypes map[string]string
	frameworks  map[string]bool
	errorCount  int
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.source[n.StartByte():n.EndByte()])
}

func (w *walker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *walker) qualifiedFunctionAtDepth() string {
	if len(w.functionStack) == 0 {
		return "<module>"
	}
	if len(w.classStack) > 0 {
		return strings.Join(w.classStack, ".") + "." + w.functionStack[len(w.functionStack)-1]
	}
	return w.functionStack[len(w.functionStack)-1]
}

func (w *walker) currentQualifiedName() string {
	parts := []string{w.relPath}
	if len(w.classStack) > 0 {
		parts = append(parts, strings.Join(w.classStack, "."))
	}
	if len(w.functionStack) > 0 {
		parts = append(parts, w.functionStack[len(w.functionStack)-1])
	}
	if len(parts) > 1 {
		return parts[0] + "::" + strings.Join(parts[1:], ".")
	}
	return parts[0]
}

func (w *walker) detectFramework(module string) {
	lower := strings.ToLower(module)
	switch {
	case strings.Contains(lower, "flask"):
		w.frameworks["flask"] = true
	case strings.Contains(lower, "fastapi") || strings.Contains(lower, "starlette"):
		w.frameworks["fastapi"] = true
	case strings.Contains(lower, "django") || strings.Contains(lower, "rest_framework"):
		w.frameworks["django"] = true
	}
}

// dottedNameText joins a dotted_name node's identifier children with ".".
func (w *walker) dottedNameText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "dotted_name":
		return w.text(n)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		base := w.dottedNameText(obj)
		if base != "" {
			return base + "." + w.text(attr)
		}
		return w.text(attr)
	default:
		return w.text(n)
	}
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "import_statement":
		w.handleImport(n)
		return
	case "import_from_statement":
		w.handleImportFrom(n)
		return
	case "class_definition":
		w.handleClass(n)
		return
	case "function_definition":
		w.handleFunction(n)
		return
	case "raise_statement":
		w.handleRaise(n)
	case "try_statement":
		w.handleTry(n)
	case "call":
		w.handleCall(n)
	case "assignment":
		w.handleAssignment(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *walker) handleImport(n *sitter.Node) {
	// import a.b.c [as x], d [as y]
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "dotted_name", "identifier":
			module := w.dottedNameText(child)
			w.recordImport(module, module, "", false)
			w.detectFramework(module)
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			module := w.dottedNameText(nameNode)
			alias := w.text(aliasNode)
			w.recordImport(module, module, alias, false)
			w.detectFramework(module)
		}
	}
}

func (w *walker) handleImportFrom(n *sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	module := w.dottedNameText(moduleNode)
	w.detectFramework(module)

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "wildcard_import":
			w.recordImportFrom(module, "*", "")
		case "dotted_name", "identifier":
			if child == moduleNode {
				continue
			}
			name := w.dottedNameText(child)
			w.recordImportFrom(module, name, "")
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			name := w.dottedNameText(nameNode)
			alias := w.text(aliasNode)
			w.recordImportFrom(module, name, alias)
		}
	}
}

func (w *walker) recordImport(module, name, alias string, isFrom bool) {
	w.imports = append(w.imports, pymodel.ImportInfo{File: w.file, Module: module, Name: name, Alias: alias, IsFromImport: isFrom})
	localName := alias
	if localName == "" {
		localName = strings.SplitN(module, ".", 2)[0]
	}
	w.importMap[localName] = module
}

func (w *walker) recordImportFrom(module, name, alias string) {
	w.imports = append(w.imports, pymodel.ImportInfo{File: w.file, Module: module, Name: name, Alias: alias, IsFromImport: true})
	if name == "*" {
		return
	}
	localName := alias
	if localName == "" {
		localName = name
	}
	w.importMap[localName] = module + "." + name
}

func (w *walker) handleClass(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	className := w.text(nameNode)

	var bases []string
	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		for i := 0; i < int(superclasses.ChildCount()); i++ {
			arg := superclasses.Child(i)
			switch arg.Type() {
			case "identifier", "attribute":
				if base := w.dottedNameText(arg); base != "" {
					bases = append(bases, base)
				}
			case "keyword_argument":
				// metaclass=... and similar: not a base class, skip.
			}
		}
	}

	w.classStack = append(w.classStack, className)
	w.abstractM[className] = make(map[string]bool)
	w.classBases[className] = bases

	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body)
	}

	w.classStack = w.classStack[:len(w.classStack)-1]

	abstractMethods := w.abstractM[className]
	isAbstract := len(abstractMethods) > 0 || containsStr(bases, "ABC") || containsStr(bases, "abc.ABC")

	qualified := className
	if len(w.classStack) > 0 {
		qualified = strings.Join(w.classStack, ".") + "." + className
	}

	w.classes = append(w.classes, pymodel.ClassDef{
		Name:            className,
		QualifiedName:   qualified,
		File:            w.relPath,
		Line:            w.line(n),
		Bases:           bases,
		IsAbstract:      isAbstract,
		AbstractMethods: abstractMethods,
	})
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *walker) handleFunction(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	funcName := w.text(nameNode)

	isMethod := len(w.classStack) > 0
	var className string
	if isMethod {
		className = w.classStack[len(w.classStack)-1]
	}

	qualified := funcName
	if isMethod {
		qualified = strings.Join(w.classStack, ".") + "." + funcName
	}

	isAsync := isAsyncFunction(n)

	var returnAnnotation string
	if retNode := n.ChildByFieldName("return_type"); retNode != nil {
		returnAnnotation = w.dottedNameText(stripTypeNode(retNode))
		if returnAnnotation != "" {
			w.returnTypes[w.relPath+"::"+qualified] = returnAnnotation
		}
	}

	isAbstract := false
	if isMethod {
		isAbstract = w.isAbstractMethod(n)
		if isAbstract {
			w.abstractM[className][funcName] = true
		}
	}

	w.functions = append(w.functions, pymodel.FunctionDef{
		Name:             funcName,
		QualifiedName:    qualified,
		File:             w.relPath,
		Line:             w.line(n),
		IsMethod:         isMethod,
		IsAsync:          isAsync,
		ContainingClass:  className,
		ReturnAnnotation: returnAnnotation,
		IsAbstract:       isAbstract,
	})

	callerQualified := w.relPath + "::" + qualified
	if params := n.ChildByFieldName("parameters"); params != nil {
		w.extractDependsCalls(params, funcName, callerQualified, w.line(n))
	}

	w.functionStack = append(w.functionStack, funcName)
	savedLocals := w.localTypes
	w.localTypes = make(map[string]string)

	if body := n.ChildByFieldName("body"); body != nil {
		w.walk(body)
	}

	w.functionStack = w.functionStack[:len(w.functionStack)-1]
	w.localTypes = savedLocals
}

func isAsyncFunction(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

// stripTypeNode unwraps a `type` node down to the identifier/attribute it
// names, when the grammar wraps the return annotation in an extra layer.
func stripTypeNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "type" && n.ChildCount() == 1 {
		return n.Child(0)
	}
	return n
}

func (w *walker) isAbstractMethod(n *sitter.Node) bool {
	if w.hasAbstractmethodDecorator(n) {
		return true
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return false
	}
	stmts := nonEmptyStatements(body)
	if len(stmts) == 0 {
		return false
	}
	if w.isRaiseNotImplemented(stmts[len(stmts)-1]) {
		return true
	}
	if len(stmts) == 1 && isPassOrEllipsis(stmts[0]) {
		return true
	}
	return false
}

func (w *walker) hasAbstractmethodDecorator(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return false
	}
	for i := 0; i < int(parent.ChildCount()); i++ {
		child := parent.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		name := w.dottedNameText(decoratorTarget(child))
		if name == "abstractmethod" || strings.HasSuffix(name, ".abstractmethod") {
			return true
		}
	}
	return false
}

func decoratorTarget(decorator *sitter.Node) *sitter.Node {
	for i := 0; i < int(decorator.ChildCount()); i++ {
		child := decorator.Child(i)
		switch child.Type() {
		case "identifier", "attribute", "call":
			if child.Type() == "call" {
				return child.ChildByFieldName("function")
			}
			return child
		}
	}
	return nil
}

func nonEmptyStatements(block *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(block.ChildCount()); i++ {
		child := block.Child(i)
		switch child.Type() {
		case "comment", "\n", ":":
		default:
			out = append(out, child)
		}
	}
	return out
}

func (w *walker) isRaiseNotImplemented(stmt *sitter.Node) bool {
	raiseNode := unwrapSimpleStatement(stmt, "raise_statement")
	if raiseNode == nil || raiseNode.ChildCount() < 2 {
		return false
	}
	exc := raiseNode.Child(1)
	switch exc.Type() {
	case "identifier":
		return w.text(exc) == "NotImplementedError"
	case "call":
		fn := exc.ChildByFieldName("function")
		return fn != nil && w.text(fn) == "NotImplementedError"
	}
	return false
}

func unwrapSimpleStatement(stmt *sitter.Node, wantType string) *sitter.Node {
	if stmt == nil {
		return nil
	}
	if stmt.Type() == wantType {
		return stmt
	}
	if stmt.Type() == "expression_statement" && stmt.ChildCount() == 1 {
		return unwrapSimpleStatement(stmt.Child(0), wantType)
	}
	return nil
}

func isPassOrEllipsis(stmt *sitter.Node) bool {
	if stmt.Type() == "pass_statement" {
		return true
	}
	if stmt.Type() == "expression_statement" && stmt.ChildCount() == 1 {
		child := stmt.Child(0)
		return child.Type() == "ellipsis"
	}
	return false
}

func (w *walker) handleRaise(n *sitter.Node) {
	qualifiedFunction := w.qualifiedFunctionAtDepth()

	isBare := n.ChildCount() < 2
	exceptionType := "Unknown"
	var messageExpr string
	snippet := ""

	if !isBare {
		expr := n.Child(1)
		// `raise X from Y`: only the first operand names the exception.
		if expr.Type() == "call" {
			fn := expr.ChildByFieldName("function")
			exceptionType = w.dottedNameText(fn)
			if args := expr.ChildByFieldName("arguments"); args != nil && args.ChildCount() > 2 {
				first := args.Child(1)
				if isStringLike(first) {
					messageExpr = w.text(first)
				}
			}
		} else if expr.Type() == "identifier" || expr.Type() == "attribute" {
			exceptionType = w.dottedNameText(expr)
		}
		snippet = strings.TrimSpace(w.text(n))
	}

	w.raiseSites = append(w.raiseSites, pymodel.RaiseSite{
		File:          w.relPath,
		Line:          w.line(n),
		Function:      qualifiedFunction,
		ExceptionType: exceptionType,
		IsBareRaise:   isBare,
		Snippet:       snippet,
		MessageExpr:   messageExpr,
	})
}

func isStringLike(n *sitter.Node) bool {
	switch n.Type() {
	case "string", "concatenated_string":
		return true
	}
	return false
}

func (w *walker) handleTry(n *sitter.Node) {
	qualifiedFunction := w.qualifiedFunctionAtDepth()

	for i := 0; i < int(n.ChildCount()); i++ {
		clause := n.Child(i)
		if clause.Type() != "except_clause" {
			continue
		}

		var caughtTypes []string
		hasBare := true
		for j := 0; j < int(clause.ChildCount()); j++ {
			part := clause.Child(j)
			switch part.Type() {
			case "identifier", "attribute":
				hasBare = false
				if name := w.dottedNameText(part); name != "" {
					caughtTypes = append(caughtTypes, name)
				}
			case "tuple":
				hasBare = false
				for k := 0; k < int(part.ChildCount()); k++ {
					el := part.Child(k)
					if el.Type() == "identifier" || el.Type() == "attribute" {
						if name := w.dottedNameText(el); name != "" {
							caughtTypes = append(caughtTypes, name)
						}
					}
				}
			}
		}

		body := clause.ChildByFieldName("body")
		hasReraise := blockHasReraise(body)

		w.catchSites = append(w.catchSites, pymodel.CatchSite{
			File:          w.relPath,
			Line:          w.line(clause),
			Function:      qualifiedFunction,
			CaughtTypes:   caughtTypes,
			HasBareExcept: hasBare,
			HasReraise:    hasReraise,
		})
	}
}

func blockHasReraise(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if unwrapSimpleStatement(child, "raise_statement") != nil {
			return true
		}
	}
	return false
}

func (w *walker) handleCall(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	currentFunction := "<module>"
	if len(w.functionStack) > 0 {
		currentFunction = w.functionStack[len(w.functionStack)-1]
	}
	callerQualified := w.currentQualifiedName()

	var (
		calleeName      string
		calleeQualified string
		resolutionKind  = pymodel.ResolutionUnresolved
		isMethodCall    bool
	)

	switch fn.Type() {
	case "attribute":
		attrNode := fn.ChildByFieldName("attribute")
		calleeName = w.text(attrNode)
		isMethodCall = true
		base := fn.ChildByFieldName("object")

		if base != nil && base.Type() == "identifier" {
			baseName := w.text(base)
			switch {
			case baseName == "self" && len(w.classStack) > 0:
				calleeQualified = w.relPath + "::" + strings.Join(w.classStack, ".") + "." + calleeName
				resolutionKind = pymodel.ResolutionSelf
			case w.localTypes[baseName] != "":
				typeName := w.localTypes[baseName]
				if target, ok := w.importMap[typeName]; ok {
					calleeQualified = target + "." + calleeName
				} else {
					calleeQualified = w.relPath + "::" + typeName + "." + calleeName
				}
				resolutionKind = pymodel.ResolutionConstructor
			case w.importMap[baseName] != "":
				calleeQualified = w.importMap[baseName] + "." + calleeName
				resolutionKind = pymodel.ResolutionModuleAttribute
				isMethodCall = false
			}
		}
	case "identifier":
		calleeName = w.text(fn)
		if target, ok := w.importMap[calleeName]; ok {
			calleeQualified = target
			resolutionKind = pymodel.ResolutionImport
		}
	default:
		return
	}

	w.callSites = append(w.callSites, pymodel.CallSite{
		File:            w.file,
		Line:            w.line(n),
		CallerFunction:  currentFunction,
		CallerQualified: callerQualified,
		CalleeName:      calleeName,
		CalleeQualified: calleeQualified,
		IsMethodCall:    isMethodCall,
		ResolutionKind:  resolutionKind,
	})
}

// extractDependsCalls records a synthetic call-site edge for each
// `param: T = Depends(dep)` default value, mirroring FastAPI's dependency
// injection without actually executing the dependency graph.
func (w *walker) extractDependsCalls(params *sitter.Node, callerFunction, callerQualified string, line int) {
	for i := 0; i < int(params.ChildCount()); i++ {
		param := params.Child(i)
		var defaultExpr *sitter.Node
		switch param.Type() {
		case "default_parameter", "typed_default_parameter":
			defaultExpr = param.ChildByFieldName("value")
		default:
			continue
		}
		if defaultExpr == nil || defaultExpr.Type() != "call" {
			continue
		}
		fnNode := defaultExpr.ChildByFieldName("function")
		fnName := w.dottedNameText(fnNode)
		if fnName != "Depends" && fnName != "fastapi.Depends" {
			continue
		}
		args := defaultExpr.ChildByFieldName("arguments")
		if args == nil || args.ChildCount() < 2 {
			continue
		}
		depExpr := args.Child(1)
		depName := w.dottedNameText(depExpr)
		if depName == "" {
			continue
		}
		qualified, hasQualified := w.importMap[depName]
		w.callSites = append(w.callSites, pymodel.CallSite{
			File:            w.file,
			Line:            line,
			CallerFunction:  callerFunction,
			CallerQualified: callerQualified,
			CalleeName:      depName,
			CalleeQualified: mapOr(hasQualified, qualified),
			IsMethodCall:    false,
			ResolutionKind:  pymodel.ResolutionFastAPIDepends,
		})
	}
}

func mapOr(ok bool, v string) string {
	if ok {
		return v
	}
	return ""
}

func (w *walker) handleAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return
	}
	varName := w.text(left)

	if typeNode := n.ChildByFieldName("type"); typeNode != nil {
		if typeName := w.dottedNameText(stripTypeNode(typeNode)); typeName != "" {
			w.localTypes[varName] = typeName
		}
	}

	if right.Type() == "call" {
		fn := right.ChildByFieldName("function")
		if fn != nil && fn.Type() == "identifier" {
			w.localTypes[varName] = w.text(fn)
		}
	}
}
