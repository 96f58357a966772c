// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dialect parses notebook cell source with tree-sitter's
// JavaScript grammar and exposes the small set of structural queries the
// security validator, cell tracker, and cell executor all need: the list
// of top-level statements, the modules a cell imports, and whether the
// cell's final statement is a bare expression whose value should become
// the cell's expression result.
package dialect

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

const (
	nodeProgram            = "program"
	nodeImportStatement     = "import_statement"
	nodeExpressionStatement = "expression_statement"
	nodeCallExpression      = "call_expression"
	nodeIdentifier          = "identifier"
	nodeString              = "string"
	nodeStringFragment      = "string_fragment"
	nodeVariableDeclarator  = "variable_declarator"
	nodeArguments           = "arguments"
)

// Parsed holds a parsed cell body and the tree it came from. Tree must be
// closed by the caller when done.
type Parsed struct {
	Source []byte
	Tree   *sitter.Tree
	Root   *sitter.Node
}

// Parse parses source as a JavaScript-dialect program. The caller must
// call Close when finished with the result.
func Parse(source []byte) (*Parsed, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(nil, nil, source)
	if err != nil {
		return nil, err
	}
	return &Parsed{Source: source, Tree: tree, Root: tree.RootNode()}, nil
}

// Close releases the underlying tree-sitter tree.
func (p *Parsed) Close() {
	if p.Tree != nil {
		p.Tree.Close()
	}
}

// HasError reports whether the parse produced an ERROR node, tree-sitter's
// signal of a syntax error.
func (p *Parsed) HasError() bool {
	return p.Root.HasError()
}

func (p *Parsed) text(n *sitter.Node) string {
	return string(p.Source[n.StartByte():n.EndByte()])
}

// TopLevelStatements returns the direct children of the program node.
func (p *Parsed) TopLevelStatements() []*sitter.Node {
	n := int(p.Root.ChildCount())
	stmts := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		stmts = append(stmts, p.Root.Child(i))
	}
	return stmts
}

// LastTopLevelExpression returns the byte offset at which the final
// top-level expression_statement begins, and true, if and only if the
// program's last statement is a bare expression (not a declaration,
// assignment-as-statement-only case is still treated as an expression
// statement here, matching the underlying grammar).
func (p *Parsed) LastTopLevelExpression() (startByte uint32, ok bool) {
	stmts := p.TopLevelStatements()
	for i := len(stmts) - 1; i >= 0; i-- {
		if stmts[i].IsNamed() {
			if stmts[i].Type() == nodeExpressionStatement {
				return stmts[i].StartByte(), true
			}
			return 0, false
		}
	}
	return 0, false
}

// ImportedModules walks the tree for ES `import ... from "mod"` statements
// and CommonJS `require("mod")` calls, returning the root module path of
// each (the string literal argument/source, as written).
func (p *Parsed) ImportedModules() []string {
	var mods []string
	seen := map[string]bool{}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case nodeImportStatement:
			if path := p.importPath(n); path != "" && !seen[path] {
				seen[path] = true
				mods = append(mods, path)
			}
		case nodeCallExpression:
			if path := p.requirePath(n); path != "" && !seen[path] {
				seen[path] = true
				mods = append(mods, path)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(p.Root)
	return mods
}

func (p *Parsed) importPath(n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == nodeString {
			return p.stringContent(c)
		}
	}
	return ""
}

func (p *Parsed) requirePath(call *sitter.Node) string {
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != nodeIdentifier || p.text(callee) != "require" {
		return ""
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		c := args.Child(i)
		if c.Type() == nodeString {
			return p.stringContent(c)
		}
	}
	return ""
}

func (p *Parsed) stringContent(n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == nodeStringFragment {
			return p.text(c)
		}
	}
	txt := p.text(n)
	if len(txt) >= 2 {
		return txt[1 : len(txt)-1]
	}
	return txt
}

// CallCallees returns every call_expression node in the program, member
// calls such as nb.ui.slider(...) included. Use CalleeName on a node to
// get the callee's name when it is a bare identifier. `new` expressions
// are not call_expression nodes and are not returned.
func (p *Parsed) CallCallees() []*sitter.Node {
	var calls []*sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == nodeCallExpression {
			calls = append(calls, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(p.Root)
	return calls
}

// CalleeName returns the plain identifier name of a call expression's
// callee, or "" if the callee is not a bare identifier (e.g. it is a
// member expression like mo.ui.slider(...)).
func (p *Parsed) CalleeName(call *sitter.Node) string {
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != nodeIdentifier {
		return ""
	}
	return p.text(callee)
}

// AssignmentTargets returns the top-level names a program assigns to:
// `let`/`const`/`var` declarators and bare `x = ...` expression
// statements. Nested targets (destructuring, member-expression targets)
// are not unpacked — callers that need exhaustive coverage should treat
// this as a best-effort hint, not a guarantee.
func (p *Parsed) AssignmentTargets() []string {
	var names []string
	for _, stmt := range p.TopLevelStatements() {
		switch stmt.Type() {
		case "lexical_declaration", "variable_declaration":
			for i := 0; i < int(stmt.ChildCount()); i++ {
				c := stmt.Child(i)
				if c.Type() != nodeVariableDeclarator {
					continue
				}
				name := c.ChildByFieldName("name")
				if name != nil && name.Type() == nodeIdentifier {
					names = append(names, p.text(name))
				}
			}
		case nodeExpressionStatement:
			if stmt.ChildCount() == 0 {
				continue
			}
			expr := stmt.Child(0)
			if expr.Type() != "assignment_expression" {
				continue
			}
			left := expr.ChildByFieldName("left")
			if left != nil && left.Type() == nodeIdentifier {
				names = append(names, p.text(left))
			}
		}
	}
	return names
}

// Text returns the exact source text spanned by n.
func (p *Parsed) Text(n *sitter.Node) string {
	return p.text(n)
}
