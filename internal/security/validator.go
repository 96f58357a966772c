// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package security statically validates notebook cell source before it
// ever reaches the interpreter. It walks the cell's parsed AST looking
// for imports outside an allowed/blocked policy and direct calls to
// dynamic-evaluation builtins, mirroring the AST-walk approach the rest
// of this codebase uses for source scanning (see validate.ASTScanner in
// the sibling static-analysis tooling this package was split from).
package security

import (
	"fmt"
	"sync"

	"github.com/aleutian-labs/cellrt/internal/dialect"
)

// Reason enumerates why a cell failed validation.
type Reason string

const (
	ReasonTooLong      Reason = "code_too_long"
	ReasonSyntaxError  Reason = "syntax_error"
	ReasonBlockedImport Reason = "blocked_import"
	ReasonNotAllowed   Reason = "import_not_allowed"
	ReasonDynamicEval  Reason = "dynamic_eval"
)

// Violation describes a single validation failure.
type Violation struct {
	Reason  Reason
	Detail  string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// dynamicEvalCallees are dialect-level analogues of Python's eval/exec:
// builtins that would let a cell escape static analysis by constructing
// and running code at runtime.
var dynamicEvalCallees = map[string]bool{
	"eval":     true,
	"Function": true,
}

// Validator enforces the cell security policy: a maximum source length
// plus an allowed/blocked import policy. The policy can be swapped at
// runtime (see SetPolicy) so a config.PolicyWatcher can hot-reload it.
type Validator struct {
	mu            sync.RWMutex
	maxCodeLength int
	allowed       map[string]bool
	blocked       map[string]bool
}

// New builds a Validator with a fixed max code length and initial
// allowed/blocked import sets.
func New(maxCodeLength int, allowed, blocked map[string]bool) *Validator {
	return &Validator{
		maxCodeLength: maxCodeLength,
		allowed:       allowed,
		blocked:       blocked,
	}
}

// SetPolicy atomically replaces the allowed/blocked import sets.
func (v *Validator) SetPolicy(allowed, blocked map[string]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed = allowed
	v.blocked = blocked
}

// Validate runs the full decision ladder against source: length cap,
// syntax validity, then per-import allow/block resolution, then a scan
// for direct dynamic-evaluation calls. It returns the first violation
// found, or nil if source is clean.
func (v *Validator) Validate(source string) *Violation {
	if len(source) > v.maxCodeLength {
		return &Violation{Reason: ReasonTooLong, Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(source), v.maxCodeLength)}
	}

	parsed, err := dialect.Parse([]byte(source))
	if err != nil {
		return &Violation{Reason: ReasonSyntaxError, Detail: err.Error()}
	}
	defer parsed.Close()

	if parsed.HasError() {
		return &Violation{Reason: ReasonSyntaxError, Detail: "source does not parse"}
	}

	v.mu.RLock()
	allowed, blocked := v.allowed, v.blocked
	v.mu.RUnlock()

	for _, mod := range parsed.ImportedModules() {
		root := rootModule(mod)
		if allowed[root] {
			continue
		}
		if blocked[root] {
			return &Violation{Reason: ReasonBlockedImport, Detail: root}
		}
		return &Violation{Reason: ReasonNotAllowed, Detail: root}
	}

	for _, call := range parsed.CallCallees() {
		name := parsed.CalleeName(call)
		if dynamicEvalCallees[name] {
			return &Violation{Reason: ReasonDynamicEval, Detail: name}
		}
	}

	return nil
}

// rootModule reduces a module path like "lodash/fp" to its root package
// name, the unit the allow/block policy is expressed in terms of.
func rootModule(mod string) string {
	for i, r := range mod {
		if r == '/' {
			if i == 0 {
				continue // leading slash (absolute path), keep scanning
			}
			return mod[:i]
		}
	}
	return mod
}
