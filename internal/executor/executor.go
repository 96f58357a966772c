// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor implements the Cell Executor: given a cell's source,
// it validates, runs, and marshals the result against a session's shared
// goja runtime, and attributes the resulting side effects through the
// Cell Tracker.
package executor

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/aleutian-labs/cellrt/internal/dialect"
	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/security"
	"github.com/aleutian-labs/cellrt/internal/tracker"
	"github.com/aleutian-labs/cellrt/internal/widget"
)

// Executor runs cell bodies against a shared runtime.
type Executor struct {
	validator  *security.Validator
	marshaller *marshal.Marshaller
	registry   *widget.Registry
	scratchDir string
}

// New returns an Executor. reg is shared with the marshaller so widgets
// discovered via bindings and widgets discovered as expression results
// land in the same registry. scratchDir is surfaced to cell code as
// nb.scratchDir on every run. outputSummaryThresholdBytes bounds the
// marshaller's numeric-array element content before it is summarised.
func New(validator *security.Validator, reg *widget.Registry, scratchDir string, outputSummaryThresholdBytes int) *Executor {
	return &Executor{
		validator:  validator,
		marshaller: marshal.New(reg, outputSummaryThresholdBytes),
		registry:   reg,
		scratchDir: scratchDir,
	}
}

// InstallSDK injects the "nb" notebook handle and console/print
// built-ins into vm. Callers invoke this once when a session's runtime
// is constructed.
func InstallSDK(vm *goja.Runtime, scratchDir string) error {
	return installSDK(vm, &outputBuffer{}, &outputBuffer{}, scratchDir)
}

// Execute validates, runs, and marshals source as cellID against vm,
// tracking every resulting binding, import, and widget in tr. It always
// returns a usable Output slice — execution and marshalling failures are
// reported as ERROR/WARNING outputs, not Go errors. A non-nil error
// indicates an internal failure unrelated to the cell's own content.
func (e *Executor) Execute(vm *goja.Runtime, tr *tracker.Tracker, cellID, source string) ([]marshal.Output, error) {
	if violation := e.validator.Validate(source); violation != nil {
		return []marshal.Output{{
			Kind:     marshal.KindError,
			Content:  violation.Error(),
			DataType: marshal.DataText,
		}}, nil
	}

	if cellID != tracker.InitializationCellID {
		tr.ResolveInitializationConflicts(source)
	}
	tr.CleanupBeforeRerun(cellID)
	tr.Snapshot(cellID, namespace(vm))

	stdout, stderr := &outputBuffer{}, &outputBuffer{}
	if err := installSDK(vm, stdout, stderr, e.scratchDir); err != nil {
		return nil, err
	}

	exprResult, hadExpr, execErr := e.run(vm, source)

	isWidget := func(v goja.Value) (string, bool) {
		obj, ok := v.(*goja.Object)
		if !ok {
			return "", false
		}
		wt := obj.Get("__widgetType")
		if wt == nil || goja.IsUndefined(wt) {
			return "", false
		}
		props, _ := obj.Get("__widgetProps").Export().(map[string]any)
		value := obj.Get("__widgetValue").Export()
		w, err := e.registry.Register(wt.String(), props, value)
		if err != nil {
			return "", false
		}
		return w.ID, true
	}
	tr.Track(cellID, namespace(vm), source, isWidget)

	var outputs []marshal.Output
	if s := stdout.String(); s != "" {
		outputs = append(outputs, marshal.Output{Kind: marshal.KindStdout, Content: s, DataType: marshal.DataText})
	}
	if s := stderr.String(); s != "" {
		outputs = append(outputs, marshal.Output{Kind: marshal.KindStderr, Content: s, DataType: marshal.DataText})
	}

	if execErr != nil {
		outputs = append(outputs, marshal.Output{Kind: marshal.KindError, Content: execErr.Error(), DataType: marshal.DataText})
		return outputs, nil
	}

	seen := map[*goja.Object]bool{}
	if hadExpr {
		out, merr := e.marshaller.Marshal(exprResult, seen)
		if merr != nil {
			outputs = append(outputs, marshal.Output{
				Kind:     marshal.KindWarning,
				Content:  "failed to marshal expression result: " + merr.Error(),
				DataType: marshal.DataText,
			})
		} else {
			outputs = append(outputs, out)
		}
	}
	outputs = append(outputs, e.scanFigures(vm, seen)...)

	return outputs, nil
}

// run executes source, splitting off a bare trailing expression so its
// value can be captured and marshalled separately from the statements
// that precede it. hadExpr is false when the program has no such
// trailing expression (e.g. it ends in a declaration).
func (e *Executor) run(vm *goja.Runtime, source string) (result goja.Value, hadExpr bool, err error) {
	parsed, perr := dialect.Parse([]byte(source))
	if perr != nil || parsed.HasError() {
		if parsed != nil {
			parsed.Close()
		}
		_, err = vm.RunString(source)
		return nil, false, err
	}
	defer parsed.Close()

	start, ok := parsed.LastTopLevelExpression()
	if !ok {
		_, err = vm.RunString(source)
		return nil, false, err
	}

	prefix := source[:start]
	if strings.TrimSpace(prefix) != "" {
		if _, err = vm.RunString(prefix); err != nil {
			return nil, false, err
		}
	}
	result, err = vm.RunString(source[start:])
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// scanFigures drains the pending-figures side channel populated by
// nb.plot.figure(), marshalling every figure not already present in seen
// (a figure that was also the cell's trailing expression is already
// accounted for there) as a PLOT output.
func (e *Executor) scanFigures(vm *goja.Runtime, seen map[*goja.Object]bool) []marshal.Output {
	pending, ok := vm.Get(pendingFiguresGlobal).(*goja.Object)
	if !ok {
		return nil
	}
	lengthVal := pending.Get("length")
	if lengthVal == nil {
		return nil
	}
	length := int(lengthVal.ToInteger())

	var outputs []marshal.Output
	for i := 0; i < length; i++ {
		el := pending.Get(strconv.Itoa(i))
		obj, ok := el.(*goja.Object)
		if !ok || seen[obj] {
			continue
		}
		seen[obj] = true
		if out, err := e.marshaller.Marshal(obj, map[*goja.Object]bool{}); err == nil {
			outputs = append(outputs, out)
		}
	}
	return outputs
}

// namespace returns every own enumerable property of vm's global object.
func namespace(vm *goja.Runtime) map[string]goja.Value {
	global := vm.GlobalObject()
	keys := global.Keys()
	ns := make(map[string]goja.Value, len(keys))
	for _, k := range keys {
		ns[k] = global.Get(k)
	}
	return ns
}

// DisplayState returns a text representation of every public (non-
// protected) binding currently in vm's global scope, for the session
// state clients observe after a cell runs.
func DisplayState(vm *goja.Runtime) map[string]string {
	state := map[string]string{}
	for name, val := range namespace(vm) {
		if tracker.IsProtectedName(name) {
			continue
		}
		state[name] = reflectText(val)
	}
	return state
}

func reflectText(val goja.Value) (text string) {
	defer func() {
		if recover() != nil {
			text = "<not serializable>"
		}
	}()
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	return val.String()
}
