// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"html"

	"github.com/dop251/goja"
)

// pendingFiguresGlobal is the side-channel array nb.plot.figure() appends
// to; the executor drains and clears it after every cell run so created
// figures surface as PLOT outputs even when a figure is never the cell's
// trailing expression or bound to a tracked name.
const pendingFiguresGlobal = "__pendingFigures"

// placeholderPNG is a 1x1 transparent PNG, standing in for real
// rendering: this runtime has no plotting backend, only the object
// protocol a real one would fill in.
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

// installSDK injects the "nb" notebook handle into vm's global scope:
// nb.ui.* widget constructors, nb.plot.figure(), nb.md() rich text, and
// nb.scratchDir (the session's private staging directory, standing in
// for the original runtime's os.chdir into that same directory).
func installSDK(vm *goja.Runtime, stdout, stderr *outputBuffer, scratchDir string) error {
	nb := vm.NewObject()
	_ = nb.Set("scratchDir", scratchDir)

	ui := vm.NewObject()
	_ = ui.Set("slider", widgetConstructor(vm, "slider"))
	_ = ui.Set("range_slider", widgetConstructor(vm, "range_slider"))
	_ = ui.Set("checkbox", widgetConstructor(vm, "checkbox"))
	_ = ui.Set("dropdown", widgetConstructor(vm, "dropdown"))
	_ = ui.Set("radio", widgetConstructor(vm, "radio"))
	_ = ui.Set("multiselect", widgetConstructor(vm, "multiselect"))
	_ = ui.Set("text", widgetConstructor(vm, "text"))
	_ = ui.Set("number", widgetConstructor(vm, "number"))
	_ = ui.Set("button", widgetConstructor(vm, "button"))
	_ = nb.Set("ui", ui)

	plot := vm.NewObject()
	_ = plot.Set("figure", newFigure(vm))
	_ = nb.Set("plot", plot)

	_ = nb.Set("md", func(call goja.FunctionCall) goja.Value {
		text := call.Argument(0).String()
		obj := vm.NewObject()
		rendered := "<p>" + html.EscapeString(text) + "</p>"
		_ = obj.Set("toHTML", func(goja.FunctionCall) goja.Value { return vm.ToValue(rendered) })
		return obj
	})

	_ = vm.Set("nb", nb)
	_ = vm.Set(pendingFiguresGlobal, vm.NewArray())

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		stdout.writeArgs(call.Arguments)
		return goja.Undefined()
	}
	errFn := func(call goja.FunctionCall) goja.Value {
		stderr.writeArgs(call.Arguments)
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("info", logFn)
	_ = console.Set("warn", errFn)
	_ = console.Set("error", errFn)
	_ = vm.Set("console", console)
	_ = vm.Set("print", logFn)

	return nil
}

// widgetConstructor returns a goja function that builds a plain object
// following the executor's widget marker convention: __widgetType,
// __widgetProps, __widgetValue. properties/initial value are whatever
// the call was given, matching each ui.* constructor's own signature
// (e.g. slider(min, max, value, step) vs checkbox(label, value)).
// range_slider(min, max, value, step) defaults value to [0, 100] when
// omitted, matching the widget registry's own malformed-value default.
func widgetConstructor(vm *goja.Runtime, wType string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		obj := vm.NewObject()
		_ = obj.Set("__widgetType", wType)

		props := vm.NewObject()
		var value goja.Value = goja.Undefined()

		switch wType {
		case "slider":
			setIfPresent(props, "min", call.Argument(0))
			setIfPresent(props, "max", call.Argument(1))
			setIfPresent(props, "step", call.Argument(3))
			if len(call.Arguments) > 2 {
				value = call.Argument(2)
			}
		case "range_slider":
			setIfPresent(props, "min", call.Argument(0))
			setIfPresent(props, "max", call.Argument(1))
			setIfPresent(props, "step", call.Argument(3))
			if len(call.Arguments) > 2 {
				value = call.Argument(2)
			} else {
				value = vm.NewArray(float64(0), float64(100))
			}
		case "number":
			setIfPresent(props, "min", call.Argument(0))
			setIfPresent(props, "max", call.Argument(1))
			setIfPresent(props, "step", call.Argument(3))
			if len(call.Arguments) > 2 {
				value = call.Argument(2)
			} else {
				value = vm.ToValue(float64(0))
			}
		case "checkbox":
			setIfPresent(props, "label", call.Argument(0))
			if len(call.Arguments) > 1 {
				value = call.Argument(1)
			} else {
				value = vm.ToValue(false)
			}
		case "dropdown", "radio":
			setIfPresent(props, "options", call.Argument(0))
			if len(call.Arguments) > 1 {
				value = call.Argument(1)
			}
		case "multiselect":
			setIfPresent(props, "options", call.Argument(0))
			if len(call.Arguments) > 1 {
				value = call.Argument(1)
			} else {
				value = vm.NewArray()
			}
		case "text":
			setIfPresent(props, "maxLength", call.Argument(0))
			if len(call.Arguments) > 1 {
				value = call.Argument(1)
			} else {
				value = vm.ToValue("")
			}
		case "button":
			if len(call.Arguments) > 0 {
				value = call.Argument(0)
			}
		}

		_ = obj.Set("__widgetProps", props)
		_ = obj.Set("__widgetValue", value)
		return obj
	}
}

func setIfPresent(obj *goja.Object, key string, v goja.Value) {
	if v == nil || goja.IsUndefined(v) {
		return
	}
	_ = obj.Set(key, v)
}

// newFigure returns nb.plot.figure(): an object exposing toPNGBase64
// (the output marshaller's rich-object hook) that also registers itself
// in the pending-figures side channel so the executor's figure scan
// picks it up even if it is never the cell's trailing expression.
func newFigure(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		obj := vm.NewObject()
		_ = obj.Set("toPNGBase64", func(goja.FunctionCall) goja.Value {
			return vm.ToValue(placeholderPNG)
		})

		pending := vm.Get(pendingFiguresGlobal)
		if arr, ok := pending.(*goja.Object); ok {
			if push, ok := goja.AssertFunction(arr.Get("push")); ok {
				_, _ = push(arr, obj)
			}
		}
		return obj
	}
}
