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
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/security"
	"github.com/aleutian-labs/cellrt/internal/tracker"
	"github.com/aleutian-labs/cellrt/internal/widget"
)

func newTestExecutor() (*Executor, *goja.Runtime, *tracker.Tracker) {
	return newTestExecutorWithThreshold(0)
}

func newTestExecutorWithThreshold(summaryThresholdBytes int) (*Executor, *goja.Runtime, *tracker.Tracker) {
	v := security.New(10_000, map[string]bool{"math": true, "json": true}, map[string]bool{"fs": true, "child_process": true})
	reg := widget.NewRegistry()
	vm := goja.New()
	_ = InstallSDK(vm, "/tmp/scratch")
	return New(v, reg, "/tmp/scratch", summaryThresholdBytes), vm, tracker.New()
}

func TestExecute_ExposesScratchDirOnNBHandle(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", "nb.scratchDir")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "/tmp/scratch", outputs[0].Content)
}

func TestExecute_SimpleExpression(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", "1 + 2")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, marshal.KindExpressionResult, outputs[0].Kind)
	assert.Equal(t, "3", outputs[0].Content)
}

func TestExecute_CrossCellPreservation(t *testing.T) {
	e, vm, tr := newTestExecutor()

	_, err := e.Execute(vm, tr, "cell1", "var y = 10;")
	require.NoError(t, err)

	_, err = e.Execute(vm, tr, "cell2", "var z = y + 1;")
	require.NoError(t, err)

	_, err = e.Execute(vm, tr, "cell1", "var y = 10;")
	require.NoError(t, err)

	rec := tr.Record("cell2")
	assert.True(t, rec.Bindings["z"], "cell2's z must survive cell1 re-running")
	assert.Equal(t, "11", vm.Get("z").String())
}

func TestExecute_SecurityRejectionProducesErrorOutput(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", `const fs = require("fs");`)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, marshal.KindError, outputs[0].Kind)

	rec := tr.Record("cell1")
	assert.Nil(t, rec, "a rejected cell must not register any bindings")
}

func TestExecute_RuntimeErrorStillKeepsPriorSideEffects(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", "var a = 1;\nthrow new Error('boom');")
	require.NoError(t, err)

	var errOut *marshal.Output
	for i := range outputs {
		if outputs[i].Kind == marshal.KindError {
			errOut = &outputs[i]
		}
	}
	require.NotNil(t, errOut)
	assert.Contains(t, errOut.Content, "boom")
	assert.Equal(t, "1", vm.Get("a").String())
}

func TestExecute_WidgetRegistrationStableAcrossReruns(t *testing.T) {
	e, vm, tr := newTestExecutor()
	src := "var s = nb.ui.slider(0, 10, 5);"

	_, err := e.Execute(vm, tr, "cell1", src)
	require.NoError(t, err)
	id1 := widgetIDFromBindings(t, vm, tr, "cell1")

	_, err = e.Execute(vm, tr, "cell1", src)
	require.NoError(t, err)
	id2 := widgetIDFromBindings(t, vm, tr, "cell1")

	assert.Equal(t, id1, id2)
}

func widgetIDFromBindings(t *testing.T, vm *goja.Runtime, tr *tracker.Tracker, cellID string) string {
	t.Helper()
	rec := tr.Record(cellID)
	require.Len(t, rec.Widgets, 1)
	for id := range rec.Widgets {
		return id
	}
	return ""
}

func TestExecute_PlotFigureProducesExactlyOnePlotOutput(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", "nb.plot.figure();")
	require.NoError(t, err)

	plots := 0
	for _, o := range outputs {
		if o.Kind == marshal.KindPlot {
			plots++
		}
	}
	assert.Equal(t, 1, plots)
}

func TestExecute_StdoutCaptured(t *testing.T) {
	e, vm, tr := newTestExecutor()
	outputs, err := e.Execute(vm, tr, "cell1", `console.log("hi");`)
	require.NoError(t, err)

	require.NotEmpty(t, outputs)
	assert.Equal(t, marshal.KindStdout, outputs[0].Kind)
	assert.Contains(t, outputs[0].Content, "hi")
}

func TestDisplayState_ExcludesProtectedNames(t *testing.T) {
	e, vm, tr := newTestExecutor()
	_, err := e.Execute(vm, tr, "cell1", "var visible = 42;\nvar _hidden = 1;")
	require.NoError(t, err)

	state := DisplayState(vm)
	assert.Equal(t, "42", state["visible"])
	assert.NotContains(t, state, "_hidden")
	assert.NotContains(t, state, "nb")
	assert.NotContains(t, state, "console")
}
