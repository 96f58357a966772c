// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/security"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BaseScratchDir: t.TempDir(),
		Validator:      security.New(10_000, map[string]bool{"math": true}, map[string]bool{"fs": true}),
	}
}

func writeNotebook(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notebook.js")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestStart_RunsInitializationSource(t *testing.T) {
	path := writeNotebook(t, "var greeting = 'hi';")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "hi", s.GetState().Bindings["greeting"])
}

func TestStart_InitializationErrorStillReturnsUsableSession(t *testing.T) {
	path := writeNotebook(t, "throw new Error('bad notebook');")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.Error(t, err)
	require.NotNil(t, s)
	defer s.Close()
}

func TestExecuteCell_ReturnsOutputsAndState(t *testing.T) {
	path := writeNotebook(t, "var y = 10;")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	outputs, state, err := s.ExecuteCell("cell1", "y + 1")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, marshal.KindExpressionResult, outputs[0].Kind)
	assert.Equal(t, "11", outputs[0].Content)
	assert.Equal(t, "10", state.Bindings["y"])
}

func TestUpdateWidgetValue_ClampsAndReportsDependents(t *testing.T) {
	path := writeNotebook(t, "")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.ExecuteCell("cell1", "var slider = nb.ui.slider(0, 10, 5);")
	require.NoError(t, err)

	rec := s.tracker.Record("cell1")
	require.Len(t, rec.Widgets, 1)
	var widgetID string
	for id := range rec.Widgets {
		widgetID = id
	}

	deps, err := s.UpdateWidgetValue(widgetID, "999")
	require.NoError(t, err)
	assert.Empty(t, deps)

	w, ok := s.registry.Get(widgetID)
	require.True(t, ok)
	assert.Equal(t, float64(10), w.Value)
}

func TestGetState_ReflectsCoercedWidgetValueAfterUpdate(t *testing.T) {
	path := writeNotebook(t, "")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.ExecuteCell("cell1", "var slider = nb.ui.slider(0, 10, 5);")
	require.NoError(t, err)

	rec := s.tracker.Record("cell1")
	require.Len(t, rec.Widgets, 1)
	var widgetID string
	for id := range rec.Widgets {
		widgetID = id
	}

	_, err = s.UpdateWidgetValue(widgetID, "999")
	require.NoError(t, err)

	state := s.GetState()
	require.Len(t, state.Widgets, 1)
	assert.Equal(t, widgetID, state.Widgets[0].ID)
	assert.Equal(t, float64(10), state.Widgets[0].Value)
}

func TestClose_RemovesScratchDir(t *testing.T) {
	path := writeNotebook(t, "")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)

	dir := s.ScratchDir
	require.NoError(t, s.Close())

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReport_FlagsHeavySession(t *testing.T) {
	path := writeNotebook(t, "")
	s, err := Start(context.Background(), "s1", path, "", testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	report := s.Report()
	assert.False(t, report.Heavy)
}
