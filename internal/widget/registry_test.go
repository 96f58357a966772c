// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_DedupesByContent(t *testing.T) {
	r := NewRegistry()
	props := map[string]any{"min": float64(0), "max": float64(10)}

	w1, err := r.Register("slider", props, float64(5))
	require.NoError(t, err)

	w2, err := r.Register("slider", props, float64(5))
	require.NoError(t, err)

	assert.Equal(t, w1.ID, w2.ID)
	assert.Len(t, r.All(), 1)
}

func TestRegister_DifferentValueDifferentID(t *testing.T) {
	r := NewRegistry()
	props := map[string]any{"min": float64(0), "max": float64(10)}

	w1, _ := r.Register("slider", props, float64(5))
	w2, _ := r.Register("slider", props, float64(6))

	assert.NotEqual(t, w1.ID, w2.ID)
}

func TestUpdateValue_ClampsAndTriggersDependents(t *testing.T) {
	r := NewRegistry()
	props := map[string]any{"min": float64(0), "max": float64(10)}
	w, _ := r.Register("slider", props, float64(5))

	other, _ := r.Register("slider", props, float64(1))
	r.AddDependency(other.ID, w.ID)

	updated, dependents, err := r.UpdateValue(w.ID, float64(999))
	require.NoError(t, err)
	assert.Equal(t, float64(10), updated.Value)
	assert.Equal(t, []string{other.ID}, dependents)
}

func TestUpdateValue_NonNumericFallsBackToPreviousValue(t *testing.T) {
	r := NewRegistry()
	props := map[string]any{"min": float64(0), "max": float64(10)}
	w, _ := r.Register("slider", props, float64(5))

	updated, _, err := r.UpdateValue(w.ID, "abc")
	require.NoError(t, err)
	assert.Equal(t, float64(5), updated.Value)
}

func TestUpdateValue_NumericStringClamped(t *testing.T) {
	r := NewRegistry()
	props := map[string]any{"min": float64(0), "max": float64(10)}
	w, _ := r.Register("slider", props, float64(5))

	updated, _, err := r.UpdateValue(w.ID, "15")
	require.NoError(t, err)
	assert.Equal(t, float64(10), updated.Value)
}

func TestUpdateValue_UnknownWidget(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.UpdateValue("widget_deadbeef", 1)
	assert.Error(t, err)
}

func TestAutoFix_DropdownFallsBackToFirstOption(t *testing.T) {
	props := map[string]any{"options": []any{"a", "b", "c"}}
	var v any = "nonexistent"
	AutoFix("dropdown", props, &v)
	assert.Equal(t, "a", v)
}

func TestAutoFix_CheckboxCoercesTruthiness(t *testing.T) {
	props := map[string]any{}
	var v any = "yes"
	AutoFix("checkbox", props, &v)
	assert.Equal(t, true, v)
}

func TestAutoFix_TextTruncates(t *testing.T) {
	props := map[string]any{"maxLength": float64(3)}
	var v any = "abcdef"
	AutoFix("text", props, &v)
	assert.Equal(t, "abc", v)
}

func TestValidate_MultiselectRejectsUnknownOption(t *testing.T) {
	props := map[string]any{"options": []any{"a", "b"}}
	err := Validate("multiselect", props, []any{"a", "z"})
	assert.Error(t, err)
}
