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
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Canonical property keys, shared across widget types: bounds via
// "min"/"max", the numeric snap increment via "step", text length via
// "maxLength", choices via "options".
const (
	propMin       = "min"
	propMax       = "max"
	propStep      = "step"
	propMaxLength = "maxLength"
	propOptions   = "options"
)

// defaultRangeSlider is the value a range_slider falls back to when its
// current value can't be read as a 2-element numeric pair.
var defaultRangeSlider = []any{float64(0), float64(100)}

// Validate reports an error if value is not legal for wType given its
// properties. Callers should normally call AutoFix first, which repairs
// most violations in place; Validate is the remaining hard check for
// values AutoFix cannot safely coerce (e.g. wrong option entirely, for
// types where guessing a replacement would be surprising).
func Validate(wType string, properties map[string]any, value any) error {
	switch wType {
	case "slider", "number":
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("widget %s: value must be numeric", wType)
		}
		min, max := bounds(properties)
		if f < min || f > max {
			return fmt.Errorf("widget %s: value %v out of bounds [%v, %v]", wType, f, min, max)
		}
	case "range_slider":
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf("widget range_slider: value must be a 2-element list")
		}
		min, max := bounds(properties)
		for _, v := range pair {
			f, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("widget range_slider: value must be numeric")
			}
			if f < min || f > max {
				return fmt.Errorf("widget range_slider: value %v out of bounds [%v, %v]", f, min, max)
			}
		}
	case "checkbox":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("widget checkbox: value must be boolean")
		}
	case "dropdown", "radio":
		opts := stringOptions(properties)
		if len(opts) > 0 && !containsAny(opts, value) {
			return fmt.Errorf("widget %s: value %v not among options", wType, value)
		}
	case "multiselect":
		opts := stringOptions(properties)
		values, ok := value.([]any)
		if !ok {
			return fmt.Errorf("widget multiselect: value must be a list")
		}
		if len(opts) > 0 {
			for _, v := range values {
				if !containsAny(opts, v) {
					return fmt.Errorf("widget multiselect: value %v not among options", v)
				}
			}
		}
	}
	return nil
}

// AutoFix repairs common out-of-range or mistyped widget values in
// place, the way a UI control clamps rather than rejects user input:
// sliders and numbers clamp to bounds and snap to step, range_sliders do
// the same per-endpoint and fall back to [0,100] when malformed,
// checkboxes coerce truthiness, text inputs truncate to maxLength, and
// dropdown/multiselect fall back to the first option (or an empty
// selection) when the supplied value isn't legal.
func AutoFix(wType string, properties map[string]any, value *any) {
	switch wType {
	case "slider", "number":
		f, ok := toFloat(*value)
		if !ok {
			f = 0
		}
		*value = clampAndSnap(f, properties)
	case "range_slider":
		pair, ok := (*value).([]any)
		if !ok || len(pair) != 2 {
			*value = append([]any{}, defaultRangeSlider...)
			return
		}
		fixed := make([]any, 2)
		for i, v := range pair {
			f, ok := toFloat(v)
			if !ok {
				*value = append([]any{}, defaultRangeSlider...)
				return
			}
			fixed[i] = clampAndSnap(f, properties)
		}
		*value = fixed
	case "checkbox":
		if _, ok := (*value).(bool); !ok {
			*value = truthy(*value)
		}
	case "dropdown", "radio":
		opts := stringOptions(properties)
		if len(opts) > 0 && !containsAny(opts, *value) {
			*value = opts[0]
		}
	case "multiselect":
		opts := stringOptions(properties)
		values, ok := (*value).([]any)
		if !ok {
			*value = []any{}
			return
		}
		if len(opts) == 0 {
			return
		}
		filtered := make([]any, 0, len(values))
		for _, v := range values {
			if containsAny(opts, v) {
				filtered = append(filtered, v)
			}
		}
		*value = filtered
	case "text":
		s, ok := (*value).(string)
		if !ok {
			return
		}
		if maxLen, ok := toFloat(properties[propMaxLength]); ok && len(s) > int(maxLen) {
			*value = s[:int(maxLen)]
		}
	}
}

// clampAndSnap clamps f to properties' min/max bounds, then snaps it to
// the nearest multiple of properties' step above min, if a positive step
// is set.
func clampAndSnap(f float64, properties map[string]any) float64 {
	min, max := bounds(properties)
	if f < min {
		f = min
	}
	if f > max {
		f = max
	}
	if step, ok := toFloat(properties[propStep]); ok && step > 0 {
		f = min + math.Round((f-min)/step)*step
		if f > max {
			f = max
		}
		if f < min {
			f = min
		}
	}
	return f
}

// hasNumericShape reports whether raw is even parseable as a value for
// wType's numeric kind: a single number for slider/number, a 2-element
// list of numbers for range_slider. Non-numeric widgets always report
// true since their coercion lives entirely in AutoFix/Validate.
func hasNumericShape(wType string, raw any) bool {
	switch wType {
	case "slider", "number":
		_, ok := toFloat(raw)
		return ok
	case "range_slider":
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return false
		}
		for _, v := range pair {
			if _, ok := toFloat(v); !ok {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func bounds(properties map[string]any) (min, max float64) {
	min, max = 0, 100
	if v, ok := toFloat(properties[propMin]); ok {
		min = v
	}
	if v, ok := toFloat(properties[propMax]); ok {
		max = v
	}
	return min, max
}

func stringOptions(properties map[string]any) []any {
	raw, ok := properties[propOptions]
	if !ok {
		return nil
	}
	opts, ok := raw.([]any)
	if !ok {
		return nil
	}
	return opts
}

func containsAny(opts []any, value any) bool {
	for _, o := range opts {
		if fmt.Sprint(o) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case string:
		return n != ""
	case float64:
		return n != 0
	}
	return true
}
