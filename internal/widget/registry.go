// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package widget implements the Widget Registry: stable content-hashed
// widget identifiers, per-type value coercion/repair, and the explicit
// widget dependency graph used to propagate updates to dependent widgets.
package widget

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Widget is a single interactive control tracked by a session.
type Widget struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Value      any            `json:"value"`
	Label      string         `json:"label,omitempty"`
}

// Registry owns every widget created within a session, keyed by their
// content-hashed ID, plus the explicit dependency graph between them.
type Registry struct {
	mu      sync.Mutex
	widgets map[string]*Widget
	// deps[a] = set of widget IDs that depend on widget a; updating a
	// triggers re-evaluation of everything in deps[a].
	deps map[string]map[string]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		widgets: make(map[string]*Widget),
		deps:    make(map[string]map[string]bool),
	}
}

// Register computes the content hash of (type, properties, value) and
// either creates a new widget or, if a widget with that exact content
// already exists, reuses its ID — updating only the live value/property
// reference so re-executing an unchanged cell doesn't spawn a duplicate
// control.
func (r *Registry) Register(wType string, properties map[string]any, value any) (*Widget, error) {
	AutoFix(wType, properties, &value)

	id, err := contentHash(wType, properties, value)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.widgets[id]; ok {
		existing.Properties = properties
		existing.Value = value
		return existing, nil
	}
	w := &Widget{ID: id, Type: wType, Properties: properties, Value: value}
	r.widgets[id] = w
	return w, nil
}

// Get returns the widget with the given ID, if any.
func (r *Registry) Get(id string) (*Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[id]
	return w, ok
}

// Delete removes a widget and its dependency edges.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.widgets, id)
	delete(r.deps, id)
	for _, set := range r.deps {
		delete(set, id)
	}
}

// UpdateValue validates and auto-repairs raw against the widget's type,
// stores the result, and returns the set of dependent widget IDs that
// should be re-evaluated.
func (r *Registry) UpdateValue(id string, raw any) (*Widget, []string, error) {
	r.mu.Lock()
	w, ok := r.widgets[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("widget %s not found", id)
	}

	// A numeric widget given a value with the wrong shape entirely (e.g.
	// a client sends "abc" for a slider, or a 3-element list for a
	// range_slider) falls back to the widget's current value rather than
	// being coerced to a default like 0 — AutoFix's clamping/snapping
	// only kicks in for values that parse but fall outside the widget's
	// bounds or step.
	if !hasNumericShape(w.Type, raw) {
		raw = w.Value
	}

	AutoFix(w.Type, w.Properties, &raw)
	if err := Validate(w.Type, w.Properties, raw); err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	w.Value = raw

	dependents := make([]string, 0, len(r.deps[id]))
	for d := range r.deps[id] {
		dependents = append(dependents, d)
	}
	sort.Strings(dependents)
	r.mu.Unlock()
	return w, dependents, nil
}

// AddDependency records that dependent should be re-evaluated whenever
// dependsOn's value changes.
func (r *Registry) AddDependency(dependent, dependsOn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deps[dependsOn] == nil {
		r.deps[dependsOn] = make(map[string]bool)
	}
	r.deps[dependsOn][dependent] = true
}

// Dependents returns the widget IDs that depend on id.
func (r *Registry) Dependents(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deps[id]))
	for d := range r.deps[id] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// All returns every tracked widget, for session state dumps.
func (r *Registry) All() []*Widget {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Widget, 0, len(r.widgets))
	for _, w := range r.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// contentHash canonically encodes (type, properties, value) as JSON —
// encoding/json sorts map keys, giving the same deterministic ordering a
// sort_keys=True encode would — and hashes it with xxhash, truncating to
// 8 hex characters the way widget IDs are displayed throughout the RPC
// surface.
func contentHash(wType string, properties map[string]any, value any) (string, error) {
	payload := struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Value      any            `json:"value"`
	}{Type: wType, Properties: properties, Value: value}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("hash widget content: %w", err)
	}
	sum := xxhash.Sum64(encoded)
	digest := make([]byte, 8)
	for i := 0; i < 8; i++ {
		digest[i] = byte(sum >> (56 - 8*i))
	}
	return "widget_" + hex.EncodeToString(digest)[:8], nil
}
