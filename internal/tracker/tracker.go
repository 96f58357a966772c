// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracker implements the Cell Tracker: it attributes namespace
// bindings, imported modules, and widget ids to the cell that produced
// them, and computes which of those a cell may safely give up when it
// re-runs.
//
// Ownership is tracked at the name level rather than the value level —
// multiple cells may claim the same binding (e.g. both import the same
// module), and a name is only released once no tracked cell lists it
// anymore.
package tracker

import (
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/aleutian-labs/cellrt/internal/dialect"
)

// InitializationCellID is the reserved cell id used for the bindings and
// imports a session establishes from its notebook source before any
// client-submitted cell runs.
const InitializationCellID = "initialization"

// protectedNames are bindings that are never retracted by any cleanup
// path short of an explicit close(). They are either built in to the
// dialect runtime or reserved for the injected notebook handle.
var protectedNames = map[string]bool{
	"nb": true, "print": true, "globalThis": true, "undefined": true, "NaN": true, "Infinity": true,
	"Object": true, "Array": true, "Math": true, "JSON": true, "console": true,
	"Function": true, "eval": true, "String": true, "Number": true, "Boolean": true,
	"Date": true, "RegExp": true, "Error": true, "Promise": true, "Symbol": true,
	"Map": true, "Set": true, "WeakMap": true, "WeakSet": true, "Proxy": true, "Reflect": true,
}

// protectedModules are import paths a cell's cleanup never retracts,
// regardless of ownership.
var protectedModules = map[string]bool{
	"nb": true,
}

// commonAliases are import-bound names a cell typically re-establishes
// on every run rather than introducing fresh; cleanup treats a binding
// under one of these names more conservatively than an arbitrary name.
var commonAliases = map[string]bool{
	"pd": true, "np": true, "plt": true, "sns": true,
	"os": true, "json": true, "dt": true, "re": true,
}

func isProtectedName(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	return protectedNames[name]
}

func isProtectedModule(mod string) bool {
	if strings.HasPrefix(mod, "_") {
		return true
	}
	return protectedModules[mod]
}

// IsProtectedName reports whether name is a binding the tracker never
// retracts short of an explicit close() — exported so callers that build
// a display snapshot of session state can exclude the same names.
func IsProtectedName(name string) bool {
	return isProtectedName(name)
}

// CellRecord is the set of names a single cell currently owns (in whole
// or in part — see Tracker for the ownership bookkeeping) plus the
// snapshot captured just before its last execution.
type CellRecord struct {
	CellID   string
	Bindings map[string]bool
	Modules  map[string]bool
	Widgets  map[string]bool
	Snapshot map[string]goja.Value
}

func newRecord(cellID string) *CellRecord {
	return &CellRecord{
		CellID:   cellID,
		Bindings: map[string]bool{},
		Modules:  map[string]bool{},
		Widgets:  map[string]bool{},
	}
}

// Tracker owns every CellRecord in a session and the reverse indices
// needed to answer "does any other cell still claim this name".
type Tracker struct {
	mu            sync.Mutex
	records       map[string]*CellRecord
	bindingOwners map[string]map[string]bool
	moduleOwners  map[string]map[string]bool
	widgetOwners  map[string]map[string]bool
	firstCell     map[string]string
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		records:       map[string]*CellRecord{},
		bindingOwners: map[string]map[string]bool{},
		moduleOwners:  map[string]map[string]bool{},
		widgetOwners:  map[string]map[string]bool{},
		firstCell:     map[string]string{},
	}
}

func (t *Tracker) record(cellID string) *CellRecord {
	r, ok := t.records[cellID]
	if !ok {
		r = newRecord(cellID)
		t.records[cellID] = r
	}
	return r
}

// Snapshot captures namespace as the pre-execution state for cellID. It
// must be called before the cell body runs.
func (t *Tracker) Snapshot(cellID string, namespace map[string]goja.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(cellID)
	r.Snapshot = make(map[string]goja.Value, len(namespace))
	for k, v := range namespace {
		r.Snapshot[k] = v
	}
}

// Track diffs namespace against cellID's snapshot, attributes every new
// or changed binding to cellID, attributes the modules source imports,
// and attributes any binding the caller identifies as a widget (via
// isWidget) to cellID's widget set. It returns the bindings newly
// claimed by this run.
func (t *Tracker) Track(cellID string, namespace map[string]goja.Value, source string, isWidget func(goja.Value) (string, bool)) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.record(cellID)
	before := r.Snapshot
	var claimed []string

	for name, val := range namespace {
		if isProtectedName(name) {
			continue
		}
		prev, existed := before[name]
		if existed && sameValue(prev, val) {
			continue
		}
		r.Bindings[name] = true
		t.claimBinding(name, cellID)
		claimed = append(claimed, name)
		if _, ok := t.firstCell[name]; !ok {
			t.firstCell[name] = cellID
		}
		if isWidget != nil {
			if id, ok := isWidget(val); ok {
				r.Widgets[id] = true
				t.claimWidget(id, cellID)
			}
		}
	}

	parsed, err := dialect.Parse([]byte(source))
	if err == nil {
		defer parsed.Close()
		for _, mod := range parsed.ImportedModules() {
			if isProtectedModule(mod) {
				continue
			}
			r.Modules[mod] = true
			t.claimModule(mod, cellID)
		}
	}

	sort.Strings(claimed)
	return claimed
}

func (t *Tracker) claimBinding(name, cellID string) {
	set, ok := t.bindingOwners[name]
	if !ok {
		set = map[string]bool{}
		t.bindingOwners[name] = set
	}
	set[cellID] = true
}

func (t *Tracker) claimModule(mod, cellID string) {
	set, ok := t.moduleOwners[mod]
	if !ok {
		set = map[string]bool{}
		t.moduleOwners[mod] = set
	}
	set[cellID] = true
}

func (t *Tracker) claimWidget(id, cellID string) {
	set, ok := t.widgetOwners[id]
	if !ok {
		set = map[string]bool{}
		t.widgetOwners[id] = set
	}
	set[cellID] = true
}

// sameValue treats two goja values as unchanged if they are the same
// object reference, or — for primitives, where reference identity is
// meaningless — the same exported Go value.
func sameValue(a, b goja.Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if ao, ok := a.(*goja.Object); ok {
		if bo, ok := b.(*goja.Object); ok {
			return ao == bo
		}
		return false
	}
	return a.StrictEquals(b)
}

// CleanupBeforeRerun releases the bindings, modules, and widgets cellID
// currently owns, except those that: are protected, are still claimed by
// some other tracked cell, or look like an import alias this cell is
// about to re-establish anyway while some other cell still has live
// imports outstanding (a conservative guard against severing a
// cross-cell read dependency on a repeatedly-reassigned alias).
func (t *Tracker) CleanupBeforeRerun(cellID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup(cellID, false)
}

// ForceCleanup unconditionally releases cellID's bindings, modules, and
// widgets, bypassing ownership and alias checks. Only underscore-
// prefixed names remain protected.
func (t *Tracker) ForceCleanup(cellID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup(cellID, true)
}

func (t *Tracker) cleanup(cellID string, force bool) {
	r, ok := t.records[cellID]
	if !ok {
		return
	}

	for name := range r.Bindings {
		if !force && isProtectedName(name) {
			continue
		}
		if force && strings.HasPrefix(name, "_") {
			continue
		}
		if !force && t.otherOwners(t.bindingOwners, name, cellID) {
			continue
		}
		if !force && t.isAliasStillNeeded(name, cellID) {
			continue
		}
		delete(r.Bindings, name)
		t.releaseBinding(name, cellID)
	}

	for mod := range r.Modules {
		if !force && isProtectedModule(mod) {
			continue
		}
		if !force && t.otherOwners(t.moduleOwners, mod, cellID) {
			continue
		}
		delete(r.Modules, mod)
		t.releaseModule(mod, cellID)
	}

	for id := range r.Widgets {
		if !force && t.otherOwners(t.widgetOwners, id, cellID) {
			continue
		}
		delete(r.Widgets, id)
		t.releaseWidget(id, cellID)
	}

	if len(r.Bindings) == 0 && len(r.Modules) == 0 && len(r.Widgets) == 0 {
		r.Snapshot = nil
	}
}

func (t *Tracker) otherOwners(owners map[string]map[string]bool, key, cellID string) bool {
	set := owners[key]
	for owner := range set {
		if owner != cellID {
			return true
		}
	}
	return false
}

// isAliasStillNeeded reports whether name looks like a conventional
// import alias introduced by an importing cell, and some other tracked
// cell still has live imports — in which case releasing name now would
// sever that cell's read of it even though, by ownership count alone,
// this cell is the sole claimant.
func (t *Tracker) isAliasStillNeeded(name, cellID string) bool {
	looksLikeAlias := commonAliases[name]
	if !looksLikeAlias {
		if introducer, ok := t.firstCell[name]; ok {
			if rec, ok := t.records[introducer]; ok && len(rec.Modules) > 0 {
				looksLikeAlias = true
			}
		}
	}
	if !looksLikeAlias {
		return false
	}
	for otherID, rec := range t.records {
		if otherID == cellID {
			continue
		}
		if len(rec.Modules) > 0 {
			return true
		}
	}
	return false
}

func (t *Tracker) releaseBinding(name, cellID string) {
	if set, ok := t.bindingOwners[name]; ok {
		delete(set, cellID)
		if len(set) == 0 {
			delete(t.bindingOwners, name)
			delete(t.firstCell, name)
		}
	}
}

func (t *Tracker) releaseModule(mod, cellID string) {
	if set, ok := t.moduleOwners[mod]; ok {
		delete(set, cellID)
		if len(set) == 0 {
			delete(t.moduleOwners, mod)
		}
	}
}

func (t *Tracker) releaseWidget(id, cellID string) {
	if set, ok := t.widgetOwners[id]; ok {
		delete(set, cellID)
		if len(set) == 0 {
			delete(t.widgetOwners, id)
		}
	}
}

// ResolveInitializationConflicts evicts bindings and imports owned by
// InitializationCellID that the incoming cell's static analysis shows it
// will redefine, so a cell that reassigns a name the notebook's own
// source established does not appear to "leak" two owners for it.
func (t *Tracker) ResolveInitializationConflicts(incomingSource string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	init, ok := t.records[InitializationCellID]
	if !ok {
		return
	}

	parsed, err := dialect.Parse([]byte(incomingSource))
	if err != nil {
		return
	}
	defer parsed.Close()

	targets := map[string]bool{}
	for _, name := range parsed.AssignmentTargets() {
		targets[name] = true
	}
	mods := map[string]bool{}
	for _, mod := range parsed.ImportedModules() {
		mods[mod] = true
	}

	for name := range init.Bindings {
		if isProtectedName(name) {
			continue
		}
		if targets[name] {
			delete(init.Bindings, name)
			t.releaseBinding(name, InitializationCellID)
		}
	}
	for mod := range init.Modules {
		if isProtectedModule(mod) {
			continue
		}
		if mods[mod] {
			delete(init.Modules, mod)
			t.releaseModule(mod, InitializationCellID)
		}
	}
}

// Record returns cellID's current record, or nil if the cell has never
// been tracked.
func (t *Tracker) Record(cellID string) *CellRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[cellID]
	if !ok {
		return nil
	}
	cp := newRecord(cellID)
	for k := range r.Bindings {
		cp.Bindings[k] = true
	}
	for k := range r.Modules {
		cp.Modules[k] = true
	}
	for k := range r.Widgets {
		cp.Widgets[k] = true
	}
	return cp
}

// SnapshotCount returns the number of cells currently holding a
// pre-execution snapshot (invariant: only cells with at least one
// tracked binding/module/widget should; see cleanup's snapshot-discard
// step), for the session health report's memory-heaviness check.
func (t *Tracker) SnapshotCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.records {
		if r.Snapshot != nil {
			n++
		}
	}
	return n
}

// Owners returns the set of cell ids currently claiming name as a
// binding, for diagnostics and the session health report.
func (t *Tracker) Owners(name string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id := range t.bindingOwners[name] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cells returns every cell id the tracker currently has a record for.
func (t *Tracker) Cells() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
