// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the Session and Session Manager: a
// Session owns one tenant's goja runtime, scratch directory, cell
// tracker, and widget registry; the Manager owns the registry of live
// sessions and sweeps the ones that have gone idle.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/aleutian-labs/cellrt/internal/assets"
	"github.com/aleutian-labs/cellrt/internal/executor"
	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/metrics"
	"github.com/aleutian-labs/cellrt/internal/security"
	"github.com/aleutian-labs/cellrt/internal/tracker"
	"github.com/aleutian-labs/cellrt/internal/widget"
)

// Memory-heaviness thresholds used by Report; a session past any of
// these is flagged for operator attention, not evicted outright.
const (
	heavyCellCount     = 100
	heavyBindingCount  = 1000
	heavyGlobalCount   = 2000
	heavySnapshotCount = 50
)

// State is a session's full observable snapshot: the reflective text of
// every public namespace binding, plus a descriptor-level dump of every
// widget currently registered (so a client can read back the coerced
// value UpdateWidgetValue produced without re-executing a cell).
type State struct {
	Bindings map[string]string `json:"bindings"`
	Widgets  []*widget.Widget  `json:"widgets"`
}

// Session is one tenant's isolated notebook execution context.
type Session struct {
	ID          string
	ScratchDir  string
	vm          *goja.Runtime
	tracker     *tracker.Tracker
	registry    *widget.Registry
	executor    *executor.Executor
	fetcher     *assets.Fetcher
	componentID string
	metrics     *metrics.Metrics

	// execMu serialises every use of vm, tracker and registry: one cell
	// execution, widget update or state read at a time.
	execMu sync.Mutex

	mu        sync.Mutex
	lastTouch time.Time
	cellsRun  int
}

// Config bundles the pieces a new Session needs to execute cells.
type Config struct {
	BaseScratchDir string
	Validator      *security.Validator
	Fetcher        *assets.Fetcher  // may be nil when no object storage is configured
	Metrics        *metrics.Metrics // may be nil to disable instrumentation
	// OutputSummaryThresholdBytes caps how much numeric-array element
	// content the Output Marshaller emits in full before summarising it.
	// 0 or negative disables summarisation.
	OutputSummaryThresholdBytes int
}

// Start constructs a session, stages componentID's assets (best effort)
// if a fetcher is configured, resolves the notebook source (preferring
// the object store over notebookPath when componentID is set), and runs
// it as the reserved initialization cell. A notebook source that cannot
// be resolved removes the scratch directory and returns a nil Session.
// Otherwise it returns the Session and any
// initialization ERROR output's message as a non-nil error — the
// session is still usable after an initialization error, matching a
// notebook that starts with some cells already broken.
func Start(ctx context.Context, id, notebookPath, componentID string, cfg Config) (*Session, error) {
	scratchDir := filepath.Join(cfg.BaseScratchDir, sanitizeID(id)+"-"+uuid.NewString())
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("session %s: create scratch dir: %w", id, err)
	}

	vm := goja.New()
	if err := executor.InstallSDK(vm, scratchDir); err != nil {
		return nil, fmt.Errorf("session %s: install sdk: %w", id, err)
	}

	reg := widget.NewRegistry()
	s := &Session{
		ID:          id,
		ScratchDir:  scratchDir,
		vm:          vm,
		tracker:     tracker.New(),
		registry:    reg,
		executor:    executor.New(cfg.Validator, reg, scratchDir, cfg.OutputSummaryThresholdBytes),
		fetcher:     cfg.Fetcher,
		componentID: componentID,
		metrics:     cfg.Metrics,
		lastTouch:   time.Now(),
	}

	if s.fetcher != nil && componentID != "" {
		staged, _ := s.fetcher.ListAndStage(ctx, componentID, scratchDir)
		if len(staged.Skipped) > 0 {
			slog.Warn("asset staging skipped objects", "session", id, "component", componentID, "skipped", staged.Skipped)
		}
	}

	source, err := s.resolveSource(ctx, notebookPath, componentID)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("session %s: resolve notebook source: %w", id, err)
	}

	outputs, err := s.executor.Execute(s.vm, s.tracker, tracker.InitializationCellID, source)
	if err != nil {
		return s, fmt.Errorf("session %s: initialization failed: %w", id, err)
	}
	for _, out := range outputs {
		if out.Kind == marshal.KindError {
			return s, fmt.Errorf("session %s: initialization error: %s", id, out.Content)
		}
	}
	return s, nil
}

func (s *Session) resolveSource(ctx context.Context, notebookPath, componentID string) (string, error) {
	if s.fetcher != nil && componentID != "" {
		data, err := s.fetcher.ResolveSource(ctx, componentID)
		if err == nil {
			return string(data), nil
		}
	}
	if notebookPath == "" {
		return "", fmt.Errorf("no notebook path or resolvable component source")
	}
	data, err := os.ReadFile(notebookPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "session"
	}
	return string(out)
}

// Touch records activity, resetting the session's idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouch = time.Now()
}

// IdleSince reports how long it has been since the session was last
// touched.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastTouch)
}

// ExecuteCell runs source as cellID and returns its outputs alongside a
// display snapshot of every public binding currently in scope.
func (s *Session) ExecuteCell(cellID, source string) ([]marshal.Output, State, error) {
	s.Touch()
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.mu.Lock()
	s.cellsRun++
	s.mu.Unlock()

	start := time.Now()
	outputs, err := s.executor.Execute(s.vm, s.tracker, cellID, source)
	if s.metrics != nil {
		s.metrics.RecordCellExecution(cellOutcome(outputs, err), time.Since(start).Seconds())
	}
	if err != nil {
		return nil, State{}, err
	}
	return outputs, s.snapshotState(), nil
}

// cellOutcome classifies an Execute call for metrics: "internal" for a
// Go-level failure, "error"/"rejected" for an ERROR output (the
// security validator and a runtime exception both produce one, so the
// distinction is made on content, not Kind), "ok" otherwise.
func cellOutcome(outputs []marshal.Output, err error) string {
	if err != nil {
		return "internal"
	}
	for _, out := range outputs {
		if out.Kind == marshal.KindError {
			reason, _, _ := strings.Cut(out.Content, ":")
			switch security.Reason(reason) {
			case security.ReasonTooLong, security.ReasonSyntaxError, security.ReasonBlockedImport,
				security.ReasonNotAllowed, security.ReasonDynamicEval:
				return "rejected"
			}
			return "error"
		}
	}
	return "ok"
}

// GetState returns the session's current display snapshot.
func (s *Session) GetState() State {
	s.Touch()
	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.snapshotState()
}

// snapshotState pairs the namespace's reflective text with a descriptor
// dump of every tracked widget; callers hold execMu, and All() takes the
// registry's own lock.
func (s *Session) snapshotState() State {
	return State{
		Bindings: executor.DisplayState(s.vm),
		Widgets:  s.registry.All(),
	}
}

// UpdateWidgetValue parses rawValue (a client-supplied string: a JSON
// literal when the widget is numeric/boolean/structured, a bare string
// otherwise) and applies it through the Widget Registry, returning the
// ids of any dependent widgets that should be re-evaluated.
func (s *Session) UpdateWidgetValue(widgetID, rawValue string) ([]string, error) {
	s.Touch()
	s.execMu.Lock()
	defer s.execMu.Unlock()
	parsed := parseWidgetValue(rawValue)
	_, dependents, err := s.registry.UpdateValue(widgetID, parsed)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "rejected"
		}
		s.metrics.RecordWidgetUpdate(outcome)
	}
	if err != nil {
		return nil, err
	}
	return dependents, nil
}

// parseWidgetValue tries to interpret raw as a JSON literal (number,
// bool, array, object) and falls back to the raw string itself when it
// isn't valid JSON — the registry's per-type AutoFix then decides
// whether the result is usable at all.
func parseWidgetValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Close releases the session's scratch directory. The runtime and its
// bindings are left for garbage collection.
func (s *Session) Close() error {
	return os.RemoveAll(s.ScratchDir)
}

// Stats summarizes a session's resource footprint for Report.
type Stats struct {
	CellsRun      int
	TrackedCells  int
	Bindings      int
	GlobalNames   int
	Widgets       int
	LiveSnapshots int
	Heavy         bool
}

// Report computes Stats, including the Heavy flag from the fixed
// thresholds above. It only reads state: no tracker or registry entry
// is repaired or dropped.
func (s *Session) Report() Stats {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.mu.Lock()
	cellsRun := s.cellsRun
	s.mu.Unlock()

	cells := s.tracker.Cells()
	bindings, widgets := 0, 0
	for _, c := range cells {
		rec := s.tracker.Record(c)
		if rec == nil {
			continue
		}
		bindings += len(rec.Bindings)
		widgets += len(rec.Widgets)
	}
	globalNames := len(s.vm.GlobalObject().Keys())

	stats := Stats{
		CellsRun:      cellsRun,
		TrackedCells:  len(cells),
		Bindings:      bindings,
		GlobalNames:   globalNames,
		Widgets:       widgets,
		LiveSnapshots: s.tracker.SnapshotCount(),
	}
	stats.Heavy = stats.TrackedCells > heavyCellCount ||
		stats.Bindings > heavyBindingCount ||
		stats.GlobalNames > heavyGlobalCount ||
		stats.LiveSnapshots > heavySnapshotCount
	return stats
}
