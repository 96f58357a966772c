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
	"fmt"
	"sync"
	"time"
)

// ErrSessionCapacity is returned by Manager.Start when the configured
// session cap has been reached.
var ErrSessionCapacity = fmt.Errorf("session manager: at capacity")

// ErrNotFound is returned by Manager.Get/End for an unknown or
// already-ended session id.
var ErrNotFound = fmt.Errorf("session manager: session not found")

// Manager owns every live Session and periodically sweeps the ones that
// have been idle past Timeout.
type Manager struct {
	cfg     Config
	max     int
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	done chan struct{}
	once sync.Once
}

// NewManager returns a Manager that enforces maxSessions concurrent
// sessions and sweeps sessions idle longer than timeout.
func NewManager(cfg Config, maxSessions int, timeout time.Duration) *Manager {
	return &Manager{
		cfg:      cfg,
		max:      maxSessions,
		timeout:  timeout,
		sessions: map[string]*Session{},
		done:     make(chan struct{}),
	}
}

// Start creates and registers a new session under id, replacing any
// prior session already registered under the same id (a client that
// calls StartSession twice for the same id is treated as asking for a
// fresh session, not an error — matching notebook kernels restarting in
// place on "run all").
func (m *Manager) Start(ctx context.Context, id, notebookPath, componentID string) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.max {
		if _, exists := m.sessions[id]; !exists {
			m.mu.Unlock()
			return nil, ErrSessionCapacity
		}
	}
	prior := m.sessions[id]
	m.mu.Unlock()

	if prior != nil {
		_ = prior.Close()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionEnded("restarted")
		}
	}

	s, err := Start(ctx, id, notebookPath, componentID, m.cfg)
	if s != nil {
		m.mu.Lock()
		m.sessions[id] = s
		m.mu.Unlock()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionStarted()
		}
	}
	return s, err
}

// Get returns the session registered under id. A session idle longer
// than the manager's timeout is closed and unregistered on lookup, and
// Get then reports ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.IdleSince() > m.timeout {
		delete(m.sessions, id)
		m.mu.Unlock()
		_ = s.Close()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionEnded("idle")
		}
		return nil, ErrNotFound
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End closes and unregisters the session under id.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionEnded("client")
	}
	return s.Close()
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepOnce closes and unregisters every session idle longer than the
// manager's timeout, returning the ids it swept.
func (m *Manager) SweepOnce() []string {
	m.mu.Lock()
	var stale []*Session
	var staleIDs []string
	for id, s := range m.sessions {
		if s.IdleSince() > m.timeout {
			stale = append(stale, s)
			staleIDs = append(staleIDs, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		_ = s.Close()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.SessionEnded("idle")
		}
	}
	return staleIDs
}

// StartSweeper runs SweepOnce on a ticker until Stop is called.
func (m *Manager) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.SweepOnce()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the sweeper goroutine started by StartSweeper.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.done) })
}
