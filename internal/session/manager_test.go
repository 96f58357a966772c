// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-labs/cellrt/internal/metrics"
)

func TestManager_StartGetEnd(t *testing.T) {
	path := writeNotebook(t, "var a = 1;")
	m := NewManager(testConfig(t), 10, time.Hour)

	s, err := m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)
	require.NotNil(t, s)

	got, err := m.Get("s1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.End("s1"))
	_, err = m.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_CapacityEnforced(t *testing.T) {
	path := writeNotebook(t, "")
	m := NewManager(testConfig(t), 1, time.Hour)

	_, err := m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "s2", path, "")
	assert.ErrorIs(t, err, ErrSessionCapacity)
}

func TestManager_RestartingSameIDReplacesSession(t *testing.T) {
	path := writeNotebook(t, "")
	m := NewManager(testConfig(t), 1, time.Hour)

	first, err := m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)

	second, err := m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, m.Count())
}

func TestManager_SweepOnceRemovesIdleSessions(t *testing.T) {
	path := writeNotebook(t, "")
	m := NewManager(testConfig(t), 10, time.Millisecond)

	_, err := m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	swept := m.SweepOnce()

	assert.Equal(t, []string{"s1"}, swept)
	assert.Equal(t, 0, m.Count())
}

func TestManager_EndUnknownSession(t *testing.T) {
	m := NewManager(testConfig(t), 10, time.Hour)
	err := m.End("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_RecordsSessionLifecycleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mx, err := metrics.New(metrics.Config{Registry: reg})
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Metrics = mx
	m := NewManager(cfg, 10, time.Hour)

	path := writeNotebook(t, "")
	_, err = m.Start(context.Background(), "s1", path, "")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(mx.ActiveSessions))

	require.NoError(t, m.End("s1"))
	assert.Equal(t, float64(0), testutil.ToFloat64(mx.ActiveSessions))
}
