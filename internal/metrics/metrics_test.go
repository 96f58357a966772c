// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAgainstPrivateRegistryByDefault(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNew_FailsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{Registry: reg})
	require.NoError(t, err)

	_, err = New(Config{Registry: reg})
	assert.ErrorIs(t, err, ErrRegistrationFailed)
}

func TestSessionStartedAndEnded_TracksActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(Config{Registry: reg})
	require.NoError(t, err)

	m.SessionStarted()
	m.SessionStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions))

	m.SessionEnded("idle")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsEvicted))
}

func TestRecordCellExecution_IncrementsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(Config{Registry: reg})
	require.NoError(t, err)

	m.RecordCellExecution("ok", 0.01)
	m.RecordCellExecution("error", 0.02)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CellsExecutedTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CellsExecutedTotal.WithLabelValues("error")))
}

func TestRecordSecurityRejection_IncrementsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(Config{Registry: reg})
	require.NoError(t, err)

	m.RecordSecurityRejection("blocked_import")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SecurityRejections.WithLabelValues("blocked_import")))
}
