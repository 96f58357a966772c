// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obstrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyEndpointStillInstallsUsableProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown(context.Background())

	ctx, span := StartCellSpan(context.Background(), "sess1", "cell1")
	require.NotNil(t, span)
	span.End()
	assert.NotNil(t, ctx)
}

func TestStartSessionSpan_ReturnsUsableSpan(t *testing.T) {
	shutdown, err := Init(context.Background(), "")
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := StartSessionSpan(context.Background(), "start", "sess1")
	require.NotNil(t, span)
	span.End()
}
