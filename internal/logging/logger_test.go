// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StderrOnly(t *testing.T) {
	l, err := New(Config{Level: LevelInfo, Service: "test"})
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)
	assert.NoError(t, l.Close())
}

func TestNew_FileSink(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: LevelDebug, Service: "test", LogDir: dir})
	require.NoError(t, err)
	l.Info("hello", "k", "v")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "test_")
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "logs"), expandHome("~/logs"))
	assert.Equal(t, "/var/log/x", expandHome("/var/log/x"))
}
