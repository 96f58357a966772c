// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ObjectStore for tests.
type fakeStore struct {
	objects map[string][]byte
	failGet map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failGet: map[string]bool{}}
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet[key] {
		return nil, assertErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

var assertErr = os.ErrClosed

func TestResolveSource_PrefersComponentPyOverNotebookPy(t *testing.T) {
	store := newFakeStore()
	store.objects["components/c1/notebook.py"] = []byte("fallback")
	store.objects["components/c1/component.py"] = []byte("primary")
	f := New(store)

	data, err := f.ResolveSource(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "primary", string(data))
}

func TestResolveSource_FallsBackToLegacyPrefix(t *testing.T) {
	store := newFakeStore()
	store.objects["marimo/components/c1/notebook.py"] = []byte("legacy")
	f := New(store)

	data, err := f.ResolveSource(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(data))
}

func TestResolveSource_NotFound(t *testing.T) {
	store := newFakeStore()
	f := New(store)

	_, err := f.ResolveSource(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndStage_FlattensAssetTypeDirectories(t *testing.T) {
	store := newFakeStore()
	store.objects["components/c1/assets/images/logo.png"] = []byte("png-bytes")
	store.objects["components/c1/assets/data/table.csv"] = []byte("csv-bytes")
	f := New(store)
	dir := t.TempDir()

	result, err := f.ListAndStage(context.Background(), "c1", dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"logo.png", "table.csv"}, result.Staged)
	assert.Empty(t, result.Skipped)

	data, err := os.ReadFile(filepath.Join(dir, "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestListAndStage_SkipsObjectsThatFailToDownload(t *testing.T) {
	store := newFakeStore()
	store.objects["components/c1/assets/images/logo.png"] = []byte("png-bytes")
	store.failGet["components/c1/assets/images/logo.png"] = true
	f := New(store)
	dir := t.TempDir()

	result, err := f.ListAndStage(context.Background(), "c1", dir)
	require.NoError(t, err)
	assert.Empty(t, result.Staged)
	assert.Contains(t, result.Skipped, "components/c1/assets/images/logo.png")
}

func TestListAndStage_DedupesAcrossPrefixes(t *testing.T) {
	store := newFakeStore()
	store.objects["components/c1/assets/logo.png"] = []byte("current")
	store.objects["marimo/components/c1/assets/logo.png"] = []byte("legacy")
	f := New(store)
	dir := t.TempDir()

	result, err := f.ListAndStage(context.Background(), "c1", dir)
	require.NoError(t, err)
	assert.Len(t, result.Staged, 1)
}
