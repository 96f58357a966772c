// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assets implements the Asset Fetcher: it stages a notebook
// component's supporting files from object storage into a session's
// scratch directory before the component's source is executed.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrNotFound is returned by ObjectStore.Get when no object exists at the
// key, and wrapped by ResolveSource when no source candidate exists.
var ErrNotFound = errors.New("assets: object not found")

// ObjectStore is the subset of an object storage client the fetcher
// needs. It exists so tests can inject an in-memory fake instead of
// talking to a real bucket.
type ObjectStore interface {
	// List returns every object key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the bytes of the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// gcsStore adapts a *storage.Client to ObjectStore.
type gcsStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore dials a GCS client authenticated with the service account
// key at credentialsFile. It returns an error without contacting GCS if
// the key file does not exist, matching the fail-fast behavior of the
// upload-side client this package is descended from.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (ObjectStore, error) {
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("assets: credentials file not found at %s", credentialsFile)
		}
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("assets: failed to create GCS client: %w", err)
	}
	return &gcsStore{client: client, bucket: bucket}, nil
}

func (s *gcsStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return keys, err
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (s *gcsStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// componentPrefixes are the object-storage prefixes searched for a
// component's assets, most specific first. The second form exists for
// components that were staged before components got their own prefix.
func componentPrefixes(componentID string) []string {
	return []string{
		fmt.Sprintf("components/%s/assets/", componentID),
		fmt.Sprintf("marimo/components/%s/assets/", componentID),
	}
}

// sourceCandidates are the notebook source filenames tried, in order,
// when resolving a component's entry point.
func sourceCandidates(componentID string) []string {
	return []string{
		fmt.Sprintf("components/%s/component.py", componentID),
		fmt.Sprintf("components/%s/notebook.py", componentID),
		fmt.Sprintf("marimo/components/%s/component.py", componentID),
		fmt.Sprintf("marimo/components/%s/notebook.py", componentID),
	}
}

// Fetcher stages a component's notebook source and supporting assets
// from an ObjectStore into local scratch directories.
type Fetcher struct {
	store ObjectStore
}

// New returns a Fetcher backed by store.
func New(store ObjectStore) *Fetcher {
	return &Fetcher{store: store}
}

// ResolveSource returns the bytes of the first matching notebook source
// file for componentID, trying component.py then notebook.py under both
// the current and legacy prefixes.
func (f *Fetcher) ResolveSource(ctx context.Context, componentID string) ([]byte, error) {
	var lastErr error
	for _, candidate := range sourceCandidates(componentID) {
		data, err := f.store.Get(ctx, candidate)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("assets: no source found for component %q: %w", componentID, ErrNotFound)
}

// StageResult reports what ListAndStage downloaded and what it skipped.
type StageResult struct {
	Staged  []string
	Skipped []string
}

// ListAndStage enumerates componentID's asset objects under both the
// current and legacy prefixes, flattens each object's path to
// "{assetType}/{filename}" -> "{filename}" within scratchDir, and
// downloads it. A transport error on an individual object is recorded
// in Skipped rather than aborting the whole stage — assets are a
// best-effort convenience, not a precondition for cell execution.
func (f *Fetcher) ListAndStage(ctx context.Context, componentID, scratchDir string) (StageResult, error) {
	var result StageResult
	seen := map[string]bool{}

	for _, prefix := range componentPrefixes(componentID) {
		keys, err := f.store.List(ctx, prefix)
		if err != nil {
			result.Skipped = append(result.Skipped, prefix+" (list: "+err.Error()+")")
			continue
		}
		for _, key := range keys {
			name := flattenName(key, prefix)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			data, err := f.store.Get(ctx, key)
			if err != nil {
				result.Skipped = append(result.Skipped, key)
				continue
			}
			dest := filepath.Join(scratchDir, name)
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				result.Skipped = append(result.Skipped, key)
				continue
			}
			result.Staged = append(result.Staged, name)
		}
	}
	return result, nil
}

// flattenName drops prefix and any intermediate asset-type directory,
// keeping only the basename: "components/c1/assets/images/logo.png"
// under prefix "components/c1/assets/" becomes "logo.png".
func flattenName(key, prefix string) string {
	rest := strings.TrimPrefix(key, prefix)
	if rest == "" || strings.HasSuffix(key, "/") {
		return ""
	}
	return filepath.Base(rest)
}
