// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher watches Config.PolicyFile for changes and invokes onChange
// with the freshly parsed allowed/blocked import sets whenever the file is
// written. Callers typically swap these into a security.Validator.
type PolicyWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchPolicyFile starts watching path; onChange is invoked from a
// background goroutine. Call Stop to release the underlying watcher.
func WatchPolicyFile(path string, onChange func(allowed, blocked map[string]bool)) (*PolicyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	pw := &PolicyWatcher{watcher: w, done: make(chan struct{})}
	go pw.loop(path, onChange)
	return pw, nil
}

func (pw *PolicyWatcher) loop(path string, onChange func(allowed, blocked map[string]bool)) {
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p, err := loadPolicyFile(path)
			if err != nil {
				slog.Warn("policy file reload failed", "path", path, "error", err)
				continue
			}
			onChange(p.allowed, p.blocked)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("policy watcher error", "error", err)
		case <-pw.done:
			return
		}
	}
}

// Stop closes the watcher and stops the background goroutine.
func (pw *PolicyWatcher) Stop() error {
	close(pw.done)
	return pw.watcher.Close()
}
