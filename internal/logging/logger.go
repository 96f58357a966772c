// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for the notebook execution
// runtime, built on log/slog.
//
// Default output is stderr in JSON. Callers that want a durable record of
// a long-running server process can additionally point Config.LogDir at a
// directory; the logger then writes `{service}_{date}.log` alongside
// stderr. Logger is safe for concurrent use.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level mirrors slog's severity ordering: Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	Level   Level
	Service string
	// LogDir, if set, enables a second JSON sink at
	// {LogDir}/{Service}_{YYYY-MM-DD}.log. Supports a leading "~".
	LogDir string
}

// Logger wraps *slog.Logger with an optional file sink that can be closed
// to flush the underlying file descriptor.
type Logger struct {
	*slog.Logger

	mu      sync.Mutex
	file    *os.File
	service string
}

// Default returns a Logger writing JSON to stderr at Info level.
func Default() *Logger {
	l, _ := New(Config{Level: LevelInfo, Service: "cellrt"})
	return l
}

// New builds a Logger from cfg. The returned close function (via Close)
// must be called to flush and release the log file, if one was opened.
func New(cfg Config) (*Logger, error) {
	writers := []io.Writer{os.Stderr}
	var file *os.File

	if cfg.LogDir != "" {
		dir := expandHome(cfg.LogDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := cfg.Service
		if name == "" {
			name = "cellrt"
		}
		path := filepath.Join(dir, name+"_"+time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
		writers = append(writers, f)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: cfg.Level.toSlog(),
	})
	return &Logger{
		Logger:  slog.New(handler),
		file:    file,
		service: cfg.Service,
	}, nil
}

// Close flushes and releases the file sink, if any. Safe to call more
// than once and safe to call on a Logger with no file sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// With returns a child Logger sharing the same file sink with additional
// structured attributes attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file, service: l.service}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
