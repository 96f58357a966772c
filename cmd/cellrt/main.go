// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"log/slog"

	"github.com/aleutian-labs/cellrt/internal/config"
	"github.com/aleutian-labs/cellrt/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	cfg := config.Load()
	logger, err := logging.New(logging.Config{
		Level:   parseLevel(cfg.LogLevel),
		Service: "cellrt",
		LogDir:  cfg.LogDir,
	})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	slog.SetDefault(logger.Logger)
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
