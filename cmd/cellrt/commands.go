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
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aleutian-labs/cellrt/internal/assets"
	"github.com/aleutian-labs/cellrt/internal/config"
	"github.com/aleutian-labs/cellrt/internal/metrics"
	"github.com/aleutian-labs/cellrt/internal/obstrace"
	"github.com/aleutian-labs/cellrt/internal/rpc"
	"github.com/aleutian-labs/cellrt/internal/security"
	"github.com/aleutian-labs/cellrt/internal/session"
)

var scratchDir string

var rootCmd = &cobra.Command{
	Use:   "cellrt",
	Short: "A notebook cell execution runtime server",
	Long: `cellrt runs notebook cells in per-session JS runtimes, enforcing a
source-level security policy and tracking the bindings, imports, and
widgets each cell contributes so later cells see a consistent namespace.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP RPC surface",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().StringVar(&scratchDir, "scratch-dir", "/tmp/cellrt", "Base directory for per-session scratch directories")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg := config.Load()

	shutdownTracing, err := obstrace.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		return
	}
	defer shutdownTracing(ctx)

	registry := prometheus.NewRegistry()
	mx, err := metrics.New(metrics.Config{Registry: registry})
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		return
	}

	var fetcher *assets.Fetcher
	if cfg.GCSBucket != "" {
		store, err := assets.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			slog.Error("failed to initialize GCS asset store, continuing without it", "error", err)
		} else {
			fetcher = assets.New(store)
		}
	}

	validator := security.New(cfg.MaxCodeLength, cfg.AllowedImports, cfg.BlockedImports)

	if cfg.PolicyFile != "" {
		watcher, err := config.WatchPolicyFile(cfg.PolicyFile, validator.SetPolicy)
		if err != nil {
			slog.Warn("policy file hot-reload disabled", "path", cfg.PolicyFile, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	sessionCfg := session.Config{
		BaseScratchDir:              scratchDir,
		Validator:                   validator,
		Fetcher:                     fetcher,
		Metrics:                     mx,
		OutputSummaryThresholdBytes: cfg.OutputSummaryThresholdBytes,
	}
	mgr := session.NewManager(sessionCfg, cfg.MaxSessions, cfg.SessionTimeout)
	mgr.StartSweeper(cfg.SessionTimeout / 4)
	defer mgr.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	rpc.SetupRouter(router, mgr, mx, registry)

	slog.Info("starting cellrt", "port", cfg.Port, "tls", cfg.TLSEnabled)
	if cfg.TLSEnabled {
		err = router.RunTLS(":"+cfg.Port, cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = router.Run(":" + cfg.Port)
	}
	if err != nil {
		slog.Error("server exited", "error", err)
	}
}
