// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the notebook execution runtime's process
// configuration from the environment, following the same
// os.Getenv-with-default pattern the rest of this codebase uses at its
// service entrypoints.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the runtime's full process configuration.
type Config struct {
	Port                        string
	MaxSessions                 int
	SessionTimeout              time.Duration
	MaxCodeLength               int
	GCSBucket                   string
	GCSProject                  string
	GCSCredentialsFile          string
	AllowedImports              map[string]bool
	BlockedImports              map[string]bool
	PolicyFile                  string
	OTLPEndpoint                string
	LogLevel                    string
	LogDir                      string
	TLSEnabled                  bool
	TLSCertFile                 string
	TLSKeyFile                  string
	OutputSummaryThresholdBytes int
}

var defaultAllowedImports = []string{
	"math", "statistics", "datetime", "json",
}

var defaultBlockedImports = []string{
	"fs", "child_process", "net", "os", "process", "vm",
}

// Load reads Config from the process environment, applying the same
// defaults the original notebook executor shipped with.
func Load() Config {
	cfg := Config{
		Port:                        getenv("NOTEBOOKRT_PORT", "8095"),
		MaxSessions:                 getenvInt("NOTEBOOKRT_MAX_SESSIONS", 100),
		SessionTimeout:              getenvMinutes("NOTEBOOKRT_SESSION_TIMEOUT_MINUTES", 240),
		MaxCodeLength:               getenvInt("NOTEBOOKRT_MAX_CODE_LENGTH", 25000),
		GCSBucket:                   os.Getenv("NOTEBOOKRT_GCS_BUCKET"),
		GCSProject:                  os.Getenv("NOTEBOOKRT_GCS_PROJECT"),
		GCSCredentialsFile:          os.Getenv("NOTEBOOKRT_GCS_CREDENTIALS_FILE"),
		AllowedImports:              toSet(getenvList("NOTEBOOKRT_ALLOWED_IMPORTS", defaultAllowedImports)),
		BlockedImports:              toSet(getenvList("NOTEBOOKRT_BLOCKED_IMPORTS", defaultBlockedImports)),
		PolicyFile:                  os.Getenv("NOTEBOOKRT_POLICY_FILE"),
		OTLPEndpoint:                os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:                    getenv("NOTEBOOKRT_LOG_LEVEL", "info"),
		LogDir:                      os.Getenv("NOTEBOOKRT_LOG_DIR"),
		TLSEnabled:                  getenvBool("NOTEBOOKRT_TLS_ENABLED", false),
		TLSCertFile:                 os.Getenv("NOTEBOOKRT_TLS_CERT_FILE"),
		TLSKeyFile:                  os.Getenv("NOTEBOOKRT_TLS_KEY_FILE"),
		OutputSummaryThresholdBytes: getenvInt("NOTEBOOKRT_OUTPUT_SUMMARY_THRESHOLD_BYTES", 4096),
	}
	if cfg.PolicyFile != "" {
		if p, err := loadPolicyFile(cfg.PolicyFile); err == nil {
			cfg.AllowedImports = p.allowed
			cfg.BlockedImports = p.blocked
		}
	}
	return cfg
}

// policyFileDoc is the on-disk shape of NOTEBOOKRT_POLICY_FILE.
type policyFileDoc struct {
	AllowedImports []string `json:"allowedImports"`
	BlockedImports []string `json:"blockedImports"`
}

type policy struct {
	allowed map[string]bool
	blocked map[string]bool
}

func loadPolicyFile(path string) (policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy{}, err
	}
	var doc policyFileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return policy{}, err
	}
	return policy{allowed: toSet(doc.AllowedImports), blocked: toSet(doc.BlockedImports)}, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			set[item] = true
		}
	}
	return set
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvMinutes(key string, defMinutes int) time.Duration {
	return time.Duration(getenvInt(key, defMinutes)) * time.Minute
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}
