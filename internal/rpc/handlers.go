// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rpc

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/metrics"
	"github.com/aleutian-labs/cellrt/internal/obstrace"
	"github.com/aleutian-labs/cellrt/internal/session"
)

// HealthCheck reports liveness for load balancers and readiness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartSession handles POST /v1/sessions: constructs a session, runs
// its initialization cell, and returns the resulting display state; the
// initialization cell's outputs are not included in the response (its
// Outputs field stays empty). An initialization error is still reported with 200 +
// InitError set, mirroring Session.Start's "usable session despite a
// broken notebook" contract, rather than surfacing as a 4xx/5xx.
func StartSession(mgr *session.Manager, mx *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		ctx, span := obstrace.StartSessionSpan(c.Request.Context(), "start", req.SessionID)
		defer span.End()

		s, err := mgr.Start(ctx, req.SessionID, req.NotebookPath, req.ComponentID)
		if err != nil && s == nil {
			if mx != nil && !errors.Is(err, session.ErrSessionCapacity) {
				mx.AssetFetchErrors.Inc()
			}
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrSessionCapacity) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, ErrorResponse{Error: err.Error()})
			return
		}

		resp := StartSessionResponse{SessionID: req.SessionID, State: s.GetState()}
		if err != nil {
			resp.InitError = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ExecuteCell handles POST /v1/sessions/:id/cells.
func ExecuteCell(mgr *session.Manager, mx *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		var req ExecuteCellRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		s, err := mgr.Get(sessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}

		_, span := obstrace.StartCellSpan(c.Request.Context(), sessionID, req.CellID)
		defer span.End()

		outputs, state, err := s.ExecuteCell(req.CellID, req.Source)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		if mx != nil {
			recordRejectionIfPresent(mx, outputs)
		}
		c.JSON(http.StatusOK, ExecuteCellResponse{Outputs: outputs, State: state})
	}
}

// GetSessionState handles GET /v1/sessions/:id/state.
func GetSessionState(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := mgr.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, GetSessionStateResponse{State: s.GetState()})
	}
}

// UpdateWidgetValue handles PUT /v1/sessions/:id/widgets/:widgetId.
func UpdateWidgetValue(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateWidgetValueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		s, err := mgr.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}

		dependents, err := s.UpdateWidgetValue(c.Param("widgetId"), req.Value)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, UpdateWidgetValueResponse{Dependents: dependents})
	}
}

// EndSession handles DELETE /v1/sessions/:id.
func EndSession(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := mgr.End(id); err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, EndSessionResponse{Status: "ended", SessionID: id})
	}
}

// recordRejectionIfPresent classifies an ERROR output produced by the
// security validator (Content is "reason: detail", per
// security.Violation.Error()) and records it distinctly from a runtime
// exception, which Session.ExecuteCell already counts via
// Metrics.RecordCellExecution.
func recordRejectionIfPresent(mx *metrics.Metrics, outputs []marshal.Output) {
	for _, out := range outputs {
		if out.Kind != marshal.KindError {
			continue
		}
		reason, _, found := strings.Cut(out.Content, ":")
		if !found {
			continue
		}
		switch reason {
		case "code_too_long", "syntax_error", "blocked_import", "import_not_allowed", "dynamic_eval":
			mx.RecordSecurityRejection(reason)
		}
	}
}
