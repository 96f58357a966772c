// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rpc exposes the Session Manager over HTTP: one route per RPC
// surface operation, plus /healthz and /metrics.
package rpc

import (
	"github.com/go-playground/validator/v10"

	"github.com/aleutian-labs/cellrt/internal/marshal"
	"github.com/aleutian-labs/cellrt/internal/session"
)

var validate = validator.New()

// StartSessionRequest is the POST /v1/sessions body.
type StartSessionRequest struct {
	SessionID    string `json:"sessionId" validate:"required"`
	NotebookPath string `json:"notebookPath"`
	ComponentID  string `json:"componentId"`
}

// Validate runs struct-tag validation over the request.
func (r *StartSessionRequest) Validate() error {
	return validate.Struct(r)
}

// StartSessionResponse is returned after a session's initialization
// cell has run. The StartSession handler does not fill Outputs.
type StartSessionResponse struct {
	SessionID string           `json:"sessionId"`
	Outputs   []marshal.Output `json:"outputs"`
	State     session.State    `json:"state"`
	InitError string           `json:"initError,omitempty"`
}

// ExecuteCellRequest is the POST /v1/sessions/:id/cells body.
type ExecuteCellRequest struct {
	CellID string `json:"cellId" validate:"required"`
	Source string `json:"source" validate:"required"`
}

// Validate runs struct-tag validation over the request.
func (r *ExecuteCellRequest) Validate() error {
	return validate.Struct(r)
}

// ExecuteCellResponse carries a cell's outputs and the session's
// display state after it ran.
type ExecuteCellResponse struct {
	Outputs []marshal.Output `json:"outputs"`
	State   session.State    `json:"state"`
}

// GetSessionStateResponse carries a session's current display state.
type GetSessionStateResponse struct {
	State session.State `json:"state"`
}

// UpdateWidgetValueRequest is the PUT /v1/sessions/:id/widgets/:widgetId body.
type UpdateWidgetValueRequest struct {
	Value string `json:"value" validate:"required"`
}

// Validate runs struct-tag validation over the request.
func (r *UpdateWidgetValueRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateWidgetValueResponse carries the ids of dependent widgets the
// client should re-fetch after the update.
type UpdateWidgetValueResponse struct {
	Dependents []string `json:"dependents"`
}

// EndSessionResponse acknowledges a session end.
type EndSessionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// ErrorResponse is the uniform error body every handler returns on
// failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
