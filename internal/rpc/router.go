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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/aleutian-labs/cellrt/internal/metrics"
	"github.com/aleutian-labs/cellrt/internal/session"
)

// SetupRouter wires every RPC surface route onto router. gatherer
// feeds /metrics; mx may be nil to disable the counters handlers.go
// records directly (the otelgin middleware and Prometheus handler
// still work regardless).
func SetupRouter(router *gin.Engine, mgr *session.Manager, mx *metrics.Metrics, gatherer prometheus.Gatherer) {
	router.Use(otelgin.Middleware("cellrt"))

	router.GET("/healthz", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", StartSession(mgr, mx))
			sessions.DELETE("/:id", EndSession(mgr))
			sessions.GET("/:id/state", GetSessionState(mgr))
			sessions.POST("/:id/cells", ExecuteCell(mgr, mx))
			sessions.PUT("/:id/widgets/:widgetId", UpdateWidgetValue(mgr))
		}
	}
}
