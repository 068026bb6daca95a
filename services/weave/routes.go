// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weave

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianWeave/services/weave/telemetry"
)

// RegisterRoutes registers all weave routes with the router.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//	metrics - Prometheus handler for /metrics. nil skips the route.
//
// Endpoints:
//
//	POST   /v1/weave/triplets - Add a triplet
//	GET    /v1/weave/triplets - Exact-match triplet lookup
//	POST   /v1/weave/nodes - Add a node without edges
//	DELETE /v1/weave/nodes/:hash - Remove a node and its triplets
//	GET    /v1/weave/graph - Model snapshot
//	GET    /v1/weave/markers - Arrowhead markers
//	GET    /v1/weave/stream - Websocket layout frames
//	GET    /v1/weave/health - Health check
//	GET    /v1/weave/metrics - Prometheus metrics
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, metrics http.Handler) {
	weave := rg.Group("/weave")
	{
		weave.POST("/triplets", handlers.HandleAddTriplet)
		weave.GET("/triplets", handlers.HandleQueryTriplets)

		weave.POST("/nodes", handlers.HandleAddNode)
		weave.DELETE("/nodes/:hash", handlers.HandleRemoveNode)

		weave.GET("/graph", handlers.HandleGraph)
		weave.GET("/markers", handlers.HandleMarkers)
		weave.GET("/stream", handlers.HandleStream)

		weave.GET("/health", handlers.HandleHealth)
		if metrics != nil {
			weave.GET("/metrics", gin.WrapH(metrics))
		}
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the otelgin server spans.
	ServiceName string

	// Metrics records HTTP metrics. nil disables them.
	Metrics *telemetry.Metrics

	// MetricsHandler serves /v1/weave/metrics. nil skips the route.
	MetricsHandler http.Handler

	// Logger receives panics recovered by the router.
	Logger *slog.Logger
}

// NewRouter builds the gin engine with its middleware and registers the
// weave routes under /v1.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "weave"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Handler panic", slog.Any("panic", recovered), slog.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal error",
			Code:  CodeInternal,
		})
	}))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(telemetry.GinMetrics(cfg.Metrics))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers, cfg.MetricsHandler)
	return router
}
