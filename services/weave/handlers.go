// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weave exposes a graph engine over HTTP.
//
// Mutations go through the engine and return the model size afterwards.
// Layout frames are streamed to websocket clients from the layout adapter.
package weave

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianWeave/services/weave/engine"
	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/telemetry"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

// FrameSource delivers layout frames to stream clients.
type FrameSource interface {
	Subscribe() (<-chan layout.Frame, func())
}

// MarkerLister lists the registered arrowhead markers.
type MarkerLister interface {
	Markers() []layout.Marker
}

// Handlers contains the HTTP handlers for the weave API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	engine  *engine.Engine
	frames  FrameSource
	markers MarkerLister
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithFrames enables GET /stream.
func WithFrames(f FrameSource) HandlerOption {
	return func(h *Handlers) { h.frames = f }
}

// WithMarkers enables GET /markers.
func WithMarkers(m MarkerLister) HandlerOption {
	return func(h *Handlers) { h.markers = m }
}

// WithMetrics records stream metrics.
func WithMetrics(m *telemetry.Metrics) HandlerOption {
	return func(h *Handlers) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandlers creates handlers over eng.
func NewHandlers(eng *engine.Engine, opts ...HandlerOption) *Handlers {
	h := &Handlers{engine: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleAddTriplet handles POST /v1/weave/triplets.
//
// Request Body:
//
//	engine.TripletRequest
//
// Response:
//
//	201 Created: MutationResponse
//	400 Bad Request: INVALID_REQUEST or INVALID_TRIPLET
//	500 Internal Server Error: STORE_FAILURE
func (h *Handlers) HandleAddTriplet(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAddTriplet")

	var req engine.TripletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	if err := h.engine.Apply(c.Request.Context(), req); err != nil {
		h.fail(c, logger, err, CodeInvalidTriplet)
		return
	}

	logger.Info("Triplet added",
		slog.String("subject", req.Subject),
		slog.String("predicate", req.Predicate),
		slog.String("object", req.Object))
	c.JSON(http.StatusCreated, MutationResponse{Stats: h.engine.Model().Stats()})
}

// HandleQueryTriplets handles GET /v1/weave/triplets.
//
// Query Parameters:
//
//	subject, predicate, object: exact-match filters (optional)
//
// Response:
//
//	200 OK: TripletsResponse
//	400 Bad Request: INVALID_PATTERN
//	500 Internal Server Error: STORE_FAILURE
func (h *Handlers) HandleQueryTriplets(c *gin.Context) {
	logger := h.requestLogger(c, "HandleQueryTriplets")

	var p triplestore.Pattern
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidPattern})
		return
	}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidPattern})
		return
	}

	triplets, err := h.engine.Query(c.Request.Context(), p)
	if err != nil {
		h.fail(c, logger, err, CodeInvalidPattern)
		return
	}
	if triplets == nil {
		triplets = []triplestore.Triplet{}
	}
	c.JSON(http.StatusOK, TripletsResponse{Triplets: triplets, Count: len(triplets)})
}

// HandleAddNode handles POST /v1/weave/nodes.
//
// Response:
//
//	201 Created: MutationResponse
//	400 Bad Request: INVALID_REQUEST or INVALID_NODE
func (h *Handlers) HandleAddNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAddNode")

	var req NodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	if err := h.engine.AddNode(c.Request.Context(), &graph.Node{Hash: req.Hash, Attrs: req.Attrs}); err != nil {
		h.fail(c, logger, err, CodeInvalidNode)
		return
	}
	c.JSON(http.StatusCreated, MutationResponse{Stats: h.engine.Model().Stats()})
}

// HandleRemoveNode handles DELETE /v1/weave/nodes/:hash.
//
// Description:
//
//	Deletes every triplet referencing the node and the node itself. When
//	triplets existed but the graph held no such node, the removal still
//	succeeds and the response carries a warning.
//
// Response:
//
//	200 OK: MutationResponse
//	404 Not Found: NOTHING_TO_REMOVE
//	500 Internal Server Error: STORE_FAILURE
func (h *Handlers) HandleRemoveNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRemoveNode")
	hash := c.Param("hash")

	err := h.engine.RemoveNode(c.Request.Context(), hash)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, MutationResponse{Stats: h.engine.Model().Stats()})
	case errors.Is(err, engine.ErrNodeNotFound):
		logger.Warn("Removed triplets of an unknown node", slog.String("hash", hash))
		c.JSON(http.StatusOK, MutationResponse{
			Stats:   h.engine.Model().Stats(),
			Warning: err.Error(),
		})
	default:
		h.fail(c, logger, err, CodeInvalidNode)
	}
}

// HandleGraph handles GET /v1/weave/graph.
//
// Response:
//
//	200 OK: graph.Snapshot
func (h *Handlers) HandleGraph(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Model().Snapshot())
}

// HandleMarkers handles GET /v1/weave/markers.
func (h *Handlers) HandleMarkers(c *gin.Context) {
	markers := []layout.Marker{}
	if h.markers != nil {
		markers = append(markers, h.markers.Markers()...)
	}
	c.JSON(http.StatusOK, MarkersResponse{Markers: markers})
}

// HandleHealth handles GET /v1/weave/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Stats:   h.engine.Model().Stats(),
	})
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error, invalidCode string) {
	status, code := classify(err, invalidCode)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", slog.String("code", code), slog.String("error", err.Error()))
	} else {
		logger.Info("Request rejected", slog.String("code", code), slog.String("error", err.Error()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	logger := telemetry.LoggerWithTrace(c.Request.Context(), h.logger)
	return logger.With(
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("handler", handler),
	)
}

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "weave.request_id"
)

// getOrCreateRequestID gets or creates a request ID. The first call for a
// request fixes the ID and echoes it in the response header.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDKey, requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

// requestIDMiddleware assigns the request ID before any handler runs, so
// every response carries it.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		getOrCreateRequestID(c)
		c.Next()
	}
}
