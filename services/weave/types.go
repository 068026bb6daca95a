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
	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.3.0"

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// MutationResponse is returned by every successful mutation.
type MutationResponse struct {
	// Stats is the model size after the mutation.
	Stats graph.Stats `json:"stats"`

	// Warning is set when the mutation completed but something was off,
	// e.g. triplets were removed for a node the graph did not hold.
	Warning string `json:"warning,omitempty"`
}

// NodeRequest is the body of POST /v1/weave/nodes.
type NodeRequest struct {
	Hash  string         `json:"hash" binding:"required"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// TripletsResponse is the body of GET /v1/weave/triplets.
type TripletsResponse struct {
	Triplets []triplestore.Triplet `json:"triplets"`
	Count    int                   `json:"count"`
}

// MarkersResponse is the body of GET /v1/weave/markers.
type MarkersResponse struct {
	Markers []layout.Marker `json:"markers"`
}

// HealthResponse is the body of GET /v1/weave/health.
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Stats   graph.Stats `json:"stats"`
}

// StreamMessage wraps every websocket message.
type StreamMessage struct {
	// Type is "frame" or "closed".
	Type  string        `json:"type"`
	Frame *layout.Frame `json:"frame,omitempty"`
}
