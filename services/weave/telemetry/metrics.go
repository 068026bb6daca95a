// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments of the HTTP and websocket surface.
// Engine, store, and layout metrics live with their packages.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// HTTPRequestsTotal counts requests by method, route, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks in-flight requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// StreamClients tracks connected frame stream clients.
	StreamClients metric.Int64UpDownCounter

	// StreamFramesTotal counts frames written to stream clients.
	StreamFramesTotal metric.Int64Counter
}

// NewMetrics registers every instrument with meter.
//
// Inputs:
//
//	meter - The OTel meter to register with.
//
// Outputs:
//
//	*Metrics - Ready instruments.
//	error - Non-nil if a registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"weave_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"weave_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"weave_http_active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	m.StreamClients, err = meter.Int64UpDownCounter(
		"weave_stream_clients",
		metric.WithDescription("Connected layout frame stream clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream_clients: %w", err)
	}

	m.StreamFramesTotal, err = meter.Int64Counter(
		"weave_stream_frames_total",
		metric.WithDescription("Layout frames written to stream clients"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream_frames_total: %w", err)
	}

	return m, nil
}
