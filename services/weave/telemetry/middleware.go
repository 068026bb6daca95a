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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GinMetrics returns gin middleware recording request count, duration,
// and in-flight requests. Tracing is handled separately by otelgin.
//
// Routes are labeled by their registered pattern (c.FullPath()), so
// "/v1/weave/nodes/:hash" is one series regardless of the hash. Requests
// that match no route are labeled "unmatched".
//
// Thread Safety: Safe for concurrent use.
func GinMetrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		method := attribute.String("http.method", c.Request.Method)

		m.HTTPActiveRequests.Add(ctx, 1, metric.WithAttributes(method))
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			method,
			attribute.String("http.route", route),
			attribute.String("http.status_code", strconv.Itoa(c.Writer.Status())),
		)
		m.HTTPActiveRequests.Add(ctx, -1, metric.WithAttributes(method))
		m.HTTPRequestsTotal.Add(ctx, 1, attrs)
		m.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
