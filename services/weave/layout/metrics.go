// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.weave.layout")
	meter  = otel.Meter("aleutian.weave.layout")
)

var (
	runTotal     metric.Int64Counter
	ticksPerRun  metric.Int64Histogram
	framesDrop   metric.Int64Counter
	metricsOnce  sync.Once
	metricsReady bool
)

func initMetrics() bool {
	metricsOnce.Do(func() {
		var err error
		if runTotal, err = meter.Int64Counter(
			"weave_layout_runs_total",
			metric.WithDescription("Layout runs by outcome (converged, max_ticks, cancelled)"),
		); err != nil {
			return
		}
		if ticksPerRun, err = meter.Int64Histogram(
			"weave_layout_ticks_per_run",
			metric.WithDescription("Solver iterations per layout run"),
		); err != nil {
			return
		}
		if framesDrop, err = meter.Int64Counter(
			"weave_layout_frames_dropped_total",
			metric.WithDescription("Frames not delivered because a subscriber was full"),
		); err != nil {
			return
		}
		metricsReady = true
	})
	return metricsReady
}

func recordRun(ctx context.Context, outcome string, ticks int) {
	if !initMetrics() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	runTotal.Add(ctx, 1, attrs)
	ticksPerRun.Record(ctx, int64(ticks), attrs)
}

func recordDrop(ctx context.Context) {
	if !initMetrics() {
		return
	}
	framesDrop.Add(ctx, 1)
}
