// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.weave.engine")
	meter  = otel.Meter("aleutian.weave.engine")
)

var (
	opTotal       metric.Int64Counter
	opLatency     metric.Float64Histogram
	resyncLatency metric.Float64Histogram
	edgesDropped  metric.Int64Counter
	queueWait     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opTotal, err = meter.Int64Counter(
			"weave_engine_ops_total",
			metric.WithDescription("Engine operations by op and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opLatency, err = meter.Float64Histogram(
			"weave_engine_op_duration_seconds",
			metric.WithDescription("Duration of engine operations, queue wait excluded"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resyncLatency, err = meter.Float64Histogram(
			"weave_engine_resync_duration_seconds",
			metric.WithDescription("Duration of a full link rebuild from the store"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesDropped, err = meter.Int64Counter(
			"weave_engine_edges_dropped_total",
			metric.WithDescription("Stored triplets whose endpoints are not in the node index"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queueWait, err = meter.Float64Histogram(
			"weave_engine_queue_wait_seconds",
			metric.WithDescription("Time an operation waited in the engine queue"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// outcome classifies an operation result for metric labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "validation"
	case IsStoreFailure(err):
		return "store"
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func recordOp(ctx context.Context, op string, waited, ran time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome(err)),
	)
	opTotal.Add(ctx, 1, attrs)
	opLatency.Record(ctx, ran.Seconds(), attrs)
	queueWait.Record(ctx, waited.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

func recordResync(ctx context.Context, duration time.Duration, dropped int) {
	if initMetrics() != nil {
		return
	}
	resyncLatency.Record(ctx, duration.Seconds())
	if dropped > 0 {
		edgesDropped.Add(ctx, int64(dropped))
	}
}

func startOpSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+op, trace.WithAttributes(attribute.String("engine.op", op)))
}

func setResyncAttributes(span trace.Span, triplets, links, dropped int) {
	span.SetAttributes(
		attribute.Int("engine.triplet_count", triplets),
		attribute.Int("engine.link_count", links),
		attribute.Int("engine.dropped_count", dropped),
	)
}
