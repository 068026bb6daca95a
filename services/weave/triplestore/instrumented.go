// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triplestore

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.weave.triplestore")
	meter  = otel.Meter("aleutian.weave.triplestore")
)

var (
	opLatency   metric.Float64Histogram
	opTotal     metric.Int64Counter
	resultCount metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"weave_store_op_duration_seconds",
			metric.WithDescription("Duration of triplet store operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"weave_store_op_total",
			metric.WithDescription("Total triplet store operations by op and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultCount, err = meter.Int64Histogram(
			"weave_store_get_results",
			metric.WithDescription("Number of triplets returned per Get"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// Instrumented decorates a Store with OpenTelemetry spans and metrics.
type Instrumented struct {
	next    Store
	backend string
}

// Instrument wraps next. backend labels every span and metric.
func Instrument(next Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

// Unwrap returns the decorated store.
func (s *Instrumented) Unwrap() Store { return s.next }

func (s *Instrumented) Put(ctx context.Context, t Triplet) error {
	ctx, span := s.start(ctx, "Put", t.Subject, t.Predicate, t.Object)
	start := time.Now()
	err := s.next.Put(ctx, t)
	s.finish(ctx, span, "put", start, err)
	return err
}

func (s *Instrumented) PutColored(ctx context.Context, t Triplet, color string) error {
	ctx, span := s.start(ctx, "PutColored", t.Subject, t.Predicate, t.Object)
	span.SetAttributes(attribute.String("predicate.color", color))
	start := time.Now()
	err := s.next.PutColored(ctx, t, color)
	s.finish(ctx, span, "put_colored", start, err)
	return err
}

func (s *Instrumented) Colors(ctx context.Context) (map[string]string, error) {
	ctx, span := s.start(ctx, "Colors", "", "", "")
	start := time.Now()
	out, err := s.next.Colors(ctx)
	s.finish(ctx, span, "colors", start, err)
	return out, err
}

func (s *Instrumented) Del(ctx context.Context, t Triplet) error {
	ctx, span := s.start(ctx, "Del", t.Subject, t.Predicate, t.Object)
	start := time.Now()
	err := s.next.Del(ctx, t)
	s.finish(ctx, span, "del", start, err)
	return err
}

func (s *Instrumented) Get(ctx context.Context, p Pattern) ([]Triplet, error) {
	ctx, span := s.start(ctx, "Get", p.Subject, p.Predicate, p.Object)
	start := time.Now()
	out, err := s.next.Get(ctx, p)
	if err == nil {
		span.SetAttributes(attribute.Int("store.result_count", len(out)))
		if initMetrics() == nil {
			resultCount.Record(ctx, int64(len(out)),
				metric.WithAttributes(attribute.String("backend", s.backend)))
		}
	}
	s.finish(ctx, span, "get", start, err)
	return out, err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

func (s *Instrumented) start(ctx context.Context, op, subject, predicate, object string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "TripletStore."+op,
		trace.WithAttributes(
			attribute.String("store.backend", s.backend),
			attribute.String("triplet.subject", subject),
			attribute.String("triplet.predicate", predicate),
			attribute.String("triplet.object", object),
		),
	)
}

func (s *Instrumented) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", s.backend),
		attribute.String("op", op),
		attribute.Bool("success", err == nil),
	)
	opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	opTotal.Add(ctx, 1, attrs)
}
