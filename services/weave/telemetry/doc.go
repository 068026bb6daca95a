// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry for the weave service.
//
// Spans and metrics are emitted through the otel global API by every
// package (engine, triplestore, layout, the HTTP surface). Init installs
// the providers those calls resolve to; without Init they are no-ops.
//
// # Exporters
//
// Traces: "otlp" (gRPC to OTLPEndpoint), "stdout", or "none".
// Metrics: "prometheus" (served by MetricsHandler), "stdout", or "none".
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: overrides the default trace exporter
//   - OTEL_METRICS_EXPORTER: overrides the default metric exporter
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - ALEUTIAN_ENV: environment name (default: development)
package telemetry
