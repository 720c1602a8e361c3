// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the OpenTelemetry SDK for the yield service.
//
// Packages record spans and metrics through otel.Tracer and otel.Meter
// directly. This package only decides where they go: traces to OTLP or
// stdout, metrics to a Prometheus registry or stdout.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	providers, err := telemetry.Init(ctx, telemetry.DefaultConfig(), reg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer providers.Shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - YIELDSIM_ENV: environment name (default: development)
//
// # Thread Safety
//
// Init is called once at startup. Everything else is safe for concurrent use.
package telemetry
