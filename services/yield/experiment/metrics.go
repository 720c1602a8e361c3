// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// Package-level tracer and meter for experiment operations.
var (
	tracer = otel.Tracer("aleutian.yield.experiment")
	meter  = otel.Meter("aleutian.yield.experiment")
)

var (
	generateTotal    metric.Int64Counter
	trialLatency     metric.Float64Histogram
	trialTotal       metric.Int64Counter
	strategyFailures metric.Int64Counter
	degradedTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		generateTotal, err = meter.Int64Counter(
			"yield_experiments_generated_total",
			metric.WithDescription("Total number of generated experiments"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trialLatency, err = meter.Float64Histogram(
			"yield_trial_duration_seconds",
			metric.WithDescription("Duration of one aggregation trial"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trialTotal, err = meter.Int64Counter(
			"yield_trials_total",
			metric.WithDescription("Total number of aggregation trials"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		strategyFailures, err = meter.Int64Counter(
			"yield_strategy_failures_total",
			metric.WithDescription("Strategy runs that failed inside a trial"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		degradedTotal, err = meter.Int64Counter(
			"yield_degraded_solves_total",
			metric.WithDescription("Exact strategy runs that fell back to greedy"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startGenerateSpan(ctx context.Context, cfg model.ExperimentConfig, seed uint64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "experiment.Generate",
		trace.WithAttributes(
			attribute.Int("experiment.n", cfg.N),
			attribute.String("experiment.distribution", string(cfg.Distribution)),
			attribute.Bool("experiment.ripening", cfg.EnableRipening),
			attribute.Int64("experiment.seed", int64(seed)),
		),
	)
}

func startRunSpan(ctx context.Context, source string, trials, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "experiment.Runner.Run",
		trace.WithAttributes(
			attribute.String("experiment.source", source),
			attribute.Int("experiment.trials", trials),
			attribute.Int("experiment.workers", workers),
		),
	)
}

func recordGenerate(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	generateTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("n", n)))
}

func recordTrial(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	trialLatency.Record(ctx, duration.Seconds(), attrs)
	trialTotal.Add(ctx, 1, attrs)
}

func recordStrategyFailure(ctx context.Context, id assign.StrategyID) {
	if err := initMetrics(); err != nil {
		return
	}
	strategyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(id))))
}

func recordDegraded(ctx context.Context, id assign.StrategyID) {
	if err := initMetrics(); err != nil {
		return
	}
	degradedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(id))))
}
