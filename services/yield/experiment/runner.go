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
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// DefaultTrials is the trial count used when Options.Trials is zero.
const DefaultTrials = 50

var (
	// ErrNoTrials indicates a run with nothing to aggregate.
	ErrNoTrials = errors.New("no trials to run")

	// ErrTrialPanic wraps a recovered panic from a trial.
	ErrTrialPanic = errors.New("trial panicked")
)

// =============================================================================
// Types
// =============================================================================

// Options controls an aggregated run.
type Options struct {
	// Trials is the number of trials; 0 means DefaultTrials.
	Trials int

	// Workers bounds concurrent trials; 0 means GOMAXPROCS.
	Workers int

	// Seed is the base seed. Trial i uses Seed + i.
	Seed uint64

	// Detail keeps per-trial results in the report.
	Detail bool

	// Assign parameterizes every strategy run. Its Rand is replaced per trial.
	Assign assign.Options
}

// Summary is one strategy's aggregate over all trials.
type Summary struct {
	Strategy            assign.StrategyID `json:"strategy"`
	MeanYield           float64           `json:"yield"`
	MeanFinalMass       float64           `json:"final_mass"`
	SuccessCount        int               `json:"success_count"`
	DegradedCount       int               `json:"degraded_count,omitempty"`
	RelativeLossPercent *float64          `json:"relative_loss_percent,omitempty"`
}

// Trial is one trial's full outcome.
type Trial struct {
	Index    int                          `json:"trial"`
	Seed     uint64                       `json:"seed"`
	Results  assign.Report                `json:"results"`
	Failures map[assign.StrategyID]string `json:"failures,omitempty"`
	Error    string                       `json:"error,omitempty"`
}

// Report is the aggregate of a run.
type Report struct {
	TotalTrials int                           `json:"total_trials"`
	Seed        uint64                        `json:"seed"`
	Averages    map[assign.StrategyID]Summary `json:"averages"`
	AllResults  []Trial                       `json:"all_results,omitempty"`
}

// Ordered returns the summaries in strategy display order.
func (r *Report) Ordered() []Summary {
	out := make([]Summary, 0, len(r.Averages))
	for _, id := range assign.StrategyIDs() {
		if s, ok := r.Averages[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// trialFunc produces the utility matrix of trial i from its generator.
type trialFunc func(i int, rng *rand.Rand) (*mat.Dense, error)

// =============================================================================
// Runner
// =============================================================================

// Runner aggregates strategy results over independent trials.
//
// Thread Safety:
//
//	Safe for concurrent use. Every trial owns its generator and result slot;
//	the reduction runs after all trials finish.
type Runner struct {
	engine *assign.Engine
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger uses slog.Default().
func NewRunner(engine *assign.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, logger: logger}
}

// Run generates opts.Trials experiments from cfg and aggregates every
// strategy over them.
//
// Description:
//
//	Trial i draws its experiment and its random strategy from a generator
//	seeded with opts.Seed + i, so results do not depend on scheduling.
//	A strategy that fails in one trial is left out of that strategy's mean
//	for that trial only.
//
// Inputs:
//
//	ctx - Checked between trials; cancellation aborts the run.
//	cfg - Experiment config. Validated before any trial starts.
//	opts - Run options.
//
// Outputs:
//
//	*Report - Per-strategy means and, with opts.Detail, every trial.
//	error - *model.ValidationError or the context's error.
func (r *Runner) Run(ctx context.Context, cfg model.ExperimentConfig, opts Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Trials == 0 {
		opts.Trials = DefaultTrials
	}
	return r.run(ctx, "generated", opts, func(i int, rng *rand.Rand) (*mat.Dense, error) {
		exp, err := generate(cfg, rng, opts.Seed+uint64(i))
		if err != nil {
			return nil, err
		}
		return exp.S, nil
	})
}

// RunMatrices aggregates every strategy over the given utility matrices,
// one trial per matrix. opts.Trials is ignored.
func (r *Runner) RunMatrices(ctx context.Context, matrices []*mat.Dense, opts Options) (*Report, error) {
	opts.Trials = len(matrices)
	return r.run(ctx, "matrices", opts, func(i int, _ *rand.Rand) (*mat.Dense, error) {
		return matrices[i], nil
	})
}

func (r *Runner) run(ctx context.Context, source string, opts Options, produce trialFunc) (*Report, error) {
	if opts.Trials <= 0 {
		return nil, ErrNoTrials
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, span := startRunSpan(ctx, source, opts.Trials, workers)
	defer span.End()

	trials := make([]Trial, opts.Trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trials {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trials[i] = r.trial(gctx, i, opts, produce)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("experiment run: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("experiment run: %w", err)
	}

	report := reduce(trials)
	report.Seed = opts.Seed
	if opts.Detail {
		report.AllResults = trials
	}
	span.SetAttributes(attribute.Int("experiment.strategies", len(report.Averages)))
	return report, nil
}

// trial runs one trial. It never returns an error; failures are recorded
// on the Trial so other trials are unaffected.
func (r *Runner) trial(ctx context.Context, i int, opts Options, produce trialFunc) (t Trial) {
	start := time.Now()
	seed := opts.Seed + uint64(i)
	t = Trial{Index: i, Seed: seed}

	defer func() {
		if rec := recover(); rec != nil {
			t.Results = nil
			t.Error = fmt.Errorf("%w: %v", ErrTrialPanic, rec).Error()
			r.logger.Warn("trial panicked", "trial", i, "seed", seed, "panic", rec)
		}
		recordTrial(ctx, time.Since(start), t.Error == "")
	}()

	rng := model.NewRand(seed)
	s, err := produce(i, rng)
	if err != nil {
		t.Error = err.Error()
		r.logger.Warn("trial failed", "trial", i, "seed", seed, "error", err)
		return t
	}

	aopts := opts.Assign
	aopts.Rand = rng
	report, failures := r.engine.RunAll(s, aopts)
	t.Results = report
	for id, ferr := range failures {
		if t.Failures == nil {
			t.Failures = make(map[assign.StrategyID]string, len(failures))
		}
		t.Failures[id] = ferr.Error()
		recordStrategyFailure(ctx, id)
		r.logger.Warn("strategy failed", "trial", i, "strategy", id, "error", ferr)
	}
	for id, res := range report {
		if res.Degraded {
			recordDegraded(ctx, id)
		}
	}
	return t
}

// reduce folds trial results into per-strategy means.
func reduce(trials []Trial) *Report {
	yields := make(map[assign.StrategyID][]float64)
	masses := make(map[assign.StrategyID][]float64)
	degraded := make(map[assign.StrategyID]int)
	for _, t := range trials {
		for id, res := range t.Results {
			yields[id] = append(yields[id], res.Yield)
			masses[id] = append(masses[id], res.FinalMass)
			if res.Degraded {
				degraded[id]++
			}
		}
	}

	report := &Report{
		TotalTrials: len(trials),
		Averages:    make(map[assign.StrategyID]Summary, len(yields)),
	}
	for _, id := range assign.StrategyIDs() {
		sum := Summary{Strategy: id, SuccessCount: len(yields[id]), DegradedCount: degraded[id]}
		if sum.SuccessCount > 0 {
			sum.MeanYield = stat.Mean(yields[id], nil)
			sum.MeanFinalMass = stat.Mean(masses[id], nil)
		}
		report.Averages[id] = sum
	}

	opt := report.Averages[assign.Optimal]
	if opt.SuccessCount > 0 && opt.MeanYield > 0 {
		for id, sum := range report.Averages {
			if id == assign.Optimal || sum.SuccessCount == 0 {
				continue
			}
			rel := assign.RelativeLoss(opt.MeanYield, sum.MeanYield)
			sum.RelativeLossPercent = &rel
			report.Averages[id] = sum
		}
	}
	return report
}
