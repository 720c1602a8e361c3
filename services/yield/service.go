// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package yield exposes the degradation simulator and the sequencing
// strategies over HTTP.
//
// The service generates experiments (B, C, L and S matrices), runs every
// strategy over a utility matrix, and aggregates strategies over many
// trials. Generated experiments are cached so optimize can refer to one
// by id.
package yield

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/pkg/validation"
	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
	"github.com/AleutianAI/AleutianYield/services/yield/observability"
	"github.com/AleutianAI/AleutianYield/services/yield/store"
	"github.com/AleutianAI/AleutianYield/services/yield/telemetry"
)

// ServiceVersion is the yield service version.
const ServiceVersion = "0.1.0"

const tracerName = "aleutian.yield"

// DefaultCount is the number of experiments multi_simulate generates by default.
const DefaultCount = 50

// ServiceConfig configures the yield service.
type ServiceConfig struct {
	// Defaults fills experiment fields a request omits.
	Defaults model.ExperimentConfig

	// MaxTrials caps trials per experiment run and matrices per multi_optimize.
	// Default: 1000
	MaxTrials int

	// MaxCount caps experiments per multi_simulate.
	// Default: 200
	MaxCount int

	// Workers caps concurrent trials. Zero means GOMAXPROCS.
	Workers int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Defaults:  model.DefaultExperimentConfig(),
		MaxTrials: 1000,
		MaxCount:  200,
	}
}

// Service runs simulations and optimizations.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Reconfigure may be called while
//	requests are in flight; each request sees one consistent config.
type Service struct {
	mu      sync.RWMutex
	config  ServiceConfig
	engine  *assign.Engine
	runner  *experiment.Runner
	store   *store.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates the yield service.
//
// Inputs:
//
//	config - Service configuration.
//	st - Experiment cache. Nil disables caching.
//	logger - Logger. Nil uses slog.Default().
//
// Outputs:
//
//	*Service - The service, solving exactly with the Hungarian algorithm.
func NewService(config ServiceConfig, st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	engine := assign.NewEngine(assign.Hungarian{})
	return &Service{
		config: config,
		engine: engine,
		runner: experiment.NewRunner(engine, logger),
		store:  st,
		logger: logger,
	}
}

// WithMetrics sets the Prometheus metrics the service records to.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// WithEngine replaces the assignment engine, for a different solver.
func (s *Service) WithEngine(engine *assign.Engine) *Service {
	s.engine = engine
	s.runner = experiment.NewRunner(engine, s.logger)
	return s
}

// Reconfigure swaps the service configuration.
func (s *Service) Reconfigure(config ServiceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// Config returns the current configuration.
func (s *Service) Config() ServiceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Defaults returns the experiment defaults requests are prefilled with.
func (s *Service) Defaults() model.ExperimentConfig {
	return s.Config().Defaults
}

// =============================================================================
// Simulation
// =============================================================================

// Simulate generates and caches one experiment.
//
// Description:
//
//	Sugar bounds at or below 1 are read as fractions and scaled to percent.
//	A nil seed draws a random one, which the response reports.
//
// Outputs:
//
//	*SimulateResponse - The experiment and its cache id.
//	error - *model.ValidationError for an invalid config.
func (s *Service) Simulate(ctx context.Context, cfg model.ExperimentConfig, seed *uint64) (*SimulateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Simulate")
	defer span.End()

	exp, err := experiment.Generate(ctx, cfg.WithPercentSugar(), resolveSeed(seed))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := newSimulateResponse(exp)
	if s.store != nil {
		id, err := s.store.Put(exp)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("caching experiment: %w", err)
		}
		resp.ExperimentID = id
	}
	span.SetAttributes(attribute.String("experiment.id", resp.ExperimentID))
	return resp, nil
}

// MultiSimulate generates count experiments from one config. Experiment i
// uses seed + i. The experiments are not cached.
func (s *Service) MultiSimulate(ctx context.Context, cfg model.ExperimentConfig, count int, seed *uint64) (*MultiSimulateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.MultiSimulate")
	defer span.End()

	if count <= 0 {
		count = DefaultCount
	}
	if limit := s.Config().MaxCount; limit > 0 && count > limit {
		return nil, fmt.Errorf("%w: count %d > %d", ErrLimitExceeded, count, limit)
	}

	cfg = cfg.WithPercentSugar()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := resolveSeed(seed)
	resp := &MultiSimulateResponse{Experiments: make([]SimulateResponse, 0, count)}
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exp, err := experiment.Generate(ctx, cfg, base+uint64(i))
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("experiment %d: %w", i, err)
		}
		resp.Experiments = append(resp.Experiments, *newSimulateResponse(exp))
	}
	resp.Count = len(resp.Experiments)
	return resp, nil
}

// Experiment returns a cached experiment.
func (s *Service) Experiment(id string) (*SimulateResponse, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	exp, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	resp := newSimulateResponse(exp)
	resp.ExperimentID = id
	return resp, nil
}

// =============================================================================
// Optimization
// =============================================================================

// Optimize runs every strategy over one utility matrix.
//
// Description:
//
//	The matrix comes from the request or from a cached experiment. A
//	strategy that fails is reported in Failures; the others still run.
//	Optimal results served by the greedy fallback are flagged degraded.
//
// Outputs:
//
//	*OptimizeResponse - Every strategy's result.
//	error - Matrix, nu or lookup errors.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeResponse, error) {
	_, span := telemetry.StartSpan(ctx, tracerName, "Service.Optimize")
	defer span.End()

	m, err := s.resolveMatrix(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	mass, err := massPerBatch(req.MassPerBatch)
	if err != nil {
		return nil, err
	}
	n := model.Order(m)
	if err := checkNu(req.Nu, n); err != nil {
		return nil, err
	}

	seed := resolveSeed(req.Seed)
	opts := req.StrategyParams.options(mass)
	opts.Rand = model.NewRand(seed)

	report, failures := s.engine.RunAll(m, opts)
	span.SetAttributes(attribute.Int("matrix.order", n), attribute.Int("strategy.failures", len(failures)))

	resp := &OptimizeResponse{
		N:            n,
		Seed:         seed,
		MassPerBatch: mass,
		Strategies:   report,
	}
	if len(failures) > 0 {
		resp.Failures = make(map[assign.StrategyID]string, len(failures))
		for id, ferr := range failures {
			resp.Failures[id] = ferr.Error()
			s.logger.Warn("Strategy failed", "strategy", id, "n", n, "error", ferr)
		}
	}
	for id, res := range report {
		if s.metrics != nil {
			s.metrics.RecordYield(string(id), res.Yield)
		}
		if res.Degraded {
			s.logger.Warn("Exact solver unavailable, served greedy fallback", "strategy", id, "n", n)
			if s.metrics != nil {
				s.metrics.RecordDegraded()
			}
		}
	}
	return resp, nil
}

// MultiOptimize aggregates every strategy over the given matrices.
func (s *Service) MultiOptimize(ctx context.Context, req MultiOptimizeRequest) (*MultiOptimizeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.MultiOptimize")
	defer span.End()

	config := s.Config()
	if len(req.Matrices) == 0 {
		return nil, ErrNoMatrices
	}
	if config.MaxTrials > 0 && len(req.Matrices) > config.MaxTrials {
		return nil, fmt.Errorf("%w: %d matrices > %d", ErrLimitExceeded, len(req.Matrices), config.MaxTrials)
	}
	if err := validation.ValidateSquareAll(req.Matrices); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	mass, err := massPerBatch(req.MassPerBatch)
	if err != nil {
		return nil, err
	}

	matrices := make([]*mat.Dense, len(req.Matrices))
	for i, rows := range req.Matrices {
		if matrices[i], err = model.FromRows(rows); err != nil {
			return nil, fmt.Errorf("matrix %d: %w", i, err)
		}
		if err := checkNu(req.Nu, model.Order(matrices[i])); err != nil {
			return nil, fmt.Errorf("matrix %d: %w", i, err)
		}
	}

	report, err := s.runner.RunMatrices(ctx, matrices, experiment.Options{
		Workers: s.workers(config, req.Workers),
		Seed:    resolveSeed(req.Seed),
		Detail:  req.Detail,
		Assign:  req.StrategyParams.options(mass),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.recordReport(report)
	return &MultiOptimizeResponse{TotalMatrices: len(matrices), Report: report}, nil
}

// RunExperiment generates trials experiments from one config and aggregates
// every strategy over them.
func (s *Service) RunExperiment(ctx context.Context, req ExperimentRequest) (*experiment.Report, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.RunExperiment")
	defer span.End()

	config := s.Config()
	trials := req.Trials
	if trials <= 0 {
		trials = experiment.DefaultTrials
	}
	if config.MaxTrials > 0 && trials > config.MaxTrials {
		return nil, fmt.Errorf("%w: trials %d > %d", ErrLimitExceeded, trials, config.MaxTrials)
	}

	cfg := req.ExperimentConfig.WithPercentSugar()
	if cfg.N > 0 {
		if err := checkNu(req.Nu, cfg.N); err != nil {
			return nil, err
		}
	}
	report, err := s.runner.Run(ctx, cfg, experiment.Options{
		Trials:  trials,
		Workers: s.workers(config, req.Workers),
		Seed:    resolveSeed(req.Seed),
		Detail:  req.Detail,
		Assign:  req.StrategyParams.options(cfg.M),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.recordReport(report)
	return report, nil
}

// CachedExperiments returns the number of cached experiments.
func (s *Service) CachedExperiments() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	if err := s.store.Ping(); err != nil {
		return 0, err
	}
	return s.store.Len()
}

// DeleteExperiment evicts a cached experiment before its TTL.
func (s *Service) DeleteExperiment(id string) error {
	if s.store == nil {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Debug("Experiment evicted", "experiment_id", id)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Service) resolveMatrix(req OptimizeRequest) (*mat.Dense, error) {
	switch {
	case req.ExperimentID != "" && req.Matrix != nil:
		return nil, ErrAmbiguousMatrix
	case req.ExperimentID != "":
		if s.store == nil {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, req.ExperimentID)
		}
		exp, err := s.store.Get(req.ExperimentID)
		if err != nil {
			return nil, err
		}
		return exp.S, nil
	case req.Matrix != nil:
		return model.FromRows(req.Matrix)
	default:
		return nil, ErrMissingMatrix
	}
}

func (s *Service) workers(config ServiceConfig, requested int) int {
	if requested <= 0 || (config.Workers > 0 && requested > config.Workers) {
		return config.Workers
	}
	return requested
}

func (s *Service) recordReport(report *experiment.Report) {
	for id, sum := range report.Averages {
		if sum.DegradedCount > 0 {
			s.logger.Warn("Exact solver unavailable in some trials",
				"strategy", id, "degraded_trials", sum.DegradedCount)
		}
		if s.metrics == nil {
			continue
		}
		if sum.SuccessCount > 0 {
			s.metrics.RecordYield(string(id), sum.MeanYield)
		}
		s.metrics.DegradedTotal.Add(float64(sum.DegradedCount))
	}
}

func (p StrategyParams) options(mass float64) assign.Options {
	return assign.Options{
		Nu:           p.Nu,
		TKGRank:      p.TKGRank,
		GKPeriod:     p.GKPeriod,
		MassPerBatch: mass,
	}
}

// checkNu rejects a phase split outside [0, n] before any trial runs, so the
// two-phase strategies never report empty means.
func checkNu(nu *int, n int) error {
	if nu != nil && (*nu < 0 || *nu > n) {
		return fmt.Errorf("%w: nu=%d, n=%d", assign.ErrInvalidNu, *nu, n)
	}
	return nil
}

func massPerBatch(m float64) (float64, error) {
	switch {
	case m == 0:
		return model.DefaultMassPerBatch, nil
	case m < 0 || math.IsNaN(m) || math.IsInf(m, 0):
		return 0, fmt.Errorf("%w, got %v", ErrInvalidMass, m)
	default:
		return m, nil
	}
}

func resolveSeed(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64()
}

func newSimulateResponse(exp *experiment.Experiment) *SimulateResponse {
	return &SimulateResponse{
		Seed:     exp.Seed,
		Config:   exp.Config,
		Matrices: exp.Matrices(),
		Batches:  exp.Batches,
	}
}
