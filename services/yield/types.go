// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package yield

import (
	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// =============================================================================
// Requests
// =============================================================================

// SimulateRequest is the request body for POST /v1/yield/simulate.
//
// The embedded config is prefilled with the server defaults before binding,
// so omitted fields keep their default values.
type SimulateRequest struct {
	model.ExperimentConfig

	// Seed fixes the experiment's generator. Omitted means a random seed.
	Seed *uint64 `json:"seed,omitempty"`
}

// MultiSimulateRequest is the request body for POST /v1/yield/multi_simulate.
type MultiSimulateRequest struct {
	model.ExperimentConfig

	// Seed is the base seed. Experiment i uses Seed + i.
	Seed *uint64 `json:"seed,omitempty"`

	// Count is the number of experiments. Default: 50.
	Count int `json:"count,omitempty"`
}

// StrategyParams carries the tunable strategy parameters.
type StrategyParams struct {
	// Nu is the phase split. Omitted means floor(n/2).
	Nu *int `json:"nu,omitempty"`

	// TKGRank is k for t(k)g. Default: 2.
	TKGRank int `json:"tkg_rank,omitempty"`

	// GKPeriod is k for g(k). Default: 2.
	GKPeriod int `json:"gk_period,omitempty"`
}

// OptimizeRequest is the request body for POST /v1/yield/optimize.
//
// Exactly one of Matrix and ExperimentID must be set.
type OptimizeRequest struct {
	StrategyParams

	// Matrix is the utility matrix S, row-major.
	Matrix [][]float64 `json:"matrix,omitempty"`

	// ExperimentID refers to a cached experiment whose S is used.
	ExperimentID string `json:"experiment_id,omitempty"`

	// MassPerBatch converts yield to mass. Default: 1000.
	MassPerBatch float64 `json:"mass_per_batch,omitempty"`

	// Seed fixes the random strategy. Omitted means a random seed.
	Seed *uint64 `json:"seed,omitempty"`
}

// MultiOptimizeRequest is the request body for POST /v1/yield/multi_optimize.
type MultiOptimizeRequest struct {
	StrategyParams

	// Matrices are the utility matrices, one trial each.
	Matrices [][][]float64 `json:"matrices"`

	// MassPerBatch converts yield to mass. Default: 1000.
	MassPerBatch float64 `json:"mass_per_batch,omitempty"`

	// Seed is the base seed of the random strategy.
	Seed *uint64 `json:"seed,omitempty"`

	// Workers bounds concurrent trials. Zero means the server default.
	Workers int `json:"workers,omitempty"`

	// Detail includes every trial in the response.
	Detail bool `json:"detail,omitempty"`
}

// ExperimentRequest is the request body for POST /v1/yield/experiment.
//
// Mass per batch is the config's M.
type ExperimentRequest struct {
	model.ExperimentConfig
	StrategyParams

	// Trials is the number of generated experiments. Default: 50.
	Trials int `json:"trials,omitempty"`

	// Workers bounds concurrent trials. Zero means the server default.
	Workers int `json:"workers,omitempty"`

	// Seed is the base seed. Trial i uses Seed + i.
	Seed *uint64 `json:"seed,omitempty"`

	// Detail includes every trial in the response.
	Detail bool `json:"detail,omitempty"`
}

// =============================================================================
// Responses
// =============================================================================

// SimulateResponse is one generated experiment.
type SimulateResponse struct {
	// ExperimentID is the cache id, usable with optimize. Empty when not cached.
	ExperimentID string `json:"experiment_id,omitempty"`

	// Seed reproduces the experiment.
	Seed uint64 `json:"seed"`

	// Config is the effective configuration after defaults and sugar scaling.
	Config model.ExperimentConfig `json:"config"`

	// Matrices holds B, C, L and S.
	Matrices experiment.Matrices `json:"matrices"`

	// Batches are the drawn batch properties.
	Batches []model.Batch `json:"batches"`
}

// MultiSimulateResponse is the response for POST /v1/yield/multi_simulate.
type MultiSimulateResponse struct {
	Experiments []SimulateResponse `json:"experiments"`
	Count       int                `json:"count"`
}

// OptimizeResponse is the response for POST /v1/yield/optimize.
type OptimizeResponse struct {
	// N is the order of the optimized matrix.
	N int `json:"n"`

	// Seed reproduces the random strategy.
	Seed uint64 `json:"seed"`

	// MassPerBatch is the mass used for final_mass.
	MassPerBatch float64 `json:"mass_per_batch"`

	// Strategies maps every successful strategy to its result.
	Strategies assign.Report `json:"strategies"`

	// Failures maps strategies that failed to their error message.
	Failures map[assign.StrategyID]string `json:"failures,omitempty"`
}

// MultiOptimizeResponse is the response for POST /v1/yield/multi_optimize.
type MultiOptimizeResponse struct {
	TotalMatrices int `json:"total_matrices"`
	*experiment.Report
}

// StrategiesResponse lists the available strategies.
type StrategiesResponse struct {
	Strategies []assign.StrategyInfo `json:"strategies"`
}

// HealthResponse is the response for GET /v1/yield/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/yield/ready.
type ReadyResponse struct {
	Ready             bool   `json:"ready"`
	CachedExperiments int    `json:"cached_experiments"`
	Error             string `json:"error,omitempty"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`

	// Errors lists every validation problem (optional).
	Errors []string `json:"errors,omitempty"`
}
