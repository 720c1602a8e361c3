// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package experiment generates experiments and aggregates strategy results
// over many independent trials.
//
// One experiment is batches plus the four matrices B, C, L and S derived
// from them. A seed fully determines an experiment: every draw goes through
// a generator created from it.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/services/yield/generator"
	"github.com/AleutianAI/AleutianYield/services/yield/loss"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// Experiment is one generated experiment.
//
// The matrices are computed once and treated as read-only afterwards.
type Experiment struct {
	Config  model.ExperimentConfig
	Seed    uint64
	Batches []model.Batch
	B       *mat.Dense
	C       *mat.Dense
	L       *mat.Dense
	S       *mat.Dense
}

// Matrices is the nested-array form of an experiment's matrices.
type Matrices struct {
	B [][]float64 `json:"B"`
	C [][]float64 `json:"C"`
	L [][]float64 `json:"L"`
	S [][]float64 `json:"S"`
}

type experimentJSON struct {
	Config   model.ExperimentConfig `json:"config"`
	Seed     uint64                 `json:"seed"`
	Batches  []model.Batch          `json:"batches"`
	Matrices Matrices               `json:"matrices"`
}

// Matrices returns the matrices as nested row-major slices.
func (e *Experiment) Matrices() Matrices {
	return Matrices{
		B: model.Rows(e.B),
		C: model.Rows(e.C),
		L: model.Rows(e.L),
		S: model.Rows(e.S),
	}
}

// MarshalJSON implements json.Marshaler.
func (e *Experiment) MarshalJSON() ([]byte, error) {
	return json.Marshal(experimentJSON{
		Config:   e.Config,
		Seed:     e.Seed,
		Batches:  e.Batches,
		Matrices: e.Matrices(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Experiment) UnmarshalJSON(data []byte) error {
	var w experimentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Experiment{Config: w.Config, Seed: w.Seed, Batches: w.Batches}
	for _, m := range []struct {
		dst  **mat.Dense
		rows [][]float64
		name string
	}{
		{&out.B, w.Matrices.B, "B"},
		{&out.C, w.Matrices.C, "C"},
		{&out.L, w.Matrices.L, "L"},
		{&out.S, w.Matrices.S, "S"},
	} {
		d, err := model.FromRows(m.rows)
		if err != nil {
			return fmt.Errorf("matrix %s: %w", m.name, err)
		}
		*m.dst = d
	}
	*e = out
	return nil
}

// Generate builds one experiment from cfg and seed.
//
// Description:
//
//	Draws the batches, then B, then derives C, L and S. When losses are
//	disabled L is all zeros and S equals C.
//
// Inputs:
//
//	ctx - Context for tracing.
//	cfg - Experiment config. Validated here.
//	seed - Seed of the experiment's random generator.
//
// Outputs:
//
//	*Experiment - The generated experiment.
//	error - *model.ValidationError for an invalid config.
func Generate(ctx context.Context, cfg model.ExperimentConfig, seed uint64) (*Experiment, error) {
	ctx, span := startGenerateSpan(ctx, cfg, seed)
	defer span.End()

	exp, err := generate(cfg, model.NewRand(seed), seed)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	recordGenerate(ctx, cfg.N)
	return exp, nil
}

func generate(cfg model.ExperimentConfig, rng *rand.Rand, seed uint64) (*Experiment, error) {
	batches, err := model.NewBatches(cfg, rng)
	if err != nil {
		return nil, err
	}
	b, err := generator.Coefficients(cfg, batches, rng)
	if err != nil {
		return nil, fmt.Errorf("generating coefficients: %w", err)
	}
	c, err := generator.States(batches, b)
	if err != nil {
		return nil, fmt.Errorf("generating states: %w", err)
	}

	l := loss.Zero(cfg.N)
	if cfg.UseLosses {
		l, err = loss.Losses(batches, c, cfg.N, cfg.GrowthBase)
		if err != nil {
			return nil, fmt.Errorf("computing losses: %w", err)
		}
	}
	s, err := loss.Utility(c, l)
	if err != nil {
		return nil, fmt.Errorf("computing utility: %w", err)
	}

	return &Experiment{
		Config:  cfg,
		Seed:    seed,
		Batches: batches,
		B:       b,
		C:       c,
		L:       l,
		S:       s,
	}, nil
}
