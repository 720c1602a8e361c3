// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator builds the decay-coefficient matrix B and the cumulative
// yield matrix C of an experiment.
//
// Rows are batches and columns are stages, both 0-based. B[i,j] is the
// coefficient applied on the transition into stage j, so column 0 holds the
// neutral coefficient 1.0.
package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// ErrShapeMismatch indicates B does not match the batch list.
var ErrShapeMismatch = errors.New("coefficient matrix shape does not match batches")

// Phase is the decay regime governing one stage transition.
type Phase int

const (
	// PhaseWilting lowers yield potential; coefficients lie in [Beta1, Beta2].
	PhaseWilting Phase = iota

	// PhaseRipening raises yield potential; coefficients lie in (1, BetaMax].
	PhaseRipening
)

// String returns the phase name.
func (p Phase) String() string {
	if p == PhaseRipening {
		return "ripening"
	}
	return "wilting"
}

// PhaseAt returns the phase governing the transition into stage j.
// Stages 1..V-1 ripen when ripening is enabled; every other stage wilts.
func PhaseAt(cfg model.ExperimentConfig, j int) Phase {
	v := cfg.RipeningStages()
	if v > 0 && j >= 1 && j <= v-1 {
		return PhaseRipening
	}
	return PhaseWilting
}

// Bounds returns the global coefficient bounds of a phase.
func Bounds(cfg model.ExperimentConfig, p Phase) (lo, hi float64) {
	if p == PhaseRipening {
		return 1 + model.RipeningEpsilon, cfg.EffectiveBetaMax()
	}
	return cfg.Beta1, cfg.Beta2
}

// Coefficients draws the decay-coefficient matrix B.
//
// Description:
//
//	For each batch i and stage j in [1, n-1] the coefficient is drawn
//	uniformly. Under the uniform distribution the draw uses the phase's
//	global bounds. Under the concentrated distribution it uses the batch's
//	own sub-range for that phase, falling back to the global bounds when the
//	batch has none. Column 0 is 1.0. With n <= 1 there are no transitions.
//
// Inputs:
//
//	cfg - Validated experiment config.
//	batches - Exactly cfg.N batches.
//	rng - Random source for every draw.
//
// Outputs:
//
//	*mat.Dense - n x n matrix B.
//	error - model.ErrBatchCountMismatch or model.ErrNilRand.
func Coefficients(cfg model.ExperimentConfig, batches []model.Batch, rng *rand.Rand) (*mat.Dense, error) {
	if rng == nil {
		return nil, fmt.Errorf("coefficients: %w", model.ErrNilRand)
	}
	n := cfg.N
	if len(batches) != n {
		return nil, fmt.Errorf("coefficients: %w: %d batches for %d stages", model.ErrBatchCountMismatch, len(batches), n)
	}
	if n == 0 {
		return nil, nil
	}

	concentrated := cfg.Distribution == model.DistributionConcentrated
	b := mat.NewDense(n, n, nil)
	for i, batch := range batches {
		b.Set(i, 0, 1)
		for j := 1; j < n; j++ {
			phase := PhaseAt(cfg, j)
			lo, hi := Bounds(cfg, phase)
			if concentrated {
				if sub := subRange(batch, phase); sub != nil {
					lo, hi = sub.Start, sub.End
				}
			}
			b.Set(i, j, model.Uniform(rng, lo, hi))
		}
	}
	return b, nil
}

func subRange(b model.Batch, p Phase) *model.SubRange {
	if p == PhaseRipening {
		return b.Ripening
	}
	return b.Wilting
}
