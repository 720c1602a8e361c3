// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// SubRange is a narrow per-batch coefficient window inside a phase's global bounds.
type SubRange struct {
	Delta float64 `json:"delta"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Batch is one unit of perishable material tracked through every stage.
//
// Wilting and Ripening are set only under the concentrated distribution and
// are never mutated after NewBatches returns.
type Batch struct {
	Index        int       `json:"index"`
	InitialSugar float64   `json:"initial_sugar"`
	K            float64   `json:"k"`
	Na           float64   `json:"na"`
	N            float64   `json:"n_content"`
	I0           float64   `json:"i0"`
	Wilting      *SubRange `json:"wilting_range,omitempty"`
	Ripening     *SubRange `json:"ripening_range,omitempty"`
}

// NewRand returns a PCG-backed generator for the given seed.
//
// Every draw in an experiment goes through one of these so a seed fully
// determines the outcome.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Uniform draws from [lo, hi). It returns lo when the interval is empty.
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// NewBatches draws cfg.N batches.
//
// Description:
//
//	Each batch gets an initial sugar content from [AMin, AMax] and chemical
//	attributes from the configured ranges. Under the concentrated
//	distribution each batch also gets a wilting sub-range and, when ripening
//	is enabled, a ripening sub-range. Both lie inside their phase's global
//	bounds.
//
// Inputs:
//
//	cfg - Experiment config. Validated here.
//	rng - Random source. Must not be nil.
//
// Outputs:
//
//	[]Batch - cfg.N batches indexed 0..N-1.
//	error - *ValidationError when cfg is invalid.
func NewBatches(cfg ExperimentConfig, rng *rand.Rand) ([]Batch, error) {
	if rng == nil {
		return nil, fmt.Errorf("new batches: %w", ErrNilRand)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	concentrated := cfg.Distribution == DistributionConcentrated
	ripening := cfg.RipeningStages() > 0
	betaMax := cfg.EffectiveBetaMax()

	batches := make([]Batch, cfg.N)
	for i := range batches {
		b := Batch{
			Index:        i,
			InitialSugar: Uniform(rng, cfg.AMin, cfg.AMax),
			K:            Uniform(rng, cfg.K.Min, cfg.K.Max),
			Na:           Uniform(rng, cfg.Na.Min, cfg.Na.Max),
			N:            Uniform(rng, cfg.Nitrogen.Min, cfg.Nitrogen.Max),
			I0:           Uniform(rng, cfg.I0.Min, cfg.I0.Max),
		}
		if concentrated {
			b.Wilting = wiltingSubRange(rng, cfg.Beta1, cfg.Beta2, cfg.DeltaK)
			if ripening {
				b.Ripening = ripeningSubRange(rng, betaMax, cfg.DeltaKRipening)
			}
		}
		batches[i] = b
	}
	return batches, nil
}

func wiltingSubRange(rng *rand.Rand, beta1, beta2 float64, deltaK int) *SubRange {
	delta := Uniform(rng, 0, math.Abs(beta2-beta1)/float64(deltaK))
	start := Uniform(rng, beta1, beta2-delta)
	return &SubRange{
		Delta: delta,
		Start: start,
		End:   math.Min(start+delta, beta2),
	}
}

func ripeningSubRange(rng *rand.Rand, betaMax float64, deltaK int) *SubRange {
	lo := 1 + RipeningEpsilon
	delta := Uniform(rng, 0, (betaMax-lo)/float64(deltaK))
	center := Uniform(rng, lo+delta, betaMax-delta)
	return &SubRange{
		Delta: delta,
		Start: math.Max(center-delta, lo),
		End:   math.Min(center+delta, betaMax),
	}
}
