// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model holds the value records of one yield experiment: its
// configuration and the batches drawn from it.
//
// Everything in this package is a plain value. Batches are produced once per
// experiment by NewBatches and never mutated afterwards; configs are copied
// by value wherever they travel.
package model

import (
	"math"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DaysPerStage is the fixed duration of one processing stage.
	DaysPerStage = 7

	// RipeningEpsilon keeps ripening coefficients strictly above 1.
	RipeningEpsilon = 1e-6

	// SmallStageBetaMax is the ripening ceiling used when BetaMax is not
	// given and the stage count is too small for (n-1)/(n-2).
	SmallStageBetaMax = 1.1

	// DefaultMassPerBatch is the mass used when a request omits it.
	DefaultMassPerBatch = 1000.0
)

// GrowthBases lists the accepted aging growth bases.
var GrowthBases = []float64{1.029, 1.03}

// Distribution selects how per-stage coefficients are drawn.
type Distribution string

const (
	// DistributionUniform draws every coefficient from the phase's global bounds.
	DistributionUniform Distribution = "uniform"

	// DistributionConcentrated draws from a narrow per-batch sub-range.
	DistributionConcentrated Distribution = "concentrated"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// =============================================================================
// ExperimentConfig
// =============================================================================

// ExperimentConfig describes one experiment.
//
// Description:
//
//	N is both the stage count and the batch count. AMin and AMax bound the
//	initial sugar content in percent. Beta1 and Beta2 bound the wilting
//	coefficients. When EnableRipening is set, stages 1..V-1 ripen with
//	coefficients in (1, BetaMax]. Chemical ranges feed the loss model.
//
// Thread Safety:
//
//	Value type; safe to copy and share.
type ExperimentConfig struct {
	N              int          `json:"n" yaml:"n" validate:"gt=0"`
	M              float64      `json:"m" yaml:"m" validate:"gt=0"`
	AMin           float64      `json:"a_min" yaml:"a_min" validate:"gte=0"`
	AMax           float64      `json:"a_max" yaml:"a_max" validate:"gtfield=AMin"`
	Beta1          float64      `json:"beta1" yaml:"beta1" validate:"gt=0,lt=1"`
	Beta2          float64      `json:"beta2" yaml:"beta2" validate:"gt=0,lt=1,gtfield=Beta1"`
	Distribution   Distribution `json:"distribution_type" yaml:"distribution_type" validate:"oneof=uniform concentrated"`
	EnableRipening bool         `json:"enable_ripening" yaml:"enable_ripening"`
	V              int          `json:"v" yaml:"v"`
	BetaMax        *float64     `json:"beta_max,omitempty" yaml:"beta_max,omitempty"`
	UseLosses      bool         `json:"use_losses" yaml:"use_losses"`
	GrowthBase     float64      `json:"growth_base" yaml:"growth_base"`
	DeltaK         int          `json:"delta_k" yaml:"delta_k" validate:"oneof=2 3 4"`
	DeltaKRipening int          `json:"delta_k_ripening" yaml:"delta_k_ripening" validate:"oneof=2 3 4"`
	K              Range        `json:"k_range" yaml:"k_range"`
	Na             Range        `json:"na_range" yaml:"na_range"`
	Nitrogen       Range        `json:"n_content_range" yaml:"n_content_range"`
	I0             Range        `json:"i0_range" yaml:"i0_range"`
}

// DefaultExperimentConfig returns the configuration used to fill omitted
// request fields.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		N:              10,
		M:              DefaultMassPerBatch,
		AMin:           12,
		AMax:           22,
		Beta1:          0.85,
		Beta2:          0.99,
		Distribution:   DistributionUniform,
		UseLosses:      true,
		GrowthBase:     1.029,
		DeltaK:         4,
		DeltaKRipening: 4,
		K:              Range{Min: 4.8, Max: 7.05},
		Na:             Range{Min: 0.21, Max: 0.82},
		Nitrogen:       Range{Min: 1.58, Max: 2.8},
		I0:             Range{Min: 0.62, Max: 0.64},
	}
}

// EffectiveBetaMax returns the ripening ceiling.
//
// Description:
//
//	Returns BetaMax when given. Otherwise derives (n-1)/(n-2) for n > 2 and
//	SmallStageBetaMax below that.
func (c ExperimentConfig) EffectiveBetaMax() float64 {
	if c.BetaMax != nil {
		return *c.BetaMax
	}
	if c.N > 2 {
		return float64(c.N-1) / float64(c.N-2)
	}
	return SmallStageBetaMax
}

// RipeningStages returns the number of ripening stages in effect, zero when
// ripening is disabled.
func (c ExperimentConfig) RipeningStages() int {
	if !c.EnableRipening || c.V <= 0 {
		return 0
	}
	return c.V
}

// WithPercentSugar reads sugar bounds at or below 1 as fractions and scales
// them to percent. Other values are returned unchanged.
func (c ExperimentConfig) WithPercentSugar() ExperimentConfig {
	if c.AMin <= 1 && c.AMax <= 1 && c.AMax > 0 {
		c.AMin *= 100
		c.AMax *= 100
	}
	return c
}

// FinalMass converts a total yield in percent into processed mass.
//
// Description:
//
//	FinalMass = (yield / 100) * massPerBatch * DaysPerStage.
//	FinalMass(10.5, 1000) is 735.
func FinalMass(yield, massPerBatch float64) float64 {
	return yield / 100 * massPerBatch * DaysPerStage
}

func isAllowedGrowthBase(g float64) bool {
	for _, allowed := range GrowthBases {
		if math.Abs(g-allowed) < 1e-12 {
			return true
		}
	}
	return false
}
