// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loss computes processing losses and the utility matrix S.
//
// Losses are percentages. A loss row never decreases with storage time,
// stays within the technological floor and ceiling, and stays within 35% of
// the yield it is taken from whenever those bounds can hold together.
package loss

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

const (
	// MinLoss is the technological loss floor, in percent.
	MinLoss = 1.5

	// MaxLoss is the technological loss ceiling, in percent.
	MaxLoss = 4.5

	// MaxShareOfYield caps a loss relative to the yield it applies to.
	MaxShareOfYield = 0.35
)

// Regression coefficients of the loss model.
const (
	intercept  = 1.1 + 0.1967
	coefSalts  = 0.1541
	coefN      = 0.2159
	coefAgeing = 0.9989
)

// ErrShapeMismatch indicates matrices whose shapes do not line up.
var ErrShapeMismatch = errors.New("matrix shape mismatch")

// AgeingIndex returns I_ij for a batch at 0-based stage j.
//
// The base is I0 scaled by the stage-0 yield, then grown by growthBase once
// per day of storage.
func AgeingIndex(b model.Batch, c0 float64, growthBase float64, j int) float64 {
	base := b.I0 * c0 / 100
	return base * math.Pow(growthBase, float64(model.DaysPerStage*j))
}

// Raw returns the unclamped loss for a batch with ageing index ageing.
func Raw(b model.Batch, ageing float64) float64 {
	return intercept + coefSalts*(b.K+b.Na) + coefN*b.N + coefAgeing*ageing
}

// Losses computes the loss matrix L.
//
// Description:
//
//	Per batch, in increasing stage order, the raw loss is clamped to
//	[MinLoss, MaxLoss], then to MaxShareOfYield*C[i,j], then raised to the
//	previous stage's accepted loss. Monotonicity wins when the share cap
//	would force a decrease.
//
// Inputs:
//
//	batches - Batch list; row i of C belongs to batches[i].
//	c - Cumulative yield matrix, len(batches) x stages.
//	stages - Column count of C.
//	growthBase - Ageing growth base.
//
// Outputs:
//
//	*mat.Dense - len(batches) x stages loss matrix, nil when empty.
//	error - ErrShapeMismatch.
func Losses(batches []model.Batch, c *mat.Dense, stages int, growthBase float64) (*mat.Dense, error) {
	n := len(batches)
	if n == 0 || stages == 0 {
		if c != nil {
			return nil, fmt.Errorf("losses: %w: C given for empty batch list", ErrShapeMismatch)
		}
		return nil, nil
	}
	if c == nil {
		return nil, fmt.Errorf("losses: %w: nil C for %d batches", ErrShapeMismatch, n)
	}
	if r, cols := c.Dims(); r != n || cols != stages {
		return nil, fmt.Errorf("losses: %w: C is %dx%d, want %dx%d", ErrShapeMismatch, r, cols, n, stages)
	}

	l := mat.NewDense(n, stages, nil)
	for i, b := range batches {
		c0 := c.At(i, 0)
		prev := 0.0
		for j := 0; j < stages; j++ {
			v := clamp(Raw(b, AgeingIndex(b, c0, growthBase, j)), MinLoss, MaxLoss)
			v = math.Min(v, MaxShareOfYield*c.At(i, j))
			v = math.Max(v, prev)
			l.Set(i, j, v)
			prev = v
		}
	}
	return l, nil
}

// Zero returns the all-zero loss matrix used when losses are disabled.
func Zero(n int) *mat.Dense {
	if n == 0 {
		return nil
	}
	return mat.NewDense(n, n, nil)
}

// Utility computes S = C - L/100 elementwise.
func Utility(c, l *mat.Dense) (*mat.Dense, error) {
	if c == nil || l == nil {
		if c != l {
			return nil, fmt.Errorf("utility: %w: one matrix is empty", ErrShapeMismatch)
		}
		return nil, nil
	}
	cr, cc := c.Dims()
	lr, lc := l.Dims()
	if cr != lr || cc != lc {
		return nil, fmt.Errorf("utility: %w: C is %dx%d, L is %dx%d", ErrShapeMismatch, cr, cc, lr, lc)
	}

	s := mat.NewDense(cr, cc, nil)
	s.Apply(func(i, j int, v float64) float64 {
		return v - l.At(i, j)/100
	}, c)
	return s, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
