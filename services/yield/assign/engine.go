// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assign chooses processing orders over a utility matrix.
//
// A processing order is a permutation: perm[j] is the batch processed at
// stage j. Six heuristic strategies are declarative schedules over one
// selection loop; two exact strategies go through a Solver; one is a random
// baseline.
//
// # Thread Safety
//
// An Engine holds no per-run state and is safe for concurrent use as long as
// its Solver is. Options.Rand must not be shared between goroutines.
package assign

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// =============================================================================
// Schedule
// =============================================================================

// Phase applies a policy to stages [From, To).
type Phase struct {
	From   int
	To     int
	Policy Policy
}

// Schedule is an ordered list of phases covering every stage.
type Schedule []Phase

func (sc Schedule) policyAt(stage int) (Policy, bool) {
	for _, p := range sc {
		if stage >= p.From && stage < p.To {
			return p.Policy, true
		}
	}
	return nil, false
}

// RunSchedule assigns one batch per stage following the schedule.
//
// Description:
//
//	The pool starts as {0..n-1}. At each stage the covering phase's policy
//	picks an available batch, which leaves the pool for good.
//
// Outputs:
//
//	[]int - perm[j] is the batch assigned to stage j.
//	error - ErrScheduleGap or ErrInvalidPick.
func RunSchedule(s *mat.Dense, schedule Schedule) ([]int, error) {
	n := model.Order(s)
	pool := NewPool(n)
	perm := make([]int, n)
	for stage := 0; stage < n; stage++ {
		policy, ok := schedule.policyAt(stage)
		if !ok {
			return nil, fmt.Errorf("%w %d", ErrScheduleGap, stage)
		}
		b := policy.Pick(s, stage, pool)
		if !pool.Remove(b) {
			return nil, fmt.Errorf("%w: batch %d at stage %d", ErrInvalidPick, b, stage)
		}
		perm[stage] = b
	}
	return perm, nil
}

// split returns the stage where the second phase of a two-phase schedule
// begins, n - nu.
func split(n int, nu *int) (int, error) {
	v := n / 2
	if nu != nil {
		v = *nu
	}
	if v < 0 || v > n {
		return 0, fmt.Errorf("%w: nu=%d, n=%d", ErrInvalidNu, v, n)
	}
	return n - v, nil
}

// ScheduleFor builds the schedule of a heuristic strategy.
//
// Rank and period values outside their valid ranges fall back to 1, which
// makes t(k)g behave as thrifty_greedy and g(k) as greedy.
func ScheduleFor(id StrategyID, n int, opts Options) (Schedule, error) {
	switch id {
	case Greedy:
		return Schedule{{0, n, MaxPolicy()}}, nil
	case Thrifty:
		return Schedule{{0, n, MinPolicy()}}, nil
	case PeriodicTopK:
		k := opts.GKPeriod
		if k == 0 {
			k = DefaultGKPeriod
		}
		if k < 1 || k > n {
			k = 1
		}
		return Schedule{{0, n, TopKPolicy(k)}}, nil
	}

	at, err := split(n, opts.Nu)
	if err != nil {
		return nil, err
	}
	switch id {
	case ThriftyGreedy:
		return Schedule{{0, at, MinPolicy()}, {at, n, MaxPolicy()}}, nil
	case GreedyThrifty:
		return Schedule{{0, at, MaxPolicy()}, {at, n, MinPolicy()}}, nil
	case RankThenGreedy:
		k := opts.TKGRank
		if k == 0 {
			k = DefaultTKGRank
		}
		if k < 1 || k > at+1 {
			k = 1
		}
		return Schedule{{0, at, RankPolicy(k)}, {at, n, MaxPolicy()}}, nil
	}
	return nil, fmt.Errorf("%w: %q has no schedule", ErrUnknownStrategy, id)
}

// =============================================================================
// Engine
// =============================================================================

// Engine runs strategies over utility matrices.
type Engine struct {
	solver Solver
}

// NewEngine creates an engine. A nil solver makes both exact strategies
// degrade to greedy.
func NewEngine(solver Solver) *Engine {
	return &Engine{solver: solver}
}

// Run executes one strategy.
//
// Description:
//
//	Yield is the sum of S[perm[j], j]. FinalMass follows from Yield and the
//	mass per batch. Exact strategies whose solver is missing or reports
//	ErrSolverUnavailable return the greedy order with Degraded set.
//	RelativeLossPercent is left nil; RunAll fills it in.
//
// Inputs:
//
//	id - Strategy identifier.
//	s - Utility matrix. Nil is the empty matrix. Never modified.
//	opts - Strategy parameters.
//
// Outputs:
//
//	Result - The strategy's outcome.
//	error - ErrUnknownStrategy, ErrInvalidNu, ErrNoRandomSource or a solver error.
func (e *Engine) Run(id StrategyID, s *mat.Dense, opts Options) (Result, error) {
	n := model.Order(s)
	res := Result{Strategy: id}

	var perm []int
	var err error
	switch id {
	case Optimal, NotOptimal:
		perm, res.Degraded, err = e.exact(s, id == Optimal)
	case Random:
		if opts.Rand == nil {
			return res, ErrNoRandomSource
		}
		perm = opts.Rand.Perm(n)
	default:
		var schedule Schedule
		schedule, err = ScheduleFor(id, n, opts)
		if err == nil {
			perm, err = RunSchedule(s, schedule)
		}
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", id, err)
	}

	mass := opts.MassPerBatch
	if mass == 0 {
		mass = model.DefaultMassPerBatch
	}
	res.Permutation = perm
	res.Yield = Evaluate(s, perm)
	res.FinalMass = model.FinalMass(res.Yield, mass)
	return res, nil
}

func (e *Engine) exact(s *mat.Dense, maximize bool) ([]int, bool, error) {
	if e.solver != nil {
		perm, err := e.solver.Solve(model.Rows(s), maximize)
		if err == nil {
			return perm, false, nil
		}
		if !errors.Is(err, ErrSolverUnavailable) {
			return nil, false, err
		}
	}
	perm, err := RunSchedule(s, Schedule{{0, model.Order(s), MaxPolicy()}})
	return perm, true, err
}

// RunAll executes every strategy and fills in relative losses.
//
// Description:
//
//	Each strategy runs in isolation; a failure or panic in one is reported
//	in the error map and leaves the others untouched. When the optimal
//	strategy succeeded with a positive yield, every other result gets
//	RelativeLossPercent = (S* - yield) / S* * 100.
//
// Outputs:
//
//	Report - Successful results keyed by strategy.
//	map[StrategyID]error - Failed strategies, nil when all succeeded.
func (e *Engine) RunAll(s *mat.Dense, opts Options) (Report, map[StrategyID]error) {
	report := make(Report, len(strategies))
	var failures map[StrategyID]error
	for _, id := range StrategyIDs() {
		res, err := e.safeRun(id, s, opts)
		if err != nil {
			if failures == nil {
				failures = make(map[StrategyID]error)
			}
			failures[id] = err
			continue
		}
		report[id] = res
	}

	if opt, ok := report[Optimal]; ok && opt.Yield > 0 {
		for id, res := range report {
			if id == Optimal {
				continue
			}
			rel := RelativeLoss(opt.Yield, res.Yield)
			res.RelativeLossPercent = &rel
			report[id] = res
		}
	}
	return report, failures
}

func (e *Engine) safeRun(id StrategyID, s *mat.Dense, opts Options) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", id, ErrStrategyPanic, r)
		}
	}()
	return e.Run(id, s, opts)
}

// Evaluate returns the sum of S[perm[j], j].
func Evaluate(s *mat.Dense, perm []int) float64 {
	total := 0.0
	for j, b := range perm {
		total += s.At(b, j)
	}
	return total
}

// RelativeLoss returns how far yield falls short of best, in percent of best.
func RelativeLoss(best, yield float64) float64 {
	return (best - yield) / best * 100
}
