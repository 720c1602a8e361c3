// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assign

import (
	"math/rand/v2"
)

// StrategyID is the stable identifier of a sequencing strategy.
type StrategyID string

const (
	Greedy         StrategyID = "greedy"
	Thrifty        StrategyID = "thrifty"
	ThriftyGreedy  StrategyID = "thrifty_greedy"
	GreedyThrifty  StrategyID = "greedy_thrifty"
	RankThenGreedy StrategyID = "t(k)g"
	PeriodicTopK   StrategyID = "g(k)"
	Optimal        StrategyID = "optimal"
	NotOptimal     StrategyID = "notoptimal"
	Random         StrategyID = "random"
)

// Default strategy parameters.
const (
	DefaultTKGRank  = 2
	DefaultGKPeriod = 2
)

// StrategyInfo describes one strategy for listings.
type StrategyInfo struct {
	ID          StrategyID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

var strategies = []StrategyInfo{
	{Greedy, "Greedy", "Each stage takes the available batch with the highest utility."},
	{Thrifty, "Thrifty", "Each stage takes the available batch with the lowest utility."},
	{ThriftyGreedy, "Thrifty then greedy", "Thrifty for the first n-nu stages, greedy for the rest."},
	{GreedyThrifty, "Greedy then thrifty", "Greedy for the first n-nu stages, thrifty for the rest."},
	{RankThenGreedy, "T(k)G", "The k-th smallest available batch for the first n-nu stages, greedy for the rest."},
	{PeriodicTopK, "G(k)", "Every k stages, commit the top k available batches in descending order."},
	{Optimal, "Optimal", "Exact maximum-weight assignment."},
	{NotOptimal, "Worst", "Exact minimum-weight assignment, a lower bound."},
	{Random, "Random", "Uniformly random processing order."},
}

// Strategies returns every strategy in display order.
func Strategies() []StrategyInfo {
	out := make([]StrategyInfo, len(strategies))
	copy(out, strategies)
	return out
}

// StrategyIDs returns every strategy identifier in display order.
func StrategyIDs() []StrategyID {
	ids := make([]StrategyID, len(strategies))
	for i, s := range strategies {
		ids[i] = s.ID
	}
	return ids
}

// Options parameterizes a run.
//
// Zero values select defaults: Nu nil means floor(n/2), TKGRank and
// GKPeriod 0 mean 2, MassPerBatch 0 means 1000.
type Options struct {
	Nu           *int
	TKGRank      int
	GKPeriod     int
	MassPerBatch float64
	Rand         *rand.Rand
}

// Result is one strategy's outcome over a utility matrix.
type Result struct {
	Strategy            StrategyID `json:"strategy"`
	Permutation         []int      `json:"permutation"`
	Yield               float64    `json:"yield"`
	FinalMass           float64    `json:"final_mass"`
	RelativeLossPercent *float64   `json:"relative_loss_percent,omitempty"`
	Degraded            bool       `json:"degraded,omitempty"`
}

// Report maps each strategy to its result.
type Report map[StrategyID]Result
