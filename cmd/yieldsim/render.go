// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianYield/pkg/ux"
	"github.com/AleutianAI/AleutianYield/services/yield"
	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
)

var errNoMatrix = errors.New("no utility matrix found: expected a JSON array of rows, an object with \"matrix\", or simulate output")

// bestTolerance treats yields this close to the maximum as tied.
const bestTolerance = 1e-9

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseMatrixFile accepts a bare [][]float64, {"matrix": ...} or the
// simulate output, whose S is under "matrices".
func parseMatrixFile(data []byte) ([][]float64, error) {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err == nil {
		if len(rows) == 0 {
			return nil, errNoMatrix
		}
		return rows, nil
	}

	var doc struct {
		Matrix   [][]float64 `json:"matrix"`
		Matrices struct {
			S [][]float64 `json:"S"`
		} `json:"matrices"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing matrix file: %w", err)
	}
	switch {
	case len(doc.Matrix) > 0:
		return doc.Matrix, nil
	case len(doc.Matrices.S) > 0:
		return doc.Matrices.S, nil
	default:
		return nil, errNoMatrix
	}
}

func renderSimulation(w io.Writer, resp *yield.SimulateResponse, showAll bool) {
	p := ux.NewPrinter(w)
	p.Title("Experiment")

	ripening := "off"
	if resp.Config.EnableRipening {
		ripening = fmt.Sprintf("v=%d beta_max=%.4g", resp.Config.V, resp.Config.EffectiveBetaMax())
	}
	p.Info(fmt.Sprintf("n=%d seed=%d distribution %s, ripening %s, losses %t, growth base %g",
		resp.Config.N, resp.Seed, resp.Config.Distribution, ripening, resp.Config.UseLosses, resp.Config.GrowthBase))

	if showAll {
		p.Box("B (degradation)", formatMatrix(resp.Matrices.B))
		p.Box("C (yield)", formatMatrix(resp.Matrices.C))
		p.Box("L (losses)", formatMatrix(resp.Matrices.L))
	}
	p.Box("S (utility)", formatMatrix(resp.Matrices.S))
}

func renderOptimize(w io.Writer, resp *yield.OptimizeResponse) {
	p := ux.NewPrinter(w)
	p.Title("Strategies")
	p.Info(fmt.Sprintf("n=%d mass/batch=%g seed=%d", resp.N, resp.MassPerBatch, resp.Seed))

	var rows []ux.StrategyRow
	for _, id := range assign.StrategyIDs() {
		res, ok := resp.Strategies[id]
		if !ok {
			continue
		}
		rows = append(rows, ux.StrategyRow{
			Strategy:     string(id),
			Yield:        res.Yield,
			FinalMass:    res.FinalMass,
			RelativeLoss: res.RelativeLossPercent,
			Permutation:  res.Permutation,
			Degraded:     res.Degraded,
		})
	}
	markBest(rows)
	fmt.Fprintln(w, ux.StrategyTable(rows, p.Mode()))
	reportBest(p, rows)

	for _, id := range sortedFailures(resp.Failures) {
		p.Warning(fmt.Sprintf("%s failed: %s", id, resp.Failures[id]))
	}
}

func renderExperiment(w io.Writer, report *experiment.Report) {
	p := ux.NewPrinter(w)
	p.Title("Strategy averages")
	p.Info(fmt.Sprintf("%d trials, base seed %d", report.TotalTrials, report.Seed))

	var rows []ux.StrategyRow
	for _, sum := range report.Ordered() {
		rows = append(rows, ux.StrategyRow{
			Strategy:     string(sum.Strategy),
			Yield:        sum.MeanYield,
			FinalMass:    sum.MeanFinalMass,
			RelativeLoss: sum.RelativeLossPercent,
			Successes:    sum.SuccessCount,
			Degraded:     sum.DegradedCount > 0,
		})
	}
	markBest(rows)
	fmt.Fprintln(w, ux.StrategyTable(rows, p.Mode()))
	reportBest(p, rows)
}

func markBest(rows []ux.StrategyRow) {
	best := math.Inf(-1)
	for _, r := range rows {
		best = math.Max(best, r.Yield)
	}
	for i := range rows {
		rows[i].Best = best-rows[i].Yield <= bestTolerance
	}
}

// reportBest names the strategies markBest flagged.
func reportBest(p *ux.Printer, rows []ux.StrategyRow) {
	var names []string
	var yield float64
	for _, r := range rows {
		if r.Best {
			names = append(names, r.Strategy)
			yield = r.Yield
		}
	}
	if len(names) == 0 {
		return
	}
	p.Success(fmt.Sprintf("best: %s (yield %.4f)", strings.Join(names, ", "), yield))
}

func sortedFailures(failures map[assign.StrategyID]string) []assign.StrategyID {
	ids := make([]assign.StrategyID, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func formatMatrix(m [][]float64) string {
	var b strings.Builder
	for i, row := range m {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, v := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%9.4f", v)
		}
	}
	return b.String()
}
