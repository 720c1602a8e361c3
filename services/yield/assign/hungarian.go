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
	"fmt"
	"math"
)

// Solver solves the linear assignment problem exactly.
//
// weights[i][j] is the value of giving stage j to batch i. The returned
// slice maps each stage to its batch. Implementations that cannot run
// return ErrSolverUnavailable.
type Solver interface {
	Solve(weights [][]float64, maximize bool) ([]int, error)
}

// Hungarian is a native O(n^3) Kuhn-Munkres solver using row and column
// potentials and shortest augmenting paths.
type Hungarian struct{}

// Solve implements Solver.
func (Hungarian) Solve(weights [][]float64, maximize bool) ([]int, error) {
	n := len(weights)
	for i, row := range weights {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotSquare, i, len(row), n)
		}
		for j, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w at [%d][%d]", ErrNonFiniteWeight, i, j)
			}
		}
	}
	if n == 0 {
		return []int{}, nil
	}

	cost := func(i, j int) float64 {
		if maximize {
			return -weights[i][j]
		}
		return weights[i][j]
	}

	// 1-based; index 0 is the virtual start column.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	match := make([]int, n+1) // match[j] = row assigned to column j
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		match[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := match[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[match[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if match[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			match[j0] = match[j1]
			j0 = j1
		}
	}

	perm := make([]int, n)
	for j := 1; j <= n; j++ {
		perm[j-1] = match[j] - 1
	}
	return perm, nil
}
