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
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/pkg/validation"
)

// A nil *mat.Dense stands for the empty 0x0 matrix; gonum cannot allocate one.

// Order returns the side length of a square matrix, 0 for nil.
func Order(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

// Rows copies m into nested row-major slices.
func Rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return [][]float64{}
	}
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		mat.Row(rows[i], i, m)
	}
	return rows
}

// FromRows validates nested rows and copies them into a dense matrix.
// An empty input yields a nil matrix.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if err := validation.ValidateSquare(rows); err != nil {
		return nil, err
	}
	n := len(rows)
	if n == 0 {
		return nil, nil
	}
	m := mat.NewDense(n, n, nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m, nil
}
