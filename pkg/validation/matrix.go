// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied matrices.
//
// Matrices arrive as nested JSON arrays from HTTP requests and CLI files.
// Validating them here keeps ragged, oversized or non-finite input away from
// the assignment solver, which assumes a dense square matrix of real numbers.
package validation

import (
	"errors"
	"fmt"
	"math"
)

// MaxMatrixOrder bounds the side length of an accepted matrix.
// The exact solver is O(n^3); 2000 keeps one request under a few seconds.
const MaxMatrixOrder = 2000

var (
	// ErrMatrixNotSquare indicates the row count differs from the column count.
	ErrMatrixNotSquare = errors.New("matrix is not square")

	// ErrMatrixRagged indicates rows of differing lengths.
	ErrMatrixRagged = errors.New("matrix rows have differing lengths")

	// ErrMatrixNonFinite indicates a NaN or infinite entry.
	ErrMatrixNonFinite = errors.New("matrix contains a non-finite value")

	// ErrMatrixTooLarge indicates the matrix exceeds MaxMatrixOrder.
	ErrMatrixTooLarge = errors.New("matrix exceeds maximum order")
)

// ValidateSquare checks that rows form a dense square matrix of finite values.
//
// An empty matrix is valid and has order 0.
//
// Example:
//
//	if err := validation.ValidateSquare(req.Matrix); err != nil {
//	    return nil, fmt.Errorf("invalid matrix: %w", err)
//	}
func ValidateSquare(rows [][]float64) error {
	n := len(rows)
	if n > MaxMatrixOrder {
		return fmt.Errorf("%w: order %d > %d", ErrMatrixTooLarge, n, MaxMatrixOrder)
	}
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return fmt.Errorf("%w: row %d has %d columns, row 0 has %d", ErrMatrixRagged, i, len(row), len(rows[0]))
		}
	}
	if n > 0 && len(rows[0]) != n {
		return fmt.Errorf("%w: %d rows by %d columns", ErrMatrixNotSquare, n, len(rows[0]))
	}
	for i, row := range rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w at [%d][%d]", ErrMatrixNonFinite, i, j)
			}
		}
	}
	return nil
}

// ValidateSquareAll validates several matrices.
// Returns an error naming the first invalid matrix.
func ValidateSquareAll(matrices [][][]float64) error {
	for i, m := range matrices {
		if err := ValidateSquare(m); err != nil {
			return fmt.Errorf("matrix %d: %w", i, err)
		}
	}
	return nil
}
