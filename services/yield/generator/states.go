// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// States derives the cumulative yield matrix C from B.
//
// C[i,0] is the batch's initial sugar and C[i,j] = C[i,j-1] * B[i,j].
func States(batches []model.Batch, b *mat.Dense) (*mat.Dense, error) {
	n := len(batches)
	if model.Order(b) != n {
		return nil, fmt.Errorf("states: %w: B is %dx%d for %d batches", ErrShapeMismatch, model.Order(b), model.Order(b), n)
	}
	if n == 0 {
		return nil, nil
	}
	if _, cols := b.Dims(); cols != n {
		return nil, fmt.Errorf("states: %w: B has %d columns for %d batches", ErrShapeMismatch, cols, n)
	}

	c := mat.NewDense(n, n, nil)
	for i, batch := range batches {
		c.Set(i, 0, batch.InitialSugar)
		for j := 1; j < n; j++ {
			c.Set(i, j, c.At(i, j-1)*b.At(i, j))
		}
	}
	return c, nil
}
