// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"errors"
	"math"
	"testing"
)

func TestValidateSquare(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]float64
		wantErr error
	}{
		{"empty", [][]float64{}, nil},
		{"nil", nil, nil},
		{"single", [][]float64{{4}}, nil},
		{"two by two", [][]float64{{5, 1}, {2, 8}}, nil},
		{"negative values", [][]float64{{-1, -2}, {-3, -4}}, nil},

		{"wide", [][]float64{{1, 2, 3}, {4, 5, 6}}, ErrMatrixNotSquare},
		{"tall", [][]float64{{1}, {2}}, ErrMatrixNotSquare},
		{"ragged", [][]float64{{1, 2}, {3}}, ErrMatrixRagged},
		{"nan", [][]float64{{1, math.NaN()}, {3, 4}}, ErrMatrixNonFinite},
		{"inf", [][]float64{{1, 2}, {math.Inf(-1), 4}}, ErrMatrixNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSquare(tt.rows)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSquare() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSquare() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSquare_TooLarge(t *testing.T) {
	rows := make([][]float64, MaxMatrixOrder+1)
	if err := ValidateSquare(rows); !errors.Is(err, ErrMatrixTooLarge) {
		t.Errorf("ValidateSquare() error = %v, want %v", err, ErrMatrixTooLarge)
	}
}

func TestValidateSquareAll(t *testing.T) {
	tests := []struct {
		name     string
		matrices [][][]float64
		wantErr  bool
	}{
		{"all valid", [][][]float64{{{1}}, {{1, 2}, {3, 4}}}, false},
		{"one invalid", [][][]float64{{{1}}, {{1, 2}}}, true},
		{"empty slice", [][][]float64{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSquareAll(tt.matrices)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSquareAll() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
