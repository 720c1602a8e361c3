// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package yield

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianYield/pkg/validation"
	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
	"github.com/AleutianAI/AleutianYield/services/yield/store"
)

var (
	// ErrMissingMatrix indicates an optimize request without a matrix or experiment id.
	ErrMissingMatrix = errors.New("matrix or experiment_id is required")

	// ErrAmbiguousMatrix indicates an optimize request with both a matrix and an experiment id.
	ErrAmbiguousMatrix = errors.New("matrix and experiment_id are mutually exclusive")

	// ErrNoMatrices indicates a multi-optimize request with an empty matrix list.
	ErrNoMatrices = errors.New("matrices must not be empty")

	// ErrLimitExceeded indicates a trial or experiment count above the server limit.
	ErrLimitExceeded = errors.New("request exceeds server limit")

	// ErrInvalidMass indicates a negative or non-finite mass per batch.
	ErrInvalidMass = errors.New("mass_per_batch must be positive")
)

// errorStatus maps a service error to an HTTP status and a machine code.
func errorStatus(err error) (int, string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, validation.ErrMatrixTooLarge):
		return http.StatusRequestEntityTooLarge, "MATRIX_TOO_LARGE"
	case errors.Is(err, validation.ErrMatrixNotSquare),
		errors.Is(err, validation.ErrMatrixRagged),
		errors.Is(err, validation.ErrMatrixNonFinite):
		return http.StatusBadRequest, "INVALID_MATRIX"
	case errors.Is(err, assign.ErrInvalidNu):
		return http.StatusBadRequest, "INVALID_NU"
	case errors.Is(err, ErrMissingMatrix), errors.Is(err, ErrAmbiguousMatrix),
		errors.Is(err, ErrNoMatrices), errors.Is(err, ErrInvalidMass):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "LIMIT_EXCEEDED"
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest, "INVALID_ID"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "EXPERIMENT_NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
