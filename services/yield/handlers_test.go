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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
	"github.com/AleutianAI/AleutianYield/services/yield/observability"
	"github.com/AleutianAI/AleutianYield/services/yield/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type unavailableSolver struct{}

func (unavailableSolver) Solve([][]float64, bool) ([]int, error) {
	return nil, assign.ErrSolverUnavailable
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewService(DefaultServiceConfig(), st, nil)
}

func setupTestRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// Health and listings
// =============================================================================

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodGet, "/v1/yield/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_HandleReady(t *testing.T) {
	st, err := store.Open(store.DefaultConfig())
	require.NoError(t, err)
	router := setupTestRouter(NewHandlers(NewService(DefaultServiceConfig(), st, nil)))

	w := doJSON(t, router, http.MethodGet, "/v1/yield/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ReadyResponse](t, w).Ready)

	require.NoError(t, st.Close())
	w = doJSON(t, router, http.MethodGet, "/v1/yield/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, decode[ReadyResponse](t, w).Ready)
}

func TestHandlers_HandleStrategies(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodGet, "/v1/yield/strategies", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[StrategiesResponse](t, w)
	require.Len(t, resp.Strategies, 9)
	assert.Equal(t, assign.Greedy, resp.Strategies[0].ID)
}

func TestHandlers_RequestIDEchoed(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	for _, path := range []string{"/v1/yield/health", "/v1/yield/ready", "/v1/yield/strategies"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("X-Request-ID", "abc-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

			w = doJSON(t, router, http.MethodGet, path, "")
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

// =============================================================================
// Simulation
// =============================================================================

func TestHandlers_HandleSimulate_Defaults(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/simulate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[SimulateResponse](t, w)
	assert.Equal(t, 10, resp.Config.N)
	assert.Len(t, resp.Matrices.S, 10)
	assert.Len(t, resp.Matrices.B[0], 10)
	assert.Len(t, resp.Batches, 10)
	_, err := uuid.Parse(resp.ExperimentID)
	assert.NoError(t, err)
}

func TestHandlers_HandleSimulate_SeedIsDeterministic(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))
	body := `{"n": 5, "seed": 42}`

	first := decode[SimulateResponse](t, doJSON(t, router, http.MethodPost, "/v1/yield/simulate", body))
	second := decode[SimulateResponse](t, doJSON(t, router, http.MethodPost, "/v1/yield/simulate", body))

	assert.Equal(t, uint64(42), first.Seed)
	assert.Equal(t, first.Matrices, second.Matrices)
	assert.NotEqual(t, first.ExperimentID, second.ExperimentID)
}

func TestHandlers_HandleSimulate_FractionalSugar(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": 3, "a_min": 0.12, "a_max": 0.22, "seed": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[SimulateResponse](t, w)
	assert.InDelta(t, 12.0, resp.Config.AMin, 1e-9)
	assert.InDelta(t, 22.0, resp.Config.AMax, 1e-9)
	for _, b := range resp.Batches {
		assert.GreaterOrEqual(t, b.InitialSugar, 12.0)
		assert.LessOrEqual(t, b.InitialSugar, 22.0)
	}
}

func TestHandlers_HandleSimulate_ValidationErrors(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": 0, "beta1": 0.99, "beta2": 0.5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "VALIDATION_FAILED", resp.Code)
	assert.GreaterOrEqual(t, len(resp.Errors), 2)
}

func TestHandlers_HandleSimulate_MalformedBody(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": "ten"`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleGetExperiment(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	created := decode[SimulateResponse](t, doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": 4, "seed": 9}`))

	w := doJSON(t, router, http.MethodGet, "/v1/yield/experiments/"+created.ExperimentID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[SimulateResponse](t, w)
	assert.Equal(t, created.ExperimentID, got.ExperimentID)
	assert.Equal(t, created.Matrices, got.Matrices)

	w = doJSON(t, router, http.MethodGet, "/v1/yield/experiments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "EXPERIMENT_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodGet, "/v1/yield/experiments/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleDeleteExperiment(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	created := decode[SimulateResponse](t, doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": 3, "seed": 4}`))
	path := "/v1/yield/experiments/" + created.ExperimentID

	w := doJSON(t, router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ready := decode[ReadyResponse](t, doJSON(t, router, http.MethodGet, "/v1/yield/ready", ""))
	assert.Equal(t, 0, ready.CachedExperiments)

	// Evicting twice is fine.
	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, path, "").Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/yield/experiments/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleMultiSimulate(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/multi_simulate", `{"n": 3, "count": 3, "seed": 10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[MultiSimulateResponse](t, w)
	require.Equal(t, 3, resp.Count)
	for i, exp := range resp.Experiments {
		assert.Equal(t, uint64(10+i), exp.Seed)
		assert.Empty(t, exp.ExperimentID)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/yield/multi_simulate", `{"count": 100000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "LIMIT_EXCEEDED", decode[ErrorResponse](t, w).Code)
}

// =============================================================================
// Optimization
// =============================================================================

func TestHandlers_HandleOptimize_TwoByTwo(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/optimize", `{"matrix": [[5, 1], [2, 8]], "seed": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[OptimizeResponse](t, w)
	assert.Equal(t, 2, resp.N)
	assert.Equal(t, 1000.0, resp.MassPerBatch)
	require.Len(t, resp.Strategies, 9)
	assert.Empty(t, resp.Failures)

	greedy := resp.Strategies[assign.Greedy]
	assert.Equal(t, []int{0, 1}, greedy.Permutation)
	assert.InDelta(t, 13.0, greedy.Yield, 1e-9)
	assert.InDelta(t, 910.0, greedy.FinalMass, 1e-9)

	thrifty := resp.Strategies[assign.Thrifty]
	assert.Equal(t, []int{1, 0}, thrifty.Permutation)
	assert.InDelta(t, 3.0, thrifty.Yield, 1e-9)

	optimal := resp.Strategies[assign.Optimal]
	assert.InDelta(t, 13.0, optimal.Yield, 1e-9)
	assert.Nil(t, optimal.RelativeLossPercent)
	require.NotNil(t, greedy.RelativeLossPercent)
	assert.InDelta(t, 0.0, *greedy.RelativeLossPercent, 1e-9)
}

func TestHandlers_HandleOptimize_FromCachedExperiment(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	created := decode[SimulateResponse](t, doJSON(t, router, http.MethodPost, "/v1/yield/simulate", `{"n": 6, "seed": 3}`))

	body, err := json.Marshal(OptimizeRequest{ExperimentID: created.ExperimentID, MassPerBatch: 500})
	require.NoError(t, err)
	w := doJSON(t, router, http.MethodPost, "/v1/yield/optimize", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[OptimizeResponse](t, w)
	assert.Equal(t, 6, resp.N)
	best := resp.Strategies[assign.Optimal].Yield
	for id, res := range resp.Strategies {
		assert.LessOrEqual(t, res.Yield, best+1e-9, "strategy %s beat optimal", id)
		assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, res.Permutation, "strategy %s", id)
	}
}

func TestHandlers_HandleOptimize_Errors(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing matrix", `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"ragged", `{"matrix": [[1, 2], [3]]}`, http.StatusBadRequest, "INVALID_MATRIX"},
		{"not square", `{"matrix": [[1, 2], [3, 4], [5, 6]]}`, http.StatusBadRequest, "INVALID_MATRIX"},
		{"both sources", `{"matrix": [[1]], "experiment_id": "` + uuid.NewString() + `"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown experiment", `{"experiment_id": "` + uuid.NewString() + `"}`, http.StatusNotFound, "EXPERIMENT_NOT_FOUND"},
		{"nu too large", `{"matrix": [[1, 2], [3, 4]], "nu": 5}`, http.StatusBadRequest, "INVALID_NU"},
		{"negative mass", `{"matrix": [[1]], "mass_per_batch": -1}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed", `[`, http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/yield/optimize", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_HandleOptimize_Degraded(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(t).WithEngine(assign.NewEngine(unavailableSolver{})).WithMetrics(m)
	router := setupTestRouter(NewHandlers(svc))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/optimize", `{"matrix": [[5, 1], [2, 8]], "seed": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[OptimizeResponse](t, w)
	assert.True(t, resp.Strategies[assign.Optimal].Degraded)
	assert.Equal(t, resp.Strategies[assign.Greedy].Permutation, resp.Strategies[assign.Optimal].Permutation)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DegradedTotal), 1.0)
}

func TestHandlers_HandleMultiOptimize(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/multi_optimize",
		`{"matrices": [[[5, 1], [2, 8]], [[1, 2], [3, 4]]], "seed": 1, "detail": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[MultiOptimizeResponse](t, w)
	assert.Equal(t, 2, resp.TotalMatrices)
	require.NotNil(t, resp.Report)
	assert.Len(t, resp.AllResults, 2)

	greedy := resp.Averages[assign.Greedy]
	assert.Equal(t, 2, greedy.SuccessCount)
	assert.InDelta(t, 9.0, greedy.MeanYield, 1e-9)
	assert.InDelta(t, 9.0, resp.Averages[assign.Optimal].MeanYield, 1e-9)
}

func TestHandlers_HandleMultiOptimize_Errors(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/multi_optimize", `{"matrices": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/yield/multi_optimize", `{"matrices": [[[1]], [[1, 2]]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MATRIX", decode[ErrorResponse](t, w).Code)

	// nu is checked against every matrix, not just the first.
	w = doJSON(t, router, http.MethodPost, "/v1/yield/multi_optimize",
		`{"matrices": [[[5, 1, 0], [2, 8, 0], [0, 0, 1]], [[5, 1], [2, 8]]], "nu": 3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "INVALID_NU", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/yield/multi_optimize", `{"matrices": [[[5, 1], [2, 8]]], "nu": -1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_NU", decode[ErrorResponse](t, w).Code)
}

// =============================================================================
// Experiment
// =============================================================================

func TestHandlers_HandleExperiment(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/experiment", `{"n": 4, "trials": 3, "workers": 2, "seed": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	report := decode[experiment.Report](t, w)
	assert.Equal(t, 3, report.TotalTrials)
	assert.Equal(t, uint64(1), report.Seed)
	require.Len(t, report.Averages, 9)
	assert.Empty(t, report.AllResults)

	best := report.Averages[assign.Optimal].MeanYield
	for id, sum := range report.Averages {
		assert.LessOrEqual(t, sum.MeanYield, best+1e-9, "strategy %s", id)
		assert.Equal(t, 3, sum.SuccessCount, "strategy %s", id)
	}
}

func TestHandlers_HandleExperiment_Limits(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	w := doJSON(t, router, http.MethodPost, "/v1/yield/experiment", `{"trials": 5000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "LIMIT_EXCEEDED", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/yield/experiment", `{"trials": 2, "m": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleExperiment_InvalidNu(t *testing.T) {
	router := setupTestRouter(NewHandlers(newTestService(t)))

	for _, body := range []string{
		`{"n": 4, "nu": 50, "trials": 2, "seed": 1}`,
		`{"n": 4, "nu": -1, "trials": 2, "seed": 1}`,
	} {
		w := doJSON(t, router, http.MethodPost, "/v1/yield/experiment", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "INVALID_NU", decode[ErrorResponse](t, w).Code, body)
	}

	w := doJSON(t, router, http.MethodPost, "/v1/yield/experiment", `{"n": 4, "nu": 4, "trials": 2, "seed": 1}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// =============================================================================
// Middleware wiring
// =============================================================================

func TestRegisterRoutes_RateLimitsTrialEndpoints(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	h := NewHandlers(newTestService(t)).
		WithRateLimit(rate.NewLimiter(0, 1)).
		WithMetrics(m)
	router := setupTestRouter(h)

	body := `{"n": 2, "trials": 1, "seed": 1}`
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/v1/yield/experiment", body).Code)

	w := doJSON(t, router, http.MethodPost, "/v1/yield/experiment", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectedTotal.WithLabelValues(string(observability.RejectRateLimited))))

	// Single-shot endpoints are not limited.
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/v1/yield/health", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/v1/yield/health", "").Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/yield/experiment", "429")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/yield/health", "200")))
}
