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
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
	"github.com/AleutianAI/AleutianYield/services/yield/observability"
)

// Handlers contains the HTTP handlers for the yield API.
type Handlers struct {
	svc     *Service
	limiter *rate.Limiter
	metrics *observability.Metrics
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithRateLimit limits the trial endpoints (multi_simulate, multi_optimize,
// experiment) to the given limiter. Nil disables limiting.
func (h *Handlers) WithRateLimit(limiter *rate.Limiter) *Handlers {
	h.limiter = limiter
	return h
}

// WithMetrics records request metrics for every route.
func (h *Handlers) WithMetrics(m *observability.Metrics) *Handlers {
	h.metrics = m
	return h
}

// HandleSimulate handles POST /v1/yield/simulate.
//
// Description:
//
//	Generates one experiment and caches it. An empty body uses the server
//	defaults.
//
// Request Body:
//
//	SimulateRequest
//
// Response:
//
//	200 OK: SimulateResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Generation or cache failure
func (h *Handlers) HandleSimulate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSimulate")

	req := SimulateRequest{ExperimentConfig: h.svc.Defaults()}
	if !bindBody(c, logger, &req) {
		return
	}

	resp, err := h.svc.Simulate(c.Request.Context(), req.ExperimentConfig, req.Seed)
	if err != nil {
		writeError(c, logger, "Simulation failed", err)
		return
	}

	logger.Info("Experiment generated",
		"experiment_id", resp.ExperimentID,
		"n", resp.Config.N,
		"seed", resp.Seed)
	c.JSON(http.StatusOK, resp)
}

// HandleMultiSimulate handles POST /v1/yield/multi_simulate.
//
// Response:
//
//	200 OK: MultiSimulateResponse
//	400 Bad Request: Validation error or count above the limit
func (h *Handlers) HandleMultiSimulate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleMultiSimulate")

	req := MultiSimulateRequest{ExperimentConfig: h.svc.Defaults()}
	if !bindBody(c, logger, &req) {
		return
	}

	resp, err := h.svc.MultiSimulate(c.Request.Context(), req.ExperimentConfig, req.Count, req.Seed)
	if err != nil {
		writeError(c, logger, "Simulation failed", err)
		return
	}

	logger.Info("Experiments generated", "count", resp.Count)
	c.JSON(http.StatusOK, resp)
}

// HandleOptimize handles POST /v1/yield/optimize.
//
// Description:
//
//	Runs every strategy over the request's matrix or a cached experiment's
//	utility matrix.
//
// Request Body:
//
//	OptimizeRequest
//
// Response:
//
//	200 OK: OptimizeResponse
//	400 Bad Request: Missing, malformed or ambiguous matrix; invalid nu
//	404 Not Found: Unknown experiment_id
func (h *Handlers) HandleOptimize(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleOptimize")

	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}

	resp, err := h.svc.Optimize(c.Request.Context(), req)
	if err != nil {
		writeError(c, logger, "Optimization failed", err)
		return
	}

	logger.Info("Strategies evaluated",
		"n", resp.N,
		"strategies", len(resp.Strategies),
		"failures", len(resp.Failures))
	c.JSON(http.StatusOK, resp)
}

// HandleMultiOptimize handles POST /v1/yield/multi_optimize.
//
// Response:
//
//	200 OK: MultiOptimizeResponse
//	400 Bad Request: Empty, malformed or too many matrices
func (h *Handlers) HandleMultiOptimize(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleMultiOptimize")

	var req MultiOptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}

	resp, err := h.svc.MultiOptimize(c.Request.Context(), req)
	if err != nil {
		writeError(c, logger, "Optimization failed", err)
		return
	}

	logger.Info("Matrices aggregated", "total_matrices", resp.TotalMatrices)
	c.JSON(http.StatusOK, resp)
}

// HandleExperiment handles POST /v1/yield/experiment.
//
// Description:
//
//	Generates trials experiments and aggregates every strategy over them
//	in one call.
//
// Response:
//
//	200 OK: experiment.Report
//	400 Bad Request: Validation error or trials above the limit
//	504 Gateway Timeout: The run outlived the request
func (h *Handlers) HandleExperiment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExperiment")

	req := ExperimentRequest{ExperimentConfig: h.svc.Defaults()}
	if !bindBody(c, logger, &req) {
		return
	}

	report, err := h.svc.RunExperiment(c.Request.Context(), req)
	if err != nil {
		writeError(c, logger, "Experiment failed", err)
		return
	}

	logger.Info("Experiment aggregated",
		"total_trials", report.TotalTrials,
		"seed", report.Seed)
	c.JSON(http.StatusOK, report)
}

// HandleGetExperiment handles GET /v1/yield/experiments/:id.
//
// Response:
//
//	200 OK: SimulateResponse
//	400 Bad Request: Malformed id
//	404 Not Found: Unknown or expired id
func (h *Handlers) HandleGetExperiment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetExperiment")

	resp, err := h.svc.Experiment(c.Param("id"))
	if err != nil {
		writeError(c, logger, "Lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeleteExperiment handles DELETE /v1/yield/experiments/:id.
//
// Response:
//
//	204 No Content: Evicted, or the id was not cached
//	400 Bad Request: The id is not a UUID
//	404 Not Found: The service has no experiment cache
func (h *Handlers) HandleDeleteExperiment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteExperiment")

	if err := h.svc.DeleteExperiment(c.Param("id")); err != nil {
		writeError(c, logger, "Delete failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleStrategies handles GET /v1/yield/strategies.
func (h *Handlers) HandleStrategies(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, StrategiesResponse{Strategies: assign.Strategies()})
}

// HandleHealth handles GET /v1/yield/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/yield/ready.
//
// Description:
//
//	Returns 503 Service Unavailable when the experiment cache is closed.
func (h *Handlers) HandleReady(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	n, err := h.svc.CachedExperiments()
	if err != nil {
		slog.Warn("Experiment cache unavailable", "request_id", requestID, "error", err)
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{Ready: true, CachedExperiments: n})
}

// =============================================================================
// Helpers
// =============================================================================

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// bindBody binds an optional JSON body onto a prefilled request.
// It writes the error response and returns false on failure.
func bindBody(c *gin.Context, logger *slog.Logger, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeBindError(c, logger, err)
	return false
}

func writeBindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
}

func writeError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status, code := errorStatus(err)

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		logger.Warn("Validation failed", "problems", len(verr.Problems))
		c.JSON(status, ErrorResponse{
			Error:  "Validation failed",
			Code:   code,
			Errors: verr.Problems,
		})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
	} else {
		logger.Warn(msg, "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
