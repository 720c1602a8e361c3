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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all yield routes with the router.
//
// Description:
//
//	Registers all /v1/yield/* endpoints with the given Gin router group.
//	The trial endpoints get the handlers' rate limiter when one is set.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/yield/simulate - Generate one experiment
//	POST /v1/yield/multi_simulate - Generate many experiments
//	POST /v1/yield/optimize - Run every strategy over one matrix
//	POST /v1/yield/multi_optimize - Aggregate strategies over many matrices
//	POST /v1/yield/experiment - Generate and aggregate in one call
//	GET  /v1/yield/experiments/:id - Cached experiment
//	DELETE /v1/yield/experiments/:id - Evict a cached experiment
//	GET  /v1/yield/strategies - Strategy listing
//	GET  /v1/yield/health - Health check
//	GET  /v1/yield/ready - Readiness check
//
// Example:
//
//	svc := yield.NewService(yield.DefaultServiceConfig(), st, logger)
//	handlers := yield.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	yield.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	yield := rg.Group("/yield")
	if handlers.metrics != nil {
		yield.Use(RequestMetrics(handlers.metrics))
	}
	{
		yield.POST("/simulate", handlers.HandleSimulate)
		yield.POST("/optimize", handlers.HandleOptimize)

		yield.GET("/experiments/:id", handlers.HandleGetExperiment)
		yield.DELETE("/experiments/:id", handlers.HandleDeleteExperiment)
		yield.GET("/strategies", handlers.HandleStrategies)

		// Health checks
		yield.GET("/health", handlers.HandleHealth)
		yield.GET("/ready", handlers.HandleReady)
	}

	// Trial endpoints run many generations or solves per request.
	trials := yield.Group("")
	if handlers.limiter != nil {
		trials.Use(RateLimit(handlers.limiter, handlers.metrics))
	}
	{
		trials.POST("/multi_simulate", handlers.HandleMultiSimulate)
		trials.POST("/multi_optimize", handlers.HandleMultiOptimize)
		trials.POST("/experiment", handlers.HandleExperiment)
	}
}
