// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package yield

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianYield/services/yield/observability"
)

// RequestMetrics records request count and latency per route template.
// Unmatched routes are labelled "unmatched".
//
// Thread-safe. The returned middleware can be used concurrently.
func RequestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordRequest(endpoint, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// RateLimit rejects requests with 429 once limiter has no tokens left.
//
// # Inputs
//
//   - limiter: Token bucket shared by every request through this middleware.
//   - m: Metrics for rejected requests. May be nil.
//
// # Examples
//
//	trials := router.Group("/v1/yield")
//	trials.Use(yield.RateLimit(rate.NewLimiter(rate.Limit(2), 4), metrics))
func RateLimit(limiter *rate.Limiter, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			if m != nil {
				m.RecordRejected(observability.RejectRateLimited)
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// CORS answers cross-origin requests from the allow-list.
//
// # Description
//
// An origin in allowed, or any origin when allowed contains "*", gets the
// Access-Control-Allow-* headers. Preflight requests are answered with 204
// and never reach a handler; a preflight from an origin outside the list
// gets 403. Requests without an Origin header pass through untouched.
//
// # Inputs
//
//   - allowed: Allowed origins, e.g. "http://localhost:3000".
//   - m: Metrics for rejected preflights. May be nil.
func CORS(allowed []string, m *observability.Metrics) gin.HandlerFunc {
	wildcard := slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		ok := wildcard || slices.Contains(allowed, origin)
		preflight := c.Request.Method == http.MethodOptions
		if !ok {
			if preflight {
				if m != nil {
					m.RecordRejected(observability.RejectOrigin)
				}
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if preflight {
			h.Set("Access-Control-Allow-Methods", strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", "))
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		c.Next()
	}
}
