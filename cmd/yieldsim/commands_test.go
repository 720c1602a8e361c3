// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianYield/cmd/yieldsim/config"
	"github.com/AleutianAI/AleutianYield/pkg/ux"
	"github.com/AleutianAI/AleutianYield/services/yield"
	"github.com/AleutianAI/AleutianYield/services/yield/assign"
	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testConfig = `
logging:
  dir: ""
  level: error
telemetry:
  trace_exporter: none
  metric_exporter: none
defaults:
  n: 4
`

// writeFile writes content under a fresh temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the CLI with a test config and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := writeFile(t, "yieldsim.yaml", testConfig)

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", cfgPath))
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// simulate
// =============================================================================

func TestSimulate_JSONIsReproducible(t *testing.T) {
	first, err := execute(t, "simulate", "--seed", "7", "--json")
	require.NoError(t, err)
	second, err := execute(t, "simulate", "--seed", "7", "--json")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var resp yield.SimulateResponse
	require.NoError(t, json.Unmarshal([]byte(first), &resp))
	assert.Equal(t, uint64(7), resp.Seed)
	assert.Equal(t, 4, resp.Config.N)
	assert.Len(t, resp.Matrices.S, 4)
	assert.Len(t, resp.Batches, 4)
	assert.Empty(t, resp.ExperimentID)
}

func TestSimulate_Plain(t *testing.T) {
	out, err := execute(t, "simulate", "--seed", "3", "--n", "3", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "n=3 seed=3 distribution uniform")
	assert.Contains(t, out, "B (degradation):\n")
	assert.Contains(t, out, "S (utility):\n")
}

// =============================================================================
// optimize
// =============================================================================

func TestOptimize_JSON(t *testing.T) {
	path := writeFile(t, "m.json", `[[5, 1], [2, 8]]`)

	out, err := execute(t, "optimize", path, "--json", "--seed", "1", "--mass", "100")
	require.NoError(t, err)

	var resp yield.OptimizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.N)
	assert.Equal(t, uint64(1), resp.Seed)
	assert.Empty(t, resp.Failures)
	assert.Len(t, resp.Strategies, len(assign.StrategyIDs()))

	greedy := resp.Strategies[assign.Greedy]
	assert.Equal(t, []int{0, 1}, greedy.Permutation)
	assert.InDelta(t, 13, greedy.Yield, 1e-9)
	assert.InDelta(t, 91, greedy.FinalMass, 1e-9)
	assert.InDelta(t, 3, resp.Strategies[assign.Thrifty].Yield, 1e-9)
	assert.InDelta(t, 13, resp.Strategies[assign.Optimal].Yield, 1e-9)
}

func TestOptimize_Table(t *testing.T) {
	path := writeFile(t, "m.json", `{"matrix": [[5, 1], [2, 8]]}`)

	out, err := execute(t, "optimize", path, "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy\tyield\tfinal_mass\trelative_loss\tpermutation\n")
	assert.Contains(t, out, "greedy\t13.0000\t910.00\t")
	assert.Contains(t, out, "optimal\t13.0000\t910.00\t-\t[0 1]\n")
	assert.Contains(t, out, "OK: best: greedy, ")
	assert.Contains(t, out, " (yield 13.0000)\n")
}

// TestOptimize_SimulateOutput verifies simulate output feeds optimize.
func TestOptimize_SimulateOutput(t *testing.T) {
	sim, err := execute(t, "simulate", "--seed", "11", "--json")
	require.NoError(t, err)
	path := writeFile(t, "experiment.json", sim)

	out, err := execute(t, "optimize", path, "--json")
	require.NoError(t, err)

	var resp yield.OptimizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 4, resp.N)
	opt := resp.Strategies[assign.Optimal]
	for id, res := range resp.Strategies {
		assert.LessOrEqual(t, res.Yield, opt.Yield+1e-9, "strategy %s beats optimal", id)
	}
}

func TestOptimize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty array", `[]`},
		{"no matrix", `{"seed": 3}`},
		{"not json", `matrix`},
		{"not square", `[[1, 2]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "m.json", tt.content)
			_, err := execute(t, "optimize", path)
			assert.Error(t, err)
		})
	}

	_, err := execute(t, "optimize", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "optimize")
	assert.Error(t, err)
}

// =============================================================================
// experiment
// =============================================================================

func TestExperiment_JSON(t *testing.T) {
	out, err := execute(t, "experiment", "--trials", "3", "--seed", "5", "--json")
	require.NoError(t, err)

	var report experiment.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.TotalTrials)
	assert.Equal(t, uint64(5), report.Seed)
	assert.Empty(t, report.AllResults)

	greedy, ok := report.Averages[assign.Greedy]
	require.True(t, ok)
	assert.Equal(t, 3, greedy.SuccessCount)
}

func TestExperiment_Plain(t *testing.T) {
	out, err := execute(t, "experiment", "--trials", "2", "--seed", "5", "--n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 trials, base seed 5\n")
	assert.Contains(t, out, "\ttrials\n")
	assert.Contains(t, out, "OK: best: ")
}

func TestExperiment_TooManyTrials(t *testing.T) {
	_, err := execute(t, "experiment", "--trials", "100000")
	assert.ErrorIs(t, err, yield.ErrLimitExceeded)
}

func TestRoot_BadConfig(t *testing.T) {
	cfgPath := writeFile(t, "yieldsim.yaml", "server:\n  port: 0\n")
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"simulate", "--config", cfgPath})
	assert.ErrorIs(t, cmd.Execute(), config.ErrInvalidConfig)
}

// =============================================================================
// Helpers
// =============================================================================

func TestParseMatrixFile(t *testing.T) {
	tests := []struct {
		name string
		data string
		want [][]float64
	}{
		{"bare", `[[1, 2], [3, 4]]`, [][]float64{{1, 2}, {3, 4}}},
		{"matrix field", `{"matrix": [[1]]}`, [][]float64{{1}}},
		{"simulate output", `{"seed": 1, "matrices": {"S": [[2]]}}`, [][]float64{{2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMatrixFile([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseMatrixFile([]byte(`{}`))
	assert.ErrorIs(t, err, errNoMatrix)
}

func TestMarkBest(t *testing.T) {
	rows := []ux.StrategyRow{
		{Strategy: "a", Yield: 10},
		{Strategy: "b", Yield: 12},
		{Strategy: "c", Yield: 12},
	}
	markBest(rows)
	assert.False(t, rows[0].Best)
	assert.True(t, rows[1].Best)
	assert.True(t, rows[2].Best)
}

func TestFormatMatrix(t *testing.T) {
	assert.Equal(t, "   1.0000    2.5000\n   3.0000    4.0000", formatMatrix([][]float64{{1, 2.5}, {3, 4}}))
}

// =============================================================================
// serve
// =============================================================================

func newTestServer(t *testing.T) *server {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	cfg.Server.CORSOrigins = []string{"http://localhost:3000"}

	srv, err := newServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close(context.Background()) })
	return srv
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/yield/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health yield.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, yield.ServiceVersion, health.Version)

	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "aleutian_yield_requests_total")
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/yield/simulate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Reconfigure(t *testing.T) {
	srv := newTestServer(t)
	require.NotNil(t, srv.limiter)

	cfg := config.DefaultConfig()
	cfg.Server.MaxTrials = 7
	cfg.Server.RateLimit = config.RateLimitConfig{RPS: 42, Burst: 3}
	srv.reconfigure(cfg)

	assert.Equal(t, 7, srv.service.Config().MaxTrials)
	assert.Equal(t, rate.Limit(42), srv.limiter.Limit())
	assert.Equal(t, 3, srv.limiter.Burst())
}

func TestServer_ReconfigureTogglesRateLimit(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	cfg.Server.RateLimit = config.RateLimitConfig{}

	srv, err := newServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close(context.Background()) })

	trial := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/yield/experiment",
			bytes.NewReader([]byte(`{"n": 2, "trials": 1, "seed": 1}`)))
		req.Header.Set("Content-Type", "application/json")
		srv.router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.NotNil(t, srv.limiter)
	assert.Equal(t, rate.Inf, srv.limiter.Limit())
	for range 3 {
		assert.Equal(t, http.StatusOK, trial())
	}

	cfg.Server.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	srv.reconfigure(cfg)
	assert.Equal(t, rate.Limit(0.001), srv.limiter.Limit())
	assert.Equal(t, http.StatusOK, trial())
	assert.Equal(t, http.StatusTooManyRequests, trial())

	cfg.Server.RateLimit = config.RateLimitConfig{}
	srv.reconfigure(cfg)
	assert.Equal(t, rate.Inf, srv.limiter.Limit())
	assert.Equal(t, http.StatusOK, trial())
}
