// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianYield/services/yield/model"
)

// TestLoad_CreatesDefault verifies first-run creation.
func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".yieldsim", "yieldsim.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))

	if onDisk.Version != CurrentConfigVersion {
		t.Errorf("Version = %q, want %q", onDisk.Version, CurrentConfigVersion)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
	assert.Equal(t, time.Hour, onDisk.Cache.TTL)
	assert.Equal(t, model.DefaultExperimentConfig(), cfg.Defaults)
}

// TestLoad_ExistingFile verifies an existing file is not overwritten.
func TestLoad_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yieldsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 9001\n", string(data))
}

// TestParse_PartialKeepsDefaults verifies omitted fields keep defaults.
func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
defaults:
  n: 6
  enable_ripening: true
  v: 2
cache:
  ttl: 15m
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Defaults.N)
	assert.True(t, cfg.Defaults.EnableRipening)
	assert.Equal(t, 2, cfg.Defaults.V)
	assert.Equal(t, model.DefaultExperimentConfig().Beta1, cfg.Defaults.Beta1)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Server.MaxTrials)
}

// TestParse_EnvOverrides verifies environment variables win over the file.
func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "7777")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg, err := Parse([]byte("server:\n  port: 9001\ntelemetry:\n  trace_exporter: none\n"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "stdout", cfg.Telemetry.TraceExporter)
}

func TestParse_BadEnvPort(t *testing.T) {
	t.Setenv(EnvPort, "eighty")
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		invalid bool
	}{
		{"malformed", "server: [", false},
		{"port", "server:\n  port: 0\n", true},
		{"max trials", "server:\n  max_trials: -1\n", true},
		{"workers", "server:\n  workers: -2\n", true},
		{"rate limit", "server:\n  rate_limit:\n    rps: -1\n", true},
		{"ttl", "cache:\n  ttl: -1s\n", true},
		{"defaults", "defaults:\n  n: 0\n", true},
		{"growth base", "defaults:\n  growth_base: 1.5\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestParse_DefaultsValidationKeepsProblemList(t *testing.T) {
	_, err := Parse([]byte("defaults:\n  n: 0\n"))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Problems)
}

func TestServiceConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.MaxTrials = 12
	cfg.Server.MaxCount = 3
	cfg.Server.Workers = 4
	cfg.Defaults.N = 7

	sc := cfg.ServiceConfig()
	assert.Equal(t, 12, sc.MaxTrials)
	assert.Equal(t, 3, sc.MaxCount)
	assert.Equal(t, 4, sc.Workers)
	assert.Equal(t, 7, sc.Defaults.N)
}

// TestWatch_Reloads verifies edits reach the callback and bad edits do not.
func TestWatch_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yieldsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var port atomic.Int64
	go func() {
		done <- Watch(ctx, path, nil, func(cfg Config) {
			port.Store(int64(cfg.Server.Port))
		})
	}()

	// The watcher starts asynchronously, so keep writing until it notices.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0644)
		return port.Load() == 9100
	}, 5*time.Second, 200*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -5\n"), 0644))
	time.Sleep(4 * reloadDelay)
	assert.Equal(t, int64(9100), port.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "x.yaml"), nil, func(Config) {})
	assert.Error(t, err)
}
