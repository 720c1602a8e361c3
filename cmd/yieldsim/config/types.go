// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the yieldsim YAML configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianYield/services/yield"
	"github.com/AleutianAI/AleutianYield/services/yield/model"
	"github.com/AleutianAI/AleutianYield/services/yield/telemetry"
)

// CurrentConfigVersion is written into newly created config files.
const CurrentConfigVersion = "1"

// ErrInvalidConfig is returned when a loaded config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level yieldsim configuration.
type Config struct {
	Version   string                 `yaml:"version"`
	Server    ServerConfig           `yaml:"server"`
	Telemetry telemetry.Config       `yaml:"telemetry"`
	Logging   LoggingConfig          `yaml:"logging"`
	Cache     CacheConfig            `yaml:"cache"`
	Defaults  model.ExperimentConfig `yaml:"defaults"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port  int  `yaml:"port"`
	Debug bool `yaml:"debug"`

	// RateLimit throttles the trial endpoints. Zero RPS disables it.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	MaxTrials int `yaml:"max_trials"`
	MaxCount  int `yaml:"max_count"`

	// Workers caps concurrent trials per request. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// CORSOrigins lists allowed browser origins. "*" allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

// RateLimitConfig is a token bucket.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the experiment cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	svc := yield.DefaultServiceConfig()
	tel := telemetry.DefaultConfig()
	tel.ServiceVersion = yield.ServiceVersion
	return Config{
		Version: CurrentConfigVersion,
		Server: ServerConfig{
			Port:        8090,
			RateLimit:   RateLimitConfig{RPS: 5, Burst: 10},
			MaxTrials:   svc.MaxTrials,
			MaxCount:    svc.MaxCount,
			CORSOrigins: []string{"*"},
		},
		Telemetry: tel,
		Logging:   LoggingConfig{Level: "info", Dir: "~/.yieldsim/logs"},
		Cache:     CacheConfig{TTL: time.Hour},
		Defaults:  svc.Defaults,
	}
}

// Validate checks the server section and the experiment defaults.
func (c Config) Validate() error {
	var problems []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxTrials <= 0 {
		problems = append(problems, fmt.Errorf("server.max_trials must be positive"))
	}
	if c.Server.MaxCount <= 0 {
		problems = append(problems, fmt.Errorf("server.max_count must be positive"))
	}
	if c.Server.Workers < 0 {
		problems = append(problems, fmt.Errorf("server.workers must not be negative"))
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		problems = append(problems, fmt.Errorf("server.rate_limit must not be negative"))
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, fmt.Errorf("cache.ttl must not be negative"))
	}
	if err := c.Defaults.Validate(); err != nil {
		problems = append(problems, fmt.Errorf("defaults: %w", err))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// ServiceConfig converts the file config into the yield service config.
func (c Config) ServiceConfig() yield.ServiceConfig {
	return yield.ServiceConfig{
		Defaults:  c.Defaults,
		MaxTrials: c.Server.MaxTrials,
		MaxCount:  c.Server.MaxCount,
		Workers:   c.Server.Workers,
	}
}
