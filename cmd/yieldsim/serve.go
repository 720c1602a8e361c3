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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianYield/cmd/yieldsim/config"
	"github.com/AleutianAI/AleutianYield/services/yield"
	"github.com/AleutianAI/AleutianYield/services/yield/observability"
	"github.com/AleutianAI/AleutianYield/services/yield/store"
	"github.com/AleutianAI/AleutianYield/services/yield/telemetry"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	port        int
	debug       bool
	watchConfig bool
}

// server is the assembled HTTP API and the resources it owns.
type server struct {
	router    *gin.Engine
	service   *yield.Service
	limiter   *rate.Limiter
	store     *store.Store
	providers *telemetry.Providers
}

// newServer wires telemetry, metrics, the experiment cache and the routes.
//
// Description:
//
//	One Prometheus registry carries the Go runtime collectors, the HTTP
//	metrics and, with the prometheus exporter, the OTel instruments. It is
//	served at /metrics.
//
// Outputs:
//
//	*server - Ready to serve. Call close when done.
//	error - Non-nil if telemetry or the cache cannot start.
func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	providers, err := telemetry.Init(ctx, cfg.Telemetry, reg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	metricsHandler := providers.MetricsHandler()
	if metricsHandler == nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	st, err := store.Open(store.Config{TTL: cfg.Cache.TTL, Logger: logger})
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	metrics := observability.NewMetrics(reg)
	svc := yield.NewService(cfg.ServiceConfig(), st, logger).WithMetrics(metrics)
	handlers := yield.NewHandlers(svc).WithMetrics(metrics)

	// Always installed so a reload can turn limiting on or off.
	limiter := rate.NewLimiter(trialLimit(cfg.Server.RateLimit), max(cfg.Server.RateLimit.Burst, 1))
	handlers.WithRateLimit(limiter)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(yield.CORS(cfg.Server.CORSOrigins, metrics))

	router.GET("/metrics", gin.WrapH(metricsHandler))
	v1 := router.Group("/v1")
	yield.RegisterRoutes(v1, handlers)

	return &server{
		router:    router,
		service:   svc,
		limiter:   limiter,
		store:     st,
		providers: providers,
	}, nil
}

// reconfigure applies a reloaded config. Port, telemetry and cache changes
// need a restart.
func (s *server) reconfigure(cfg config.Config) {
	s.service.Reconfigure(cfg.ServiceConfig())
	s.limiter.SetLimit(trialLimit(cfg.Server.RateLimit))
	s.limiter.SetBurst(max(cfg.Server.RateLimit.Burst, 1))
}

// trialLimit maps a non-positive RPS to rate.Inf, which disables limiting.
func trialLimit(rl config.RateLimitConfig) rate.Limit {
	if rl.RPS <= 0 {
		return rate.Inf
	}
	return rate.Limit(rl.RPS)
}

func (s *server) close(ctx context.Context) error {
	return errors.Join(s.store.Close(), s.providers.Shutdown(ctx))
}

// runServe runs the HTTP API until SIGINT or SIGTERM.
func runServe(ctx context.Context, a *app, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.config
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Server.Debug = true
	}
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a.logger.SetDefault()
	logger := a.logger.Slog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.close(shutdownCtx); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	}()

	if opts.watchConfig {
		go func() {
			if err := config.Watch(ctx, a.configPath, logger, srv.reconfigure); err != nil {
				logger.Warn("Config watch disabled", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting yieldsim server",
			slog.String("address", httpServer.Addr),
			slog.String("version", yield.ServiceVersion))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down yieldsim server", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Shutting down yieldsim server")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
