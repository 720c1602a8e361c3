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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianYield/cmd/yieldsim/config"
	"github.com/AleutianAI/AleutianYield/pkg/logging"
	"github.com/AleutianAI/AleutianYield/services/yield"
)

// app is the state shared by every subcommand once the root has loaded
// the config.
type app struct {
	configPath string
	logLevel   string

	config config.Config
	logger *logging.Logger
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "yieldsim",
		Short:         "Perishable batch yield simulator",
		Long:          "yieldsim generates degradation experiments for perishable batches and compares processing-order strategies.",
		Version:       yield.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Config file (default ~/.yieldsim/yieldsim.yaml, created on first run)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level override: debug, info, warn, error")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newSimulateCmd(a))
	rootCmd.AddCommand(newOptimizeCmd(a))
	rootCmd.AddCommand(newExperimentCmd(a))
	return rootCmd
}

// load reads the config file and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	if a.configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configPath = path
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", a.configPath, err)
	}
	a.config = cfg

	levelName := cfg.Logging.Level
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.logger = logger
	return nil
}

// service builds an uncached yield service for one-shot commands.
func (a *app) service() *yield.Service {
	return yield.NewService(a.config.ServiceConfig(), nil, a.logger.Slog())
}

// =============================================================================
// serve
// =============================================================================

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable gin debug mode and request logging")
	cmd.Flags().BoolVar(&opts.watchConfig, "watch-config", false, "Reload the config file when it changes")
	return cmd
}

// =============================================================================
// simulate
// =============================================================================

func newSimulateCmd(a *app) *cobra.Command {
	var (
		seed    uint64
		n       int
		asJSON  bool
		showAll bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate one experiment from the configured defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config.Defaults
			if n > 0 {
				cfg.N = n
			}
			var seedPtr *uint64
			if cmd.Flags().Changed("seed") {
				seedPtr = &seed
			}

			resp, err := a.service().Simulate(cmd.Context(), cfg, seedPtr)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			renderSimulation(cmd.OutOrStdout(), resp, showAll)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed (default random)")
	cmd.Flags().IntVar(&n, "n", 0, "Number of batches and stages (overrides defaults.n)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the experiment as JSON")
	cmd.Flags().BoolVar(&showAll, "all", false, "Print B, C and L as well as S")
	return cmd
}

// =============================================================================
// optimize
// =============================================================================

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		params yield.StrategyParams
		nu     int
		mass   float64
		seed   uint64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "optimize <matrix.json>",
		Short: "Run every strategy over a utility matrix",
		Long: "Run every strategy over a utility matrix. The file holds either a bare " +
			"JSON array of rows or the output of 'yieldsim simulate --json'.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading matrix file: %w", err)
			}
			matrix, err := parseMatrixFile(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			req := yield.OptimizeRequest{
				StrategyParams: params,
				Matrix:         matrix,
				MassPerBatch:   mass,
			}
			if cmd.Flags().Changed("nu") {
				req.Nu = &nu
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			resp, err := a.service().Optimize(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			renderOptimize(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&nu, "nu", 0, "Phase split for the two-phase strategies (default floor(n/2))")
	cmd.Flags().IntVar(&params.TKGRank, "tkg-rank", 0, "k for t(k)g (default 2)")
	cmd.Flags().IntVar(&params.GKPeriod, "gk-period", 0, "k for g(k) (default 2)")
	cmd.Flags().Float64Var(&mass, "mass", 0, "Mass per batch (default 1000)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the random strategy (default random)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

// =============================================================================
// experiment
// =============================================================================

func newExperimentCmd(a *app) *cobra.Command {
	var (
		req    yield.ExperimentRequest
		n      int
		seed   uint64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run many generated experiments and average each strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ExperimentConfig = a.config.Defaults
			if n > 0 {
				req.N = n
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			report, err := a.service().RunExperiment(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			renderExperiment(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Trials, "trials", 50, "Number of generated experiments")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Concurrent trials (default server.workers or GOMAXPROCS)")
	cmd.Flags().IntVar(&n, "n", 0, "Number of batches and stages (overrides defaults.n)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Base seed; trial i uses seed+i (default random)")
	cmd.Flags().BoolVar(&req.Detail, "detail", false, "Include every trial in JSON output")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
