// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command yieldsim simulates perishable-batch degradation and compares
// processing-order strategies.
//
// Usage:
//
//	yieldsim serve --port 8090
//	yieldsim simulate --seed 42 --json > experiment.json
//	yieldsim optimize experiment.json
//	yieldsim experiment --trials 100
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:8090/v1/yield/health
//
//	# Generate an experiment
//	curl -X POST http://localhost:8090/v1/yield/simulate \
//	  -H "Content-Type: application/json" \
//	  -d '{"n": 8, "seed": 42}'
//
//	# Compare strategies on a matrix
//	curl -X POST http://localhost:8090/v1/yield/optimize \
//	  -H "Content-Type: application/json" \
//	  -d '{"matrix": [[5, 1], [2, 8]]}'
package main

import (
	"os"

	"github.com/AleutianAI/AleutianYield/pkg/ux"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		ux.NewPrinter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
