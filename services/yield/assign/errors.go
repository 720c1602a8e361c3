// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assign

import "errors"

var (
	// ErrSolverUnavailable is returned by a Solver that cannot run.
	// The engine treats it as a signal to fall back to greedy.
	ErrSolverUnavailable = errors.New("assignment solver unavailable")

	// ErrUnknownStrategy indicates a strategy identifier the engine does not know.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidNu indicates a phase split outside [0, n].
	ErrInvalidNu = errors.New("nu must be within [0, n]")

	// ErrNoRandomSource indicates the random strategy ran without a generator.
	ErrNoRandomSource = errors.New("random strategy requires a random source")

	// ErrScheduleGap indicates a stage no phase of the schedule covers.
	ErrScheduleGap = errors.New("schedule does not cover stage")

	// ErrInvalidPick indicates a policy chose a batch outside the pool.
	ErrInvalidPick = errors.New("policy picked a batch outside the pool")

	// ErrNotSquare indicates solver weights that are not a square matrix.
	ErrNotSquare = errors.New("weights are not square")

	// ErrNonFiniteWeight indicates a NaN or infinite solver weight.
	ErrNonFiniteWeight = errors.New("weights contain a non-finite value")

	// ErrStrategyPanic wraps a recovered panic from a strategy run.
	ErrStrategyPanic = errors.New("strategy panicked")
)
