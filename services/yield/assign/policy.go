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

import (
	"slices"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Pool
// =============================================================================

// Pool holds the batches not yet assigned to a stage, in ascending order.
type Pool struct {
	members []int
}

// NewPool returns a pool holding batches 0..n-1.
func NewPool(n int) *Pool {
	members := make([]int, n)
	for i := range members {
		members[i] = i
	}
	return &Pool{members: members}
}

// Len returns the number of available batches.
func (p *Pool) Len() int { return len(p.members) }

// Members returns the available batches in ascending order.
// The slice is owned by the pool; callers must not modify it.
func (p *Pool) Members() []int { return p.members }

// Contains reports whether batch is available.
func (p *Pool) Contains(batch int) bool {
	_, ok := slices.BinarySearch(p.members, batch)
	return ok
}

// Remove takes batch out of the pool.
func (p *Pool) Remove(batch int) bool {
	i, ok := slices.BinarySearch(p.members, batch)
	if !ok {
		return false
	}
	p.members = slices.Delete(p.members, i, i+1)
	return true
}

// ranked returns the available batches ordered by S[·,stage].
// Ties keep ascending batch order.
func (p *Pool) ranked(s *mat.Dense, stage int, descending bool) []int {
	out := slices.Clone(p.members)
	slices.SortStableFunc(out, func(a, b int) int {
		va, vb := s.At(a, stage), s.At(b, stage)
		if descending {
			va, vb = vb, va
		}
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})
	return out
}

// =============================================================================
// Policies
// =============================================================================

// Policy selects one available batch for a stage.
//
// Pick is only called with a non-empty pool and must return a member of it.
// Policies may keep state across stages of a single run, so a schedule must
// be built fresh for every run.
type Policy interface {
	Pick(s *mat.Dense, stage int, pool *Pool) int
}

type maxPolicy struct{}

// MaxPolicy picks the highest utility at the current stage.
func MaxPolicy() Policy { return maxPolicy{} }

func (maxPolicy) Pick(s *mat.Dense, stage int, pool *Pool) int {
	members := pool.Members()
	best := members[0]
	for _, b := range members[1:] {
		if s.At(b, stage) > s.At(best, stage) {
			best = b
		}
	}
	return best
}

type minPolicy struct{}

// MinPolicy picks the lowest utility at the current stage.
func MinPolicy() Policy { return minPolicy{} }

func (minPolicy) Pick(s *mat.Dense, stage int, pool *Pool) int {
	members := pool.Members()
	best := members[0]
	for _, b := range members[1:] {
		if s.At(b, stage) < s.At(best, stage) {
			best = b
		}
	}
	return best
}

type rankPolicy struct {
	k int
}

// RankPolicy picks the k-th smallest utility (1-indexed) at the current
// stage. k beyond the pool size picks the largest.
func RankPolicy(k int) Policy {
	if k < 1 {
		k = 1
	}
	return rankPolicy{k: k}
}

func (r rankPolicy) Pick(s *mat.Dense, stage int, pool *Pool) int {
	ordered := pool.ranked(s, stage, false)
	return ordered[min(r.k-1, len(ordered)-1)]
}

type topKPolicy struct {
	k     int
	queue []int
}

// TopKPolicy re-ranks the pool only at stages 0, k, 2k, ...
//
// At such a stage, if at least k batches remain, the top k by the current
// stage's utility are committed in descending order to the next k stages.
// Stages with no committed batch fall back to MaxPolicy.
func TopKPolicy(k int) Policy {
	if k < 1 {
		k = 1
	}
	return &topKPolicy{k: k}
}

func (t *topKPolicy) Pick(s *mat.Dense, stage int, pool *Pool) int {
	if len(t.queue) == 0 && stage%t.k == 0 && pool.Len() >= t.k {
		t.queue = pool.ranked(s, stage, true)[:t.k]
	}
	if len(t.queue) > 0 {
		b := t.queue[0]
		t.queue = t.queue[1:]
		return b
	}
	return maxPolicy{}.Pick(s, stage, pool)
}
