// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StrategyRow is one line of a strategy results table.
type StrategyRow struct {
	Strategy     string
	Yield        float64
	FinalMass    float64
	RelativeLoss *float64
	Permutation  []int
	Successes    int
	Degraded     bool
	Best         bool
}

// StrategyTable renders strategy results.
//
// Description:
//
//	Plain mode writes a header line and one tab-separated line per row.
//	Rich mode aligns columns, highlights the best row, and marks degraded
//	rows. Permutations longer than 12 entries are elided in rich mode.
//	The Successes column appears only when some row sets it.
func StrategyTable(rows []StrategyRow, mode Mode) string {
	withPerm := false
	withSuccesses := false
	for _, r := range rows {
		withPerm = withPerm || r.Permutation != nil
		withSuccesses = withSuccesses || r.Successes > 0
	}

	header := []string{"strategy", "yield", "final_mass", "relative_loss"}
	if withSuccesses {
		header = append(header, "trials")
	}
	if withPerm {
		header = append(header, "permutation")
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		line := []string{
			r.Strategy,
			fmt.Sprintf("%.4f", r.Yield),
			fmt.Sprintf("%.2f", r.FinalMass),
			formatLoss(r.RelativeLoss),
		}
		if withSuccesses {
			line = append(line, fmt.Sprintf("%d", r.Successes))
		}
		if withPerm {
			line = append(line, formatPermutation(r.Permutation, mode == ModeRich))
		}
		cells[i] = line
	}

	if mode == ModePlain {
		var b strings.Builder
		b.WriteString(strings.Join(header, "\t"))
		b.WriteByte('\n')
		for i, line := range cells {
			b.WriteString(strings.Join(line, "\t"))
			if rows[i].Degraded {
				b.WriteString("\tdegraded")
			}
			b.WriteByte('\n')
		}
		return b.String()
	}

	widths := make([]int, len(header))
	for c, h := range header {
		widths[c] = lipgloss.Width(h)
	}
	for _, line := range cells {
		for c, cell := range line {
			widths[c] = max(widths[c], lipgloss.Width(cell))
		}
	}

	var lines []string
	lines = append(lines, renderLine(header, widths, Styles.Header))
	for i, line := range cells {
		style := lipgloss.NewStyle()
		if rows[i].Best {
			style = Styles.Highlight
		}
		rendered := renderLine(line, widths, style)
		if rows[i].Degraded {
			rendered += " " + IconWarning.Render() + Styles.Warning.Render(" degraded")
		}
		lines = append(lines, rendered)
	}
	return Styles.Box.Render(strings.Join(lines, "\n"))
}

func renderLine(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(cells))
	for c, cell := range cells {
		align := lipgloss.Right
		if c == 0 || c == len(cells)-1 && strings.HasPrefix(cell, "[") {
			align = lipgloss.Left
		}
		parts[c] = style.Width(widths[c]).Align(align).Render(cell)
	}
	return strings.Join(parts, "  ")
}

func formatLoss(loss *float64) string {
	if loss == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *loss)
}

func formatPermutation(perm []int, elide bool) string {
	if perm == nil {
		return "-"
	}
	shown := perm
	if elide && len(perm) > 12 {
		shown = perm[:12]
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = fmt.Sprintf("%d", v)
	}
	s := "[" + strings.Join(parts, " ")
	if len(shown) < len(perm) {
		s += fmt.Sprintf(" …+%d", len(perm)-len(shown))
	}
	return s + "]"
}
