// Package rank assigns fractional sort keys so tasks can be reordered
// without renumbering their neighbors.
package rank

import (
	"sort"

	"planline/internal/domain"
)

const (
	// minGap is the precision floor; adjacent ranks closer than this
	// trigger a rebalance.
	minGap = 1e-3
	// spacing is the gap between ranks after a rebalance (10, 20, 30, ...).
	spacing = 10.0
)

// CalculateRankIndex returns the rank for inserting at position within
// tasks, which must already be sorted by rank ascending.
func CalculateRankIndex(position int, tasks []domain.Task) float64 {
	if len(tasks) == 0 {
		return 1.0
	}
	if position <= 0 {
		return tasks[0].RankIndex - 1.0
	}
	if position >= len(tasks) {
		return tasks[len(tasks)-1].RankIndex + 1.0
	}
	return (tasks[position-1].RankIndex + tasks[position].RankIndex) / 2.0
}

// ShouldRebalance reports whether any two rank-adjacent tasks differ by
// less than the precision floor.
func ShouldRebalance(tasks []domain.Task) bool {
	if len(tasks) < 2 {
		return false
	}
	ranks := make([]float64, len(tasks))
	for i, t := range tasks {
		ranks[i] = t.RankIndex
	}
	sort.Float64s(ranks)
	for i := 1; i < len(ranks); i++ {
		if ranks[i]-ranks[i-1] < minGap {
			return true
		}
	}
	return false
}

// Rebalance reassigns evenly spaced ranks in place, preserving the current
// order. The caller applies it atomically with whichever write tripped the
// precision floor.
func Rebalance(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].RankIndex < tasks[j].RankIndex })
	for i := range tasks {
		tasks[i].RankIndex = float64(i+1) * spacing
	}
}
