// Package workload computes load scores, effective capacity and admission
// decisions. Everything here is a pure function over (current state,
// candidate); persistence and event emission belong to the caller.
package workload

import (
	"math"

	"planline/internal/domain"
)

type Status string

const (
	StatusImpossible Status = "impossible" // ratio > 1.5
	StatusTight      Status = "tight"      // ratio > 1.2
	StatusHealthy    Status = "healthy"    // ratio > 0.7
	StatusRelaxed    Status = "relaxed"    // ratio > 0.3
	StatusIdle       Status = "idle"       // ratio <= 0.3
)

// DefaultMultipliers are the standard per-level capacity multipliers.
// Deployments override them through config; nothing below hardwires them.
var DefaultMultipliers = map[domain.MemberLevel]float64{
	domain.LevelJunior:     0.6,
	domain.LevelMid:        1.0,
	domain.LevelSenior:     1.3,
	domain.LevelSpecialist: 1.2,
	domain.LevelLead:       1.1,
}

// defaultDifficulty is charged for tasks whose difficulty was never set.
const defaultDifficulty = 1

// Score sums the difficulty of the member's Doing tasks.
func Score(tasks []domain.Task) int {
	score := 0
	for _, t := range tasks {
		if t.Status != domain.StatusDoing {
			continue
		}
		score += difficultyOf(t)
	}
	return score
}

// Capacity is base capacity scaled by the level multiplier. Unknown levels
// fall back to a multiplier of 1.0.
func Capacity(baseCapacity int, level domain.MemberLevel, multipliers map[domain.MemberLevel]float64) float64 {
	if multipliers == nil {
		multipliers = DefaultMultipliers
	}
	m, ok := multipliers[level]
	if !ok {
		m = 1.0
	}
	return float64(baseCapacity) * m
}

// Ratio is score/capacity; infinite when capacity is zero but work exists.
func Ratio(score int, capacity float64) float64 {
	if capacity == 0 {
		if score == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(score) / capacity
}

// StatusFor buckets a ratio. Comparisons are strictly greater; the first
// matching rule wins.
func StatusFor(score int, capacity float64) Status {
	ratio := Ratio(score, capacity)
	switch {
	case ratio > 1.5:
		return StatusImpossible
	case ratio > 1.2:
		return StatusTight
	case ratio > 0.7:
		return StatusHealthy
	case ratio > 0.3:
		return StatusRelaxed
	default:
		return StatusIdle
	}
}

// Snapshot is the derived view of one member's load. It is never stored.
type Snapshot struct {
	Score    int     `json:"score"`
	Capacity float64 `json:"capacity"`
	Ratio    float64 `json:"ratio"`
	Status   Status  `json:"status"`
}

func Evaluate(tasks []domain.Task, baseCapacity int, level domain.MemberLevel, multipliers map[domain.MemberLevel]float64) Snapshot {
	score := Score(tasks)
	capacity := Capacity(baseCapacity, level, multipliers)
	return Snapshot{
		Score:    score,
		Capacity: capacity,
		Ratio:    Ratio(score, capacity),
		Status:   StatusFor(score, capacity),
	}
}

// WouldBeImpossible simulates adding candidate to the member's current
// Doing set and reports whether the resulting status is impossible. Used as
// the pre-commit admission gate for claim/select; callers reject, never cap.
func WouldBeImpossible(currentTasks []domain.Task, candidate domain.Task, baseCapacity int, level domain.MemberLevel, multipliers map[domain.MemberLevel]float64) bool {
	score := Score(currentTasks) + difficultyOf(candidate)
	capacity := Capacity(baseCapacity, level, multipliers)
	return StatusFor(score, capacity) == StatusImpossible
}

func difficultyOf(t domain.Task) int {
	if t.Difficulty == nil {
		return defaultDifficulty
	}
	return *t.Difficulty
}
