// Package schedule holds the pure date math for delay detection and
// cascading reschedules. The transactional traversal that feeds it lives in
// the engine; nothing here touches storage or emits events.
package schedule

import (
	"time"

	"planline/internal/domain"
)

// Delayed reports whether the task finished after its expected end. Both
// dates must be known.
func Delayed(t domain.Task) bool {
	if t.ActualEnd == nil || t.ExpectedEnd == nil {
		return false
	}
	return t.ActualEnd.After(*t.ExpectedEnd)
}

// Delta is the magnitude of the delay, zero when not delayed.
func Delta(t domain.Task) time.Duration {
	if !Delayed(t) {
		return 0
	}
	return t.ActualEnd.Sub(*t.ExpectedEnd)
}

// Shift moves the task's expected dates by delta, respecting the lifecycle:
// a started task keeps its expected start (the real start never moves
// retroactively) and only the end shifts; an unstarted task shifts both,
// preserving its duration exactly. Terminal tasks are never shifted.
// Reports whether anything changed.
func Shift(t *domain.Task, delta time.Duration) bool {
	if delta <= 0 || t.Status.Terminal() {
		return false
	}
	changed := false
	if t.ActualStart == nil && t.ExpectedStart != nil {
		start := t.ExpectedStart.Add(delta)
		t.ExpectedStart = &start
		changed = true
	}
	if t.ExpectedEnd != nil {
		end := t.ExpectedEnd.Add(delta)
		t.ExpectedEnd = &end
		changed = true
	}
	return changed
}
