// Package events carries the engine's two event surfaces: a transactional
// journal appended inside each unit of work, and an in-process bus that
// fans mutations out to subscribers after the transaction commits.
package events

import (
	"time"

	"planline/internal/domain"
)

// Event types dispatched on the bus and recorded in the journal.
const (
	TypeTaskCreated        = "task.created"
	TypeTaskAssigned       = "task.assigned"
	TypeTaskStatusChanged  = "task.status_changed"
	TypeTaskCompleted      = "task.completed"
	TypeTaskBlocked        = "task.blocked"
	TypeTaskUnblocked      = "task.unblocked"
	TypeTaskAbandoned      = "task.abandoned"
	TypeTaskCancelled      = "task.cancelled"
	TypeTaskDelayed        = "task.delayed"
	TypeTaskRanked         = "task.ranked"
	TypeDependencyAdded    = "dependency.added"
	TypeDependencyRemoved  = "dependency.removed"
	TypeScheduleChanged    = "schedule.changed"
	TypeScheduleOverridden = "schedule.overridden"
	TypeMemberAdded        = "member.added"
	TypeProjectInitialized = "project.init"
)

// Payload is the free-form journal payload for one event.
type Payload map[string]any

// Event is one domain event. The same value is written to the journal
// inside the transaction and dispatched on the bus after commit.
type Event struct {
	Type       string
	ProjectID  domain.ProjectID
	EntityKind string
	EntityID   string
	ActorID    domain.UserID
	At         time.Time
	Payload    Payload
}
