package domain

import "time"

// transitions is the legal status table. Done and Cancelled have no
// outgoing arcs.
var transitions = map[TaskStatus][]TaskStatus{
	StatusTodo:    {StatusDoing, StatusBlocked, StatusCancelled},
	StatusBlocked: {StatusTodo, StatusCancelled},
	StatusDoing:   {StatusDone, StatusTodo, StatusBlocked, StatusCancelled},
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the task to the given status, validating against the
// transition table. Entering Done stamps the completion marker; entering
// Cancelled is only legal through Cancel, which records the reason.
func (t *Task) TransitionTo(status TaskStatus, now time.Time) error {
	switch t.Status {
	case StatusDone:
		return Violationf(CodeDoneIsTerminal, "task %s is done and cannot change status", t.ID)
	case StatusCancelled:
		return Violationf(CodeCancelledIsTerminal, "task %s is cancelled and cannot change status", t.ID)
	}
	if !CanTransition(t.Status, status) {
		return Violationf(CodeInvalidStatusTransition, "cannot move task %s from %s to %s", t.ID, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = now
	if status == StatusDoing && t.ActualStart == nil {
		start := now
		t.ActualStart = &start
	}
	if status == StatusDone && t.ActualEnd == nil {
		end := now
		t.ActualEnd = &end
	}
	return nil
}

// Claim assigns the task to actor and starts work. The actor must hold the
// task's required role and the difficulty must already be set.
func (t *Task) Claim(actor UserID, actorRoles []RoleID, now time.Time) error {
	if t.Difficulty == nil {
		return Violationf(CodeDifficultyNotSet, "task %s has no difficulty; set it before claiming", t.ID)
	}
	if t.AssigneeID != nil {
		return Violationf(CodeTaskAlreadyClaimed, "task %s is already claimed by %s", t.ID, *t.AssigneeID)
	}
	if t.RoleID != nil && !hasRole(actorRoles, *t.RoleID) {
		return Violationf(CodeUserMissingRole, "user %s does not hold role %s required by task %s", actor, *t.RoleID, t.ID)
	}
	if err := t.TransitionTo(StatusDoing, now); err != nil {
		return err
	}
	t.AssigneeID = &actor
	return nil
}

// Block moves the task to Blocked and records the reason. Only Todo and
// Doing tasks can be blocked.
func (t *Task) Block(reason string, now time.Time) error {
	if err := t.TransitionTo(StatusBlocked, now); err != nil {
		return err
	}
	t.BlockedReason = &reason
	return nil
}

// Unblock returns a Blocked task to Todo and clears the reason.
func (t *Task) Unblock(now time.Time) error {
	if t.Status != StatusBlocked {
		return Violationf(CodeInvalidStatusTransition, "cannot unblock task %s in status %s", t.ID, t.Status)
	}
	if err := t.TransitionTo(StatusTodo, now); err != nil {
		return err
	}
	t.BlockedReason = nil
	return nil
}

// Abandon returns a Doing task to Todo and clears the assignee. The same
// mutation serves voluntary abandonment, managerial release and
// cancellation cleanup; callers differ only in the audit record they attach.
func (t *Task) Abandon(now time.Time) error {
	if t.Status != StatusDoing {
		return Violationf(CodeInvalidStatusTransition, "cannot abandon task %s in status %s", t.ID, t.Status)
	}
	if err := t.TransitionTo(StatusTodo, now); err != nil {
		return err
	}
	t.AssigneeID = nil
	return nil
}

// Cancel moves the task to Cancelled and records why.
func (t *Task) Cancel(reason string, now time.Time) error {
	if err := t.TransitionTo(StatusCancelled, now); err != nil {
		return err
	}
	t.CancellationReason = &reason
	return nil
}

// SetDifficulty records the 1-10 estimate required before claiming.
func (t *Task) SetDifficulty(difficulty int, now time.Time) error {
	switch t.Status {
	case StatusDone:
		return Violationf(CodeDoneIsTerminal, "task %s is done and cannot change", t.ID)
	case StatusCancelled:
		return Violationf(CodeCancelledIsTerminal, "task %s is cancelled and cannot change", t.ID)
	}
	if difficulty < 1 || difficulty > 10 {
		return Violationf(CodeInvalidDifficulty, "difficulty must be between 1 and 10, got %d", difficulty)
	}
	t.Difficulty = &difficulty
	t.UpdatedAt = now
	return nil
}

func hasRole(roles []RoleID, want RoleID) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
