package engine

import (
	"context"
	"database/sql"
	"time"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
	"planline/internal/schedule"
)

// completeTask runs the post-completion side effects inside the completing
// transaction: flag the delay, unblock dependents whose last blocker just
// finished, and cascade the delay downstream.
func (e Engine) completeTask(ctx context.Context, tx *sql.Tx, t *domain.Task, actorID domain.UserID, now time.Time) ([]events.Event, error) {
	var evts []events.Event

	if schedule.Delayed(*t) && !t.IsDelayed {
		t.IsDelayed = true
		if err := e.Repo.UpdateTask(ctx, tx, *t); err != nil {
			return nil, err
		}
		evts = append(evts, taskEvent(events.TypeTaskDelayed, *t, actorID, now,
			events.Payload{"delta": schedule.Delta(*t).String()}))
	}

	unblocked, err := e.unblockReadyDependents(ctx, tx, t.ID, actorID, now)
	if err != nil {
		return nil, err
	}
	evts = append(evts, unblocked...)

	if delta := schedule.Delta(*t); delta > 0 {
		shifted, err := e.propagate(ctx, tx, t.ID, delta, actorID, now)
		if err != nil {
			return nil, err
		}
		evts = append(evts, shifted...)
	}
	return evts, nil
}

// DelayReport is the outcome of one delay detection pass.
type DelayReport struct {
	Task    domain.Task
	Delayed bool
	Delta   time.Duration
}

// DetectDelay compares actual to expected end and flags the task when it
// finished late. Running it again on an already flagged task changes
// nothing and emits nothing.
func (e Engine) DetectDelay(ctx context.Context, taskID domain.TaskID, actorID domain.UserID) (DelayReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return DelayReport{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return DelayReport{}, err
	}
	report := DelayReport{Task: t, Delayed: schedule.Delayed(t), Delta: schedule.Delta(t)}
	if !report.Delayed || t.IsDelayed {
		return report, nil
	}

	now := e.now()
	t.IsDelayed = true
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return DelayReport{}, err
	}
	evts := []events.Event{taskEvent(events.TypeTaskDelayed, t, actorID, now,
		events.Payload{"delta": report.Delta.String()})}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return DelayReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return DelayReport{}, err
	}
	e.emit(evts)
	report.Task = t
	return report, nil
}

// PropagateDelay cascades the task's delay through its blocking dependents
// and returns the tasks whose schedules moved.
func (e Engine) PropagateDelay(ctx context.Context, taskID domain.TaskID, actorID domain.UserID) ([]domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	delta := schedule.Delta(t)
	if delta <= 0 {
		return nil, tx.Commit()
	}

	now := e.now()
	evts, err := e.propagate(ctx, tx, t.ID, delta, actorID, now)
	if err != nil {
		return nil, err
	}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return nil, err
	}

	var shifted []domain.Task
	for _, evt := range evts {
		if evt.Type != events.TypeScheduleChanged {
			continue
		}
		moved, err := e.Repo.GetTaskTx(ctx, tx, domain.TaskID(evt.EntityID))
		if err != nil {
			return nil, err
		}
		shifted = append(shifted, moved)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.emit(evts)
	return shifted, nil
}

// propagate walks the blocking dependents of root breadth-first and shifts
// each reachable, non-terminal task once by the largest delay arriving over
// any path. The hop that supplied the winning delay is recorded as the
// cause, and each moved task gets exactly one audit row.
func (e Engine) propagate(ctx context.Context, tx *sql.Tx, root domain.TaskID, delta time.Duration, actorID domain.UserID, now time.Time) ([]events.Event, error) {
	best := map[domain.TaskID]time.Duration{root: delta}
	causedBy := map[domain.TaskID]domain.TaskID{}
	tasks := map[domain.TaskID]domain.Task{}

	load := func(id domain.TaskID) (domain.Task, error) {
		if t, ok := tasks[id]; ok {
			return t, nil
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return domain.Task{}, err
		}
		tasks[id] = t
		return t, nil
	}

	queue := []domain.TaskID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		edges, err := e.Repo.ListDependents(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if edge.Kind != domain.DependencyBlocks {
				continue
			}
			dep, err := load(edge.TaskID)
			if err != nil {
				return nil, err
			}
			if dep.Status.Terminal() {
				continue
			}
			if best[cur] > best[edge.TaskID] {
				best[edge.TaskID] = best[cur]
				causedBy[edge.TaskID] = cur
				queue = append(queue, edge.TaskID)
			}
		}
	}

	var evts []events.Event
	for id, shift := range best {
		if id == root {
			continue
		}
		t := tasks[id]
		oldStart, oldEnd := t.ExpectedStart, t.ExpectedEnd
		if !schedule.Shift(&t, shift) {
			continue
		}
		t.UpdatedAt = now
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return nil, err
		}
		cause := causedBy[id]
		h := domain.ScheduleHistory{
			ID:               domain.NewHistoryID(),
			TaskID:           t.ID,
			OldExpectedStart: oldStart,
			OldExpectedEnd:   oldEnd,
			NewExpectedStart: t.ExpectedStart,
			NewExpectedEnd:   t.ExpectedEnd,
			Reason:           domain.ReasonDependencyDelay,
			CausedByTaskID:   &cause,
			CreatedAt:        now,
		}
		if err := e.Repo.InsertScheduleHistory(ctx, tx, h); err != nil {
			return nil, err
		}
		evts = append(evts, taskEvent(events.TypeScheduleChanged, t, actorID, now,
			events.Payload{"shift": shift.String(), "caused_by": string(cause)}))
	}
	return evts, nil
}

// OverrideOptions are parameters for a manual schedule override.
type OverrideOptions struct {
	TaskID        domain.TaskID
	ExpectedStart *time.Time
	ExpectedEnd   *time.Time
	Reason        domain.ChangeReason
	ActorID       domain.UserID
}

// OverrideSchedule lets a manager rewrite a task's expected dates. The
// change is audited under the given reason, and pushing the expected end
// later cascades to dependents like a detected delay would.
func (e Engine) OverrideSchedule(ctx context.Context, opts OverrideOptions) (domain.Task, error) {
	if opts.Reason == "" {
		opts.Reason = domain.ReasonManualOverride
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.requireManagerTx(ctx, tx, t.ProjectID, opts.ActorID); err != nil {
		return domain.Task{}, err
	}
	if t.Status.Terminal() {
		return domain.Task{}, domain.Violationf(terminalCode(t.Status), "task %s is %s and cannot be rescheduled", t.ID, t.Status)
	}

	now := e.now()
	oldStart, oldEnd := t.ExpectedStart, t.ExpectedEnd
	if opts.ExpectedStart != nil {
		s := opts.ExpectedStart.UTC()
		t.ExpectedStart = &s
	}
	if opts.ExpectedEnd != nil {
		end := opts.ExpectedEnd.UTC()
		t.ExpectedEnd = &end
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	h := domain.ScheduleHistory{
		ID:               domain.NewHistoryID(),
		TaskID:           t.ID,
		OldExpectedStart: oldStart,
		OldExpectedEnd:   oldEnd,
		NewExpectedStart: t.ExpectedStart,
		NewExpectedEnd:   t.ExpectedEnd,
		Reason:           opts.Reason,
		ChangedByUserID:  &opts.ActorID,
		CreatedAt:        now,
	}
	if err := e.Repo.InsertScheduleHistory(ctx, tx, h); err != nil {
		return domain.Task{}, err
	}
	evts := []events.Event{taskEvent(events.TypeScheduleOverridden, t, opts.ActorID, now,
		events.Payload{"reason": string(opts.Reason)})}

	if oldEnd != nil && t.ExpectedEnd != nil {
		if delta := t.ExpectedEnd.Sub(*oldEnd); delta > 0 {
			shifted, err := e.propagate(ctx, tx, t.ID, delta, opts.ActorID, now)
			if err != nil {
				return domain.Task{}, err
			}
			evts = append(evts, shifted...)
		}
	}

	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// ScheduleHistory returns the task's audit trail, oldest first.
func (e Engine) ScheduleHistory(ctx context.Context, taskID domain.TaskID) ([]domain.ScheduleHistory, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListScheduleHistory(ctx, taskID)
}

// ChainLink is one hop in a delay's causal chain, from the affected task
// back toward the origin.
type ChainLink struct {
	TaskID         domain.TaskID  `json:"task_id"`
	Title          string         `json:"title"`
	Reason         string         `json:"reason"`
	Shift          time.Duration  `json:"shift,omitempty"`
	CausedByTaskID *domain.TaskID `json:"caused_by_task_id,omitempty"`
}

// DelayChain walks the audit trail backward from the task to the delay's
// origin. A hop whose cause cannot be established ends the chain with
// reason "unresolved"; the origin task itself closes it with "origin".
func (e Engine) DelayChain(ctx context.Context, taskID domain.TaskID) ([]ChainLink, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	var chain []ChainLink
	visited := map[domain.TaskID]bool{}
	current := taskID
	for {
		if visited[current] {
			break
		}
		visited[current] = true

		t, err := e.Repo.GetTask(ctx, current)
		if err == repo.ErrNotFound {
			// dangling caused_by reference; close the chain instead of failing
			chain = append(chain, ChainLink{TaskID: current, Reason: "unresolved"})
			break
		}
		if err != nil {
			return nil, err
		}
		h, err := e.Repo.LatestDependencyDelay(ctx, current)
		if err == repo.ErrNotFound {
			reason := "unresolved"
			if t.IsDelayed || schedule.Delayed(t) {
				reason = "origin"
			}
			chain = append(chain, ChainLink{TaskID: t.ID, Title: t.Title, Reason: reason, Shift: schedule.Delta(t)})
			break
		}
		if err != nil {
			return nil, err
		}
		var shift time.Duration
		if h.OldExpectedEnd != nil && h.NewExpectedEnd != nil {
			shift = h.NewExpectedEnd.Sub(*h.OldExpectedEnd)
		}
		if h.CausedByTaskID == nil {
			chain = append(chain, ChainLink{TaskID: t.ID, Title: t.Title, Reason: "unresolved", Shift: shift})
			break
		}
		chain = append(chain, ChainLink{
			TaskID:         t.ID,
			Title:          t.Title,
			Reason:         string(h.Reason),
			Shift:          shift,
			CausedByTaskID: h.CausedByTaskID,
		})
		current = *h.CausedByTaskID
	}
	return chain, nil
}

func terminalCode(s domain.TaskStatus) domain.Code {
	if s == domain.StatusCancelled {
		return domain.CodeCancelledIsTerminal
	}
	return domain.CodeDoneIsTerminal
}
