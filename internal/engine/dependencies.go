package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// AddDependency records that taskID depends on dependsOnID. Blocking edges
// are checked against the project's whole edge set for cycles, and a Todo
// task gains a blocks edge on an unfinished blocker moves to Blocked.
func (e Engine) AddDependency(ctx context.Context, taskID, dependsOnID domain.TaskID, kind domain.DependencyKind, actorID domain.UserID) (domain.TaskDependency, error) {
	if kind == "" {
		kind = domain.DependencyBlocks
	}
	if kind != domain.DependencyBlocks && kind != domain.DependencyRelatesTo {
		return domain.TaskDependency{}, fmt.Errorf("unknown dependency kind %s", kind)
	}
	if taskID == dependsOnID {
		return domain.TaskDependency{}, domain.Violationf(domain.CodeSelfDependency, "task %s cannot depend on itself", taskID)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskDependency{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.TaskDependency{}, err
	}
	dep, err := e.getTaskTx(ctx, tx, dependsOnID)
	if err != nil {
		return domain.TaskDependency{}, err
	}
	if t.ProjectID != dep.ProjectID {
		return domain.TaskDependency{}, domain.Violationf(domain.CodeDependencyMismatch,
			"tasks %s and %s belong to different projects", taskID, dependsOnID)
	}

	if kind == domain.DependencyBlocks {
		edges, err := e.Repo.ProjectEdges(ctx, tx, t.ProjectID)
		if err != nil {
			return domain.TaskDependency{}, err
		}
		// the new edge closes a cycle iff dependsOn can already reach task
		if hasPath(edges, dependsOnID, taskID) {
			return domain.TaskDependency{}, domain.Violationf(domain.CodeCycleDetected,
				"dependency %s -> %s would create a cycle", taskID, dependsOnID)
		}
	}

	now := e.now()
	d := domain.TaskDependency{
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		Kind:        kind,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertDependency(ctx, tx, d); err != nil {
		return domain.TaskDependency{}, fmt.Errorf("insert dependency: %w", err)
	}

	evts := []events.Event{taskEvent(events.TypeDependencyAdded, t, actorID, now,
		events.Payload{"depends_on_id": string(dependsOnID), "kind": string(kind)})}

	if kind == domain.DependencyBlocks && !dep.Status.Terminal() && t.Status == domain.StatusTodo {
		reason := fmt.Sprintf("waiting on %s", dependsOnID)
		if err := t.Block(reason, now); err != nil {
			return domain.TaskDependency{}, err
		}
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return domain.TaskDependency{}, err
		}
		evts = append(evts, taskEvent(events.TypeTaskBlocked, t, actorID, now, events.Payload{"reason": reason}))
	}

	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.TaskDependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskDependency{}, err
	}
	e.emit(evts)
	return d, nil
}

// RemoveDependency deletes the edge. If it was the last unsatisfied blocks
// edge of a Blocked task, the task returns to Todo.
func (e Engine) RemoveDependency(ctx context.Context, taskID, dependsOnID domain.TaskID, actorID domain.UserID) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteDependency(ctx, tx, taskID, dependsOnID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Violationf(domain.CodeDependencyNotFound, "task %s does not depend on %s", taskID, dependsOnID)
		}
		return err
	}

	now := e.now()
	evts := []events.Event{taskEvent(events.TypeDependencyRemoved, t, actorID, now,
		events.Payload{"depends_on_id": string(dependsOnID)})}

	if t.Status == domain.StatusBlocked {
		ready, err := e.blockersSatisfied(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if ready {
			if err := t.Unblock(now); err != nil {
				return err
			}
			if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
				return err
			}
			evts = append(evts, taskEvent(events.TypeTaskUnblocked, t, actorID, now, nil))
		}
	}

	if err := e.journalAll(ctx, tx, evts); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emit(evts)
	return nil
}

// ListDependencies returns the tasks the given task depends on.
func (e Engine) ListDependencies(ctx context.Context, taskID domain.TaskID) ([]domain.TaskDependency, error) {
	return e.Repo.ListDependenciesRO(ctx, taskID)
}

// unblockReadyDependents moves every Blocked dependent of finishedID whose
// blocking dependencies are now all settled back to Todo. Exactly one
// unblock event is produced per task that changes.
func (e Engine) unblockReadyDependents(ctx context.Context, tx *sql.Tx, finishedID domain.TaskID, actorID domain.UserID, now time.Time) ([]events.Event, error) {
	dependents, err := e.Repo.ListDependents(ctx, tx, finishedID)
	if err != nil {
		return nil, err
	}
	var evts []events.Event
	for _, edge := range dependents {
		if edge.Kind != domain.DependencyBlocks {
			continue
		}
		dep, err := e.Repo.GetTaskTx(ctx, tx, edge.TaskID)
		if err != nil {
			return nil, err
		}
		if dep.Status != domain.StatusBlocked {
			continue
		}
		ready, err := e.blockersSatisfied(ctx, tx, dep.ID)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}
		if err := dep.Unblock(now); err != nil {
			return nil, err
		}
		if err := e.Repo.UpdateTask(ctx, tx, dep); err != nil {
			return nil, err
		}
		evts = append(evts, taskEvent(events.TypeTaskUnblocked, dep, actorID, now,
			events.Payload{"unblocked_by": string(finishedID)}))
	}
	return evts, nil
}

// blockersSatisfied reports whether every blocks dependency of the task
// points at a terminal task.
func (e Engine) blockersSatisfied(ctx context.Context, tx *sql.Tx, taskID domain.TaskID) (bool, error) {
	edges, err := e.Repo.ListDependencies(ctx, tx, taskID)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if edge.Kind != domain.DependencyBlocks {
			continue
		}
		blocker, err := e.Repo.GetTaskTx(ctx, tx, edge.DependsOnID)
		if err != nil {
			return false, err
		}
		if !blocker.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

// hasPath reports whether from can reach to over the blocks edges,
// following task -> depends_on direction.
func hasPath(edges []domain.TaskDependency, from, to domain.TaskID) bool {
	next := map[domain.TaskID][]domain.TaskID{}
	for _, e := range edges {
		if e.Kind != domain.DependencyBlocks {
			continue
		}
		next[e.TaskID] = append(next[e.TaskID], e.DependsOnID)
	}
	visited := map[domain.TaskID]bool{from: true}
	queue := []domain.TaskID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, n := range next[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}
