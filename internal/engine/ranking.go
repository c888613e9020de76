package engine

import (
	"context"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/rank"
)

// RankTask moves the task to the given position in the project's order.
// Position counts over the other tasks: 0 is first, len is last. When the
// insert squeezes two ranks below the precision floor, the whole project is
// rebalanced in the same transaction.
func (e Engine) RankTask(ctx context.Context, taskID domain.TaskID, position int, actorID domain.UserID) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	siblings, err := e.Repo.ListProjectTasksTx(ctx, tx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	others := excludeTask(siblings, t.ID)

	now := e.now()
	t.RankIndex = rank.CalculateRankIndex(position, others)
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}

	all := append(others, t)
	if rank.ShouldRebalance(all) {
		rank.Rebalance(all)
		for _, sibling := range all {
			sibling.UpdatedAt = now
			if err := e.Repo.UpdateTask(ctx, tx, sibling); err != nil {
				return domain.Task{}, err
			}
			if sibling.ID == t.ID {
				t = sibling
			}
		}
	}

	evts := []events.Event{taskEvent(events.TypeTaskRanked, t, actorID, now,
		events.Payload{"position": position, "rank_index": t.RankIndex})}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}
