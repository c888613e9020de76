package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

func (r Repo) InsertScheduleHistory(ctx context.Context, tx *sql.Tx, h domain.ScheduleHistory) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_history(id,task_id,old_expected_start,old_expected_end,new_expected_start,new_expected_end,reason,caused_by_task_id,changed_by_user_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.TaskID,
		formatTimePtr(h.OldExpectedStart), formatTimePtr(h.OldExpectedEnd),
		formatTimePtr(h.NewExpectedStart), formatTimePtr(h.NewExpectedEnd),
		h.Reason, taskPtr(h.CausedByTaskID), userPtr(h.ChangedByUserID),
		formatTime(h.CreatedAt))
	return err
}

func (r Repo) ListScheduleHistory(ctx context.Context, taskID domain.TaskID) ([]domain.ScheduleHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,old_expected_start,old_expected_end,new_expected_start,new_expected_end,reason,caused_by_task_id,changed_by_user_id,created_at
FROM schedule_history WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScheduleHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// LatestDependencyDelay returns the newest dependency_delay row for the
// task, used by the delay-chain walk to find the upstream cause.
func (r Repo) LatestDependencyDelay(ctx context.Context, taskID domain.TaskID) (domain.ScheduleHistory, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,task_id,old_expected_start,old_expected_end,new_expected_start,new_expected_end,reason,caused_by_task_id,changed_by_user_id,created_at
FROM schedule_history WHERE task_id=? AND reason=? ORDER BY created_at DESC, id DESC LIMIT 1`,
		taskID, domain.ReasonDependencyDelay)
	return scanHistory(row)
}

func scanHistory(row rowScanner) (domain.ScheduleHistory, error) {
	var h domain.ScheduleHistory
	var oldStart, oldEnd, newStart, newEnd, causedBy, changedBy sql.NullString
	var createdAt string
	err := row.Scan(&h.ID, &h.TaskID, &oldStart, &oldEnd, &newStart, &newEnd, &h.Reason, &causedBy, &changedBy, &createdAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.OldExpectedStart = parseTimePtr(oldStart)
	h.OldExpectedEnd = parseTimePtr(oldEnd)
	h.NewExpectedStart = parseTimePtr(newStart)
	h.NewExpectedEnd = parseTimePtr(newEnd)
	if causedBy.Valid {
		id := domain.TaskID(causedBy.String)
		h.CausedByTaskID = &id
	}
	if changedBy.Valid {
		user := domain.UserID(changedBy.String)
		h.ChangedByUserID = &user
	}
	h.CreatedAt = mustParseTime(createdAt)
	return h, nil
}

func taskPtr(t *domain.TaskID) any {
	if t == nil {
		return nil
	}
	return string(*t)
}
