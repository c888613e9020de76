package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

const taskColumns = `id,project_id,title,description,status,difficulty,role_id,assignee_id,
expected_start,expected_end,actual_start,actual_end,rank_index,is_delayed,
blocked_reason,cancellation_reason,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status,
		nullableIntPtr(t.Difficulty), rolePtr(t.RoleID), userPtr(t.AssigneeID),
		formatTimePtr(t.ExpectedStart), formatTimePtr(t.ExpectedEnd),
		formatTimePtr(t.ActualStart), formatTimePtr(t.ActualEnd),
		t.RankIndex, boolInt(t.IsDelayed),
		nullableStringPtr(t.BlockedReason), nullableStringPtr(t.CancellationReason),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

// UpdateTask writes every mutable column. Single-writer workspace, so no
// version check.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,description=?,status=?,difficulty=?,role_id=?,assignee_id=?,
expected_start=?,expected_end=?,actual_start=?,actual_end=?,rank_index=?,is_delayed=?,
blocked_reason=?,cancellation_reason=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status,
		nullableIntPtr(t.Difficulty), rolePtr(t.RoleID), userPtr(t.AssigneeID),
		formatTimePtr(t.ExpectedStart), formatTimePtr(t.ExpectedEnd),
		formatTimePtr(t.ActualStart), formatTimePtr(t.ActualEnd),
		t.RankIndex, boolInt(t.IsDelayed),
		nullableStringPtr(t.BlockedReason), nullableStringPtr(t.CancellationReason),
		formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id domain.TaskID) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

func (r Repo) ListProjectTasks(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY rank_index ASC, created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r Repo) ListProjectTasksTx(ctx context.Context, tx *sql.Tx, projectID domain.ProjectID) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY rank_index ASC, created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListAssigneeDoing returns the assignee's in-flight tasks across the
// project, the input to the workload score.
func (r Repo) ListAssigneeDoing(ctx context.Context, tx *sql.Tx, projectID domain.ProjectID, userID domain.UserID) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND assignee_id=? AND status=?`,
		projectID, userID, domain.StatusDoing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var description, roleID, assigneeID sql.NullString
	var expectedStart, expectedEnd, actualStart, actualEnd sql.NullString
	var blockedReason, cancellationReason sql.NullString
	var difficulty sql.NullInt64
	var isDelayed int
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.Status, &difficulty, &roleID, &assigneeID,
		&expectedStart, &expectedEnd, &actualStart, &actualEnd, &t.RankIndex, &isDelayed,
		&blockedReason, &cancellationReason, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = description.String
	if difficulty.Valid {
		d := int(difficulty.Int64)
		t.Difficulty = &d
	}
	if roleID.Valid {
		role := domain.RoleID(roleID.String)
		t.RoleID = &role
	}
	if assigneeID.Valid {
		user := domain.UserID(assigneeID.String)
		t.AssigneeID = &user
	}
	t.ExpectedStart = parseTimePtr(expectedStart)
	t.ExpectedEnd = parseTimePtr(expectedEnd)
	t.ActualStart = parseTimePtr(actualStart)
	t.ActualEnd = parseTimePtr(actualEnd)
	t.IsDelayed = isDelayed != 0
	if blockedReason.Valid {
		t.BlockedReason = &blockedReason.String
	}
	if cancellationReason.Valid {
		t.CancellationReason = &cancellationReason.String
	}
	t.CreatedAt = mustParseTime(createdAt)
	t.UpdatedAt = mustParseTime(updatedAt)
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func rolePtr(r *domain.RoleID) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func userPtr(u *domain.UserID) any {
	if u == nil {
		return nil
	}
	return string(*u)
}
