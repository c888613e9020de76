package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.TaskDependency) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_deps(task_id,depends_on_id,kind,created_at) VALUES (?,?,?,?)`,
		d.TaskID, d.DependsOnID, d.Kind, formatTime(d.CreatedAt))
	return err
}

func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID domain.TaskID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_deps WHERE task_id=? AND depends_on_id=?`, taskID, dependsOnID)
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

// ListDependencies returns the edges out of taskID: the tasks it depends on.
func (r Repo) ListDependencies(ctx context.Context, tx *sql.Tx, taskID domain.TaskID) ([]domain.TaskDependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT task_id,depends_on_id,kind,created_at FROM task_deps WHERE task_id=? ORDER BY created_at ASC, depends_on_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeps(rows)
}

// ListDependents returns the edges into taskID: the tasks that depend on it.
func (r Repo) ListDependents(ctx context.Context, tx *sql.Tx, taskID domain.TaskID) ([]domain.TaskDependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT task_id,depends_on_id,kind,created_at FROM task_deps WHERE depends_on_id=? ORDER BY created_at ASC, task_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeps(rows)
}

func (r Repo) ListDependenciesRO(ctx context.Context, taskID domain.TaskID) ([]domain.TaskDependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,depends_on_id,kind,created_at FROM task_deps WHERE task_id=? ORDER BY created_at ASC, depends_on_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeps(rows)
}

// ProjectEdges loads the project's full blocking edge set, the input to the
// cycle check.
func (r Repo) ProjectEdges(ctx context.Context, tx *sql.Tx, projectID domain.ProjectID) ([]domain.TaskDependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT d.task_id,d.depends_on_id,d.kind,d.created_at
FROM task_deps d JOIN tasks t ON t.id = d.task_id
WHERE t.project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeps(rows)
}

func collectDeps(rows *sql.Rows) ([]domain.TaskDependency, error) {
	var res []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		var createdAt string
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.Kind, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = mustParseTime(createdAt)
		res = append(res, d)
	}
	return res, rows.Err()
}
