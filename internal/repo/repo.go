package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
)

// Repo is the SQLite-backed store. Methods with a Tx suffix run inside the
// caller's transaction; the rest open their own read.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,status,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, p.Status, formatTime(p.CreatedAt))
	return err
}

func (r Repo) GetProject(ctx context.Context, id domain.ProjectID) (domain.Project, error) {
	var p domain.Project
	var createdAt string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Status, &createdAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.CreatedAt = mustParseTime(createdAt)
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = mustParseTime(createdAt)
		res = append(res, p)
	}
	return res, rows.Err()
}

// SingleProject returns the only project in the workspace, or ErrNotFound
// when there are zero or several.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) != 1 {
		return domain.Project{}, ErrNotFound
	}
	return projects[0], nil
}

func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(id,project_id,user_id,role_id,level,base_capacity,is_manager,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.UserID, m.RoleID, m.Level, m.BaseCapacity, boolInt(m.IsManager), formatTime(m.CreatedAt))
	return err
}

func (r Repo) GetMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (domain.ProjectMember, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,user_id,role_id,level,base_capacity,is_manager,created_at
FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	return scanMember(row)
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, projectID domain.ProjectID, userID domain.UserID) (domain.ProjectMember, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,project_id,user_id,role_id,level,base_capacity,is_manager,created_at
FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	return scanMember(row)
}

func scanMember(row *sql.Row) (domain.ProjectMember, error) {
	var m domain.ProjectMember
	var isManager int
	var createdAt string
	err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.RoleID, &m.Level, &m.BaseCapacity, &isManager, &createdAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.IsManager = isManager != 0
	m.CreatedAt = mustParseTime(createdAt)
	return m, nil
}

func (r Repo) ListMembers(ctx context.Context, projectID domain.ProjectID) ([]domain.ProjectMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,user_id,role_id,level,base_capacity,is_manager,created_at
FROM project_members WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		var isManager int
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.RoleID, &m.Level, &m.BaseCapacity, &isManager, &createdAt); err != nil {
			return nil, err
		}
		m.IsManager = isManager != 0
		m.CreatedAt = mustParseTime(createdAt)
		res = append(res, m)
	}
	return res, rows.Err()
}

// MemberRoles returns every role the user holds across their memberships in
// the project. With one membership per user this is a single role, but the
// claim check works off the full list.
func (r Repo) MemberRoles(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) ([]domain.RoleID, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.RoleID
	for rows.Next() {
		var role domain.RoleID
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// --- time and null helpers ---

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func mustParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// schema stores RFC3339 only; a bad row is a programming error
		panic(fmt.Sprintf("repo: malformed timestamp %q: %v", s, err))
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := mustParseTime(s.String)
	return &t
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
