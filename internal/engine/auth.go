package engine

import (
	"context"
	"database/sql"

	"planline/internal/domain"
	"planline/internal/repo"
)

// IsManager reports whether the user holds a manager membership in the
// project. A non-member is simply not a manager.
func (e Engine) IsManager(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error) {
	m, err := e.Repo.GetMember(ctx, projectID, userID)
	if err == repo.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsManager, nil
}

func (e Engine) requireManagerTx(ctx context.Context, tx *sql.Tx, projectID domain.ProjectID, userID domain.UserID) error {
	m, err := e.Repo.GetMemberTx(ctx, tx, projectID, userID)
	if err == repo.ErrNotFound {
		return domain.Violationf(domain.CodeMemberNotFound, "user %s is not a member of project %s", userID, projectID)
	}
	if err != nil {
		return err
	}
	if !m.IsManager {
		return domain.Violationf(domain.CodeUserMissingRole, "user %s is not a manager of project %s", userID, projectID)
	}
	return nil
}
