package app

import (
	"context"
	"errors"
	"fmt"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/repo"
)

// ResolveProjectAndConfig picks the active project and its workload config.
// The project comes from the override flag, then planline.yml, then the
// single project in the workspace database. The config comes from
// planline.yml when present and falls back to defaults.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride string, r repo.Repo) (domain.ProjectID, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	projectID := domain.ProjectID(projectOverride)
	if projectID == "" && cfg != nil {
		projectID = domain.ProjectID(cfg.Project.ID)
	}
	if projectID == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("project not specified; use --project or run pl project init")
			}
			return "", nil, err
		}
		projectID = p.ID
	}

	if cfg == nil {
		cfg = config.Default(string(projectID))
	}
	cfg.Project.ID = string(projectID)
	return projectID, cfg, nil
}
