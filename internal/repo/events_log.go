package repo

import (
	"context"
	"database/sql"

	"planline/internal/domain"
)

// LatestEvents returns the newest journal rows, optionally filtered by
// project and event type.
func (r Repo) LatestEvents(ctx context.Context, n int, projectID domain.ProjectID, evtType string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json
FROM events
WHERE (?='' OR project_id=?) AND (?='' OR type=?)
ORDER BY id DESC LIMIT ?`,
		string(projectID), string(projectID), evtType, evtType, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var ts string
		var project, entityID sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Type, &project, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.TS = mustParseTime(ts)
		e.ProjectID = domain.ProjectID(project.String)
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
