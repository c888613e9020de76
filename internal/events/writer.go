package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends events to the journal table inside the caller's
// transaction, so the audit row commits or rolls back with the mutation.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt Event) error {
	ts := evt.At
	if ts.IsZero() {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		ts = now()
	}
	payload := evt.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts.UTC().Format(time.RFC3339), evt.Type, nullable(string(evt.ProjectID)), evt.EntityKind, nullable(evt.EntityID), string(evt.ActorID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
