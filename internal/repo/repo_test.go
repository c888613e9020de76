package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/migrate"
	"planline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

func inTx(t *testing.T, r repo.Repo, ctx context.Context, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func seedProject(t *testing.T, r repo.Repo, ctx context.Context, id domain.ProjectID) {
	t.Helper()
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		return r.InsertProject(ctx, tx, domain.Project{
			ID: id, Name: "Test", Status: "active",
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		})
	})
}

func TestTaskRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, "p1")

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	difficulty := 4
	role := domain.RoleID("dev")
	assignee := domain.UserID("alice")
	start := now.Add(24 * time.Hour)
	end := now.Add(96 * time.Hour)
	reason := "waiting on design"

	want := domain.Task{
		ID:            "t1",
		ProjectID:     "p1",
		Title:         "Build the thing",
		Description:   "with care",
		Status:        domain.StatusBlocked,
		Difficulty:    &difficulty,
		RoleID:        &role,
		AssigneeID:    &assignee,
		ExpectedStart: &start,
		ExpectedEnd:   &end,
		RankIndex:     1.5,
		IsDelayed:     true,
		BlockedReason: &reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inTx(t, r, ctx, func(tx *sql.Tx) error { return r.InsertTask(ctx, tx, want) })

	got, err := r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != want.Title || got.Status != want.Status || got.RankIndex != want.RankIndex || !got.IsDelayed {
		t.Fatalf("mismatch: %+v", got)
	}
	if got.Difficulty == nil || *got.Difficulty != 4 {
		t.Fatalf("difficulty lost: %+v", got.Difficulty)
	}
	if got.AssigneeID == nil || *got.AssigneeID != "alice" {
		t.Fatalf("assignee lost")
	}
	if got.ExpectedStart == nil || !got.ExpectedStart.Equal(start) {
		t.Fatalf("expected start lost: %v", got.ExpectedStart)
	}
	if got.ActualStart != nil || got.ActualEnd != nil || got.CancellationReason != nil {
		t.Fatalf("expected unset optionals to stay nil: %+v", got)
	}

	// clearing optionals persists
	got.AssigneeID = nil
	got.BlockedReason = nil
	got.Status = domain.StatusTodo
	inTx(t, r, ctx, func(tx *sql.Tx) error { return r.UpdateTask(ctx, tx, got) })
	got, err = r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AssigneeID != nil || got.BlockedReason != nil {
		t.Fatalf("expected cleared fields to read back nil: %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	if _, err := r.GetTask(ctx, "nope"); err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, "p1")
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.UpdateTask(ctx, tx, domain.Task{ID: "ghost", ProjectID: "p1", Title: "x"})
	if err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDependencyEdges(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, "p1")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []domain.TaskID{"a", "b", "c"} {
		task := domain.Task{ID: id, ProjectID: "p1", Title: string(id), Status: domain.StatusTodo, RankIndex: 1, CreatedAt: now, UpdatedAt: now}
		inTx(t, r, ctx, func(tx *sql.Tx) error { return r.InsertTask(ctx, tx, task) })
	}
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		if err := r.InsertDependency(ctx, tx, domain.TaskDependency{TaskID: "b", DependsOnID: "a", Kind: domain.DependencyBlocks, CreatedAt: now}); err != nil {
			return err
		}
		return r.InsertDependency(ctx, tx, domain.TaskDependency{TaskID: "c", DependsOnID: "a", Kind: domain.DependencyRelatesTo, CreatedAt: now})
	})

	inTx(t, r, ctx, func(tx *sql.Tx) error {
		dependents, err := r.ListDependents(ctx, tx, "a")
		if err != nil {
			return err
		}
		if len(dependents) != 2 {
			t.Fatalf("expected 2 dependents of a, got %d", len(dependents))
		}
		edges, err := r.ProjectEdges(ctx, tx, "p1")
		if err != nil {
			return err
		}
		if len(edges) != 2 {
			t.Fatalf("expected 2 project edges, got %d", len(edges))
		}
		if err := r.DeleteDependency(ctx, tx, "b", "a"); err != nil {
			return err
		}
		if err := r.DeleteDependency(ctx, tx, "b", "a"); err != repo.ErrNotFound {
			t.Fatalf("expected ErrNotFound on double delete, got %v", err)
		}
		return nil
	})
}

func TestScheduleHistoryOrder(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedProject(t, r, ctx, "p1")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := domain.Task{ID: "t1", ProjectID: "p1", Title: "t", Status: domain.StatusTodo, RankIndex: 1, CreatedAt: now, UpdatedAt: now}
	inTx(t, r, ctx, func(tx *sql.Tx) error { return r.InsertTask(ctx, tx, task) })

	cause := domain.TaskID("t0")
	inTx(t, r, ctx, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			h := domain.ScheduleHistory{
				ID:        domain.NewHistoryID(),
				TaskID:    "t1",
				Reason:    domain.ReasonDependencyDelay,
				CreatedAt: now.Add(time.Duration(i) * time.Hour),
			}
			if i == 2 {
				h.CausedByTaskID = &cause
			}
			if err := r.InsertScheduleHistory(ctx, tx, h); err != nil {
				return err
			}
		}
		return nil
	})

	history, err := r.ListScheduleHistory(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt.Before(history[i-1].CreatedAt) {
			t.Fatalf("history not in ascending order")
		}
	}

	latest, err := r.LatestDependencyDelay(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.CausedByTaskID == nil || *latest.CausedByTaskID != cause {
		t.Fatalf("expected newest row with cause, got %+v", latest)
	}
}
