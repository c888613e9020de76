package engine_test

import (
	"testing"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/events"
)

func TestSelfDependencyRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t"})
	_, err := env.Engine.AddDependency(env.Ctx, task.ID, task.ID, domain.DependencyBlocks, "tester")
	expectCode(t, err, domain.CodeSelfDependency)
}

func TestCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, engine.TaskCreateOptions{Title: "a"})
	b := env.createTask(t, engine.TaskCreateOptions{Title: "b"})
	c := env.createTask(t, engine.TaskCreateOptions{Title: "c"})

	// a -> b -> c
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, b.ID, c.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	// c -> a closes the loop
	_, err := env.Engine.AddDependency(env.Ctx, c.ID, a.ID, domain.DependencyBlocks, "tester")
	expectCode(t, err, domain.CodeCycleDetected)

	// relates_to edges never participate in cycles
	if _, err := env.Engine.AddDependency(env.Ctx, c.ID, a.ID, domain.DependencyRelatesTo, "tester"); err != nil {
		t.Fatalf("relates_to edge: %v", err)
	}
}

func TestCrossProjectDependencyRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.InitProject(env.Ctx, "proj-2", "Other", "tester"); err != nil {
		t.Fatalf("init second project: %v", err)
	}
	a := env.createTask(t, engine.TaskCreateOptions{Title: "a"})
	b := env.createTask(t, engine.TaskCreateOptions{Title: "b", ProjectID: "proj-2"})

	_, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, domain.DependencyBlocks, "tester")
	expectCode(t, err, domain.CodeDependencyMismatch)
}

func TestBlockingEdgeBlocksTodoTask(t *testing.T) {
	env := newTestEnv(t)
	blocker := env.createTask(t, engine.TaskCreateOptions{Title: "blocker"})
	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})

	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, blocker.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatalf("add dep: %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked, got %s", got.Status)
	}
	if got.BlockedReason == nil {
		t.Fatalf("expected blocked reason")
	}
}

func TestEdgeOnFinishedBlockerDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	blocker := env.createTask(t, engine.TaskCreateOptions{Title: "blocker"})
	env.setStatus(t, blocker.ID, domain.StatusDoing)
	env.setStatus(t, blocker.ID, domain.StatusDone)

	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, blocker.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatalf("add dep: %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusTodo {
		t.Fatalf("expected todo, got %s", got.Status)
	}
}

func TestCompletionUnblocksDependents(t *testing.T) {
	env := newTestEnv(t)
	b1 := env.createTask(t, engine.TaskCreateOptions{Title: "b1"})
	b2 := env.createTask(t, engine.TaskCreateOptions{Title: "b2"})
	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})

	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, b1.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, b2.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}

	// first blocker finishing is not enough
	env.setStatus(t, b1.ID, domain.StatusDoing)
	env.setStatus(t, b1.ID, domain.StatusDone)
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusBlocked {
		t.Fatalf("expected still blocked, got %s", got.Status)
	}

	// last blocker finishing unblocks
	env.setStatus(t, b2.ID, domain.StatusDoing)
	env.setStatus(t, b2.ID, domain.StatusDone)
	got, _ = env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusTodo {
		t.Fatalf("expected todo after last blocker, got %s", got.Status)
	}
	if got.BlockedReason != nil {
		t.Fatalf("expected blocked reason cleared")
	}
}

func TestRemoveLastBlockingEdgeUnblocks(t *testing.T) {
	env := newTestEnv(t)
	blocker := env.createTask(t, engine.TaskCreateOptions{Title: "blocker"})
	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})

	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, blocker.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RemoveDependency(env.Ctx, task.ID, blocker.ID, "tester"); err != nil {
		t.Fatalf("remove dep: %v", err)
	}

	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusTodo {
		t.Fatalf("expected todo after removing last edge, got %s", got.Status)
	}

	// exactly one unblock event for the task
	var count int
	err = env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM events WHERE type=? AND entity_id=?`,
		events.TypeTaskUnblocked, string(task.ID)).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one unblock event, got %d", count)
	}
}

func TestRemoveNonLastBlockingEdgeKeepsBlocked(t *testing.T) {
	env := newTestEnv(t)
	b1 := env.createTask(t, engine.TaskCreateOptions{Title: "b1"})
	b2 := env.createTask(t, engine.TaskCreateOptions{Title: "b2"})
	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, b1.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, b2.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.RemoveDependency(env.Ctx, task.ID, b1.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusBlocked {
		t.Fatalf("expected still blocked with one edge left, got %s", got.Status)
	}
}

func TestRemoveUnknownDependency(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, engine.TaskCreateOptions{Title: "a"})
	b := env.createTask(t, engine.TaskCreateOptions{Title: "b"})

	err := env.Engine.RemoveDependency(env.Ctx, a.ID, b.ID, "tester")
	expectCode(t, err, domain.CodeDependencyNotFound)
}

func TestCancelledBlockerUnblocksDependent(t *testing.T) {
	env := newTestEnv(t)
	blocker := env.createTask(t, engine.TaskCreateOptions{Title: "blocker"})
	task := env.createTask(t, engine.TaskCreateOptions{Title: "task"})
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, blocker.ID, domain.DependencyBlocks, "tester"); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.Cancel(env.Ctx, blocker.ID, "descoped", "tester"); err != nil {
		t.Fatalf("cancel blocker: %v", err)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusTodo {
		t.Fatalf("expected todo after blocker cancelled, got %s", got.Status)
	}
}
