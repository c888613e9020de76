package engine_test

import (
	"context"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg, nil)
	env := &testEnv{Ctx: context.Background(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	eng.Now = func() time.Time { return env.now }
	env.Engine = eng
	if _, err := eng.InitProject(env.Ctx, "proj-1", "Test Project", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return env
}

func (env *testEnv) advance(d time.Duration) { env.now = env.now.Add(d) }

func (env *testEnv) addMember(t *testing.T, user domain.UserID, role domain.RoleID, level domain.MemberLevel, manager bool) {
	t.Helper()
	_, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{
		ProjectID: "proj-1",
		UserID:    user,
		RoleID:    role,
		Level:     level,
		IsManager: manager,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("add member %s: %v", user, err)
	}
}

func (env *testEnv) createTask(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env *testEnv) setStatus(t *testing.T, id domain.TaskID, status domain.TaskStatus) domain.Task {
	t.Helper()
	task, err := env.Engine.UpdateStatus(env.Ctx, id, status, "tester")
	if err != nil {
		t.Fatalf("to %s: %v", status, err)
	}
	return task
}

func expectCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	v, ok := domain.AsViolation(err)
	if !ok {
		t.Fatalf("expected violation %s, got %v", code, err)
	}
	if v.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, v.Code, v.Message)
	}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "Do work"})

	task = env.setStatus(t, task.ID, domain.StatusDoing)
	task = env.setStatus(t, task.ID, domain.StatusBlocked)
	task = env.setStatus(t, task.ID, domain.StatusTodo)
	task = env.setStatus(t, task.ID, domain.StatusDoing)
	task = env.setStatus(t, task.ID, domain.StatusDone)
	if task.ActualEnd == nil {
		t.Fatalf("expected completion timestamp")
	}

	_, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusTodo, "tester")
	expectCode(t, err, domain.CodeDoneIsTerminal)
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t"})

	// todo cannot jump straight to done
	_, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusDone, "tester")
	expectCode(t, err, domain.CodeInvalidStatusTransition)

	// blocked cannot go straight to doing
	env.setStatus(t, task.ID, domain.StatusBlocked)
	_, err = env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusDoing, "tester")
	expectCode(t, err, domain.CodeInvalidStatusTransition)
}

func TestCancelledIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t"})
	if _, err := env.Engine.Cancel(env.Ctx, task.ID, "scope cut", "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := env.Engine.UpdateStatus(env.Ctx, task.ID, domain.StatusTodo, "tester")
	expectCode(t, err, domain.CodeCancelledIsTerminal)
}

func TestClaimRequiresDifficulty(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "alice", "dev", domain.LevelMid, false)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t"})

	_, err := env.Engine.Claim(env.Ctx, task.ID, "alice")
	expectCode(t, err, domain.CodeDifficultyNotSet)

	if _, err := env.Engine.SetDifficulty(env.Ctx, task.ID, 3, "tester"); err != nil {
		t.Fatalf("set difficulty: %v", err)
	}
	claimed, err := env.Engine.Claim(env.Ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != domain.StatusDoing || claimed.AssigneeID == nil || *claimed.AssigneeID != "alice" {
		t.Fatalf("unexpected claim result: %+v", claimed)
	}
	if claimed.ActualStart == nil {
		t.Fatalf("expected actual start to be stamped")
	}
}

func TestClaimRoleAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "alice", "dev", domain.LevelMid, false)
	env.addMember(t, "bob", "design", domain.LevelMid, false)
	role := domain.RoleID("dev")
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t", Difficulty: intPtr(2), RoleID: &role})

	_, err := env.Engine.Claim(env.Ctx, task.ID, "bob")
	expectCode(t, err, domain.CodeUserMissingRole)

	if _, err := env.Engine.Claim(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err = env.Engine.Claim(env.Ctx, task.ID, "alice")
	expectCode(t, err, domain.CodeTaskAlreadyClaimed)
}

func TestManagerCannotClaim(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "mallory", "dev", domain.LevelLead, true)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t", Difficulty: intPtr(1)})

	_, err := env.Engine.Claim(env.Ctx, task.ID, "mallory")
	expectCode(t, err, domain.CodeManagerCannotClaim)
}

func TestClaimWorkloadAdmission(t *testing.T) {
	env := newTestEnv(t)
	// mid level, base capacity 10 -> capacity 10.0
	env.addMember(t, "alice", "dev", domain.LevelMid, false)

	// two claimed tasks worth 10 points: ratio 1.0, healthy
	for _, d := range []int{6, 4} {
		task := env.createTask(t, engine.TaskCreateOptions{Title: "warm", Difficulty: intPtr(d)})
		if _, err := env.Engine.Claim(env.Ctx, task.ID, "alice"); err != nil {
			t.Fatalf("claim warm-up task: %v", err)
		}
	}

	// +8 would make 18/10 = 1.8 > 1.5: impossible, rejected
	heavy := env.createTask(t, engine.TaskCreateOptions{Title: "heavy", Difficulty: intPtr(8)})
	_, err := env.Engine.Claim(env.Ctx, heavy.ID, "alice")
	expectCode(t, err, domain.CodeWorkloadWouldBeImpossible)

	// +5 lands exactly on 1.5, which is not strictly greater: allowed
	ok := env.createTask(t, engine.TaskCreateOptions{Title: "ok", Difficulty: intPtr(5)})
	if _, err := env.Engine.Claim(env.Ctx, ok.ID, "alice"); err != nil {
		t.Fatalf("claim at threshold: %v", err)
	}
}

func TestAbandonReleasesAssignee(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "alice", "dev", domain.LevelMid, false)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t", Difficulty: intPtr(2)})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	released, err := env.Engine.Abandon(env.Ctx, task.ID, "alice")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if released.Status != domain.StatusTodo || released.AssigneeID != nil {
		t.Fatalf("expected unassigned todo task, got %+v", released)
	}

	// abandoning a todo task is not a legal move
	_, err = env.Engine.Abandon(env.Ctx, task.ID, "alice")
	expectCode(t, err, domain.CodeInvalidStatusTransition)
}

func TestCancelDoingTaskReleasesFirst(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "alice", "dev", domain.LevelMid, false)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t", Difficulty: intPtr(2)})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	cancelled, err := env.Engine.Cancel(env.Ctx, task.ID, "descoped", "tester")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.AssigneeID != nil {
		t.Fatalf("expected cancelled unassigned task, got %+v", cancelled)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "descoped" {
		t.Fatalf("expected cancellation reason to be recorded")
	}
}

func TestSetDifficultyValidation(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, engine.TaskCreateOptions{Title: "t"})

	_, err := env.Engine.SetDifficulty(env.Ctx, task.ID, 0, "tester")
	expectCode(t, err, domain.CodeInvalidDifficulty)
	_, err = env.Engine.SetDifficulty(env.Ctx, task.ID, 11, "tester")
	expectCode(t, err, domain.CodeInvalidDifficulty)

	env.setStatus(t, task.ID, domain.StatusDoing)
	env.setStatus(t, task.ID, domain.StatusDone)
	_, err = env.Engine.SetDifficulty(env.Ctx, task.ID, 5, "tester")
	expectCode(t, err, domain.CodeDoneIsTerminal)
}

func TestWorkloadReport(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "alice", "dev", domain.LevelSenior, false)
	env.addMember(t, "bob", "dev", domain.LevelJunior, false)

	task := env.createTask(t, engine.TaskCreateOptions{Title: "t", Difficulty: intPtr(4)})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	report, err := env.Engine.Workload(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("expected 2 members, got %d", len(report))
	}
	byUser := map[domain.UserID]engine.MemberWorkload{}
	for _, mw := range report {
		byUser[mw.Member.UserID] = mw
	}
	alice := byUser["alice"]
	if alice.Snapshot.Score != 4 || alice.Snapshot.Capacity != 13.0 {
		t.Fatalf("unexpected alice snapshot: %+v", alice.Snapshot)
	}
	bob := byUser["bob"]
	if bob.Snapshot.Score != 0 || bob.Snapshot.Capacity != 6.0 {
		t.Fatalf("unexpected bob snapshot: %+v", bob.Snapshot)
	}
}

func TestTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetTask(env.Ctx, "missing")
	expectCode(t, err, domain.CodeTaskNotFound)
}
