// Package engine implements the scheduling and dependency engine: every
// mutation is one SQLite transaction that validates business rules, writes
// the journal row, and on commit fans the event out on the bus.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/rank"
	"planline/internal/repo"
	"planline/internal/workload"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Journal events.Writer
	Bus     *events.Bus
	Config  *config.Config
	Logger  *zap.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Journal: events.Writer{DB: db},
		Bus:     events.NewBus(logger),
		Config:  cfg,
		Logger:  logger.Named("engine"),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// emit publishes the committed events on the bus. Call only after Commit.
func (e Engine) emit(evts []events.Event) {
	if e.Bus == nil {
		return
	}
	for _, evt := range evts {
		e.Bus.Emit(evt)
	}
}

func (e Engine) journalAll(ctx context.Context, tx *sql.Tx, evts []events.Event) error {
	for _, evt := range evts {
		if err := e.Journal.Append(ctx, tx, evt); err != nil {
			return fmt.Errorf("append event %s: %w", evt.Type, err)
		}
	}
	return nil
}

// InitProject creates the project row. Migrations have already run.
func (e Engine) InitProject(ctx context.Context, projectID domain.ProjectID, name string, actorID domain.UserID) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, errors.New("project id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.now()
	p := domain.Project{
		ID:        projectID,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	evts := []events.Event{{
		Type:       events.TypeProjectInitialized,
		ProjectID:  p.ID,
		EntityKind: "project",
		EntityID:   string(p.ID),
		ActorID:    actorID,
		At:         now,
		Payload:    events.Payload{"name": p.Name},
	}}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.emit(evts)
	return p, nil
}

// MemberOptions are parameters for adding a project member.
type MemberOptions struct {
	ProjectID    domain.ProjectID
	UserID       domain.UserID
	RoleID       domain.RoleID
	Level        domain.MemberLevel
	BaseCapacity int
	IsManager    bool
	ActorID      domain.UserID
}

func (e Engine) AddMember(ctx context.Context, opts MemberOptions) (domain.ProjectMember, error) {
	if opts.UserID == "" {
		return domain.ProjectMember{}, errors.New("user is required")
	}
	if opts.RoleID == "" {
		return domain.ProjectMember{}, errors.New("role is required")
	}
	if opts.Level == "" {
		opts.Level = domain.LevelMid
	}
	if !domain.ValidLevel(opts.Level) {
		return domain.ProjectMember{}, fmt.Errorf("unknown level %s", opts.Level)
	}
	if opts.BaseCapacity <= 0 {
		opts.BaseCapacity = e.Config.BaseCapacity()
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		if err == repo.ErrNotFound {
			return domain.ProjectMember{}, domain.Violationf(domain.CodeProjectNotFound, "project %s not found", opts.ProjectID)
		}
		return domain.ProjectMember{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	defer tx.Rollback()

	now := e.now()
	m := domain.ProjectMember{
		ID:           domain.NewMemberID(),
		ProjectID:    opts.ProjectID,
		UserID:       opts.UserID,
		RoleID:       opts.RoleID,
		Level:        opts.Level,
		BaseCapacity: opts.BaseCapacity,
		IsManager:    opts.IsManager,
		CreatedAt:    now,
	}
	if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
		return domain.ProjectMember{}, fmt.Errorf("insert member: %w", err)
	}
	evts := []events.Event{{
		Type:       events.TypeMemberAdded,
		ProjectID:  opts.ProjectID,
		EntityKind: "member",
		EntityID:   string(m.ID),
		ActorID:    opts.ActorID,
		At:         now,
		Payload:    events.Payload{"user_id": string(m.UserID), "role_id": string(m.RoleID), "level": string(m.Level)},
	}}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.ProjectMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectMember{}, err
	}
	e.emit(evts)
	return m, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID     domain.ProjectID
	Title         string
	Description   string
	Difficulty    *int
	RoleID        *domain.RoleID
	ExpectedStart *time.Time
	ExpectedEnd   *time.Time
	ActorID       domain.UserID
}

// CreateTask creates a Todo task appended to the end of the project's rank
// order.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	if opts.Difficulty != nil && (*opts.Difficulty < 1 || *opts.Difficulty > 10) {
		return domain.Task{}, domain.Violationf(domain.CodeInvalidDifficulty, "difficulty must be between 1 and 10, got %d", *opts.Difficulty)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, domain.Violationf(domain.CodeProjectNotFound, "project %s not found", opts.ProjectID)
		}
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	siblings, err := e.Repo.ListProjectTasksTx(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	t := domain.Task{
		ID:            domain.NewTaskID(),
		ProjectID:     opts.ProjectID,
		Title:         opts.Title,
		Description:   opts.Description,
		Status:        domain.StatusTodo,
		Difficulty:    opts.Difficulty,
		RoleID:        opts.RoleID,
		ExpectedStart: opts.ExpectedStart,
		ExpectedEnd:   opts.ExpectedEnd,
		RankIndex:     rank.CalculateRankIndex(len(siblings), siblings),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	evts := []events.Event{taskEvent(events.TypeTaskCreated, t, opts.ActorID, now, events.Payload{"title": t.Title})}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// SetDifficulty records the estimate a task needs before it can be claimed.
func (e Engine) SetDifficulty(ctx context.Context, taskID domain.TaskID, difficulty int, actorID domain.UserID) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	if err := t.SetDifficulty(difficulty, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Claim assigns the task to the actor and moves it to Doing. The actor must
// be a non-manager member holding the task's required role, and taking the
// task must not push their workload into the impossible band.
func (e Engine) Claim(ctx context.Context, taskID domain.TaskID, actorID domain.UserID) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	member, err := e.Repo.GetMemberTx(ctx, tx, t.ProjectID, actorID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, domain.Violationf(domain.CodeMemberNotFound, "user %s is not a member of project %s", actorID, t.ProjectID)
		}
		return domain.Task{}, err
	}
	if member.IsManager {
		return domain.Task{}, domain.Violationf(domain.CodeManagerCannotClaim, "manager %s cannot claim tasks", actorID)
	}

	now := e.now()
	if err := t.Claim(actorID, []domain.RoleID{member.RoleID}, now); err != nil {
		return domain.Task{}, err
	}

	current, err := e.Repo.ListAssigneeDoing(ctx, tx, t.ProjectID, actorID)
	if err != nil {
		return domain.Task{}, err
	}
	// the claimed task is already Doing in memory; score the rest
	current = excludeTask(current, t.ID)
	if workload.WouldBeImpossible(current, t, member.BaseCapacity, member.Level, e.Config.Multipliers()) {
		return domain.Task{}, domain.Violationf(domain.CodeWorkloadWouldBeImpossible,
			"claiming task %s would push %s's workload past the impossible threshold", t.ID, actorID)
	}

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	evts := []events.Event{
		taskEvent(events.TypeTaskAssigned, t, actorID, now, events.Payload{"assignee_id": string(actorID)}),
		taskEvent(events.TypeTaskStatusChanged, t, actorID, now, events.Payload{"from": string(domain.StatusTodo), "to": string(domain.StatusDoing)}),
	}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// UpdateStatus transitions the task. Completing a task additionally runs
// delay detection, unblocks dependents whose last blocker just finished,
// and cascades any delay downstream, all in the same transaction.
func (e Engine) UpdateStatus(ctx context.Context, taskID domain.TaskID, target domain.TaskStatus, actorID domain.UserID) (domain.Task, error) {
	if !domain.ValidStatus(target) {
		return domain.Task{}, fmt.Errorf("unknown status %s", target)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	now := e.now()
	if err := t.TransitionTo(target, now); err != nil {
		return domain.Task{}, err
	}
	if target == domain.StatusTodo && from == domain.StatusDoing {
		t.AssigneeID = nil
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}

	evts := []events.Event{taskEvent(events.TypeTaskStatusChanged, t, actorID, now,
		events.Payload{"from": string(from), "to": string(target)})}

	if target == domain.StatusDone {
		evts = append(evts, taskEvent(events.TypeTaskCompleted, t, actorID, now, nil))
		more, err := e.completeTask(ctx, tx, &t, actorID, now)
		if err != nil {
			return domain.Task{}, err
		}
		evts = append(evts, more...)
	}

	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// Block moves the task to Blocked with a reason.
func (e Engine) Block(ctx context.Context, taskID domain.TaskID, reason string, actorID domain.UserID) (domain.Task, error) {
	return e.mutateTask(ctx, taskID, actorID, events.TypeTaskBlocked, events.Payload{"reason": reason},
		func(t *domain.Task, now time.Time) error { return t.Block(reason, now) })
}

// Unblock returns a Blocked task to Todo.
func (e Engine) Unblock(ctx context.Context, taskID domain.TaskID, actorID domain.UserID) (domain.Task, error) {
	return e.mutateTask(ctx, taskID, actorID, events.TypeTaskUnblocked, nil,
		func(t *domain.Task, now time.Time) error { return t.Unblock(now) })
}

// Abandon releases a Doing task back to Todo. The caller is either the
// assignee giving the task up or someone else pulling it back; both run the
// same mutation and differ only in the journal payload.
func (e Engine) Abandon(ctx context.Context, taskID domain.TaskID, actorID domain.UserID) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	kind := "released"
	if t.AssigneeID != nil && *t.AssigneeID == actorID {
		kind = "voluntary"
	}
	now := e.now()
	if err := t.Abandon(now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	evts := []events.Event{taskEvent(events.TypeTaskAbandoned, t, actorID, now, events.Payload{"kind": kind})}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// Cancel terminates the task with a reason. An in-flight task is released
// from its assignee first so the workload score drops immediately.
func (e Engine) Cancel(ctx context.Context, taskID domain.TaskID, reason string, actorID domain.UserID) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	evts := []events.Event{}
	if t.Status == domain.StatusDoing {
		if err := t.Abandon(now); err != nil {
			return domain.Task{}, err
		}
		evts = append(evts, taskEvent(events.TypeTaskAbandoned, t, actorID, now, events.Payload{"kind": "cancellation"}))
	}
	if err := t.Cancel(reason, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	evts = append(evts, taskEvent(events.TypeTaskCancelled, t, actorID, now, events.Payload{"reason": reason}))

	// a cancelled blocker no longer gates its dependents
	unblocked, err := e.unblockReadyDependents(ctx, tx, t.ID, actorID, now)
	if err != nil {
		return domain.Task{}, err
	}
	evts = append(evts, unblocked...)

	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

// mutateTask is the common load-mutate-store-journal loop for single-task
// operations.
func (e Engine) mutateTask(ctx context.Context, taskID domain.TaskID, actorID domain.UserID, eventType string, payload events.Payload, mutate func(*domain.Task, time.Time) error) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	if err := mutate(&t, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	evts := []events.Event{taskEvent(eventType, t, actorID, now, payload)}
	if err := e.journalAll(ctx, tx, evts); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.emit(evts)
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, taskID domain.TaskID) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err == repo.ErrNotFound {
		return domain.Task{}, domain.Violationf(domain.CodeTaskNotFound, "task %s not found", taskID)
	}
	return t, err
}

// ListTasks returns the project's tasks in rank order.
func (e Engine) ListTasks(ctx context.Context, projectID domain.ProjectID) ([]domain.Task, error) {
	return e.Repo.ListProjectTasks(ctx, projectID)
}

func (e Engine) ListMembers(ctx context.Context, projectID domain.ProjectID) ([]domain.ProjectMember, error) {
	return e.Repo.ListMembers(ctx, projectID)
}

// MemberWorkload is one member's derived load in the workload report.
type MemberWorkload struct {
	Member   domain.ProjectMember
	Snapshot workload.Snapshot
}

// Workload computes the per-member load report for the project. The view
// is derived on demand and never stored.
func (e Engine) Workload(ctx context.Context, projectID domain.ProjectID) ([]MemberWorkload, error) {
	members, err := e.Repo.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byAssignee := map[domain.UserID][]domain.Task{}
	for _, t := range tasks {
		if t.AssigneeID != nil && t.Status == domain.StatusDoing {
			byAssignee[*t.AssigneeID] = append(byAssignee[*t.AssigneeID], t)
		}
	}
	multipliers := e.Config.Multipliers()
	report := make([]MemberWorkload, 0, len(members))
	for _, m := range members {
		report = append(report, MemberWorkload{
			Member:   m,
			Snapshot: workload.Evaluate(byAssignee[m.UserID], m.BaseCapacity, m.Level, multipliers),
		})
	}
	return report, nil
}

func (e Engine) getTaskTx(ctx context.Context, tx *sql.Tx, taskID domain.TaskID) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err == repo.ErrNotFound {
		return domain.Task{}, domain.Violationf(domain.CodeTaskNotFound, "task %s not found", taskID)
	}
	return t, err
}

func taskEvent(eventType string, t domain.Task, actorID domain.UserID, at time.Time, payload events.Payload) events.Event {
	return events.Event{
		Type:       eventType,
		ProjectID:  t.ProjectID,
		EntityKind: "task",
		EntityID:   string(t.ID),
		ActorID:    actorID,
		At:         at,
		Payload:    payload,
	}
}

func excludeTask(tasks []domain.Task, id domain.TaskID) []domain.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
