package domain

import (
	"time"

	"github.com/google/uuid"
)

// Opaque identifiers. Everything crossing the engine boundary uses these
// instead of raw strings.
type (
	ProjectID string
	TaskID    string
	UserID    string
	RoleID    string
	MemberID  string
	HistoryID string
)

func NewTaskID() TaskID       { return TaskID(uuid.New().String()) }
func NewMemberID() MemberID   { return MemberID(uuid.New().String()) }
func NewHistoryID() HistoryID { return HistoryID(uuid.New().String()) }

type TaskStatus string

const (
	StatusTodo      TaskStatus = "todo"
	StatusDoing     TaskStatus = "doing"
	StatusBlocked   TaskStatus = "blocked"
	StatusDone      TaskStatus = "done"
	StatusCancelled TaskStatus = "cancelled"
)

type DependencyKind string

const (
	DependencyBlocks    DependencyKind = "blocks"
	DependencyRelatesTo DependencyKind = "relates_to"
)

// MemberLevel is the seniority level carrying a capacity multiplier.
type MemberLevel string

const (
	LevelJunior     MemberLevel = "junior"
	LevelMid        MemberLevel = "mid"
	LevelSenior     MemberLevel = "senior"
	LevelSpecialist MemberLevel = "specialist"
	LevelLead       MemberLevel = "lead"
)

type ChangeReason string

const (
	ReasonDependencyDelay ChangeReason = "dependency_delay"
	ReasonManualOverride  ChangeReason = "manual_override"
	ReasonScopeChange     ChangeReason = "scope_change"
	ReasonEstimationError ChangeReason = "estimation_error"
)

type Project struct {
	ID        ProjectID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the unit of plannable work. All timestamps are UTC instants;
// optional ones are nil until known.
type Task struct {
	ID                 TaskID     `json:"id"`
	ProjectID          ProjectID  `json:"project_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Status             TaskStatus `json:"status" enum:"todo,doing,blocked,done,cancelled"`
	Difficulty         *int       `json:"difficulty,omitempty"`
	RoleID             *RoleID    `json:"role_id,omitempty"`
	AssigneeID         *UserID    `json:"assignee_id,omitempty"`
	ExpectedStart      *time.Time `json:"expected_start,omitempty"`
	ExpectedEnd        *time.Time `json:"expected_end,omitempty"`
	ActualStart        *time.Time `json:"actual_start,omitempty"`
	ActualEnd          *time.Time `json:"actual_end,omitempty"`
	RankIndex          float64    `json:"rank_index"`
	IsDelayed          bool       `json:"is_delayed"`
	BlockedReason      *string    `json:"blocked_reason,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TaskDependency is a directed edge: Task depends on DependsOnID.
type TaskDependency struct {
	TaskID      TaskID         `json:"task_id"`
	DependsOnID TaskID         `json:"depends_on_id"`
	Kind        DependencyKind `json:"kind" enum:"blocks,relates_to"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ScheduleHistory is one immutable, append-only audit row. Rows are
// produced by the schedule engine and never revised.
type ScheduleHistory struct {
	ID               HistoryID    `json:"id"`
	TaskID           TaskID       `json:"task_id"`
	OldExpectedStart *time.Time   `json:"old_expected_start,omitempty"`
	OldExpectedEnd   *time.Time   `json:"old_expected_end,omitempty"`
	NewExpectedStart *time.Time   `json:"new_expected_start,omitempty"`
	NewExpectedEnd   *time.Time   `json:"new_expected_end,omitempty"`
	Reason           ChangeReason `json:"reason"`
	CausedByTaskID   *TaskID      `json:"caused_by_task_id,omitempty"`
	ChangedByUserID  *UserID      `json:"changed_by_user_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type ProjectMember struct {
	ID           MemberID    `json:"id"`
	ProjectID    ProjectID   `json:"project_id"`
	UserID       UserID      `json:"user_id"`
	RoleID       RoleID      `json:"role_id"`
	Level        MemberLevel `json:"level"`
	BaseCapacity int         `json:"base_capacity"`
	IsManager    bool        `json:"is_manager"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Event struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	ProjectID  ProjectID `json:"project_id,omitempty"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	ActorID    UserID    `json:"actor_id"`
	Payload    string    `json:"payload_json"`
}

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusDoing, StatusBlocked, StatusDone, StatusCancelled:
		return true
	}
	return false
}

func ValidLevel(l MemberLevel) bool {
	switch l {
	case LevelJunior, LevelMid, LevelSenior, LevelSpecialist, LevelLead:
		return true
	}
	return false
}
