package domain

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable identifier for a business-rule
// violation. Codes are part of the boundary contract and never change.
type Code string

const (
	// state
	CodeInvalidStatusTransition Code = "invalid_status_transition"
	CodeDoneIsTerminal          Code = "done_is_terminal"
	CodeCancelledIsTerminal     Code = "cancelled_is_terminal"

	// assignment
	CodeTaskAlreadyClaimed Code = "task_already_claimed"
	CodeUserMissingRole    Code = "user_missing_role"
	CodeDifficultyNotSet   Code = "difficulty_not_set"
	CodeInvalidDifficulty  Code = "invalid_difficulty"
	CodeManagerCannotClaim Code = "manager_cannot_claim"

	// dependency
	CodeSelfDependency     Code = "self_dependency"
	CodeCycleDetected      Code = "cycle_detected"
	CodeDependencyNotFound Code = "dependency_not_found"
	CodeDependencyMismatch Code = "dependency_mismatch"

	// workload
	CodeWorkloadWouldBeImpossible Code = "workload_would_be_impossible"

	// lookup
	CodeTaskNotFound    Code = "task_not_found"
	CodeProjectNotFound Code = "project_not_found"
	CodeMemberNotFound  Code = "member_not_found"
)

// Violation is a recoverable business-rule error. Use cases let it
// propagate unmodified; the boundary maps Code to a client response.
type Violation struct {
	Code    Code
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

func Violationf(code Code, format string, args ...any) *Violation {
	return &Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsViolation reports whether err is a business-rule violation, as
// opposed to an infrastructure failure that aborts the unit of work.
func IsViolation(err error) bool {
	_, ok := AsViolation(err)
	return ok
}

func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
