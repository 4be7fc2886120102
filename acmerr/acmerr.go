// Package acmerr provides structured error types for the ACM runtime.
// Errors preserve a closed Kind taxonomy and a causal chain so callers can
// use errors.Is/As while the runtime still records {kind, taskId?, details}
// in the ledger.
package acmerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the closed error taxonomy of the runtime.
type Kind string

const (
	// PlanInvalid is fatal, pre-execution: cycles, unknown capabilities, dangling edges.
	PlanInvalid Kind = "PlanInvalid"
	// CapabilityMissing is fatal: a task references a capability not in the registry.
	CapabilityMissing Kind = "CapabilityMissing"
	// PolicyDenied is task-fatal unless a compensation edge admits.
	PolicyDenied Kind = "PolicyDenied"
	// TaskError wraps an exception raised by a task's execute body; retryable.
	TaskError Kind = "TaskError"
	// VerificationFailed is task-fatal; verification expresses a contract, not I/O.
	VerificationFailed Kind = "VerificationFailed"
	// ContextUnavailable is task-fatal after the retrieval pipeline exhausts providers.
	ContextUnavailable Kind = "ContextUnavailable"
	// Timeout is treated as TaskError for retry purposes.
	Timeout Kind = "Timeout"
	// Cancelled is run-fatal.
	Cancelled Kind = "Cancelled"
)

// Error is a structured runtime failure carrying a Kind, an optional task id,
// and a causal chain. It preserves message and context while implementing
// the standard error interface.
type Error struct {
	Kind    Kind
	TaskID  string
	Message string
	Cause   error
}

// New constructs an Error of the given kind with no task association.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ForTask constructs an Error of the given kind scoped to a task id.
func ForTask(kind Kind, taskID, message string) *Error {
	return &Error{Kind: kind, TaskID: taskID, Message: message}
}

// Wrap constructs an Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, taskID string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, TaskID: taskID, Message: msg, Cause: cause}
}

// Errorf formats a message and returns it as an Error of the given kind.
func Errorf(kind Kind, taskID, format string, args ...any) *Error {
	return ForTask(kind, taskID, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.TaskID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause so errors.Is/As can traverse the chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, allowing
// errors.Is(err, acmerr.New(acmerr.PlanInvalid, "")) style kind checks.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
