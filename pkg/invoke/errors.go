package invoke

import (
	"errors"
	"fmt"
)

// Error codes carried by *Error.
const (
	CodeNotFound           = "NOT_FOUND"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeDialogCancelled    = "DIALOG_CANCELLED"
	CodeOperationFailed    = "OPERATION_FAILED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeConflict           = "CONFLICT"
)

// Error is a structured invocation error. Two errors match under errors.Is
// when their codes are equal, so the sentinels below can be used as targets.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "operation not found"}
	ErrPreconditionFailed = &Error{Code: CodePreconditionFailed, Message: "precondition failed"}
	ErrDialogCancelled    = &Error{Code: CodeDialogCancelled, Message: "dialog cancelled"}
	ErrOperationFailed    = &Error{Code: CodeOperationFailed, Message: "operation failed"}
	ErrInvalidParameter   = &Error{Code: CodeInvalidArgument, Message: "invalid parameter"}
	ErrRetryStateInUse    = &Error{Code: CodeConflict, Message: "retry state is already in use"}
)

// ErrRetryPending is reported by a first-pass Execution whose precondition
// failure was registered for the retry pass.
var ErrRetryPending = errors.New("precondition failed, retry pending")

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// PartialFailureError is returned by InvokeBoundAction when at least one
// context was rejected. It unwraps to the first rejection reason.
type PartialFailureError struct {
	Records  []SettlementRecord
	Rejected int
	First    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d contexts rejected: %v", e.Rejected, len(e.Records), e.First)
}

func (e *PartialFailureError) Unwrap() error {
	return e.First
}
