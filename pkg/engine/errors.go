package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProcess indicates a process name absent from the registry.
	ErrUnknownProcess = errors.New("unknown process")

	// ErrUnknownStep indicates a step key absent from the process's chain.
	ErrUnknownStep = errors.New("unknown step")

	// ErrOperatorNotRegistered indicates the operator has not registered yet.
	ErrOperatorNotRegistered = errors.New("operator not registered")

	// ErrNoActiveSession indicates no workflow session exists for the
	// (operator, process) key.
	ErrNoActiveSession = errors.New("no active workflow session")

	// ErrNoStepSelected indicates a value was submitted without a step open.
	ErrNoStepSelected = errors.New("no step selected")

	// ErrNoValues indicates completion was requested with nothing collected.
	ErrNoValues = errors.New("no values collected")

	// ErrNoPhotoPending indicates an image arrived with no photo requirement open.
	ErrNoPhotoPending = errors.New("no photo requirement pending")

	// ErrNoCommentPending indicates a comment arrived with no comment requirement open.
	ErrNoCommentPending = errors.New("no comment requirement pending")

	// ErrRequirementPending indicates an action is blocked until the open
	// photo or comment requirement is satisfied.
	ErrRequirementPending = errors.New("a mandatory photo or comment is still pending")
)

// ValidationError is a recoverable input rejection: the transport re-prompts
// the same step and the session stays unchanged.
type ValidationError struct {
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for step %s: %s", e.Step, e.Message)
}

// MissingAttachmentError rejects completion because a step requiring a photo
// has none attached.
type MissingAttachmentError struct {
	Step string
}

func (e *MissingAttachmentError) Error() string {
	return fmt.Sprintf("step %s requires a photo before completion", e.Step)
}

// MissingCommentError rejects completion because a defect step requiring a
// comment has none.
type MissingCommentError struct {
	Step string
}

func (e *MissingCommentError) Error() string {
	return fmt.Sprintf("step %s requires a comment before completion", e.Step)
}

// PersistenceError wraps a storage failure that must be surfaced as
// retryable; the in-memory session is preserved so collected answers are not
// lost.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a recoverable input rejection.
func IsValidationError(err error) bool {
	var vErr *ValidationError

	return errors.As(err, &vErr)
}

// IsMissingAttachment checks if an error names a step missing its photo.
func IsMissingAttachment(err error) bool {
	var mErr *MissingAttachmentError

	return errors.As(err, &mErr)
}

// IsMissingComment checks if an error names a step missing its comment.
func IsMissingComment(err error) bool {
	var mErr *MissingCommentError

	return errors.As(err, &mErr)
}

// IsPersistenceError checks if an error is a retryable storage failure.
func IsPersistenceError(err error) bool {
	var pErr *PersistenceError

	return errors.As(err, &pErr)
}
