// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrOperatorNotFound indicates the operator has not registered.
	ErrOperatorNotFound = errors.New("operator not found")

	// ErrDraftNotFound indicates no draft exists for the (operator, process) key.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrTokenNotFound indicates the continuation token is absent, already
	// consumed, or reaped.
	ErrTokenNotFound = errors.New("continuation token not found")

	// ErrRecordNotFound indicates no control record matched the query.
	ErrRecordNotFound = errors.New("control record not found")

	// ErrUnitSessionNotFound indicates no unit session matched the query.
	ErrUnitSessionNotFound = errors.New("unit session not found")
)

// DraftError wraps draft storage failures with the operation and key.
type DraftError struct {
	Op         string
	OperatorID int64
	Process    string
	Err        error
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("%s failed for draft (operator %d, process %s): %v", e.Op, e.OperatorID, e.Process, e.Err)
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

func (e *DraftError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDraftError creates a draft error with key context.
func NewDraftError(op string, operatorID int64, process string, err error) *DraftError {
	return &DraftError{Op: op, OperatorID: operatorID, Process: process, Err: err}
}

// UnitOwnedError indicates a unit is already being worked by another operator.
type UnitOwnedError struct {
	ItemCode  string
	OwnerID   int64
	OwnerName string
}

func (e *UnitOwnedError) Error() string {
	owner := e.OwnerName
	if owner == "" {
		owner = fmt.Sprintf("operator %d", e.OwnerID)
	}

	return fmt.Sprintf("unit %s is already in work by %s", e.ItemCode, owner)
}

// IsOperatorNotFound checks if an error indicates a missing operator.
func IsOperatorNotFound(err error) bool {
	return errors.Is(err, ErrOperatorNotFound)
}

// IsDraftNotFound checks if an error indicates a missing draft.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}

// IsTokenNotFound checks if an error indicates a missing token.
func IsTokenNotFound(err error) bool {
	return errors.Is(err, ErrTokenNotFound)
}

// IsRecordNotFound checks if an error indicates a missing record.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsUnitSessionNotFound checks if an error indicates a missing unit session.
func IsUnitSessionNotFound(err error) bool {
	return errors.Is(err, ErrUnitSessionNotFound)
}

// IsUnitOwned checks if an error indicates the unit belongs to another operator.
func IsUnitOwned(err error) bool {
	var ownedErr *UnitOwnedError

	return errors.As(err, &ownedErr)
}
