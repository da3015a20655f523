// Package persistence provides the data storage abstraction layer for
// drafts, continuation tokens, control records, operators and unit sessions.
package persistence

import (
	"context"
	"time"

	"github.com/qcline/qcline/pkg/models"
)

// Persistence aggregates all repositories backed by one store.
type Persistence interface {
	Operators() OperatorRepository
	Drafts() DraftRepository
	Tokens() TokenRepository
	Records() RecordRepository
	UnitSessions() UnitSessionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// OperatorRepository stores registered operators.
type OperatorRepository interface {
	// Save upserts an operator by id.
	Save(ctx context.Context, operator *models.Operator) error
	// ByID returns ErrOperatorNotFound when the operator is not registered.
	ByID(ctx context.Context, id int64) (*models.Operator, error)
}

// DraftRepository stores at most one draft per (operator, process) key.
type DraftRepository interface {
	// Save upserts the draft, overwriting any prior draft for its key.
	Save(ctx context.Context, draft *models.Draft) error
	// Load returns ErrDraftNotFound when no draft exists for the key.
	Load(ctx context.Context, operatorID int64, process string) (*models.Draft, error)
	// Delete removes the draft. Deleting an absent draft is not an error.
	Delete(ctx context.Context, operatorID int64, process string) error
}

// TokenRepository stores continuation tokens keyed by the token string.
type TokenRepository interface {
	Save(ctx context.Context, token *models.ContinuationToken) error
	// Get returns ErrTokenNotFound when the token is absent.
	Get(ctx context.Context, token string) (*models.ContinuationToken, error)
	// Take atomically deletes and returns the token. Under concurrent calls
	// for the same token at most one caller receives it; the rest get
	// ErrTokenNotFound.
	Take(ctx context.Context, token string) (*models.ContinuationToken, error)
	// Delete removes the token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes every token whose expiry precedes now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RecordRepository is the sink for completed workflow records.
type RecordRepository interface {
	// Insert stores one completed record atomically.
	Insert(ctx context.Context, record *models.Record) error
	// LastForProcess returns the operator's most recent record for the
	// process, or ErrRecordNotFound.
	LastForProcess(ctx context.Context, operatorID int64, process string) (*models.Record, error)
}

// UnitSessionRepository tracks which operator is working which physical unit.
type UnitSessionRepository interface {
	// Claim registers the unit for the claiming operator. If the unit
	// already has an active session it returns that session when the owner
	// matches, or a UnitOwnedError naming the other owner.
	Claim(ctx context.Context, session *models.UnitSession) (*models.UnitSession, error)
	// ByID returns ErrUnitSessionNotFound when the session is absent.
	ByID(ctx context.Context, id string) (*models.UnitSession, error)
	// ActiveForOperator returns the operator's most recent active session
	// for the process, or ErrUnitSessionNotFound.
	ActiveForOperator(ctx context.Context, operatorID int64, process string) (*models.UnitSession, error)
	// Complete stamps the session completed. Completing an already
	// completed session is not an error.
	Complete(ctx context.Context, id string, at time.Time) error
}
