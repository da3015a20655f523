// Package memory provides an in-memory persistence implementation for
// development and tests. Data does not survive a restart.
package memory

import (
	"context"
	"log/slog"

	"github.com/qcline/qcline/pkg/persistence"
)

// Persistence implements the persistence layer with in-process storage.
type Persistence struct {
	logger *slog.Logger

	operators *OperatorRepository
	drafts    *DraftRepository
	tokens    *TokenRepository
	records   *RecordRepository
	units     *UnitSessionRepository
}

// NewPersistence creates a new in-memory persistence layer.
func NewPersistence(logger *slog.Logger) *Persistence {
	return &Persistence{
		logger:    logger,
		operators: NewOperatorRepository(),
		drafts:    NewDraftRepository(),
		tokens:    NewTokenRepository(),
		records:   NewRecordRepository(),
		units:     NewUnitSessionRepository(),
	}
}

// Operators returns the operator repository.
func (p *Persistence) Operators() persistence.OperatorRepository { return p.operators }

// Drafts returns the draft repository.
func (p *Persistence) Drafts() persistence.DraftRepository { return p.drafts }

// Tokens returns the continuation token repository.
func (p *Persistence) Tokens() persistence.TokenRepository { return p.tokens }

// Records returns the control record repository.
func (p *Persistence) Records() persistence.RecordRepository { return p.records }

// UnitSessions returns the unit session repository.
func (p *Persistence) UnitSessions() persistence.UnitSessionRepository { return p.units }

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(ctx context.Context) error { return nil }

// Close stops the token cache's expiry loop.
func (p *Persistence) Close(ctx context.Context) error {
	p.tokens.stop()

	return nil
}
