// Package postgresql provides PostgreSQL persistence for drafts, tokens,
// control records, operators and unit sessions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	operators *OperatorRepository
	drafts    *DraftRepository
	tokens    *TokenRepository
	records   *RecordRepository
	units     *UnitSessionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		operators: NewOperatorRepository(database, logger),
		drafts:    NewDraftRepository(database, logger),
		tokens:    NewTokenRepository(database, logger),
		records:   NewRecordRepository(database, logger),
		units:     NewUnitSessionRepository(database, logger),
	}, nil
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

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
