package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// UnitSessionRepository handles unit session database operations.
type UnitSessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUnitSessionRepository creates a new unit session repository.
func NewUnitSessionRepository(db *sql.DB, logger *slog.Logger) *UnitSessionRepository {
	return &UnitSessionRepository{db: db, logger: logger}
}

// Claim registers the unit for the claiming operator. The active session for
// a (process, item_code) pair is locked inside the transaction, so two
// operators scanning the same unit race on the row, never past it.
func (r *UnitSessionRepository) Claim(ctx context.Context, session *models.UnitSession) (*models.UnitSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	activeQuery := `
		SELECT id, operator_id, process, container_code, item_code, created_at, completed_at
		FROM unit_sessions
		WHERE process = $1 AND item_code = $2 AND completed_at IS NULL
		FOR UPDATE
	`

	var existing models.UnitSession

	err = tx.QueryRowContext(ctx, activeQuery, session.Process, session.ItemCode).Scan(
		&existing.ID,
		&existing.OperatorID,
		&existing.Process,
		&existing.ContainerCode,
		&existing.ItemCode,
		&existing.CreatedAt,
		&existing.CompletedAt,
	)

	switch {
	case err == nil:
		if existing.OperatorID != session.OperatorID {
			ownerName := r.operatorName(ctx, tx, existing.OperatorID)

			err = tx.Commit()
			if err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}

			return nil, &persistence.UnitOwnedError{
				ItemCode:  session.ItemCode,
				OwnerID:   existing.OperatorID,
				OwnerName: ownerName,
			}
		}

		err = tx.Commit()
		if err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		return &existing, nil

	case errors.Is(err, sql.ErrNoRows):
		insertQuery := `
			INSERT INTO unit_sessions (id, operator_id, process, container_code, item_code, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`

		_, err = tx.ExecContext(ctx, insertQuery,
			session.ID,
			session.OperatorID,
			session.Process,
			session.ContainerCode,
			session.ItemCode,
			session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert unit session: %w", err)
		}

		err = tx.Commit()
		if err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		return session, nil

	default:
		return nil, fmt.Errorf("failed to query active unit session: %w", err)
	}
}

// ByID returns the session or persistence.ErrUnitSessionNotFound.
func (r *UnitSessionRepository) ByID(ctx context.Context, id string) (*models.UnitSession, error) {
	query := `
		SELECT id, operator_id, process, container_code, item_code, created_at, completed_at
		FROM unit_sessions
		WHERE id = $1
	`

	return r.scanSession(r.db.QueryRowContext(ctx, query, id))
}

// ActiveForOperator returns the operator's most recent active session for
// the process, or persistence.ErrUnitSessionNotFound.
func (r *UnitSessionRepository) ActiveForOperator(ctx context.Context, operatorID int64, process string) (*models.UnitSession, error) {
	query := `
		SELECT id, operator_id, process, container_code, item_code, created_at, completed_at
		FROM unit_sessions
		WHERE operator_id = $1 AND process = $2 AND completed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanSession(r.db.QueryRowContext(ctx, query, operatorID, process))
}

// Complete stamps the session completed. Completing an already completed
// session is not an error.
func (r *UnitSessionRepository) Complete(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE unit_sessions SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete unit session: %w", err)
	}

	return nil
}

func (r *UnitSessionRepository) scanSession(row *sql.Row) (*models.UnitSession, error) {
	var session models.UnitSession

	err := row.Scan(
		&session.ID,
		&session.OperatorID,
		&session.Process,
		&session.ContainerCode,
		&session.ItemCode,
		&session.CreatedAt,
		&session.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrUnitSessionNotFound
		}

		return nil, fmt.Errorf("failed to scan unit session: %w", err)
	}

	return &session, nil
}

func (r *UnitSessionRepository) operatorName(ctx context.Context, tx *sql.Tx, operatorID int64) string {
	var name string

	err := tx.QueryRowContext(ctx, `SELECT full_name FROM operators WHERE id = $1`, operatorID).Scan(&name)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to look up unit owner name", "operator_id", operatorID, "error", err)

		return ""
	}

	return name
}
