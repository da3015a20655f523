package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// RecordRepository handles control record database operations.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// Insert stores one completed record.
func (r *RecordRepository) Insert(ctx context.Context, record *models.Record) error {
	valuesJSON, err := json.Marshal(record.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal record values: %w", err)
	}

	query := `
		INSERT INTO control_records (id, operator_id, process, unit_session_id, headline_numeric, record_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.OperatorID,
		record.Process,
		record.UnitSessionID,
		record.HeadlineNumeric,
		valuesJSON,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert control record: %w", err)
	}

	return nil
}

// LastForProcess returns the operator's most recent record for the process,
// or persistence.ErrRecordNotFound.
func (r *RecordRepository) LastForProcess(ctx context.Context, operatorID int64, process string) (*models.Record, error) {
	query := `
		SELECT id, operator_id, process, unit_session_id, headline_numeric, record_values, created_at
		FROM control_records
		WHERE operator_id = $1 AND process = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		record     models.Record
		valuesJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, operatorID, process).Scan(
		&record.ID,
		&record.OperatorID,
		&record.Process,
		&record.UnitSessionID,
		&record.HeadlineNumeric,
		&valuesJSON,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to query control record: %w", err)
	}

	if valuesJSON != nil {
		err := json.Unmarshal(valuesJSON, &record.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal record values: %w", err)
		}
	}

	return &record, nil
}
