package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// DraftRepository handles draft-related database operations.
type DraftRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *sql.DB, logger *slog.Logger) *DraftRepository {
	return &DraftRepository{db: db, logger: logger}
}

// Save upserts the draft, overwriting any prior draft for its key.
func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	query := `
		INSERT INTO drafts (operator_id, process, schema_version, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (operator_id, process) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		draft.OperatorID,
		draft.Process,
		draft.SchemaVersion,
		draft.Payload,
		draft.UpdatedAt,
	)
	if err != nil {
		return persistence.NewDraftError("save", draft.OperatorID, draft.Process, err)
	}

	return nil
}

// Load returns the draft for the key or persistence.ErrDraftNotFound.
func (r *DraftRepository) Load(ctx context.Context, operatorID int64, process string) (*models.Draft, error) {
	query := `
		SELECT operator_id, process, schema_version, payload, updated_at
		FROM drafts
		WHERE operator_id = $1 AND process = $2
	`

	var draft models.Draft

	err := r.db.QueryRowContext(ctx, query, operatorID, process).Scan(
		&draft.OperatorID,
		&draft.Process,
		&draft.SchemaVersion,
		&draft.Payload,
		&draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDraftError("load", operatorID, process, persistence.ErrDraftNotFound)
		}

		return nil, persistence.NewDraftError("load", operatorID, process, err)
	}

	return &draft, nil
}

// Delete removes the draft. Deleting an absent draft is not an error.
func (r *DraftRepository) Delete(ctx context.Context, operatorID int64, process string) error {
	query := `DELETE FROM drafts WHERE operator_id = $1 AND process = $2`

	_, err := r.db.ExecContext(ctx, query, operatorID, process)
	if err != nil {
		return persistence.NewDraftError("delete", operatorID, process, err)
	}

	return nil
}
