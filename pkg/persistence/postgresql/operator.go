package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// OperatorRepository handles operator-related database operations.
type OperatorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOperatorRepository creates a new operator repository.
func NewOperatorRepository(db *sql.DB, logger *slog.Logger) *OperatorRepository {
	return &OperatorRepository{db: db, logger: logger}
}

// Save upserts the operator by id.
func (r *OperatorRepository) Save(ctx context.Context, operator *models.Operator) error {
	query := `
		INSERT INTO operators (id, full_name, position, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			position = EXCLUDED.position
	`

	_, err := r.db.ExecContext(ctx, query,
		operator.ID,
		operator.FullName,
		operator.Position,
		operator.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operator: %w", err)
	}

	return nil
}

// ByID returns the operator or persistence.ErrOperatorNotFound.
func (r *OperatorRepository) ByID(ctx context.Context, id int64) (*models.Operator, error) {
	query := `
		SELECT id, full_name, position, created_at
		FROM operators
		WHERE id = $1
	`

	var operator models.Operator

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&operator.ID,
		&operator.FullName,
		&operator.Position,
		&operator.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrOperatorNotFound
		}

		return nil, fmt.Errorf("failed to query operator: %w", err)
	}

	return &operator, nil
}
