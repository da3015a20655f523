package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

// TokenRepository handles continuation token database operations.
type TokenRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *sql.DB, logger *slog.Logger) *TokenRepository {
	return &TokenRepository{db: db, logger: logger}
}

// Save stores the token.
func (r *TokenRepository) Save(ctx context.Context, token *models.ContinuationToken) error {
	payloadJSON, err := json.Marshal(token.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal token payload: %w", err)
	}

	query := `
		INSERT INTO continuation_tokens (token, operator_id, action, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		token.Token,
		token.OperatorID,
		token.Action,
		payloadJSON,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save continuation token: %w", err)
	}

	return nil
}

// Get returns the token or persistence.ErrTokenNotFound.
func (r *TokenRepository) Get(ctx context.Context, token string) (*models.ContinuationToken, error) {
	query := `
		SELECT token, operator_id, action, payload, created_at, expires_at
		FROM continuation_tokens
		WHERE token = $1
	`

	return r.scanToken(r.db.QueryRowContext(ctx, query, token))
}

// Take atomically deletes and returns the token. DELETE ... RETURNING
// guarantees at most one concurrent caller receives it.
func (r *TokenRepository) Take(ctx context.Context, token string) (*models.ContinuationToken, error) {
	query := `
		DELETE FROM continuation_tokens
		WHERE token = $1
		RETURNING token, operator_id, action, payload, created_at, expires_at
	`

	return r.scanToken(r.db.QueryRowContext(ctx, query, token))
}

// Delete removes the token. Deleting an absent token is not an error.
func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM continuation_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete continuation token: %w", err)
	}

	return nil
}

// DeleteExpired removes every token expired as of now and returns the count.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM continuation_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return reaped, nil
}

func (r *TokenRepository) scanToken(row *sql.Row) (*models.ContinuationToken, error) {
	var (
		token       models.ContinuationToken
		payloadJSON []byte
	)

	err := row.Scan(
		&token.Token,
		&token.OperatorID,
		&token.Action,
		&payloadJSON,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTokenNotFound
		}

		return nil, fmt.Errorf("failed to scan continuation token: %w", err)
	}

	if payloadJSON != nil {
		err := json.Unmarshal(payloadJSON, &token.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal token payload: %w", err)
		}
	}

	return &token, nil
}
