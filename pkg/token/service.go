// Package token implements the short-lived continuation token subsystem:
// issuance, owner-checked resolution, single-use consumption and reaping.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

const (
	// DefaultTTL bounds how long a continuation shortcut stays valid.
	DefaultTTL = time.Hour

	// DefaultReapInterval is how often expired tokens are swept.
	DefaultReapInterval = time.Minute

	tokenBytes = 16
)

// Service issues and redeems continuation tokens against a TokenRepository.
type Service struct {
	repo         persistence.TokenRepository
	clock        clock.Clock
	ttl          time.Duration
	reapInterval time.Duration
	logger       *slog.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock, letting tests drive expiry.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithReapInterval overrides the reaper period.
func WithReapInterval(interval time.Duration) Option {
	return func(s *Service) { s.reapInterval = interval }
}

func NewService(repo persistence.TokenRepository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		clock:        clock.New(),
		ttl:          DefaultTTL,
		reapInterval: DefaultReapInterval,
		logger:       logger.With("module", "token_service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Issue generates an unguessable token string and stores it with an absolute
// expiry. Tokens are never renewed.
func (s *Service) Issue(ctx context.Context, operatorID int64, action models.TokenAction, payload map[string]string) (string, error) {
	value, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.clock.Now()
	record := &models.ContinuationToken{
		Token:      value,
		OperatorID: operatorID,
		Action:     action,
		Payload:    payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}

	err = s.repo.Save(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return value, nil
}

// Resolve returns the token record only if it exists, has not expired, and is
// owned by the requesting operator. Every other outcome is reported as
// persistence.ErrTokenNotFound so callers cannot distinguish foreign tokens
// from absent ones.
func (s *Service) Resolve(ctx context.Context, token string, operatorID int64) (*models.ContinuationToken, error) {
	record, err := s.repo.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	return s.check(record, operatorID)
}

// Consume deletes the token, making it unusable regardless of remaining TTL.
// Callers invoke it immediately after successfully acting on a resolved token.
func (s *Service) Consume(ctx context.Context, token string) error {
	return s.repo.Delete(ctx, token)
}

// Redeem atomically takes the token out of the store and validates it for
// the requesting operator. At most one of any number of concurrent callers
// redeems a given token; expired or foreign tokens are destroyed and
// reported as not found.
func (s *Service) Redeem(ctx context.Context, token string, operatorID int64) (*models.ContinuationToken, error) {
	record, err := s.repo.Take(ctx, token)
	if err != nil {
		return nil, err
	}

	return s.check(record, operatorID)
}

func (s *Service) check(record *models.ContinuationToken, operatorID int64) (*models.ContinuationToken, error) {
	if record.Expired(s.clock.Now()) {
		return nil, persistence.ErrTokenNotFound
	}

	if record.OperatorID != operatorID {
		s.logger.Warn("token owner mismatch", "token_owner", record.OperatorID, "requested_by", operatorID)

		return nil, persistence.ErrTokenNotFound
	}

	return record, nil
}

// StartReaper sweeps expired tokens on a fixed interval until the context is
// cancelled. It never blocks foreground token operations; racing with
// Consume is harmless since both converge to a deleted token.
func (s *Service) StartReaper(ctx context.Context) {
	ticker := s.clock.Ticker(s.reapInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Starting token reaper", "interval", s.reapInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Token reaper stopped")

			return
		case <-ticker.C:
			reaped, err := s.repo.DeleteExpired(ctx, s.clock.Now())
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to reap expired tokens", "error", err)

				continue
			}

			if reaped > 0 {
				s.logger.InfoContext(ctx, "Reaped expired tokens", "count", reaped)
			}
		}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)

	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
