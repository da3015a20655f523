// Package redis provides a Redis-backed continuation token repository.
// Tokens are stored with server-side expiry, so the reaper has nothing to do
// beyond what Redis already does.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

const tokenKeyPrefix = "qcline:token:"

// TokenRepository stores continuation tokens in Redis.
type TokenRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewTokenRepository connects to Redis using a redis:// URL.
func NewTokenRepository(ctx context.Context, logger *slog.Logger, redisURL string) (*TokenRepository, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &TokenRepository{client: client, logger: logger}, nil
}

func (r *TokenRepository) Save(ctx context.Context, token *models.ContinuationToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	err = r.client.Set(ctx, tokenKeyPrefix+token.Token, payload, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to save continuation token: %w", err)
	}

	return nil
}

func (r *TokenRepository) Get(ctx context.Context, token string) (*models.ContinuationToken, error) {
	payload, err := r.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrTokenNotFound
		}

		return nil, fmt.Errorf("failed to get continuation token: %w", err)
	}

	return unmarshalToken(payload)
}

// Take atomically deletes and returns the token via GETDEL, so at most one
// concurrent caller receives it.
func (r *TokenRepository) Take(ctx context.Context, token string) (*models.ContinuationToken, error) {
	payload, err := r.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrTokenNotFound
		}

		return nil, fmt.Errorf("failed to take continuation token: %w", err)
	}

	return unmarshalToken(payload)
}

func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	err := r.client.Del(ctx, tokenKeyPrefix+token).Err()
	if err != nil {
		return fmt.Errorf("failed to delete continuation token: %w", err)
	}

	return nil
}

// DeleteExpired is a no-op: Redis expires keys server-side.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Close releases the Redis connection.
func (r *TokenRepository) Close() error {
	return r.client.Close()
}

func unmarshalToken(payload string) (*models.ContinuationToken, error) {
	var token models.ContinuationToken

	err := json.Unmarshal([]byte(payload), &token)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal continuation token: %w", err)
	}

	return &token, nil
}
