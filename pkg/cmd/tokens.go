package cmd

import (
	"context"
	"log/slog"

	"github.com/qcline/qcline/pkg/persistence"
	redistokens "github.com/qcline/qcline/pkg/persistence/redis"
)

// NewTokenRepository picks the continuation token store. When a Redis URL is
// configured tokens live in Redis with server-side expiry; otherwise the main
// persistence backend holds them.
func NewTokenRepository(ctx context.Context, logger *slog.Logger, store persistence.Persistence, redisURL string) (persistence.TokenRepository, error) {
	if redisURL == "" {
		return store.Tokens(), nil
	}

	return redistokens.NewTokenRepository(ctx, logger, redisURL)
}
