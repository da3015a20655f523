// Package cmd provides common initialization functions for the command-line
// entrypoint.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/qcline/qcline/pkg/persistence"
	"github.com/qcline/qcline/pkg/persistence/memory"
	"github.com/qcline/qcline/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend by the database URL scheme.
// postgres:// and postgresql:// use PostgreSQL; anything else falls back to
// the in-memory store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		logger.WarnContext(ctx, "Using in-memory persistence; data will not survive a restart")

		return memory.NewPersistence(logger), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
