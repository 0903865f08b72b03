// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kbflow/kbflow/pkg/persistence"
	"github.com/kbflow/kbflow/pkg/persistence/file"
	"github.com/kbflow/kbflow/pkg/persistence/postgresql"
	"github.com/kbflow/kbflow/pkg/persistence/redis"
)

// NewPersistence builds the persistence layer from the database URL scheme:
// postgres:// and postgresql:// select PostgreSQL, redis:// selects Redis,
// anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
