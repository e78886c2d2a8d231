package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gantryci/gantry/pkg/persistence"
	"github.com/gantryci/gantry/pkg/persistence/file"
	"github.com/gantryci/gantry/pkg/persistence/postgresql"
)

// NewPersistence picks the storage backend from the database URL scheme.
// postgres:// URLs get the PostgreSQL backend with migrations applied;
// everything else is treated as a file persistence root, with an optional
// file:// prefix.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return persist
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
