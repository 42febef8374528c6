package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/persistence/file"
	"github.com/outflowhq/outflow/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence picks the storage backend from the database URL scheme.
// Anything that is not postgres falls back to file storage.
func NewPersistence(ctx context.Context, databaseURL string, logger *slog.Logger) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider := strings.SplitN(databaseURL, "://", 2)[0]

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
