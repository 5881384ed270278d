// Package storeopen selects and opens the configured ledger store.
package storeopen

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"specledger/internal/adapter/fsstore"
	"specledger/internal/adapter/repo"
	"specledger/internal/domain"
	"specledger/internal/infra"
)

// Open returns the store named by cfg.StoreDriver. SQL stores are migrated
// before they are returned.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.Store, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverFirestore:
		return fsstore.Open(ctx, fsstore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			EmulatorHost:    cfg.FirestoreEmulatorHost,
			CredentialsFile: cfg.FirestoreCredentialsFile,
		}, logger)
	case infra.StoreDriverSQLite:
		db, err := infra.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, repo.NewStore(db, logger))
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return migrated(ctx, repo.NewStore(infra.NewPostgresDB(pool, logger), logger))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func migrated(ctx context.Context, s *repo.Store) (domain.Store, error) {
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
