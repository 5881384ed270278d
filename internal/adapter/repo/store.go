package repo

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"specledger/internal/domain"
	"specledger/internal/infra"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store implements domain.Store on PostgreSQL or SQLite. Each transaction
// gets a marker-checking SQL runner; the dialect only matters for the schema.
type Store struct {
	db     infra.Database
	logger zerolog.Logger
}

// NewStore wraps an opened database.
func NewStore(db infra.Database, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "sql_store").Str("dialect", string(db.Dialect())).Logger()}
}

// Migrate creates the ledger tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	script, err := schemaFS.ReadFile("schema/" + string(s.db.Dialect()) + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if err := s.db.ExecScript(ctx, string(script)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info().Msg("schema applied")
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.db.InTx(ctx, func(exec infra.SQLExecutor) error {
		return fn(&sqlTx{exec: exec})
	})
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// sqlTx implements domain.Tx over one database transaction.
type sqlTx struct {
	exec infra.SQLExecutor
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func notFound(err error) error {
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	return err
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*sqlTx)(nil)
)
