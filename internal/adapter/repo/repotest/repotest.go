// Package repotest opens throwaway SQL stores for tests.
package repotest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"specledger/internal/adapter/repo"
	"specledger/internal/infra"
)

// NewSQLiteStore returns a migrated store backed by a file in t.TempDir.
func NewSQLiteStore(t testing.TB) *repo.Store {
	t.Helper()
	db, err := infra.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), zerolog.Nop())
	require.NoError(t, err)
	store := repo.NewStore(db, zerolog.Nop())
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}
