package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"specledger/internal/ledger"
)

// registerUser creates a user through the same environment the commands use.
func registerUser(t *testing.T, id, email string) {
	t.Helper()
	ctx := context.Background()
	e, err := openEnv(ctx)
	require.NoError(t, err)
	defer e.Close()
	_, err = e.ledger.RegisterUser(ctx, ledger.Registration{UserID: id, Email: email})
	require.NoError(t, err)
}
