package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"specledger/internal/adapter/storeopen"
	"specledger/internal/audit"
	"specledger/internal/directory"
	"specledger/internal/domain"
	"specledger/internal/infra"
	"specledger/internal/ledger"
)

// env is what every subcommand needs: an opened store and the ledger on it.
type env struct {
	store  domain.Store
	ledger *ledger.Service
	logger infra.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	infra.LoadDotEnv()
	cfg, err := infra.LoadStoreConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "ledgerctl").Logger()
	store, err := storeopen.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	node, err := infra.NewIDNode(cfg.SnowflakeNode)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	svc := ledger.NewService(store, directory.New(), audit.NewAppender(node, logger), logger, ledger.Options{
		FreeSpecAllowance: cfg.FreeSpecAllowance,
	})
	return &env{store: store, ledger: svc, logger: logger}, nil
}

func (e *env) Close() error { return e.store.Close() }

// resolveUser accepts either a user id or an email.
func (e *env) resolveUser(ctx context.Context, id, email string) (string, error) {
	id, email = strings.TrimSpace(id), strings.TrimSpace(email)
	if id != "" {
		return id, nil
	}
	if email == "" {
		return "", errors.New("either --id or --email must be provided")
	}
	var userID string
	err := e.store.RunInTx(ctx, func(tx domain.Tx) error {
		u, err := e.ledger.Directory().Resolve(ctx, tx, "", email)
		if err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", email, err)
	}
	return userID, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
