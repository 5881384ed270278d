// Package fsstore implements the ledger store on Cloud Firestore.
//
// Firestore transactions require every read to happen before the first
// write, so writes issued through Tx are buffered and applied in order once
// the transaction function returns.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"specledger/internal/domain"
)

const (
	colUsers           = "users"
	colEntitlements    = "entitlements"
	colSubscriptions   = "subscriptions"
	colPurchases       = "purchases"
	colPending         = "pending_entitlements"
	colProcessedEvents = "processed_events"
	colAudit           = "audit_log"
	colConsumptions    = "consumptions"
)

// Config selects the Firestore project and credentials.
type Config struct {
	ProjectID       string
	EmulatorHost    string
	CredentialsFile string
}

type Store struct {
	client *firestore.Client
	logger zerolog.Logger
}

// Open dials Firestore. An emulator host takes precedence over credentials.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id not configured")
	}
	var opts []option.ClientOption
	if cfg.EmulatorHost != "" {
		// The client library reads the emulator address from the environment.
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.EmulatorHost); err != nil {
			return nil, fmt.Errorf("set emulator host: %w", err)
		}
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client, logger), nil
}

// New wraps an existing client.
func New(client *firestore.Client, logger zerolog.Logger) *Store {
	return &Store{client: client, logger: logger.With().Str("component", "firestore_store").Logger()}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		t := &fsTx{client: s.client, tx: ftx}
		if err := fn(t); err != nil {
			return err
		}
		return t.flush()
	})
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(colUsers).Limit(1).Documents(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

var _ domain.Store = (*Store)(nil)
