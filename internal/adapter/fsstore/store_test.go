package fsstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specledger/internal/adapter/fsstore"
	"specledger/internal/audit"
	"specledger/internal/directory"
	"specledger/internal/domain"
	"specledger/internal/ledger"
)

// newStore connects to the emulator under a fresh project so tests do not
// see each other's documents.
func newStore(t *testing.T) *fsstore.Store {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	store, err := fsstore.Open(context.Background(), fsstore.Config{
		ProjectID:    "specledger-" + uuid.NewString()[:8],
		EmulatorHost: host,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProcessedEventInsertIfAbsent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ev := &domain.ProcessedEvent{EventID: "evt_1", EventName: "order_created", ResourceID: "1", ProcessedAt: time.Now().UTC()}

	var first, second bool
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) (err error) {
		first, err = tx.InsertProcessedEvent(ctx, ev)
		return err
	}))
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) (err error) {
		second, err = tx.InsertProcessedEvent(ctx, ev)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		ok, err := tx.ProcessedEventExists(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, ok)
		events, err := tx.ListProcessedEvents(ctx, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
		return nil
	}))
}

func TestPurchaseOrderIsUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := &domain.Purchase{ID: "p1", UserID: "u1", ExternalOrderID: "o1", CreditsGranted: 3, Status: domain.PurchaseStatusCompleted}

	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error { return tx.InsertPurchase(ctx, p) }))
	err := store.RunInTx(ctx, func(tx domain.Tx) error { return tx.InsertPurchase(ctx, p) })
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		return tx.UpdatePurchaseStatus(ctx, "p1", domain.PurchaseStatusRefunded, time.Now())
	}))
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		got, err := tx.GetPurchaseByOrder(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, domain.PurchaseStatusRefunded, got.Status)
		return nil
	}))
}

func TestFailedTransactionWritesNothing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	err := store.RunInTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.InsertUser(ctx, &domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
			return err
		}
		return domain.ErrInvalidAmount
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = store.RunInTx(ctx, func(tx domain.Tx) error {
		_, err := tx.GetUser(ctx, "u1")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerOnFirestore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	appender := audit.NewAppender(node, zerolog.Nop())
	svc := ledger.NewService(store, directory.New(), appender, zerolog.Nop(), ledger.Options{FreeSpecAllowance: 1})

	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		return svc.QueuePending(ctx, tx, &domain.PendingEntitlement{
			Email:   "Late@Example.com",
			EventID: "evt_1",
			Grants:  domain.Grants{SpecCredits: 3},
			Reason:  domain.PendingOrderBeforeSignup,
			OrderID: "o1",
		})
	}))

	res, err := svc.RegisterUser(ctx, ledger.Registration{UserID: "u1", Email: "late@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, res.Claim.Claimed)
	assert.Equal(t, 3, res.Account.Entitlement.SpecCredits)

	again, err := svc.RegisterUser(ctx, ledger.Registration{UserID: "u1", Email: "late@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Claim.Claimed)

	consumed, err := svc.Consume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPoolPurchased, consumed.Pool)
	_, err = svc.Consume(ctx, "u1")
	require.NoError(t, err)

	pool, err := svc.Refund(ctx, ledger.RefundRequest{UserID: "u1", ConsumptionID: consumed.ConsumptionID})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPoolPurchased, pool)
	_, err = svc.Refund(ctx, ledger.RefundRequest{UserID: "u1", ConsumptionID: consumed.ConsumptionID})
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	var refund ledger.RefundResult
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) (err error) {
		refund, err = svc.RefundCredits(ctx, tx, "o1")
		return err
	}))
	assert.Equal(t, ledger.RefundApplied, refund.Status)
	assert.Equal(t, -1, refund.Entitlement.SpecCredits)
}

func TestVoidedPendingIsNotClaimed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	svc := ledger.NewService(store, directory.New(), audit.NewAppender(node, zerolog.Nop()), zerolog.Nop(), ledger.Options{})

	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		return svc.QueuePending(ctx, tx, &domain.PendingEntitlement{
			Email:          "sub@example.com",
			EventID:        "evt_sub",
			Grants:         domain.Grants{Unlimited: true, CanEdit: true},
			Reason:         domain.PendingSubscriptionBeforeSignup,
			SubscriptionID: "s1",
		})
	}))
	var voided int
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) (err error) {
		voided, err = svc.VoidPendingSubscription(ctx, tx, "s1")
		return err
	}))
	assert.Equal(t, 1, voided)

	res, err := svc.RegisterUser(ctx, ledger.Registration{UserID: "u1", Email: "sub@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claim.Claimed)
	assert.False(t, res.Account.Entitlement.Unlimited)
}
