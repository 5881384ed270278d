package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specledger/internal/domain"
	"specledger/internal/ledger"
)

func TestGrantCreditsRecordsPurchase(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")

	grantOrder(t, svc, store, "u1", "ord-1", 3)
	assert.Equal(t, 3, entitlement(t, svc, "u1").SpecCredits)

	inTx(t, store, func(tx domain.Tx) error {
		p, err := tx.GetPurchaseByOrder(ctx, "ord-1")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.UserID)
		assert.Equal(t, 3, p.CreditsGranted)
		assert.Equal(t, domain.PurchaseStatusCompleted, p.Status)
		return nil
	})

	err := store.RunInTx(ctx, func(tx domain.Tx) error {
		_, err := svc.GrantCredits(ctx, tx, ledger.Grant{UserID: "u1", Credits: 3, OrderID: "ord-1"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)
	assert.Equal(t, 3, entitlement(t, svc, "u1").SpecCredits)
}

func TestGrantCreditsRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")

	for _, n := range []int{0, -2} {
		err := store.RunInTx(ctx, func(tx domain.Tx) error {
			_, err := svc.GrantCredits(ctx, tx, ledger.Grant{UserID: "u1", Credits: n})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

func TestGrantCreditsFailsAtomically(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")

	// Another user already owns the order, so the purchase insert fails after
	// the credit increment was staged.
	inTx(t, store, func(tx domain.Tx) error {
		return tx.InsertPurchase(ctx, &domain.Purchase{
			ID: "p-other", UserID: "u-other", ExternalOrderID: "ord-x", CreditsGranted: 1,
			Status: domain.PurchaseStatusCompleted, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
	})
	err := store.RunInTx(ctx, func(tx domain.Tx) error {
		a, err := svc.GrantCredits(ctx, tx, ledger.Grant{UserID: "u1", Credits: 4})
		if err != nil {
			return err
		}
		require.Equal(t, 4, a.SpecCredits)
		return tx.InsertPurchase(ctx, &domain.Purchase{
			ID: "p-dup", UserID: "u1", ExternalOrderID: "ord-x", CreditsGranted: 4,
			Status: domain.PurchaseStatusCompleted, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 0, entitlement(t, svc, "u1").SpecCredits)
}

func TestEnableThenRevokeRestoresCredits(t *testing.T) {
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 7)

	res := applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated, ExternalSubscriptionID: "sub-1"})
	assert.Equal(t, domain.EffectEnablePro, res.Transition.Effect)
	ent := entitlement(t, svc, "u1")
	assert.True(t, ent.Unlimited)
	assert.True(t, ent.CanEdit)
	assert.Equal(t, 0, ent.SpecCredits)
	assert.Equal(t, 7, ent.PreservedCredits)

	// Renewal must not preserve twice.
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventPaymentSuccess, ExternalSubscriptionID: "sub-1"})
	assert.Equal(t, 7, entitlement(t, svc, "u1").PreservedCredits)

	res = applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventExpired, ExternalSubscriptionID: "sub-1"})
	assert.Equal(t, domain.EffectRevokePro, res.Transition.Effect)
	ent = entitlement(t, svc, "u1")
	assert.False(t, ent.Unlimited)
	assert.False(t, ent.CanEdit)
	assert.Equal(t, 7, ent.SpecCredits)
	assert.Equal(t, 0, ent.PreservedCredits)

	view, err := svc.GetEntitlements(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserPlanFree, view.User.Plan)
	require.NotNil(t, view.Subscription)
	assert.Equal(t, domain.SubscriptionExpired, view.Subscription.Status)
}

func TestGrantWhileProIsPreserved(t *testing.T) {
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated, ExternalSubscriptionID: "sub-1"})

	grantOrder(t, svc, store, "u1", "ord-1", 3)
	ent := entitlement(t, svc, "u1")
	assert.Equal(t, 0, ent.SpecCredits)
	assert.Equal(t, 3, ent.PreservedCredits)
}

func TestCancelAndPaymentFailureKeepPro(t *testing.T) {
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	end := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Millisecond)
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated, ExternalSubscriptionID: "sub-1", PeriodEnd: &end})

	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventPaymentFailed})
	assert.True(t, entitlement(t, svc, "u1").Unlimited)

	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCancelled})
	assert.True(t, entitlement(t, svc, "u1").Unlimited)

	view, err := svc.GetEntitlements(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, view.Subscription.Status)
	assert.True(t, view.Subscription.CancelAtPeriodEnd)
	require.NotNil(t, view.Subscription.CurrentPeriodEnd)
	assert.Equal(t, end, *view.Subscription.CurrentPeriodEnd)
}

func TestUpdateDoesNotTouchCredits(t *testing.T) {
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 2)
	cancel := true

	res := applySub(t, svc, store, "u1", ledger.SubscriptionChange{
		Kind: domain.SubEventUpdated, ExternalSubscriptionID: "sub-1", Reported: domain.SubscriptionActive, CancelAtPeriodEnd: &cancel,
	})
	assert.Equal(t, domain.EffectNone, res.Transition.Effect)
	ent := entitlement(t, svc, "u1")
	assert.Equal(t, 2, ent.SpecCredits)
	assert.False(t, ent.Unlimited)
}

func TestStaleSubscriptionEventIsRejected(t *testing.T) {
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated, ExternalSubscriptionID: "sub-1", OccurredAt: t0})
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventExpired, ExternalSubscriptionID: "sub-1", OccurredAt: t0.Add(48 * time.Hour)})

	// A retried payment success from before the expiry arrives late.
	res := applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventPaymentSuccess, ExternalSubscriptionID: "sub-1", OccurredAt: t0.Add(24 * time.Hour)})
	assert.True(t, res.Stale)
	assert.False(t, entitlement(t, svc, "u1").Unlimited)

	// A genuinely newer renewal re-enables Pro.
	res = applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventPaymentSuccess, ExternalSubscriptionID: "sub-1", OccurredAt: t0.Add(72 * time.Hour)})
	assert.False(t, res.Stale)
	assert.True(t, entitlement(t, svc, "u1").Unlimited)
}

func TestRefundCredits(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-3", 3)
	require.NoError(t, store.RunInTx(ctx, func(tx domain.Tx) error {
		_, err := svc.GrantCredits(ctx, tx, ledger.Grant{UserID: "u1", Credits: 2})
		return err
	}))
	require.Equal(t, 5, entitlement(t, svc, "u1").SpecCredits)

	refund := func(orderID string) ledger.RefundResult {
		var res ledger.RefundResult
		inTx(t, store, func(tx domain.Tx) error {
			var err error
			res, err = svc.RefundCredits(ctx, tx, orderID)
			return err
		})
		return res
	}

	res := refund("ord-3")
	assert.Equal(t, ledger.RefundApplied, res.Status)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, 2, entitlement(t, svc, "u1").SpecCredits)
	inTx(t, store, func(tx domain.Tx) error {
		p, err := tx.GetPurchaseByOrder(ctx, "ord-3")
		require.NoError(t, err)
		assert.Equal(t, domain.PurchaseStatusRefunded, p.Status)
		return nil
	})

	assert.Equal(t, ledger.RefundAlreadyRefunded, refund("ord-3").Status)
	assert.Equal(t, 2, entitlement(t, svc, "u1").SpecCredits)
	assert.Equal(t, ledger.RefundPurchaseMissing, refund("ord-missing").Status)
}

func TestRefundMayOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 3)
	for i := 0; i < 2; i++ {
		res, err := svc.Consume(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, domain.CreditPoolPurchased, res.Pool)
	}

	inTx(t, store, func(tx domain.Tx) error {
		_, err := svc.RefundCredits(ctx, tx, "ord-1")
		return err
	})
	assert.Equal(t, -2, entitlement(t, svc, "u1").SpecCredits)
}

func TestRefundWhileProDebitsPreserved(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 4)
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated})

	inTx(t, store, func(tx domain.Tx) error {
		_, err := svc.RefundCredits(ctx, tx, "ord-1")
		return err
	})
	ent := entitlement(t, svc, "u1")
	assert.Equal(t, 0, ent.SpecCredits)
	assert.Equal(t, 0, ent.PreservedCredits)
	assert.True(t, ent.Unlimited)
}

func TestRevokeProWithoutSubscription(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	register(t, svc, "u1", "u1@example.com")

	ent, err := svc.RevokePro(ctx, "u1", "support ticket 42")
	require.NoError(t, err)
	assert.False(t, ent.Unlimited)

	view, err := svc.GetEntitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, view.Subscription)
}

func TestManualRevokeCancelsLiveSubscription(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 2)
	applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: domain.SubEventCreated, ExternalSubscriptionID: "sub-1"})

	ent, err := svc.RevokePro(ctx, "u1", "chargeback")
	require.NoError(t, err)
	assert.Equal(t, 2, ent.SpecCredits)

	view, err := svc.GetEntitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, view.Subscription.Status)
	assert.Equal(t, domain.UserPlanFree, view.User.Plan)
}

func TestAdminGrantCredits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	register(t, svc, "u1", "u1@example.com")

	ent, err := svc.AdminGrantCredits(ctx, ledger.AdminGrant{UserID: "u1", Amount: 5, Source: "support", Metadata: map[string]any{"ticket": "42"}})
	require.NoError(t, err)
	assert.Equal(t, 5, ent.SpecCredits)

	_, err = svc.AdminGrantCredits(ctx, ledger.AdminGrant{UserID: "missing", Amount: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.AdminGrantCredits(ctx, ledger.AdminGrant{UserID: "u1", Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEnableProSubscriptionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-1", 4)

	for i := 0; i < 3; i++ {
		inTx(t, store, func(tx domain.Tx) error {
			_, err := svc.EnableProSubscription(ctx, tx, "u1", "sub-1", "v-pro", nil)
			return err
		})
	}
	ent := entitlement(t, svc, "u1")
	assert.Equal(t, 4, ent.PreservedCredits)
	assert.Equal(t, 0, ent.SpecCredits)

	inTx(t, store, func(tx domain.Tx) error {
		_, err := svc.RevokeProSubscription(ctx, tx, "u1", domain.SubscriptionCancelled)
		return err
	})
	assert.Equal(t, 4, entitlement(t, svc, "u1").SpecCredits)
}
