package ledger_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"specledger/internal/domain"
	"specledger/internal/ledger"
)

// TestRandomOperationsKeepInvariant drives one account through a random mix
// of ledger operations and checks the persisted state after every step. The
// purchased balance is tracked alongside and must always match.
func TestRandomOperationsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")

	rng := rand.New(rand.NewSource(7))
	var (
		balance     int
		orders      []string
		orderCredit = map[string]int{}
		refunded    = map[string]bool{}
		last        ledger.ConsumeResult
	)
	subEvents := []domain.SubscriptionEventKind{
		domain.SubEventCreated, domain.SubEventPaymentSuccess, domain.SubEventCancelled,
		domain.SubEventExpired, domain.SubEventPaymentFailed, domain.SubEventUpdated,
	}

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(7); op {
		case 0:
			id := fmt.Sprintf("ord-%d", step)
			n := rng.Intn(5) + 1
			grantOrder(t, svc, store, "u1", id, n)
			orders = append(orders, id)
			orderCredit[id] = n
			balance += n
		case 1:
			if len(orders) == 0 {
				continue
			}
			id := orders[rng.Intn(len(orders))]
			inTx(t, store, func(tx domain.Tx) error {
				_, err := svc.RefundCredits(ctx, tx, id)
				return err
			})
			if !refunded[id] {
				refunded[id] = true
				balance -= orderCredit[id]
			}
		case 2:
			kind := subEvents[rng.Intn(len(subEvents))]
			applySub(t, svc, store, "u1", ledger.SubscriptionChange{Kind: kind, Reported: domain.SubscriptionActive})
		case 3:
			res, err := svc.Consume(ctx, "u1")
			require.NoError(t, err)
			last = res
			if res.Pool == domain.CreditPoolPurchased {
				balance--
			}
		case 4:
			if !last.Success {
				continue
			}
			_, err := svc.Refund(ctx, ledger.RefundRequest{UserID: "u1", ConsumptionID: last.ConsumptionID, Pool: last.Pool})
			require.NoError(t, err)
			if last.Pool == domain.CreditPoolPurchased {
				balance++
			}
			last = ledger.ConsumeResult{}
		case 5:
			n := rng.Intn(3) + 1
			_, err := svc.AdminGrantCredits(ctx, ledger.AdminGrant{UserID: "u1", Amount: n, Source: "test"})
			require.NoError(t, err)
			balance += n
		case 6:
			_, err := svc.RevokePro(ctx, "u1", "test")
			require.NoError(t, err)
		}

		ent := entitlement(t, svc, "u1")
		require.Equal(t, balance, ent.PurchasedBalance(), "step %d", step)
		if ent.Unlimited {
			require.LessOrEqual(t, ent.SpecCredits, 0, "step %d", step)
		} else {
			require.Zero(t, ent.PreservedCredits, "step %d", step)
		}
	}
}
