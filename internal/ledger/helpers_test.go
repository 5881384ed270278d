package ledger_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"specledger/internal/adapter/repo/repotest"
	"specledger/internal/audit"
	"specledger/internal/directory"
	"specledger/internal/domain"
	"specledger/internal/ledger"
)

func newService(t *testing.T) (*ledger.Service, domain.Store) {
	t.Helper()
	store := repotest.NewSQLiteStore(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := ledger.NewService(store, directory.New(), audit.NewAppender(node, zerolog.Nop()), zerolog.Nop(), ledger.Options{FreeSpecAllowance: 1})
	return svc, store
}

func register(t *testing.T, svc *ledger.Service, id, email string) {
	t.Helper()
	_, err := svc.RegisterUser(context.Background(), ledger.Registration{UserID: id, Email: email})
	require.NoError(t, err)
}

func entitlement(t *testing.T, svc *ledger.Service, userID string) domain.Entitlement {
	t.Helper()
	view, err := svc.GetEntitlements(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, view.Entitlement.CheckInvariant())
	return view.Entitlement
}

func inTx(t *testing.T, store domain.Store, fn func(tx domain.Tx) error) {
	t.Helper()
	require.NoError(t, store.RunInTx(context.Background(), fn))
}

func grantOrder(t *testing.T, svc *ledger.Service, store domain.Store, userID, orderID string, credits int) {
	t.Helper()
	inTx(t, store, func(tx domain.Tx) error {
		_, err := svc.GrantCredits(context.Background(), tx, ledger.Grant{UserID: userID, Credits: credits, OrderID: orderID, VariantID: "v-pack"})
		return err
	})
}

func applySub(t *testing.T, svc *ledger.Service, store domain.Store, userID string, ch ledger.SubscriptionChange) ledger.SubscriptionResult {
	t.Helper()
	var res ledger.SubscriptionResult
	inTx(t, store, func(tx domain.Tx) error {
		var err error
		res, err = svc.ApplySubscriptionEvent(context.Background(), tx, userID, ch)
		return err
	})
	return res
}

func auditActions(t *testing.T, store domain.Store, eventID string) []string {
	t.Helper()
	var actions []string
	inTx(t, store, func(tx domain.Tx) error {
		entries, err := tx.ListAuditByEvent(context.Background(), eventID)
		for _, e := range entries {
			actions = append(actions, e.Action)
		}
		return err
	})
	return actions
}
