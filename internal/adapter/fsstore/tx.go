package fsstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"specledger/internal/domain"
)

type fsTx struct {
	client *firestore.Client
	tx     *firestore.Transaction

	writes []func(*firestore.Transaction) error
	// created tracks documents created earlier in this transaction, which
	// reads cannot see yet.
	created map[string]bool
}

func (t *fsTx) doc(col, id string) *firestore.DocumentRef {
	return t.client.Collection(col).Doc(id)
}

func (t *fsTx) queue(w func(*firestore.Transaction) error) {
	t.writes = append(t.writes, w)
}

func (t *fsTx) flush() error {
	for _, w := range t.writes {
		if err := w(t.tx); err != nil {
			return err
		}
	}
	return nil
}

// get loads one document into dst and maps a missing document to
// domain.ErrNotFound.
func (t *fsTx) get(ref *firestore.DocumentRef, dst any) error {
	snap, err := t.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", ref.Path, err)
	}
	if err := snap.DataTo(dst); err != nil {
		return fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	return nil
}

func (t *fsTx) exists(ref *firestore.DocumentRef) (bool, error) {
	if t.created[ref.Path] {
		return true, nil
	}
	_, err := t.tx.Get(ref)
	switch {
	case status.Code(err) == codes.NotFound:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get %s: %w", ref.Path, err)
	}
	return true, nil
}

// create buffers a document creation and reports false when it exists.
func (t *fsTx) create(ref *firestore.DocumentRef, data any) (bool, error) {
	ok, err := t.exists(ref)
	if err != nil || ok {
		return false, err
	}
	if t.created == nil {
		t.created = make(map[string]bool)
	}
	t.created[ref.Path] = true
	t.queue(func(ftx *firestore.Transaction) error { return ftx.Create(ref, data) })
	return true, nil
}

func (t *fsTx) query(q firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return snaps, nil
}

func (t *fsTx) queryOne(q firestore.Query, dst any) error {
	snaps, err := t.query(q.Limit(1))
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return domain.ErrNotFound
	}
	return snaps[0].DataTo(dst)
}

func (t *fsTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var d userDoc
	if err := t.get(t.doc(colUsers, id), &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) FindUserByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	var d userDoc
	if err := t.queryOne(t.client.Collection(colUsers).Where("paymentCustomerId", "==", customerID), &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	folded := domain.NormalizeEmail(email)
	if folded == "" {
		return nil, domain.ErrNotFound
	}
	var d userDoc
	if err := t.queryOne(t.client.Collection(colUsers).Where("emailNormalized", "==", folded), &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) InsertUser(ctx context.Context, u *domain.User) (bool, error) {
	return t.create(t.doc(colUsers, u.ID), fromUser(u))
}

// PutUser overwrites the whole user document. Callers load the user first.
func (t *fsTx) PutUser(ctx context.Context, u *domain.User) error {
	ref, d := t.doc(colUsers, u.ID), fromUser(u)
	t.queue(func(ftx *firestore.Transaction) error { return ftx.Set(ref, d) })
	return nil
}

func (t *fsTx) GetEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	var d entitlementDoc
	if err := t.get(t.doc(colEntitlements, userID), &d); err != nil {
		return nil, err
	}
	return &domain.Entitlement{
		UserID:           userID,
		SpecCredits:      d.SpecCredits,
		Unlimited:        d.Unlimited,
		CanEdit:          d.CanEdit,
		PreservedCredits: d.PreservedCredits,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func (t *fsTx) PutEntitlement(ctx context.Context, e *domain.Entitlement) error {
	ref := t.doc(colEntitlements, e.UserID)
	d := entitlementDoc{
		SpecCredits:      e.SpecCredits,
		Unlimited:        e.Unlimited,
		CanEdit:          e.CanEdit,
		PreservedCredits: e.PreservedCredits,
		UpdatedAt:        e.UpdatedAt,
	}
	t.queue(func(ftx *firestore.Transaction) error { return ftx.Set(ref, d) })
	return nil
}

func (t *fsTx) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	var d subscriptionDoc
	if err := t.get(t.doc(colSubscriptions, userID), &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, domain.ErrNotFound
	}
	var d subscriptionDoc
	q := t.client.Collection(colSubscriptions).Where("externalSubscriptionId", "==", externalID)
	if err := t.queryOne(q, &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) PutSubscription(ctx context.Context, s *domain.Subscription) error {
	ref := t.doc(colSubscriptions, s.UserID)
	d := subscriptionDoc{
		UserID:                 s.UserID,
		ExternalSubscriptionID: s.ExternalSubscriptionID,
		VariantID:              s.VariantID,
		Status:                 string(s.Status),
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
		LastEventAt:            s.LastEventAt,
		UpdatedAt:              s.UpdatedAt,
	}
	t.queue(func(ftx *firestore.Transaction) error { return ftx.Set(ref, d) })
	return nil
}

func (t *fsTx) GetPurchaseByOrder(ctx context.Context, orderID string) (*domain.Purchase, error) {
	var d purchaseDoc
	if err := t.get(t.doc(colPurchases, orderID), &d); err != nil {
		return nil, err
	}
	return &domain.Purchase{
		ID:              d.ID,
		UserID:          d.UserID,
		ExternalOrderID: d.ExternalOrderID,
		ProductID:       d.ProductID,
		VariantID:       d.VariantID,
		CreditsGranted:  d.CreditsGranted,
		AmountCents:     d.AmountCents,
		Currency:        d.Currency,
		Status:          domain.PurchaseStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (t *fsTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	ok, err := t.create(t.doc(colPurchases, p.ExternalOrderID), purchaseDoc{
		ID:              p.ID,
		UserID:          p.UserID,
		ExternalOrderID: p.ExternalOrderID,
		ProductID:       p.ProductID,
		VariantID:       p.VariantID,
		CreditsGranted:  p.CreditsGranted,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	if !ok {
		return fmt.Errorf("purchase for order %s: %w", p.ExternalOrderID, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *fsTx) UpdatePurchaseStatus(ctx context.Context, id string, st domain.PurchaseStatus, at time.Time) error {
	snaps, err := t.query(t.client.Collection(colPurchases).Where("id", "==", id).Limit(1))
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return domain.ErrNotFound
	}
	ref := snaps[0].Ref
	t.queue(func(ftx *firestore.Transaction) error {
		return ftx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(st)},
			{Path: "updatedAt", Value: at},
		})
	})
	return nil
}

func (t *fsTx) InsertPending(ctx context.Context, p *domain.PendingEntitlement) error {
	ok, err := t.create(t.doc(colPending, p.ID), pendingDoc{
		ID:             p.ID,
		Email:          domain.NormalizeEmail(p.Email),
		CustomerID:     p.CustomerID,
		EventID:        p.EventID,
		RawPayload:     p.RawPayload,
		Grants:         p.Grants,
		Reason:         string(p.Reason),
		OrderID:        p.OrderID,
		ProductID:      p.ProductID,
		VariantID:      p.VariantID,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		SubscriptionID: p.SubscriptionID,
		PeriodEnd:      p.PeriodEnd,
		CreatedAt:      p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert pending entitlement: %w", err)
	}
	if !ok {
		return fmt.Errorf("pending %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *fsTx) ListUnclaimedPending(ctx context.Context, email string) ([]domain.PendingEntitlement, error) {
	return t.listPending(t.client.Collection(colPending).
		Where("email", "==", domain.NormalizeEmail(email)).
		Where("claimed", "==", false))
}

func (t *fsTx) ListUnclaimedPendingBySubscription(ctx context.Context, subscriptionID string) ([]domain.PendingEntitlement, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return t.listPending(t.client.Collection(colPending).
		Where("subscriptionId", "==", subscriptionID).
		Where("claimed", "==", false))
}

func (t *fsTx) listPending(q firestore.Query) ([]domain.PendingEntitlement, error) {
	snaps, err := t.query(q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingEntitlement, 0, len(snaps))
	for _, s := range snaps {
		var d pendingDoc
		if err := s.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.Ref.Path, err)
		}
		out = append(out, d.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *fsTx) ClaimPending(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	ref := t.doc(colPending, id)
	var d pendingDoc
	err := t.get(ref, &d)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && d.Claimed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.queue(func(ftx *firestore.Transaction) error {
		return ftx.Update(ref, []firestore.Update{
			{Path: "claimed", Value: true},
			{Path: "claimedAt", Value: at},
			{Path: "claimedByUserId", Value: userID},
		})
	})
	return true, nil
}

func (t *fsTx) VoidPending(ctx context.Context, id string, at time.Time) (bool, error) {
	ref := t.doc(colPending, id)
	var d pendingDoc
	err := t.get(ref, &d)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && d.Claimed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.queue(func(ftx *firestore.Transaction) error {
		return ftx.Update(ref, []firestore.Update{
			{Path: "claimed", Value: true},
			{Path: "voidedAt", Value: at},
		})
	})
	return true, nil
}

func (t *fsTx) GetConsumption(ctx context.Context, id string) (*domain.Consumption, error) {
	var d consumptionDoc
	if err := t.get(t.doc(colConsumptions, id), &d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (t *fsTx) InsertConsumption(ctx context.Context, c *domain.Consumption) error {
	ok, err := t.create(t.doc(colConsumptions, c.ID), consumptionDoc{
		ID:        c.ID,
		UserID:    c.UserID,
		Pool:      string(c.Pool),
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert consumption: %w", err)
	}
	if !ok {
		return fmt.Errorf("consumption %s: %w", c.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *fsTx) MarkConsumptionRefunded(ctx context.Context, id string, at time.Time) (bool, error) {
	ref := t.doc(colConsumptions, id)
	var d consumptionDoc
	err := t.get(ref, &d)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && d.Status != string(domain.ConsumptionCharged)) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.queue(func(ftx *firestore.Transaction) error {
		return ftx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.ConsumptionRefunded)},
			{Path: "refundedAt", Value: at},
		})
	})
	return true, nil
}

func (t *fsTx) InsertProcessedEvent(ctx context.Context, e *domain.ProcessedEvent) (bool, error) {
	return t.create(t.doc(colProcessedEvents, e.EventID), processedEventDoc{
		EventID:     e.EventID,
		EventName:   e.EventName,
		ResourceID:  e.ResourceID,
		ProcessedAt: e.ProcessedAt,
	})
}

func (t *fsTx) ProcessedEventExists(ctx context.Context, eventID string) (bool, error) {
	return t.exists(t.doc(colProcessedEvents, eventID))
}

func (t *fsTx) ListProcessedEvents(ctx context.Context, since time.Time, limit int) ([]domain.ProcessedEvent, error) {
	q := t.client.Collection(colProcessedEvents).
		Where("processedAt", ">=", since).
		OrderBy("processedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	snaps, err := t.query(q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProcessedEvent, 0, len(snaps))
	for _, s := range snaps {
		var d processedEventDoc
		if err := s.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.Ref.Path, err)
		}
		out = append(out, domain.ProcessedEvent(d))
	}
	return out, nil
}

func (t *fsTx) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	ok, err := t.create(t.doc(colAudit, strconv.FormatInt(entry.ID, 10)), auditDoc{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Source:    string(entry.Source),
		Action:    entry.Action,
		EventID:   entry.EventID,
		Payload:   payload,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if !ok {
		return fmt.Errorf("audit entry %d: %w", entry.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *fsTx) ListAuditByEvent(ctx context.Context, eventID string) ([]domain.AuditLogEntry, error) {
	snaps, err := t.query(t.client.Collection(colAudit).Where("eventId", "==", eventID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditLogEntry, 0, len(snaps))
	for _, s := range snaps {
		var d auditDoc
		if err := s.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.Ref.Path, err)
		}
		out = append(out, domain.AuditLogEntry{
			ID:        d.ID,
			UserID:    d.UserID,
			Source:    domain.AuditSource(d.Source),
			Action:    d.Action,
			EventID:   d.EventID,
			Payload:   d.Payload,
			CreatedAt: d.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ domain.Tx = (*fsTx)(nil)
