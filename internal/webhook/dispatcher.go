package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"specledger/internal/audit"
	"specledger/internal/catalog"
	"specledger/internal/domain"
	"specledger/internal/idempotency"
	"specledger/internal/ledger"
	"specledger/internal/metrics"
)

// Outcome is what the provider is told about a delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Result describes one dispatched delivery.
type Result struct {
	EventID   string
	EventName string
	Outcome   Outcome
	// Action is the audit action recorded for the event.
	Action string
	UserID string

	mutation string
}

// Dispatcher routes verified webhook deliveries to the ledger. Each delivery
// is marked processed first and then handled in one store transaction together
// with its audit entry.
type Dispatcher struct {
	ledger  *ledger.Service
	gate    *idempotency.Gate
	audit   *audit.Appender
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

func NewDispatcher(svc *ledger.Service, gate *idempotency.Gate, appender *audit.Appender, cat *catalog.Catalog, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ledger:  svc,
		gate:    gate,
		audit:   appender,
		catalog: cat,
		logger:  logger.With().Str("component", "webhook_dispatcher").Logger(),
	}
}

// Process parses raw and applies it at most once. Parse failures wrap
// domain.ErrInvalidPayload and leave no trace. Once the event is marked, a
// failing handler is audited as an error and returned; the event is not
// retried on redelivery.
func (d *Dispatcher) Process(ctx context.Context, raw []byte) (Result, error) {
	start := time.Now()
	ev, err := Parse(raw)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("invalid", "invalid_payload").Inc()
		return Result{}, err
	}
	meta := ev.Meta()
	defer func() {
		metrics.WebhookDuration.WithLabelValues(meta.EventName).Observe(time.Since(start).Seconds())
	}()
	log := d.logger.With().Str("event_id", meta.EventID).Str("event_name", meta.EventName).Logger()

	first, err := d.gate.MarkProcessed(ctx, meta.EventID, meta.EventName, ev.ResourceID())
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(meta.EventName, "error").Inc()
		return Result{}, err
	}
	if !first {
		res := Result{EventID: meta.EventID, EventName: meta.EventName, Outcome: OutcomeDuplicate, Action: domain.ActionDuplicate}
		if err := d.audit.Record(ctx, d.ledger.Store(), domain.AuditLogEntry{
			Source:  domain.AuditSourceWebhook,
			Action:  domain.ActionDuplicate,
			EventID: meta.EventID,
		}); err != nil {
			log.Warn().Err(err).Msg("duplicate delivery not audited")
		}
		log.Info().Msg("duplicate delivery")
		metrics.WebhookEventsTotal.WithLabelValues(meta.EventName, string(OutcomeDuplicate)).Inc()
		return res, nil
	}

	var res Result
	err = d.ledger.Store().RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		res, err = d.handle(ctx, tx, ev, meta, raw)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("webhook processing failed after mark")
		if aerr := d.audit.Record(ctx, d.ledger.Store(), domain.AuditLogEntry{
			Source:  domain.AuditSourceWebhook,
			Action:  domain.ActionError,
			EventID: meta.EventID,
			Payload: map[string]any{"event_name": meta.EventName, "resource_id": ev.ResourceID(), "error": err.Error()},
		}); aerr != nil {
			log.Error().Err(aerr).Msg("processing failure not audited")
		}
		metrics.WebhookEventsTotal.WithLabelValues(meta.EventName, "error").Inc()
		return Result{EventID: meta.EventID, EventName: meta.EventName}, fmt.Errorf("process %s %s: %w", meta.EventName, meta.EventID, err)
	}

	res.EventID = meta.EventID
	res.EventName = meta.EventName
	if res.mutation != "" {
		metrics.LedgerMutationsTotal.WithLabelValues(res.mutation).Inc()
	}
	metrics.WebhookEventsTotal.WithLabelValues(meta.EventName, string(res.Outcome)).Inc()
	log.Info().Str("outcome", string(res.Outcome)).Str("action", res.Action).Str("user_id", res.UserID).Msg("webhook processed")
	return res, nil
}

func (d *Dispatcher) handle(ctx context.Context, tx domain.Tx, ev Event, meta EventMeta, raw []byte) (Result, error) {
	switch e := ev.(type) {
	case *OrderEvent:
		if e.EventName == EventOrderRefunded {
			return d.orderRefunded(ctx, tx, e)
		}
		return d.orderCreated(ctx, tx, e, raw)
	case *SubscriptionEvent:
		return d.subscriptionEvent(ctx, tx, e, meta.OccurredAt, raw)
	default:
		return d.record(ctx, tx, meta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUnhandledEvent}, map[string]any{
			"resource_id": ev.ResourceID(),
		})
	}
}

func (d *Dispatcher) orderCreated(ctx context.Context, tx domain.Tx, e *OrderEvent, raw []byte) (Result, error) {
	product, ok := d.catalog.Lookup(e.VariantID)
	if !ok || product.Grants.SpecCredits <= 0 {
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUnknownProduct}, map[string]any{
			"order_id":   e.OrderID,
			"variant_id": e.VariantID,
		})
	}
	credits := product.Grants.SpecCredits
	productID := firstNonEmpty(product.ProductID, e.ProductID)

	user, err := d.ledger.Directory().Resolve(ctx, tx, e.CustomerID, e.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return d.queue(ctx, tx, e.EventMeta, e.Email, raw, &domain.PendingEntitlement{
			CustomerID:  e.CustomerID,
			Grants:      domain.Grants{SpecCredits: credits},
			Reason:      domain.PendingOrderBeforeSignup,
			OrderID:     e.OrderID,
			ProductID:   productID,
			VariantID:   e.VariantID,
			AmountCents: e.TotalCents,
			Currency:    e.Currency,
		})
	}
	if err != nil {
		return Result{}, err
	}

	ent, err := d.ledger.GrantCredits(ctx, tx, ledger.Grant{
		UserID:      user.ID,
		CustomerID:  e.CustomerID,
		Credits:     credits,
		OrderID:     e.OrderID,
		ProductID:   productID,
		VariantID:   e.VariantID,
		AmountCents: e.TotalCents,
		Currency:    e.Currency,
	})
	if errors.Is(err, domain.ErrDuplicateOperation) {
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionOrderRecorded, UserID: user.ID}, map[string]any{
			"order_id": e.OrderID,
		})
	}
	if err != nil {
		return Result{}, err
	}
	return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeProcessed, Action: domain.ActionCreditsGranted, UserID: user.ID, mutation: "grant_credits"}, map[string]any{
		"order_id":     e.OrderID,
		"variant_id":   e.VariantID,
		"credits":      credits,
		"spec_credits": ent.SpecCredits,
		"preserved":    ent.PreservedCredits,
	})
}

func (d *Dispatcher) orderRefunded(ctx context.Context, tx domain.Tx, e *OrderEvent) (Result, error) {
	refund, err := d.ledger.RefundCredits(ctx, tx, e.OrderID)
	if err != nil {
		return Result{}, err
	}
	payload := map[string]any{"order_id": e.OrderID, "credits": refund.Credits}
	switch refund.Status {
	case ledger.RefundPurchaseMissing:
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionPurchaseNotFound}, payload)
	case ledger.RefundAlreadyRefunded:
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionAlreadyRefunded, UserID: refund.UserID}, payload)
	}
	payload["spec_credits"] = refund.Entitlement.SpecCredits
	payload["preserved"] = refund.Entitlement.PreservedCredits
	return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeProcessed, Action: domain.ActionCreditsRefunded, UserID: refund.UserID, mutation: "refund_credits"}, payload)
}

func (d *Dispatcher) subscriptionEvent(ctx context.Context, tx domain.Tx, e *SubscriptionEvent, occurredAt time.Time, raw []byte) (Result, error) {
	if e.Kind == domain.SubEventCreated {
		product, ok := d.catalog.Lookup(e.VariantID)
		if !ok || !product.Grants.Unlimited {
			return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUnknownProduct}, map[string]any{
				"subscription_id": e.SubscriptionID,
				"variant_id":      e.VariantID,
			})
		}
	}

	user, err := d.ledger.Directory().Resolve(ctx, tx, e.CustomerID, e.Email)
	if errors.Is(err, domain.ErrNotFound) {
		if e.Kind == domain.SubEventExpired {
			return d.expireBeforeSignup(ctx, tx, e)
		}
		if e.Kind != domain.SubEventCreated && e.Kind != domain.SubEventPaymentSuccess {
			return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUserNotFound}, map[string]any{
				"subscription_id": e.SubscriptionID,
			})
		}
		return d.queue(ctx, tx, e.EventMeta, e.Email, raw, &domain.PendingEntitlement{
			CustomerID:     e.CustomerID,
			Grants:         domain.Grants{Unlimited: true, CanEdit: true},
			Reason:         domain.PendingSubscriptionBeforeSignup,
			VariantID:      e.VariantID,
			SubscriptionID: e.SubscriptionID,
			PeriodEnd:      e.PeriodEnd,
		})
	}
	if err != nil {
		return Result{}, err
	}

	sub, err := d.ledger.ApplySubscriptionEvent(ctx, tx, user.ID, ledger.SubscriptionChange{
		Kind:                   e.Kind,
		CustomerID:             e.CustomerID,
		ExternalSubscriptionID: e.SubscriptionID,
		VariantID:              e.VariantID,
		Reported:               e.Status,
		PeriodEnd:              e.PeriodEnd,
		CancelAtPeriodEnd:      e.CancelAtPeriodEnd,
		OccurredAt:             occurredAt,
	})
	if err != nil {
		return Result{}, err
	}
	payload := map[string]any{"subscription_id": e.SubscriptionID}
	if sub.Stale {
		payload["occurred_at"] = occurredAt
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionStaleEvent, UserID: user.ID}, payload)
	}

	res := Result{Outcome: OutcomeProcessed, UserID: user.ID}
	switch sub.Transition.Effect {
	case domain.EffectEnablePro:
		res.Action, res.mutation = domain.ActionProEnabled, "enable_pro"
	case domain.EffectRevokePro:
		res.Action, res.mutation = domain.ActionProRevoked, "revoke_pro"
	default:
		res.mutation = "update_subscription"
		switch e.Kind {
		case domain.SubEventCancelled:
			res.Action = domain.ActionSubscriptionCancelled
		case domain.SubEventPaymentFailed:
			res.Action = domain.ActionSubscriptionFailed
		default:
			res.Action = domain.ActionSubscriptionUpdated
		}
	}
	payload["from"] = string(sub.Transition.From)
	payload["to"] = string(sub.Transition.To)
	payload["spec_credits"] = sub.Entitlement.SpecCredits
	payload["preserved"] = sub.Entitlement.PreservedCredits
	return d.record(ctx, tx, e.EventMeta, res, payload)
}

// expireBeforeSignup voids the Pro grants still queued for a subscription
// that ended before its purchaser registered.
func (d *Dispatcher) expireBeforeSignup(ctx context.Context, tx domain.Tx, e *SubscriptionEvent) (Result, error) {
	voided, err := d.ledger.VoidPendingSubscription(ctx, tx, e.SubscriptionID)
	if err != nil {
		return Result{}, err
	}
	payload := map[string]any{"subscription_id": e.SubscriptionID}
	if voided == 0 {
		return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUserNotFound}, payload)
	}
	payload["voided"] = voided
	return d.record(ctx, tx, e.EventMeta, Result{Outcome: OutcomeProcessed, Action: domain.ActionPendingVoided, mutation: "void_pending"}, payload)
}

// queue stores a grant for a purchaser that has no account yet. Without an
// email there is nothing to match a later signup against.
func (d *Dispatcher) queue(ctx context.Context, tx domain.Tx, meta EventMeta, email string, raw []byte, p *domain.PendingEntitlement) (Result, error) {
	if domain.NormalizeEmail(email) == "" {
		return d.record(ctx, tx, meta, Result{Outcome: OutcomeIgnored, Action: domain.ActionUserNotFound}, map[string]any{
			"customer_id": p.CustomerID,
			"reason":      "no email to queue pending entitlement",
		})
	}
	p.Email = email
	p.EventID = meta.EventID
	p.RawPayload = string(raw)
	if err := d.ledger.QueuePending(ctx, tx, p); err != nil {
		return Result{}, err
	}
	return d.record(ctx, tx, meta, Result{Outcome: OutcomeProcessed, Action: domain.ActionPendingCreated, mutation: "queue_pending"}, map[string]any{
		"pending_id": p.ID,
		"reason":     string(p.Reason),
		"credits":    p.Grants.SpecCredits,
		"unlimited":  p.Grants.Unlimited,
	})
}

func (d *Dispatcher) record(ctx context.Context, tx domain.Tx, meta EventMeta, res Result, payload map[string]any) (Result, error) {
	if err := d.audit.Append(ctx, tx, domain.AuditLogEntry{
		UserID:  res.UserID,
		Source:  domain.AuditSourceWebhook,
		Action:  res.Action,
		EventID: meta.EventID,
		Payload: payload,
	}); err != nil {
		return Result{}, err
	}
	return res, nil
}
