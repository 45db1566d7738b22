package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-orderflow/internal/customorders"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

var meter = otel.Meter("webhooks")

type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeIgnored      Outcome = "ignored"
)

// Dispatcher verifies processor notifications and routes them to the order
// engine or the custom order workflow. Delivery is at least once; the routed
// operations are idempotent, so redelivery is harmless.
type Dispatcher struct {
	gateway  payments.Gateway
	secret   string
	engine   *orders.Engine
	workflow *customorders.Workflow
	dedup    Deduper
	logger   *slog.Logger
	events   metric.Int64Counter
}

func NewDispatcher(gateway payments.Gateway, secret string, engine *orders.Engine, workflow *customorders.Workflow, dedup Deduper, logger *slog.Logger) *Dispatcher {
	events, _ := meter.Int64Counter("webhook_events_total",
		metric.WithDescription("Processor webhook deliveries by event kind and outcome"))

	return &Dispatcher{
		gateway:  gateway,
		secret:   secret,
		engine:   engine,
		workflow: workflow,
		dedup:    dedup,
		logger:   logger,
		events:   events,
	}
}

// Dispatch verifies payload before reading any field from it. A business
// rejection such as a payment for a cancelled order is acknowledged, since
// redelivering it cannot succeed. Errors returned are either an
// authentication failure or something worth a retry.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, err := d.gateway.VerifyAndParseWebhook(payload, signature, d.secret)
	if err != nil {
		d.logger.Warn("webhook rejected", "security_event", true, "error", err)
		d.record(ctx, "unverified", "rejected")
		return "", err
	}

	if d.seen(ctx, event.ID) {
		d.logger.Info("webhook already processed", "event_id", event.ID, "event_type", event.Type)
		d.record(ctx, string(event.Kind), string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	outcome, err := d.route(ctx, event)
	if err != nil {
		var terr *domain.TransitionError
		if !errors.As(err, &terr) {
			d.logger.Error("webhook processing failed", "error", err, "event_id", event.ID, "event_type", event.Type)
			d.record(ctx, string(event.Kind), "failed")
			return "", err
		}
		d.logger.Warn("webhook acknowledged without transition", "error", err,
			"event_id", event.ID, "event_type", event.Type)
		outcome = OutcomeAcknowledged
	}

	d.markProcessed(ctx, event.ID)
	d.record(ctx, string(event.Kind), string(outcome))
	return outcome, nil
}

func (d *Dispatcher) route(ctx context.Context, event domain.WebhookEvent) (Outcome, error) {
	switch event.Kind {
	case domain.WebhookPaymentSucceeded:
		return d.paymentSucceeded(ctx, event)

	case domain.WebhookPaymentFailed:
		d.logger.Warn("payment failed", "event_id", event.ID, "event_type", event.Type,
			"session_id", event.SessionID, "order_id", event.OrderID(), "reason", event.FailureReason)
		return OutcomeAcknowledged, nil

	case domain.WebhookSessionExpired:
		d.logger.Info("checkout session expired", "event_id", event.ID, "session_id", event.SessionID,
			"order_id", event.OrderID(), "payment_link_id", event.PaymentLinkID)
		return OutcomeAcknowledged, nil

	case domain.WebhookLinkExpired:
		return d.linkExpired(ctx, event)

	default:
		d.logger.Debug("webhook ignored", "event_id", event.ID, "event_type", event.Type)
		return OutcomeIgnored, nil
	}
}

func (d *Dispatcher) paymentSucceeded(ctx context.Context, event domain.WebhookEvent) (Outcome, error) {
	var err error
	switch {
	case event.TargetsCustomOrder():
		var req *domain.CustomOrderRequest
		req, err = d.workflow.HandleLinkPaid(ctx, event.PaymentLinkID, event.CustomRequestID(), event.Confirmation)
		if err == nil {
			d.logger.Info("custom order payment confirmed", "event_id", event.ID, "request_id", req.ID)
		}
	case event.OrderID() != "":
		_, err = d.engine.HandlePaymentConfirmed(ctx, event.OrderID(), event.Confirmation)
	case event.SessionID != "":
		_, err = d.engine.HandleSessionPaid(ctx, event.SessionID, event.Confirmation)
	default:
		d.logger.Warn("payment event without order reference", "event_id", event.ID, "event_type", event.Type)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("payment succeeded %s: %w", event.ID, err)
	}
	return OutcomeProcessed, nil
}

func (d *Dispatcher) linkExpired(ctx context.Context, event domain.WebhookEvent) (Outcome, error) {
	if !event.TargetsCustomOrder() {
		d.logger.Info("deactivated link has no custom order", "event_id", event.ID)
		return OutcomeIgnored, nil
	}

	_, err := d.workflow.ExpirePaymentLink(ctx, event.PaymentLinkID, event.CustomRequestID())
	if errors.Is(err, domain.ErrNotFound) {
		d.logger.Info("expired link has no custom order", "event_id", event.ID, "payment_link_id", event.PaymentLinkID)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("link expired %s: %w", event.ID, err)
	}
	return OutcomeProcessed, nil
}

func (d *Dispatcher) seen(ctx context.Context, eventID string) bool {
	if d.dedup == nil || eventID == "" {
		return false
	}
	seen, err := d.dedup.Seen(ctx, eventID)
	if err != nil {
		d.logger.Warn("webhook dedup lookup failed", "error", err, "event_id", eventID)
		return false
	}
	return seen
}

func (d *Dispatcher) markProcessed(ctx context.Context, eventID string) {
	if d.dedup == nil || eventID == "" {
		return
	}
	if err := d.dedup.MarkProcessed(ctx, eventID); err != nil {
		d.logger.Warn("webhook dedup mark failed", "error", err, "event_id", eventID)
	}
}

func (d *Dispatcher) record(ctx context.Context, kind, outcome string) {
	d.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
