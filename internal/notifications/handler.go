package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/messaging"
)

// Handler turns domain events into customer and shop-owner emails.
type Handler struct {
	mailer     Mailer
	adminEmail string
	logger     *slog.Logger
}

func NewHandler(mailer Mailer, adminEmail string, logger *slog.Logger) *Handler {
	return &Handler{
		mailer:     mailer,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

func (h *Handler) Handle(ctx context.Context, env messaging.Envelope) error {
	switch env.EventType {
	case domain.EventOrderPaid, domain.EventOrderFulfilled:
		var event domain.OrderEvent
		if err := env.DecodePayload(&event); err != nil {
			h.skipUndecodable(env, err)
			return nil
		}
		return h.orderEmail(ctx, env.EventType, event)

	case domain.EventCustomOrderSubmitted, domain.EventCustomOrderApproved,
		domain.EventCustomOrderPaid, domain.EventCustomOrderRejected:
		var event domain.CustomOrderEvent
		if err := env.DecodePayload(&event); err != nil {
			h.skipUndecodable(env, err)
			return nil
		}
		return h.customOrderEmail(ctx, env.EventType, event)

	default:
		h.logger.Debug("event has no notification", "event_id", env.EventID, "event_type", env.EventType)
		return nil
	}
}

func (h *Handler) orderEmail(ctx context.Context, eventType string, event domain.OrderEvent) error {
	if event.CustomerEmail == "" {
		h.logger.Info("order has no customer email, skipping notification", "order_id", event.OrderID, "event_type", eventType)
		return nil
	}

	var msg Message
	switch eventType {
	case domain.EventOrderPaid:
		msg = Message{
			To:      event.CustomerEmail,
			Subject: "Order Confirmation: " + event.OrderID,
			Body: fmt.Sprintf("Thank you for your order %s. We received your payment of %s %s for %d item(s).",
				event.OrderID, event.Total.StringFixed(2), event.Currency, len(event.Items)),
		}
	case domain.EventOrderFulfilled:
		msg = Message{
			To:      event.CustomerEmail,
			Subject: "Your order has shipped: " + event.OrderID,
			Body:    fmt.Sprintf("Your order %s is on its way via %s. Tracking number: %s.", event.OrderID, carrierName(event.Carrier), event.TrackingNumber),
		}
	}

	if err := h.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email for order %s: %w", eventType, event.OrderID, err)
	}
	h.logger.Info("notification sent", "order_id", event.OrderID, "event_type", eventType)
	return nil
}

func (h *Handler) customOrderEmail(ctx context.Context, eventType string, event domain.CustomOrderEvent) error {
	var msgs []Message
	switch eventType {
	case domain.EventCustomOrderSubmitted:
		msgs = append(msgs, Message{
			To:      event.CustomerEmail,
			Subject: "We received your custom order request",
			Body:    fmt.Sprintf("Hi %s, thanks for your request. We will get back to you with a quote soon.", event.CustomerName),
		})
		if h.adminEmail != "" {
			msgs = append(msgs, Message{
				To:      h.adminEmail,
				Subject: "New custom order request from " + event.CustomerName,
				Body:    fmt.Sprintf("Request %s from %s <%s>:\n\n%s", event.RequestID, event.CustomerName, event.CustomerEmail, event.Description),
			})
		}

	case domain.EventCustomOrderApproved:
		price := ""
		if event.QuotedPrice != nil {
			price = event.QuotedPrice.StringFixed(2) + " " + event.Currency
		}
		msgs = append(msgs, Message{
			To:      event.CustomerEmail,
			Subject: "Your custom order is ready for payment",
			Body:    fmt.Sprintf("Hi %s, your custom order was approved at %s. Pay here: %s", event.CustomerName, price, event.PaymentLinkURL),
		})

	case domain.EventCustomOrderPaid:
		msgs = append(msgs, Message{
			To:      event.CustomerEmail,
			Subject: "Payment received for your custom order",
			Body:    fmt.Sprintf("Hi %s, we received your payment. Your order number is %s.", event.CustomerName, event.OrderID),
		})

	case domain.EventCustomOrderRejected:
		body := fmt.Sprintf("Hi %s, unfortunately we cannot take on your custom order request.", event.CustomerName)
		if event.Notes != "" {
			body += "\n\n" + event.Notes
		}
		msgs = append(msgs, Message{
			To:      event.CustomerEmail,
			Subject: "About your custom order request",
			Body:    body,
		})
	}

	for _, msg := range msgs {
		if err := h.mailer.Send(ctx, msg); err != nil {
			return fmt.Errorf("send %s email for custom order %s: %w", eventType, event.RequestID, err)
		}
	}
	h.logger.Info("notification sent", "request_id", event.RequestID, "event_type", eventType, "emails", len(msgs))
	return nil
}

// Undecodable payloads are logged and dropped so the consumer moves past them.
func (h *Handler) skipUndecodable(env messaging.Envelope, err error) {
	h.logger.Error("skipping undecodable event payload", "error", err,
		"event_id", env.EventID, "event_type", env.EventType)
}

func carrierName(carrier string) string {
	if carrier == "" {
		return "our carrier"
	}
	return carrier
}
