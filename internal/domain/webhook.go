package domain

import "encoding/json"

type WebhookKind string

const (
	WebhookPaymentSucceeded WebhookKind = "payment_succeeded"
	WebhookPaymentFailed    WebhookKind = "payment_failed"
	WebhookLinkExpired      WebhookKind = "link_expired"
	WebhookSessionExpired   WebhookKind = "session_expired"
	WebhookIgnored          WebhookKind = "ignored"
)

// WebhookEvent is a verified processor notification reduced to what the
// dispatcher routes on.
type WebhookEvent struct {
	ID            string
	Type          string
	Kind          WebhookKind
	SessionID     string
	PaymentLinkID string
	Metadata      map[string]string
	Confirmation  PaymentConfirmation
	FailureReason string
	Raw           json.RawMessage
}

const (
	MetadataOrderID         = "order_id"
	MetadataCustomRequestID = "custom_request_id"
)

func (e WebhookEvent) OrderID() string {
	return e.Metadata[MetadataOrderID]
}

func (e WebhookEvent) CustomRequestID() string {
	return e.Metadata[MetadataCustomRequestID]
}

// TargetsCustomOrder reports whether the event belongs to the custom order flow
// rather than a storefront checkout.
func (e WebhookEvent) TargetsCustomOrder() bool {
	return e.PaymentLinkID != "" || e.CustomRequestID() != ""
}
