package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const SignatureTolerance = 5 * time.Minute

// ParseWebhook verifies the Stripe-Signature header and maps the event to the
// kinds the dispatcher routes on. No field of the payload is read before the
// signature checks out.
func ParseWebhook(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error) {
	if secret == "" {
		return domain.WebhookEvent{}, &domain.AuthenticationError{Reason: "webhook secret not configured"}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                SignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.WebhookEvent{}, &domain.AuthenticationError{Reason: authReason(err), Err: err}
	}

	out := domain.WebhookEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		Kind:     domain.WebhookIgnored,
		Metadata: map[string]string{},
	}
	if event.Data != nil {
		out.Raw = event.Data.Raw
	}

	switch event.Type {
	case "checkout.session.completed":
		s, err := decodeSession(out.Raw)
		if err != nil {
			return domain.WebhookEvent{}, err
		}
		fillFromSession(&out, s)
		out.Kind = domain.WebhookPaymentSucceeded
		// Delayed payment methods complete the session before funds arrive.
		if s.PaymentStatus == "unpaid" {
			out.Kind = domain.WebhookIgnored
		}

	case "checkout.session.async_payment_succeeded":
		s, err := decodeSession(out.Raw)
		if err != nil {
			return domain.WebhookEvent{}, err
		}
		fillFromSession(&out, s)
		out.Kind = domain.WebhookPaymentSucceeded

	case "checkout.session.async_payment_failed":
		s, err := decodeSession(out.Raw)
		if err != nil {
			return domain.WebhookEvent{}, err
		}
		fillFromSession(&out, s)
		out.Kind = domain.WebhookPaymentFailed
		out.FailureReason = "async payment failed"

	// A payment link opens a new session per visit; one of them expiring says
	// nothing about the link itself.
	case "checkout.session.expired":
		s, err := decodeSession(out.Raw)
		if err != nil {
			return domain.WebhookEvent{}, err
		}
		fillFromSession(&out, s)
		out.Kind = domain.WebhookSessionExpired

	// Only link payments are routed from the intent: its metadata is the one
	// place the request id survives. Storefront checkouts settle on the session.
	case "payment_intent.succeeded":
		var pi paymentIntentObject
		if err := json.Unmarshal(out.Raw, &pi); err != nil {
			return domain.WebhookEvent{}, domain.Invalid("payload", "malformed payment intent: "+err.Error())
		}
		mergeMetadata(out.Metadata, pi.Metadata)
		out.Confirmation.Reference = pi.ID
		if out.CustomRequestID() != "" {
			out.Kind = domain.WebhookPaymentSucceeded
		}

	case "payment_intent.payment_failed":
		var pi paymentIntentObject
		if err := json.Unmarshal(out.Raw, &pi); err != nil {
			return domain.WebhookEvent{}, domain.Invalid("payload", "malformed payment intent: "+err.Error())
		}
		mergeMetadata(out.Metadata, pi.Metadata)
		out.Kind = domain.WebhookPaymentFailed
		out.Confirmation.Reference = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Message
		}

	case "payment_link.updated":
		var link paymentLinkObject
		if err := json.Unmarshal(out.Raw, &link); err != nil {
			return domain.WebhookEvent{}, domain.Invalid("payload", "malformed payment link: "+err.Error())
		}
		mergeMetadata(out.Metadata, link.Metadata)
		out.PaymentLinkID = link.ID
		if !link.Active {
			out.Kind = domain.WebhookLinkExpired
		}
	}

	return out, nil
}

func authReason(err error) string {
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return "missing signature header"
	case errors.Is(err, webhook.ErrInvalidHeader):
		return "malformed signature header"
	case errors.Is(err, webhook.ErrTooOld):
		return "timestamp outside tolerance"
	case errors.Is(err, webhook.ErrNoValidSignature):
		return "signature mismatch"
	default:
		return "unverifiable payload"
	}
}

// expandableID accepts either a bare object id or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type sessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     expandableID      `json:"payment_intent"`
	PaymentLink       expandableID      `json:"payment_link"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingDetails      json.RawMessage `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails json.RawMessage `json:"shipping_details"`
	} `json:"collected_information"`
}

type paymentIntentObject struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type paymentLinkObject struct {
	ID       string            `json:"id"`
	Active   bool              `json:"active"`
	Metadata map[string]string `json:"metadata"`
}

func decodeSession(raw json.RawMessage) (sessionObject, error) {
	var s sessionObject
	if err := json.Unmarshal(raw, &s); err != nil {
		return sessionObject{}, domain.Invalid("payload", "malformed checkout session: "+err.Error())
	}
	if s.ID == "" {
		return sessionObject{}, domain.Invalid("payload", "checkout session without id")
	}
	return s, nil
}

func fillFromSession(out *domain.WebhookEvent, s sessionObject) {
	out.SessionID = s.ID
	out.PaymentLinkID = string(s.PaymentLink)
	mergeMetadata(out.Metadata, s.Metadata)
	if s.ClientReferenceID != "" && out.Metadata[domain.MetadataOrderID] == "" && out.PaymentLinkID == "" {
		out.Metadata[domain.MetadataOrderID] = s.ClientReferenceID
	}

	out.Confirmation.Reference = string(s.PaymentIntent)
	if out.Confirmation.Reference == "" {
		out.Confirmation.Reference = s.ID
	}
	if s.CustomerDetails != nil {
		out.Confirmation.CustomerEmail = s.CustomerDetails.Email
	}
	switch {
	case isPresent(s.ShippingDetails):
		out.Confirmation.ShippingAddress = s.ShippingDetails
	case s.CollectedInformation != nil && isPresent(s.CollectedInformation.ShippingDetails):
		out.Confirmation.ShippingAddress = s.CollectedInformation.ShippingDetails
	}
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func mergeMetadata(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
