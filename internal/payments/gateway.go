package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// Gateway is the boundary to the external payment processor. Every call may
// fail transiently and is reported as a *domain.GatewayError; callers persist
// returned identifiers only after a successful call.
type Gateway interface {
	EnsureCatalogSync(ctx context.Context, product domain.Product) (CatalogRefs, error)
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	ArchiveProduct(ctx context.Context, processorProductID string) error
	VerifyAndParseWebhook(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error)
}

type CatalogRefs struct {
	ProductID string
	PriceID   string
}

type PaymentLinkRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

type PaymentLink struct {
	ID  string
	URL string
}

type CheckoutLine struct {
	PriceID  string
	Quantity int
}

type CheckoutRequest struct {
	Lines      []CheckoutLine
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}
