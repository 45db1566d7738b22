package payments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// StripeGateway implements Gateway with the Stripe API. SDK-level retries are
// disabled; retrying is the caller's decision.
type StripeGateway struct {
	sc     *client.API
	logger *slog.Logger
}

type StripeOption func(*stripe.BackendConfig)

// WithBaseURL points the client at a different API host, e.g. stripe-mock in tests.
func WithBaseURL(url string) StripeOption {
	return func(cfg *stripe.BackendConfig) {
		if url != "" {
			cfg.URL = stripe.String(url)
		}
	}
}

func NewStripeGateway(secretKey string, httpClient *http.Client, logger *slog.Logger, opts ...StripeOption) *StripeGateway {
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := client.New(secretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})

	return &StripeGateway{sc: sc, logger: logger}
}

// EnsureCatalogSync creates the processor product on first sync and always
// mints a new price, since processor prices are immutable.
func (g *StripeGateway) EnsureCatalogSync(ctx context.Context, product domain.Product) (CatalogRefs, error) {
	productID := ""
	if product.ProcessorProductID != nil {
		productID = *product.ProcessorProductID
	}

	if productID == "" {
		params := &stripe.ProductParams{
			Name:        stripe.String(product.Name),
			Description: nonEmpty(product.Description),
			Active:      stripe.Bool(product.IsActive),
		}
		params.Context = ctx
		params.AddMetadata("product_id", product.ID)

		sp, err := g.sc.Products.New(params)
		if err != nil {
			return CatalogRefs{}, &domain.GatewayError{Op: "create product", Err: err}
		}
		productID = sp.ID
		g.logger.Info("processor product created", "product_id", product.ID, "processor_product_id", productID)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(domain.MinorUnits(product.UnitPrice)),
		Currency:   stripe.String(domain.NormalizeCurrency(product.Currency)),
	}
	priceParams.Context = ctx
	priceParams.AddMetadata("product_id", product.ID)

	price, err := g.sc.Prices.New(priceParams)
	if err != nil {
		return CatalogRefs{}, &domain.GatewayError{Op: "create price", Err: err}
	}

	return CatalogRefs{ProductID: productID, PriceID: price.ID}, nil
}

func (g *StripeGateway) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error) {
	priceParams := &stripe.PriceParams{
		UnitAmount: stripe.Int64(domain.MinorUnits(req.Amount)),
		Currency:   stripe.String(domain.NormalizeCurrency(req.Currency)),
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(req.Description),
		},
	}
	priceParams.Context = ctx

	price, err := g.sc.Prices.New(priceParams)
	if err != nil {
		return PaymentLink{}, &domain.GatewayError{Op: "create payment link price", Err: err}
	}

	params := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
		ShippingAddressCollection: &stripe.PaymentLinkShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US"}),
		},
	}
	params.Context = ctx
	// Sessions opened from the link do not inherit the link's metadata; the
	// payment intent copy is what a payment event can be traced back with.
	params.PaymentIntentData = &stripe.PaymentLinkPaymentIntentDataParams{
		Metadata: map[string]string{},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
		params.PaymentIntentData.Metadata[k] = v
	}

	link, err := g.sc.PaymentLinks.New(params)
	if err != nil {
		return PaymentLink{}, &domain.GatewayError{Op: "create payment link", Err: err}
	}

	return PaymentLink{ID: link.ID, URL: link.URL}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US"}),
		},
	}
	params.Context = ctx
	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(line.PriceID),
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if orderID := req.Metadata[domain.MetadataOrderID]; orderID != "" {
		params.ClientReferenceID = stripe.String(orderID)
	}

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, &domain.GatewayError{Op: "create checkout session", Err: err}
	}

	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) ArchiveProduct(ctx context.Context, processorProductID string) error {
	params := &stripe.ProductParams{Active: stripe.Bool(false)}
	params.Context = ctx

	if _, err := g.sc.Products.Update(processorProductID, params); err != nil {
		return &domain.GatewayError{Op: "archive product " + processorProductID, Err: err}
	}
	return nil
}

func (g *StripeGateway) VerifyAndParseWebhook(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error) {
	return ParseWebhook(payload, signatureHeader, secret)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
