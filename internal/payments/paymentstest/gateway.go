// Package paymentstest provides a scriptable payments.Gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

// Gateway records calls and returns deterministic identifiers unless a
// per-call func is set. Delay is applied before every call and honours ctx.
type Gateway struct {
	mu    sync.Mutex
	seq   int
	calls map[string]int

	Delay time.Duration

	SyncFunc     func(ctx context.Context, product domain.Product) (payments.CatalogRefs, error)
	LinkFunc     func(ctx context.Context, req payments.PaymentLinkRequest) (payments.PaymentLink, error)
	CheckoutFunc func(ctx context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error)
	ArchiveFunc  func(ctx context.Context, processorProductID string) error
	WebhookFunc  func(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error)

	LinkRequests     []payments.PaymentLinkRequest
	CheckoutRequests []payments.CheckoutRequest
	Archived         []string
}

func New() *Gateway {
	return &Gateway{calls: make(map[string]int)}
}

// Calls returns how many times the named method was invoked.
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// Fail makes every call return a retryable gateway error.
func (g *Gateway) Fail(err error) {
	g.SyncFunc = func(context.Context, domain.Product) (payments.CatalogRefs, error) {
		return payments.CatalogRefs{}, &domain.GatewayError{Op: "sync", Err: err}
	}
	g.LinkFunc = func(context.Context, payments.PaymentLinkRequest) (payments.PaymentLink, error) {
		return payments.PaymentLink{}, &domain.GatewayError{Op: "payment link", Err: err}
	}
	g.CheckoutFunc = func(context.Context, payments.CheckoutRequest) (payments.CheckoutSession, error) {
		return payments.CheckoutSession{}, &domain.GatewayError{Op: "checkout", Err: err}
	}
	g.ArchiveFunc = func(context.Context, string) error {
		return &domain.GatewayError{Op: "archive", Err: err}
	}
}

func (g *Gateway) enter(ctx context.Context, method string) (int, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[method]++
	g.seq++
	seq := g.seq
	g.mu.Unlock()

	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return 0, &domain.GatewayError{Op: method, Err: ctx.Err()}
		}
	}
	return seq, nil
}

func (g *Gateway) EnsureCatalogSync(ctx context.Context, product domain.Product) (payments.CatalogRefs, error) {
	seq, err := g.enter(ctx, "EnsureCatalogSync")
	if err != nil {
		return payments.CatalogRefs{}, err
	}
	if g.SyncFunc != nil {
		return g.SyncFunc(ctx, product)
	}

	productID := fmt.Sprintf("prod_%s", product.ID)
	if product.ProcessorProductID != nil {
		productID = *product.ProcessorProductID
	}
	return payments.CatalogRefs{
		ProductID: productID,
		PriceID:   fmt.Sprintf("price_%s_%d", product.ID, seq),
	}, nil
}

func (g *Gateway) CreatePaymentLink(ctx context.Context, req payments.PaymentLinkRequest) (payments.PaymentLink, error) {
	seq, err := g.enter(ctx, "CreatePaymentLink")
	if err != nil {
		return payments.PaymentLink{}, err
	}
	g.mu.Lock()
	g.LinkRequests = append(g.LinkRequests, req)
	g.mu.Unlock()
	if g.LinkFunc != nil {
		return g.LinkFunc(ctx, req)
	}
	id := fmt.Sprintf("plink_%d", seq)
	return payments.PaymentLink{ID: id, URL: "https://pay.example.test/" + id}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	seq, err := g.enter(ctx, "CreateCheckoutSession")
	if err != nil {
		return payments.CheckoutSession{}, err
	}
	g.mu.Lock()
	g.CheckoutRequests = append(g.CheckoutRequests, req)
	g.mu.Unlock()
	if g.CheckoutFunc != nil {
		return g.CheckoutFunc(ctx, req)
	}
	id := fmt.Sprintf("cs_test_%d", seq)
	return payments.CheckoutSession{ID: id, URL: "https://checkout.example.test/" + id}, nil
}

func (g *Gateway) ArchiveProduct(ctx context.Context, processorProductID string) error {
	if _, err := g.enter(ctx, "ArchiveProduct"); err != nil {
		return err
	}
	if g.ArchiveFunc != nil {
		return g.ArchiveFunc(ctx, processorProductID)
	}
	g.mu.Lock()
	g.Archived = append(g.Archived, processorProductID)
	g.mu.Unlock()
	return nil
}

// VerifyAndParseWebhook uses the real Stripe verification unless WebhookFunc is set.
func (g *Gateway) VerifyAndParseWebhook(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls["VerifyAndParseWebhook"]++
	g.mu.Unlock()
	if g.WebhookFunc != nil {
		return g.WebhookFunc(payload, signatureHeader, secret)
	}
	return payments.ParseWebhook(payload, signatureHeader, secret)
}

var _ payments.Gateway = (*Gateway)(nil)
