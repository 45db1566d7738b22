//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/catalog"
	"github.com/joao-fontenele/storefront-orderflow/internal/customorders"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/messaging"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments/paymentstest"
	"github.com/joao-fontenele/storefront-orderflow/internal/webhooks"
)

const webhookSecret = "whsec_integration"

type shop struct {
	products *catalog.ProductRepository
	gateway  *paymentstest.Gateway
	engine   *orders.Engine
	workflow *customorders.Workflow
	logger   *slog.Logger
}

func newShop(pg *PostgresSetup) *shop {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	products := catalog.NewProductRepository(pg.DB)
	gateway := paymentstest.New()
	engine := orders.NewEngine(orders.NewOrderRepository(pg.DB), products, gateway, logger)
	workflow := customorders.NewWorkflow(customorders.NewRequestRepository(pg.DB), engine, gateway, logger)
	return &shop{products: products, gateway: gateway, engine: engine, workflow: workflow, logger: logger}
}

func (s *shop) seed(ctx context.Context, t *testing.T, id string, stock int) {
	t.Helper()
	priceID := "price_" + id
	now := time.Now().UTC()
	err := s.products.Create(ctx, &domain.Product{
		ID: id, Name: id, Slug: id, UnitPrice: decimal.RequireFromString("12.50"), Currency: "usd",
		InventoryCount: stock, IsActive: true, ProcessorPriceID: &priceID, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func (s *shop) product(ctx context.Context, t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := s.products.Get(ctx, id)
	if err != nil || p == nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p
}

func TestOrderPaymentOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newShop(pg)

	t.Run("concurrent confirmations decrement stock once", func(t *testing.T) {
		s.seed(ctx, t, "vase", 5)
		order, err := s.engine.CreateOrder(ctx, []orders.ItemRequest{{ProductID: "vase", Quantity: 2}})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		const deliveries = 10
		var wg sync.WaitGroup
		errs := make(chan error, deliveries)
		for range deliveries {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.engine.HandlePaymentConfirmed(ctx, order.ID, domain.PaymentConfirmation{Reference: "pi_vase"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}

		if got := s.product(ctx, t, "vase").InventoryCount; got != 3 {
			t.Fatalf("expected stock 3, got %d", got)
		}

		paid, err := s.engine.Get(ctx, order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if paid.Status != domain.OrderStatusPaid || paid.PaidAt == nil {
			t.Fatalf("expected paid order, got %s", paid.Status)
		}
		if paid.PaymentReference == nil || *paid.PaymentReference != "pi_vase" {
			t.Errorf("expected payment reference pi_vase, got %v", paid.PaymentReference)
		}
	})

	t.Run("competing orders drain stock to zero", func(t *testing.T) {
		s.seed(ctx, t, "plate", 3)

		var ids []string
		for range 5 {
			order, err := s.engine.CreateOrder(ctx, []orders.ItemRequest{{ProductID: "plate", Quantity: 1}})
			if err != nil {
				t.Fatalf("create order: %v", err)
			}
			ids = append(ids, order.ID)
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.engine.HandlePaymentConfirmed(ctx, id, domain.PaymentConfirmation{Reference: "pi_" + id}); err != nil {
					t.Errorf("confirm %s: %v", id, err)
				}
			}()
		}
		wg.Wait()

		p := s.product(ctx, t, "plate")
		if p.InventoryCount != 0 || !p.IsSoldOut {
			t.Fatalf("expected sold out at 0, got count=%d sold_out=%v", p.InventoryCount, p.IsSoldOut)
		}
	})

	t.Run("refund keeps stock untouched", func(t *testing.T) {
		s.seed(ctx, t, "bowl", 4)
		order, _ := s.engine.CreateOrder(ctx, []orders.ItemRequest{{ProductID: "bowl", Quantity: 1}})
		if _, err := s.engine.HandlePaymentConfirmed(ctx, order.ID, domain.PaymentConfirmation{Reference: "pi_bowl"}); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if _, err := s.engine.TransitionStatus(ctx, order.ID, domain.OrderStatusRefunded); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if _, err := s.engine.TransitionStatus(ctx, order.ID, domain.OrderStatusPaid); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if got := s.product(ctx, t, "bowl").InventoryCount; got != 3 {
			t.Fatalf("expected stock 3, got %d", got)
		}
	})

	t.Run("deleting a product keeps order history", func(t *testing.T) {
		s.seed(ctx, t, "cup", 2)
		order, _ := s.engine.CreateOrder(ctx, []orders.ItemRequest{{ProductID: "cup", Quantity: 1}})

		if _, err := s.products.Delete(ctx, "cup"); err != nil {
			t.Fatalf("delete product: %v", err)
		}
		if _, err := s.engine.HandlePaymentConfirmed(ctx, order.ID, domain.PaymentConfirmation{Reference: "pi_cup"}); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		paid, _ := s.engine.Get(ctx, order.ID)
		if len(paid.Items) != 1 || paid.Items[0].ProductID != "" || paid.Items[0].Description != "cup" {
			t.Fatalf("expected detached item snapshot, got %+v", paid.Items)
		}
	})
}

func TestCustomOrderOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	s := newShop(pg)
	s.seed(ctx, t, "blank-mug", 2)

	productID := "blank-mug"
	req, err := s.workflow.Submit(ctx, customorders.SubmitInput{
		CustomerName:  "Ana",
		CustomerEmail: "ana@example.com",
		Description:   "Mug with a fox",
		Colors:        []string{"orange", "white"},
		ProductID:     &productID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.workflow.SetQuote(ctx, req.ID, decimal.RequireFromString("42.00"), "hand painted"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, err := s.workflow.Approve(ctx, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	linked, err := s.workflow.GeneratePaymentLink(ctx, req.ID)
	if err != nil {
		t.Fatalf("payment link: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.workflow.HandleLinkPaid(ctx, *linked.PaymentLinkID, "", domain.PaymentConfirmation{Reference: fmt.Sprintf("pi_%d", i)})
		}()
	}
	wg.Wait()

	paid, err := s.workflow.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if paid.Status != domain.CustomStatusPaid || paid.LinkedOrderID == nil {
		t.Fatalf("expected paid request with order, got %s", paid.Status)
	}
	if len(paid.Colors) != 2 {
		t.Errorf("expected colors to round trip, got %v", paid.Colors)
	}

	order, err := s.engine.Get(ctx, *paid.LinkedOrderID)
	if err != nil {
		t.Fatalf("get linked order: %v", err)
	}
	if !order.IsCustomOrder || !order.Total.Equal(decimal.RequireFromString("42.00")) {
		t.Fatalf("unexpected linked order: custom=%v total=%s", order.IsCustomOrder, order.Total)
	}

	all, err := s.engine.List(ctx, orders.ListFilter{Status: domain.OrderStatusPaid})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one paid order, got %d", len(all))
	}

	if got := s.product(ctx, t, "blank-mug").InventoryCount; got != 1 {
		t.Fatalf("expected stock 1, got %d", got)
	}
}

func TestWebhookDeliveryWithRedisDedup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	rdb, cleanupRedis := SetupRedis(ctx, t)
	defer cleanupRedis()

	s := newShop(pg)
	s.seed(ctx, t, "lamp", 5)

	dispatcher := webhooks.NewDispatcher(s.gateway, webhookSecret, s.engine, s.workflow, webhooks.NewRedisDeduper(rdb), s.logger)
	handler := webhooks.NewHandler(dispatcher, s.logger)

	result, err := s.engine.Checkout(ctx, []orders.ItemRequest{{ProductID: "lamp", Quantity: 2}})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	object := fmt.Sprintf(`{"id":%q,"object":"checkout.session","payment_status":"paid","payment_intent":"pi_lamp","customer_details":{"email":"bo@example.com"}}`, result.SessionID)
	payload := paymentstest.Event("evt_lamp", "checkout.session.completed", object)

	deliver := func() string {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature", paymentstest.SignatureHeader(payload, webhookSecret, time.Now()))
		rec := httptest.NewRecorder()
		handler.HandleStripe(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return body.Status
	}

	if got := deliver(); got != string(webhooks.OutcomeProcessed) {
		t.Fatalf("expected processed, got %s", got)
	}
	if got := deliver(); got != string(webhooks.OutcomeDuplicate) {
		t.Fatalf("expected duplicate, got %s", got)
	}

	ttl, err := rdb.TTL(ctx, "webhook:event:evt_lamp").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > webhooks.TTLProcessedEvent {
		t.Errorf("unexpected ttl %s", ttl)
	}

	order, _ := s.engine.Get(ctx, result.Order.ID)
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}
	if order.CustomerEmail == nil || *order.CustomerEmail != "bo@example.com" {
		t.Errorf("expected customer email from session, got %v", order.CustomerEmail)
	}

	// Losing the cache must not double count the payment.
	if err := rdb.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = deliver()

	if got := s.product(ctx, t, "lamp").InventoryCount; got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
}

func TestEventsOverKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	const topic = "storefront.events"
	brokers, cleanup := SetupKafka(ctx, t, topic)
	defer cleanup()

	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	now := time.Now().UTC()
	email := "cy@example.com"
	order := domain.NewOrder("ord-kafka", "usd", []domain.OrderItem{
		{ID: "item-1", ProductID: "mug", Description: "Mug", Quantity: 1, UnitPrice: decimal.RequireFromString("9.90")},
	}, now)
	order.Status = domain.OrderStatusPaid
	order.PaidAt = &now
	order.CustomerEmail = &email

	if err := producer.PublishEvent(ctx, domain.NewOrderEvent(order)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer := messaging.NewConsumer(brokers, topic, "integration-test", logger, messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stop := context.WithTimeout(ctx, time.Minute)
	defer stop()

	var received messaging.Envelope
	err := consumer.Consume(consumeCtx, func(_ context.Context, env messaging.Envelope) error {
		received = env
		stop()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("consume: %v", err)
	}

	if received.EventType != domain.EventOrderPaid {
		t.Fatalf("expected %s, got %q", domain.EventOrderPaid, received.EventType)
	}

	var event domain.OrderEvent
	if err := received.DecodePayload(&event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.OrderID != "ord-kafka" || event.CustomerEmail != email {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}
