package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

var meter = otel.Meter("orders")

// Publisher emits domain events after the state change they describe has committed.
type Publisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// ProductLookup is the read side of the catalog the engine prices orders from.
type ProductLookup interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutResult struct {
	Order       *domain.Order `json:"order"`
	SessionID   string        `json:"session_id"`
	CheckoutURL string        `json:"checkout_url"`
}

// Engine drives orders through their lifecycle. It is the only place where a
// status change touches inventory.
type Engine struct {
	repo      Repository
	products  ProductLookup
	gateway   payments.Gateway
	publisher Publisher
	logger    *slog.Logger

	timeout    time.Duration
	successURL string
	cancelURL  string
	now        func() time.Time

	transitions metric.Int64Counter
	underflows  metric.Int64Counter
}

type Option func(*Engine)

func WithGatewayTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithCheckoutURLs(successURL, cancelURL string) Option {
	return func(e *Engine) {
		e.successURL = successURL
		e.cancelURL = cancelURL
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo Repository, products ProductLookup, gateway payments.Gateway, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		products: products,
		gateway:  gateway,
		logger:   logger,
		timeout:  10 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	e.transitions, _ = meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Order status transitions by source and target status"))
	e.underflows, _ = meter.Int64Counter("inventory_underflow_total",
		metric.WithDescription("Paid-order decrements clamped at zero stock"))

	return e
}

// CreateOrder validates and prices the items and stores a pending order.
// The stock check is advisory; nothing is reserved.
func (e *Engine) CreateOrder(ctx context.Context, reqs []ItemRequest) (*domain.Order, error) {
	items, currency, _, err := e.priceItems(ctx, reqs)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(uuid.New().String(), currency, items, e.now())
	if err := e.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	e.logger.Info("order created", "order_id", order.ID, "items", len(order.Items), "total", order.Total.String())
	return order, nil
}

// Checkout mints a processor checkout session for the items and only then
// stores the pending order carrying the session id.
func (e *Engine) Checkout(ctx context.Context, reqs []ItemRequest) (*CheckoutResult, error) {
	items, currency, products, err := e.priceItems(ctx, reqs)
	if err != nil {
		return nil, err
	}

	lines := make([]payments.CheckoutLine, 0, len(items))
	for _, item := range items {
		p := products[item.ProductID]
		if p.ProcessorPriceID == nil {
			return nil, domain.Invalid("product_id", fmt.Sprintf("product %s is not available for checkout yet", p.ID))
		}
		lines = append(lines, payments.CheckoutLine{PriceID: *p.ProcessorPriceID, Quantity: item.Quantity})
	}

	order := domain.NewOrder(uuid.New().String(), currency, items, e.now())

	gwCtx, cancel := context.WithTimeout(ctx, e.timeout)
	session, err := e.gateway.CreateCheckoutSession(gwCtx, payments.CheckoutRequest{
		Lines:      lines,
		Metadata:   map[string]string{domain.MetadataOrderID: order.ID},
		SuccessURL: e.successURL,
		CancelURL:  e.cancelURL,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", asGatewayError("create checkout session", err))
	}

	order.ProcessorSessionID = &session.ID
	if err := e.repo.Create(ctx, order); err != nil {
		e.logger.Error("checkout session created but order not stored", "error", err,
			"order_id", order.ID, "session_id", session.ID)
		return nil, fmt.Errorf("create order: %w", err)
	}

	e.logger.Info("checkout started", "order_id", order.ID, "session_id", session.ID, "total", order.Total.String())
	return &CheckoutResult{Order: order, SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (e *Engine) priceItems(ctx context.Context, reqs []ItemRequest) ([]domain.OrderItem, string, map[string]*domain.Product, error) {
	if len(reqs) == 0 {
		return nil, "", nil, domain.Invalid("items", "must not be empty")
	}

	requested := make(map[string]int)
	for _, req := range reqs {
		if req.ProductID == "" {
			return nil, "", nil, domain.Invalid("product_id", "is required")
		}
		if req.Quantity <= 0 {
			return nil, "", nil, domain.Invalid("quantity", fmt.Sprintf("must be greater than zero for product %s", req.ProductID))
		}
		requested[req.ProductID] += req.Quantity
	}

	products := make(map[string]*domain.Product, len(requested))
	currency := ""
	for id, qty := range requested {
		p, err := e.products.Get(ctx, id)
		if err != nil {
			return nil, "", nil, fmt.Errorf("load product %s: %w", id, err)
		}
		if p == nil || !p.IsActive {
			return nil, "", nil, domain.Invalid("product_id", fmt.Sprintf("unknown product %s", id))
		}
		if qty > p.InventoryCount {
			return nil, "", nil, domain.Invalid("quantity", fmt.Sprintf("only %d of product %s in stock", p.InventoryCount, id))
		}
		c := domain.NormalizeCurrency(p.Currency)
		if currency != "" && c != currency {
			return nil, "", nil, domain.Invalid("items", "all products must share one currency")
		}
		currency = c
		products[id] = p
	}

	items := make([]domain.OrderItem, 0, len(reqs))
	for _, req := range reqs {
		p := products[req.ProductID]
		items = append(items, domain.OrderItem{
			ID:          uuid.New().String(),
			ProductID:   p.ID,
			Description: p.Name,
			Quantity:    req.Quantity,
			UnitPrice:   p.UnitPrice,
		})
	}

	return items, currency, products, nil
}

// Apply moves order to next inside the caller's exclusive scope. On the edge
// into paid it decrements stock for every tracked item before the caller
// writes the new status. Moving to the current status changes nothing.
func (e *Engine) Apply(ctx context.Context, tx Tx, order *domain.Order, next domain.OrderStatus) (domain.Transition, bool, error) {
	t, changed, err := order.TransitionTo(next, e.now())
	if err != nil || !changed {
		return t, changed, err
	}

	if t.EntersPaid() {
		if err := e.decrementInventory(ctx, tx, order); err != nil {
			return domain.Transition{}, false, err
		}
	}

	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(t.From)),
		attribute.String("to", string(t.To)),
	))
	return t, true, nil
}

func (e *Engine) decrementInventory(ctx context.Context, tx Tx, order *domain.Order) error {
	for _, demand := range order.StockDemand() {
		change, err := tx.DecrementStock(ctx, demand.ProductID, demand.Quantity)
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("inventory product missing, decrement skipped",
				"order_id", order.ID, "product_id", demand.ProductID, "quantity", demand.Quantity)
			continue
		}
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", demand.ProductID, err)
		}

		if change.Clamped() {
			e.underflows.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", demand.ProductID)))
			e.logger.Warn("inventory_underflow",
				"order_id", order.ID,
				"product_id", demand.ProductID,
				"requested", demand.Quantity,
				"available", change.Before,
				"shortfall", change.Shortfall,
			)
		}
	}
	return nil
}

// TransitionStatus applies an admin or system status change.
func (e *Engine) TransitionStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	var changed bool
	order, err := e.repo.Update(ctx, id, func(o *domain.Order, tx Tx) (bool, error) {
		_, c, err := e.Apply(ctx, tx, o, next)
		changed = c
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("transition order %s to %s: %w", id, next, err)
	}

	if changed {
		e.logger.Info("order status changed", "order_id", id, "status", order.Status)
		e.publish(ctx, order)
	}
	return order, nil
}

// HandlePaymentConfirmed marks the order paid and records the processor's
// payment details. Repeated confirmations for an order that was already paid
// are no-ops, which is what makes webhook redelivery safe.
func (e *Engine) HandlePaymentConfirmed(ctx context.Context, id string, confirmation domain.PaymentConfirmation) (*domain.Order, error) {
	var changed bool
	order, err := e.repo.Update(ctx, id, func(o *domain.Order, tx Tx) (bool, error) {
		if o.PaidAt != nil {
			return o.ApplyPayment(confirmation), nil
		}
		_, c, err := e.Apply(ctx, tx, o, domain.OrderStatusPaid)
		if err != nil {
			return false, err
		}
		changed = c
		recorded := o.ApplyPayment(confirmation)
		return c || recorded, nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment for order %s: %w", id, err)
	}

	if !changed {
		e.logger.Info("duplicate payment confirmation ignored", "order_id", id, "payment_reference", confirmation.Reference)
		return order, nil
	}

	e.logger.Info("order paid", "order_id", id, "payment_reference", confirmation.Reference)
	e.publish(ctx, order)
	return order, nil
}

// HandleSessionPaid resolves the order a checkout session was created for.
func (e *Engine) HandleSessionPaid(ctx context.Context, sessionID string, confirmation domain.PaymentConfirmation) (*domain.Order, error) {
	order, err := e.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find order for session %s: %w", sessionID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order for session %s: %w", sessionID, domain.ErrNotFound)
	}
	return e.HandlePaymentConfirmed(ctx, order.ID, confirmation)
}

// Fulfill ships a paid order.
func (e *Engine) Fulfill(ctx context.Context, id string, shipment domain.Shipment) (*domain.Order, error) {
	if err := shipment.Validate(); err != nil {
		return nil, err
	}

	var changed bool
	order, err := e.repo.Update(ctx, id, func(o *domain.Order, tx Tx) (bool, error) {
		_, c, err := e.Apply(ctx, tx, o, domain.OrderStatusFulfilled)
		if err != nil || !c {
			return false, err
		}
		changed = true
		shippedAt := e.now()
		o.TrackingNumber = shipment.TrackingNumber
		o.ShippingCarrier = shipment.Carrier
		o.ShippedAt = &shippedAt
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fulfill order %s: %w", id, err)
	}

	if changed {
		e.logger.Info("order fulfilled", "order_id", id, "tracking_number", shipment.TrackingNumber)
		e.publish(ctx, order)
	}
	return order, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

func (e *Engine) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	return e.repo.List(ctx, filter)
}

// Publish emits the event matching the order's current status. Failures are
// logged; the state change has already committed.
func (e *Engine) Publish(ctx context.Context, order *domain.Order) {
	e.publish(ctx, order)
}

func (e *Engine) publish(ctx context.Context, order *domain.Order) {
	if e.publisher == nil {
		return
	}
	event := domain.NewOrderEvent(order)
	if event.Type == "" {
		return
	}
	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.logger.Error("failed to publish order event", "error", err, "order_id", order.ID, "event_type", event.Type)
	}
}

func asGatewayError(op string, err error) error {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &domain.GatewayError{Op: op, Err: err}
}
