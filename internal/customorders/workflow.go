package customorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

// Workflow runs custom order requests from submission through quoting,
// approval and payment. A paid request becomes a regular order that goes
// through the same paid transition as storefront checkouts.
type Workflow struct {
	repo      Repository
	engine    *orders.Engine
	gateway   payments.Gateway
	publisher orders.Publisher
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Workflow)

func WithGatewayTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

func WithPublisher(p orders.Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func NewWorkflow(repo Repository, engine *orders.Engine, gateway payments.Gateway, logger *slog.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		repo:    repo,
		engine:  engine,
		gateway: gateway,
		logger:  logger,
		timeout: 10 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type SubmitInput struct {
	CustomerName  string   `json:"customer_name"`
	CustomerEmail string   `json:"customer_email"`
	Description   string   `json:"description"`
	Colors        []string `json:"colors"`
	ProductID     *string  `json:"product_id"`
	Currency      string   `json:"currency"`
}

func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (*domain.CustomOrderRequest, error) {
	now := w.now()
	req := &domain.CustomOrderRequest{
		ID:            uuid.New().String(),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		Description:   strings.TrimSpace(in.Description),
		Colors:        in.Colors,
		Status:        domain.CustomStatusPending,
		Currency:      domain.NormalizeCurrency(in.Currency),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Colors == nil {
		req.Colors = []string{}
	}
	if in.ProductID != nil && strings.TrimSpace(*in.ProductID) != "" {
		id := strings.TrimSpace(*in.ProductID)
		req.ProductID = &id
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := w.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create custom order: %w", err)
	}

	w.logger.Info("custom order submitted", "request_id", req.ID)
	w.publish(ctx, domain.EventCustomOrderSubmitted, req)
	return req, nil
}

func (w *Workflow) SetQuote(ctx context.Context, id string, price decimal.Decimal, notes string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		return r.SetQuote(price, notes, w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("quote custom order %s: %w", id, err)
	}
	w.logger.Info("custom order quoted", "request_id", id, "quoted_price", price.String())
	return req, nil
}

func (w *Workflow) Approve(ctx context.Context, id string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		return r.Approve(w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("approve custom order %s: %w", id, err)
	}
	w.logger.Info("custom order approved", "request_id", id)
	return req, nil
}

// GeneratePaymentLink mints a processor payment link for the quoted price.
// The link is stored only after the processor call succeeds; an already
// stored link is returned as is.
func (w *Workflow) GeneratePaymentLink(ctx context.Context, id string) (*domain.CustomOrderRequest, error) {
	current, err := w.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.CanGenerateLink(); err != nil {
		return nil, err
	}
	if current.HasPaymentLink() {
		return current, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, w.timeout)
	link, err := w.gateway.CreatePaymentLink(gwCtx, payments.PaymentLinkRequest{
		Amount:      *current.QuotedPrice,
		Currency:    current.Currency,
		Description: "Custom order: " + current.Description,
		Metadata:    map[string]string{domain.MetadataCustomRequestID: current.ID},
	})
	cancel()
	if err != nil {
		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) {
			err = &domain.GatewayError{Op: "create payment link", Err: err}
		}
		return nil, fmt.Errorf("payment link for custom order %s: %w", id, err)
	}

	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		if r.HasPaymentLink() {
			return nil
		}
		return r.AttachPaymentLink(link.ID, link.URL, w.now())
	})
	if err != nil {
		w.logger.Error("payment link created but not stored", "error", err, "request_id", id, "payment_link_id", link.ID)
		return nil, fmt.Errorf("store payment link for custom order %s: %w", id, err)
	}
	if *req.PaymentLinkID != link.ID {
		w.logger.Warn("concurrent payment link discarded", "request_id", id, "payment_link_id", link.ID)
		return req, nil
	}

	w.logger.Info("payment link generated", "request_id", id, "payment_link_id", link.ID)
	w.publish(ctx, domain.EventCustomOrderApproved, req)
	return req, nil
}

// ConfirmPayment turns an approved request into a paid order. The order, the
// stock decrement for a catalog-backed request and the request's move to paid
// commit together or not at all.
func (w *Workflow) ConfirmPayment(ctx context.Context, id string, confirmation domain.PaymentConfirmation) (*domain.CustomOrderRequest, error) {
	var order *domain.Order
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, tx orders.Tx) error {
		if err := r.CanConfirmPayment(); err != nil {
			return err
		}

		o := domain.NewOrder(uuid.New().String(), r.Currency, []domain.OrderItem{r.SyntheticItem(uuid.New().String())}, w.now())
		o.IsCustomOrder = true
		if _, _, err := w.engine.Apply(ctx, tx, o, domain.OrderStatusPaid); err != nil {
			return err
		}
		if confirmation.CustomerEmail == "" {
			confirmation.CustomerEmail = r.CustomerEmail
		}
		o.ApplyPayment(confirmation)

		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := r.MarkPaid(o.ID, w.now()); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment for custom order %s: %w", id, err)
	}

	w.logger.Info("custom order paid", "request_id", id, "order_id", order.ID, "payment_reference", confirmation.Reference)
	w.publish(ctx, domain.EventCustomOrderPaid, req)
	w.engine.Publish(ctx, order)
	return req, nil
}

// HandleLinkPaid settles the request a payment link was minted for. The link
// id wins over the request id carried in metadata.
func (w *Workflow) HandleLinkPaid(ctx context.Context, linkID, requestID string, confirmation domain.PaymentConfirmation) (*domain.CustomOrderRequest, error) {
	id, err := w.resolve(ctx, linkID, requestID)
	if err != nil {
		return nil, err
	}
	return w.ConfirmPayment(ctx, id, confirmation)
}

// ExpirePaymentLink clears the stored link so that a new one can be generated.
func (w *Workflow) ExpirePaymentLink(ctx context.Context, linkID, requestID string) (*domain.CustomOrderRequest, error) {
	id, err := w.resolve(ctx, linkID, requestID)
	if err != nil {
		return nil, err
	}

	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		if linkID != "" && (r.PaymentLinkID == nil || *r.PaymentLinkID != linkID) {
			return nil
		}
		return r.ExpireLink(w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("expire payment link for custom order %s: %w", id, err)
	}
	w.logger.Info("payment link expired", "request_id", id, "payment_link_id", linkID)
	return req, nil
}

func (w *Workflow) resolve(ctx context.Context, linkID, requestID string) (string, error) {
	if linkID != "" {
		req, err := w.repo.GetByPaymentLinkID(ctx, linkID)
		if err != nil {
			return "", fmt.Errorf("find custom order for link %s: %w", linkID, err)
		}
		if req != nil {
			return req.ID, nil
		}
	}
	if requestID == "" {
		return "", fmt.Errorf("custom order for link %s: %w", linkID, domain.ErrNotFound)
	}
	return requestID, nil
}

func (w *Workflow) Reject(ctx context.Context, id, notes string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		return r.Reject(notes, w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("reject custom order %s: %w", id, err)
	}
	w.logger.Info("custom order rejected", "request_id", id)
	w.publish(ctx, domain.EventCustomOrderRejected, req)
	return req, nil
}

func (w *Workflow) Cancel(ctx context.Context, id string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		return r.Cancel(w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("cancel custom order %s: %w", id, err)
	}
	w.logger.Info("custom order cancelled", "request_id", id)
	return req, nil
}

func (w *Workflow) AddNote(ctx context.Context, id, note string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Update(ctx, id, func(r *domain.CustomOrderRequest, _ orders.Tx) error {
		return r.AddNote(note, w.now())
	})
	if err != nil {
		return nil, fmt.Errorf("add note to custom order %s: %w", id, err)
	}
	return req, nil
}

func (w *Workflow) Get(ctx context.Context, id string) (*domain.CustomOrderRequest, error) {
	req, err := w.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get custom order %s: %w", id, err)
	}
	if req == nil {
		return nil, fmt.Errorf("custom order %s: %w", id, domain.ErrNotFound)
	}
	return req, nil
}

func (w *Workflow) List(ctx context.Context, filter ListFilter) ([]domain.CustomOrderRequest, error) {
	return w.repo.List(ctx, filter)
}

func (w *Workflow) publish(ctx context.Context, eventType string, req *domain.CustomOrderRequest) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishEvent(ctx, domain.NewCustomOrderEvent(eventType, req)); err != nil {
		w.logger.Error("failed to publish custom order event", "error", err, "request_id", req.ID, "event_type", eventType)
	}
}
