package domain

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusFulfilled, OrderStatusRefunded},
	OrderStatusFulfilled: {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := orderTransitions[status]; !ok {
		return "", Invalid("status", "unknown order status "+s)
	}
	return status, nil
}

func CanTransitionOrder(from, to OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

type OrderItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Tracked reports whether the item consumes stock from a catalog product.
func (i OrderItem) Tracked() bool { return i.ProductID != "" }

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                 string          `json:"id"`
	Items              []OrderItem     `json:"items"`
	Status             OrderStatus     `json:"status"`
	Currency           string          `json:"currency"`
	Total              decimal.Decimal `json:"total"`
	ProcessorSessionID *string         `json:"processor_session_id"`
	PaymentReference   *string         `json:"payment_reference"`
	CustomerEmail      *string         `json:"customer_email"`
	ShippingAddress    json.RawMessage `json:"shipping_address,omitempty"`
	IsCustomOrder      bool            `json:"is_custom_order"`
	TrackingNumber     string          `json:"tracking_number,omitempty"`
	ShippingCarrier    string          `json:"shipping_carrier,omitempty"`
	PaidAt             *time.Time      `json:"paid_at"`
	ShippedAt          *time.Time      `json:"shipped_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewOrder builds a pending order; the total is derived from the item snapshots.
func NewOrder(id, currency string, items []OrderItem, now time.Time) *Order {
	o := &Order{
		ID:        id,
		Items:     items,
		Status:    OrderStatusPending,
		Currency:  NormalizeCurrency(currency),
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Total = o.ComputeTotal()
	return o
}

func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Transition is the edge taken by a successful TransitionTo call.
type Transition struct {
	From OrderStatus
	To   OrderStatus
}

// EntersPaid is true exactly once in an order's life: on the edge into paid.
func (t Transition) EntersPaid() bool {
	return t.From != OrderStatusPaid && t.To == OrderStatusPaid
}

// TransitionTo moves the order to next. It returns changed=false without
// touching the order when next equals the current status.
func (o *Order) TransitionTo(next OrderStatus, now time.Time) (Transition, bool, error) {
	if o.Status == next {
		return Transition{From: o.Status, To: next}, false, nil
	}
	if !CanTransitionOrder(o.Status, next) {
		return Transition{}, false, &TransitionError{Entity: "order", ID: o.ID, From: string(o.Status), To: string(next)}
	}

	t := Transition{From: o.Status, To: next}
	o.Status = next
	o.UpdatedAt = now
	if t.EntersPaid() {
		o.PaidAt = &now
	}
	return t, true, nil
}

// ApplyPayment records the processor's view of a confirmed payment. Fields
// already set are kept so duplicate notifications do not overwrite the audit
// trail. It reports whether anything changed.
func (o *Order) ApplyPayment(p PaymentConfirmation) bool {
	changed := false
	if o.PaymentReference == nil && p.Reference != "" {
		ref := p.Reference
		o.PaymentReference = &ref
		changed = true
	}
	if o.CustomerEmail == nil && p.CustomerEmail != "" {
		email := p.CustomerEmail
		o.CustomerEmail = &email
		changed = true
	}
	if len(o.ShippingAddress) == 0 && len(p.ShippingAddress) > 0 {
		o.ShippingAddress = p.ShippingAddress
		changed = true
	}
	return changed
}

// StockDemand aggregates tracked quantities per product, sorted by product id
// so that callers lock product rows in a stable order.
func (o *Order) StockDemand() []StockDemand {
	byProduct := make(map[string]int)
	for _, item := range o.Items {
		if item.Tracked() {
			byProduct[item.ProductID] += item.Quantity
		}
	}
	out := make([]StockDemand, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, StockDemand{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

type StockDemand struct {
	ProductID string
	Quantity  int
}

// PaymentConfirmation is what the processor tells us about a completed payment.
type PaymentConfirmation struct {
	Reference       string          `json:"reference"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
}

type Shipment struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

func (s Shipment) Validate() error {
	if strings.TrimSpace(s.TrackingNumber) == "" {
		return Invalid("tracking_number", "is required to mark an order as fulfilled")
	}
	return nil
}
