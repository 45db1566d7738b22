package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPaid            = "order.paid"
	EventOrderFulfilled       = "order.fulfilled"
	EventOrderCancelled       = "order.cancelled"
	EventOrderRefunded        = "order.refunded"
	EventCustomOrderSubmitted = "custom_order.submitted"
	EventCustomOrderApproved  = "custom_order.approved"
	EventCustomOrderPaid      = "custom_order.paid"
	EventCustomOrderRejected  = "custom_order.rejected"
)

// Event is a fact published after a state change has been committed.
type Event interface {
	EventType() string
	AggregateID() string
}

type OrderEvent struct {
	Type           string          `json:"-"`
	OrderID        string          `json:"order_id"`
	Status         OrderStatus     `json:"status"`
	CustomerEmail  string          `json:"customer_email,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Items          []OrderItem     `json:"items"`
	IsCustomOrder  bool            `json:"is_custom_order"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Carrier        string          `json:"carrier,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (e OrderEvent) EventType() string   { return e.Type }
func (e OrderEvent) AggregateID() string { return e.OrderID }

func NewOrderEvent(o *Order) OrderEvent {
	ev := OrderEvent{
		OrderID:        o.ID,
		Status:         o.Status,
		Total:          o.Total,
		Currency:       o.Currency,
		Items:          o.Items,
		IsCustomOrder:  o.IsCustomOrder,
		TrackingNumber: o.TrackingNumber,
		Carrier:        o.ShippingCarrier,
		Timestamp:      o.UpdatedAt,
	}
	if o.CustomerEmail != nil {
		ev.CustomerEmail = *o.CustomerEmail
	}
	switch o.Status {
	case OrderStatusPaid:
		ev.Type = EventOrderPaid
	case OrderStatusFulfilled:
		ev.Type = EventOrderFulfilled
	case OrderStatusCancelled:
		ev.Type = EventOrderCancelled
	case OrderStatusRefunded:
		ev.Type = EventOrderRefunded
	}
	return ev
}

type CustomOrderEvent struct {
	Type           string            `json:"-"`
	RequestID      string            `json:"request_id"`
	Status         CustomOrderStatus `json:"status"`
	CustomerName   string            `json:"customer_name"`
	CustomerEmail  string            `json:"customer_email"`
	Description    string            `json:"description"`
	QuotedPrice    *decimal.Decimal  `json:"quoted_price,omitempty"`
	Currency       string            `json:"currency"`
	PaymentLinkURL string            `json:"payment_link_url,omitempty"`
	OrderID        string            `json:"order_id,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

func (e CustomOrderEvent) EventType() string   { return e.Type }
func (e CustomOrderEvent) AggregateID() string { return e.RequestID }

func NewCustomOrderEvent(eventType string, r *CustomOrderRequest) CustomOrderEvent {
	ev := CustomOrderEvent{
		Type:          eventType,
		RequestID:     r.ID,
		Status:        r.Status,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		Description:   r.Description,
		QuotedPrice:   r.QuotedPrice,
		Currency:      r.Currency,
		Notes:         r.AdminNotes,
		Timestamp:     r.UpdatedAt,
	}
	if r.PaymentLinkURL != nil {
		ev.PaymentLinkURL = *r.PaymentLinkURL
	}
	if r.LinkedOrderID != nil {
		ev.OrderID = *r.LinkedOrderID
	}
	return ev
}
