package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CustomOrderStatus string

const (
	CustomStatusPending   CustomOrderStatus = "pending"
	CustomStatusQuoted    CustomOrderStatus = "quoted"
	CustomStatusApproved  CustomOrderStatus = "approved"
	CustomStatusPaid      CustomOrderStatus = "paid"
	CustomStatusRejected  CustomOrderStatus = "rejected"
	CustomStatusCancelled CustomOrderStatus = "cancelled"
)

var customTransitions = map[CustomOrderStatus][]CustomOrderStatus{
	CustomStatusPending:   {CustomStatusQuoted, CustomStatusRejected, CustomStatusCancelled},
	CustomStatusQuoted:    {CustomStatusQuoted, CustomStatusApproved, CustomStatusRejected, CustomStatusCancelled},
	CustomStatusApproved:  {CustomStatusPaid, CustomStatusRejected, CustomStatusCancelled},
	CustomStatusPaid:      {},
	CustomStatusRejected:  {},
	CustomStatusCancelled: {},
}

func CanTransitionCustom(from, to CustomOrderStatus) bool {
	return slices.Contains(customTransitions[from], to)
}

func (s CustomOrderStatus) Terminal() bool {
	return len(customTransitions[s]) == 0
}

type CustomOrderRequest struct {
	ID             string            `json:"id"`
	CustomerName   string            `json:"customer_name"`
	CustomerEmail  string            `json:"customer_email"`
	Description    string            `json:"description"`
	Colors         []string          `json:"colors"`
	ProductID      *string           `json:"product_id"`
	Status         CustomOrderStatus `json:"status"`
	QuotedPrice    *decimal.Decimal  `json:"quoted_price"`
	Currency       string            `json:"currency"`
	AdminNotes     string            `json:"admin_notes"`
	PaymentLinkID  *string           `json:"payment_link_id"`
	PaymentLinkURL *string           `json:"payment_link_url"`
	LinkedOrderID  *string           `json:"linked_order_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (r *CustomOrderRequest) Validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return Invalid("customer_name", "is required")
	}
	if !strings.Contains(r.CustomerEmail, "@") {
		return Invalid("customer_email", "must be a valid email address")
	}
	if strings.TrimSpace(r.Description) == "" {
		return Invalid("description", "is required")
	}
	return nil
}

// Settled is true once the request has produced an order. Only notes may change afterwards.
func (r *CustomOrderRequest) Settled() bool {
	return r.LinkedOrderID != nil
}

func (r *CustomOrderRequest) HasPaymentLink() bool {
	return r.PaymentLinkID != nil && r.PaymentLinkURL != nil
}

func (r *CustomOrderRequest) moveTo(next CustomOrderStatus, now time.Time) error {
	if r.Settled() || !CanTransitionCustom(r.Status, next) {
		return &TransitionError{Entity: "custom order", ID: r.ID, From: string(r.Status), To: string(next)}
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

func (r *CustomOrderRequest) requireStatus(want CustomOrderStatus, attempted string) error {
	if r.Status != want || r.Settled() {
		return &TransitionError{Entity: "custom order", ID: r.ID, From: string(r.Status), To: attempted}
	}
	return nil
}

func (r *CustomOrderRequest) SetQuote(price decimal.Decimal, notes string, now time.Time) error {
	if err := ValidateAmount("quoted_price", price); err != nil {
		return err
	}
	if err := r.moveTo(CustomStatusQuoted, now); err != nil {
		return err
	}
	r.QuotedPrice = &price
	if notes != "" {
		r.AdminNotes = notes
	}
	return nil
}

func (r *CustomOrderRequest) Approve(now time.Time) error {
	if r.Status == CustomStatusQuoted && r.QuotedPrice == nil {
		return Invalid("quoted_price", "must be set before approval")
	}
	return r.moveTo(CustomStatusApproved, now)
}

// CanGenerateLink returns nil when a payment link may be minted for the request.
func (r *CustomOrderRequest) CanGenerateLink() error {
	if err := r.requireStatus(CustomStatusApproved, "payment_link"); err != nil {
		return err
	}
	if r.QuotedPrice == nil {
		return Invalid("quoted_price", "must be set before a payment link is generated")
	}
	return nil
}

func (r *CustomOrderRequest) AttachPaymentLink(linkID, url string, now time.Time) error {
	if err := r.CanGenerateLink(); err != nil {
		return err
	}
	r.PaymentLinkID = &linkID
	r.PaymentLinkURL = &url
	r.UpdatedAt = now
	return nil
}

// ExpireLink forgets the stored link so a new one can be generated. The request stays approved.
func (r *CustomOrderRequest) ExpireLink(now time.Time) error {
	if err := r.requireStatus(CustomStatusApproved, "link_expired"); err != nil {
		return err
	}
	r.PaymentLinkID = nil
	r.PaymentLinkURL = nil
	r.UpdatedAt = now
	return nil
}

// CanConfirmPayment returns nil when the request may be settled by a payment.
func (r *CustomOrderRequest) CanConfirmPayment() error {
	if err := r.requireStatus(CustomStatusApproved, string(CustomStatusPaid)); err != nil {
		return err
	}
	if r.QuotedPrice == nil {
		return Invalid("quoted_price", "must be set before payment")
	}
	return nil
}

func (r *CustomOrderRequest) MarkPaid(orderID string, now time.Time) error {
	if err := r.CanConfirmPayment(); err != nil {
		return err
	}
	if err := r.moveTo(CustomStatusPaid, now); err != nil {
		return err
	}
	r.LinkedOrderID = &orderID
	return nil
}

func (r *CustomOrderRequest) Reject(notes string, now time.Time) error {
	if err := r.moveTo(CustomStatusRejected, now); err != nil {
		return err
	}
	if notes != "" {
		r.AdminNotes = notes
	}
	return nil
}

func (r *CustomOrderRequest) Cancel(now time.Time) error {
	return r.moveTo(CustomStatusCancelled, now)
}

// AddNote appends to the admin notes. Allowed in every status.
func (r *CustomOrderRequest) AddNote(note string, now time.Time) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return Invalid("note", "is required")
	}
	if r.AdminNotes == "" {
		r.AdminNotes = note
	} else {
		r.AdminNotes += "\n" + note
	}
	r.UpdatedAt = now
	return nil
}

// SyntheticItem is the single order line a paid custom request turns into.
func (r *CustomOrderRequest) SyntheticItem(itemID string) OrderItem {
	item := OrderItem{
		ID:          itemID,
		Description: "Custom order: " + r.Description,
		Quantity:    1,
	}
	if r.QuotedPrice != nil {
		item.UnitPrice = *r.QuotedPrice
	}
	if r.ProductID != nil {
		item.ProductID = *r.ProductID
	}
	return item
}
