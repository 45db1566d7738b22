package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newRequest() *CustomOrderRequest {
	return &CustomOrderRequest{
		ID:            "req-1",
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Description:   "blue scarf",
		Status:        CustomStatusPending,
		Currency:      DefaultCurrency,
	}
}

func TestCustomOrderRequest_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	req := newRequest()

	if err := req.SetQuote(decimal.RequireFromString("150.00"), "two weeks", now); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	if req.Status != CustomStatusQuoted {
		t.Fatalf("expected quoted, got %s", req.Status)
	}

	if err := req.SetQuote(decimal.RequireFromString("140.00"), "", now); err != nil {
		t.Fatalf("re-quote: %v", err)
	}
	if !req.QuotedPrice.Equal(decimal.RequireFromString("140")) {
		t.Errorf("expected requote to replace price, got %s", req.QuotedPrice)
	}

	if err := req.Approve(now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := req.AttachPaymentLink("plink_1", "https://pay.example/1", now); err != nil {
		t.Fatalf("attach link: %v", err)
	}
	if req.Status != CustomStatusApproved {
		t.Errorf("link must not change status, got %s", req.Status)
	}

	if err := req.MarkPaid("order-1", now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !req.Settled() {
		t.Fatal("expected request to be settled")
	}

	if err := req.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid transition after settlement, got %v", err)
	}
	if err := req.AddNote("shipped by hand", now); err != nil {
		t.Errorf("notes must stay editable: %v", err)
	}
}

func TestCustomOrderRequest_WrongState(t *testing.T) {
	now := time.Now().UTC()

	t.Run("approve from pending", func(t *testing.T) {
		req := newRequest()
		if err := req.Approve(now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if req.Status != CustomStatusPending {
			t.Errorf("status mutated to %s", req.Status)
		}
	})

	t.Run("payment link before approval", func(t *testing.T) {
		req := newRequest()
		_ = req.SetQuote(decimal.NewFromInt(10), "", now)
		if err := req.AttachPaymentLink("plink", "url", now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if req.PaymentLinkID != nil {
			t.Error("link stored on failure")
		}
	})

	t.Run("confirm payment from quoted", func(t *testing.T) {
		req := newRequest()
		_ = req.SetQuote(decimal.NewFromInt(10), "", now)
		if err := req.MarkPaid("order-1", now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if req.LinkedOrderID != nil {
			t.Error("order linked on failure")
		}
	})

	t.Run("quote after rejection", func(t *testing.T) {
		req := newRequest()
		_ = req.Reject("not feasible", now)
		if err := req.SetQuote(decimal.NewFromInt(10), "", now); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})

	t.Run("non-positive quote", func(t *testing.T) {
		req := newRequest()
		var verr *ValidationError
		if err := req.SetQuote(decimal.Zero, "", now); !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("quote finer than a cent", func(t *testing.T) {
		req := newRequest()
		var verr *ValidationError
		if err := req.SetQuote(decimal.RequireFromString("19.999"), "", now); !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if req.Status != CustomStatusPending || req.QuotedPrice != nil {
			t.Errorf("expected request untouched, got %s %v", req.Status, req.QuotedPrice)
		}
	})
}

func TestCustomOrderRequest_SyntheticItem(t *testing.T) {
	req := newRequest()
	price := decimal.RequireFromString("150.00")
	req.QuotedPrice = &price

	item := req.SyntheticItem("item-1")
	if item.Tracked() {
		t.Error("request without product must produce an untracked item")
	}
	if item.Quantity != 1 || !item.UnitPrice.Equal(price) {
		t.Errorf("unexpected item %+v", item)
	}

	productID := "scarf"
	req.ProductID = &productID
	if item := req.SyntheticItem("item-2"); item.ProductID != "scarf" {
		t.Errorf("expected product binding, got %q", item.ProductID)
	}
}
