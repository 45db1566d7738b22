package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Slug               string          `json:"slug"`
	Description        string          `json:"description"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Currency           string          `json:"currency"`
	InventoryCount     int             `json:"inventory_count"`
	IsSoldOut          bool            `json:"is_sold_out"`
	IsActive           bool            `json:"is_active"`
	ProcessorProductID *string         `json:"processor_product_id"`
	ProcessorPriceID   *string         `json:"processor_price_id"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return Invalid("id", "is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return Invalid("name", "is required")
	}
	if err := ValidateAmount("unit_price", p.UnitPrice); err != nil {
		return err
	}
	if p.InventoryCount < 0 {
		return Invalid("inventory_count", "must be zero or greater")
	}
	return nil
}

func (p *Product) InStock() bool {
	return p.IsActive && !p.IsSoldOut && p.InventoryCount > 0
}

// Synced reports whether the processor holds a price for the current unit price.
func (p *Product) Synced() bool {
	return p.ProcessorProductID != nil && p.ProcessorPriceID != nil
}

// StockChange describes one inventory decrement. Shortfall is the amount that
// could not be taken because the counter would have gone negative.
type StockChange struct {
	ProductID string `json:"product_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Shortfall int    `json:"shortfall"`
}

func (c StockChange) Clamped() bool { return c.Shortfall > 0 }

// Decrement computes the clamped result of taking quantity units from available.
func Decrement(productID string, available, quantity int) StockChange {
	after := available - quantity
	change := StockChange{ProductID: productID, Before: available, After: after}
	if after < 0 {
		change.After = 0
		change.Shortfall = -after
	}
	return change
}
