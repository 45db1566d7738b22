package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// Tx is the set of writes allowed inside a repository's exclusive update
// scope. Everything done through it commits or rolls back together with the
// aggregate being updated.
type Tx interface {
	// DecrementStock locks the product row, subtracts quantity clamped at zero
	// and marks the product sold out when it reaches zero. It returns
	// domain.ErrNotFound for an unknown product.
	DecrementStock(ctx context.Context, productID string, quantity int) (domain.StockChange, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
}

type sqlTx struct {
	tx *sql.Tx
}

// NewSQLTx adapts a Postgres transaction to Tx.
func NewSQLTx(tx *sql.Tx) Tx {
	return &sqlTx{tx: tx}
}

func (t *sqlTx) DecrementStock(ctx context.Context, productID string, quantity int) (domain.StockChange, error) {
	var available int
	err := t.tx.QueryRowContext(ctx, `
		SELECT inventory_count
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockChange{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return domain.StockChange{}, err
	}

	change := domain.Decrement(productID, available, quantity)

	_, err = t.tx.ExecContext(ctx, `
		UPDATE products
		SET inventory_count = $2, is_sold_out = is_sold_out OR $2 = 0, updated_at = NOW()
		WHERE id = $1
	`, productID, change.After)
	if err != nil {
		return domain.StockChange{}, err
	}

	return change, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return insertOrder(ctx, t.tx, order)
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, status, currency, total, processor_session_id, payment_reference,
			customer_email, shipping_address, is_custom_order, tracking_number, shipping_carrier,
			paid_at, shipped_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, order.ID, order.Status, order.Currency, order.Total, order.ProcessorSessionID, order.PaymentReference,
		order.CustomerEmail, nullJSON(order.ShippingAddress), order.IsCustomOrder, order.TrackingNumber,
		order.ShippingCarrier, order.PaidAt, order.ShippedAt, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, description, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, order.ID, nullString(item.ProductID), item.Description, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
