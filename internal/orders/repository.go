package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// UpdateFunc mutates an order inside the exclusive scope. It returns whether
// the order row itself must be written.
type UpdateFunc func(order *domain.Order, tx Tx) (bool, error)

// Repository persists orders. Get and GetBySessionID return nil, nil for
// unknown orders; Update returns domain.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Order, error)
}

type ListFilter struct {
	Status domain.OrderStatus
	Limit  int
}

const orderColumns = `id, status, currency, total, processor_session_id, payment_reference,
	customer_email, shipping_address, is_custom_order, tracking_number, shipping_carrier,
	paid_at, shipped_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var shipping []byte
	err := row.Scan(&order.ID, &order.Status, &order.Currency, &order.Total, &order.ProcessorSessionID,
		&order.PaymentReference, &order.CustomerEmail, &shipping, &order.IsCustomOrder, &order.TrackingNumber,
		&order.ShippingCarrier, &order.PaidAt, &order.ShippedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(shipping) > 0 {
		order.ShippingAddress = append([]byte(nil), shipping...)
	}
	order.Items = []domain.OrderItem{}
	return order, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.getWhere(ctx, r.db, "id = $1", id)
}

func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	return r.getWhere(ctx, r.db, "processor_session_id = $1", sessionID)
}

func (r *OrderRepository) getWhere(ctx context.Context, q queryer, where string, arg any) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := loadItems(ctx, q, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := loadItems(ctx, r.db, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func loadItems(ctx context.Context, q queryer, orderMap map[string]*domain.Order, orderIDs []string) error {
	itemRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, description, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY position
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var productID sql.NullString
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ID, &orderID, &productID, &item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		item.ProductID = productID.String
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	return itemRows.Err()
}

// Update locks the order row FOR UPDATE, runs fn with a Tx bound to the same
// transaction and writes the order back if fn reports it dirty. Product rows
// touched through the Tx are locked by the same transaction, so the stock
// decrement and the new status become visible together.
func (r *OrderRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	if err := loadItems(ctx, tx, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}

	dirty, err := fn(order, NewSQLTx(tx))
	if err != nil {
		return nil, err
	}

	if dirty {
		if err := updateOrder(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func updateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, processor_session_id = $3, payment_reference = $4, customer_email = $5,
			shipping_address = $6, tracking_number = $7, shipping_carrier = $8,
			paid_at = $9, shipped_at = $10, updated_at = $11
		WHERE id = $1
	`, order.ID, order.Status, order.ProcessorSessionID, order.PaymentReference, order.CustomerEmail,
		nullJSON(order.ShippingAddress), order.TrackingNumber, order.ShippingCarrier,
		order.PaidAt, order.ShippedAt, order.UpdatedAt)
	return err
}
