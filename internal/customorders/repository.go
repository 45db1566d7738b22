package customorders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
)

// UpdateFunc mutates a request inside the exclusive scope. Writes made through
// tx commit together with the request.
type UpdateFunc func(req *domain.CustomOrderRequest, tx orders.Tx) error

// Repository persists custom order requests. Get and GetByPaymentLinkID return
// nil, nil for unknown requests; Update returns domain.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, req *domain.CustomOrderRequest) error
	Get(ctx context.Context, id string) (*domain.CustomOrderRequest, error)
	GetByPaymentLinkID(ctx context.Context, linkID string) (*domain.CustomOrderRequest, error)
	List(ctx context.Context, filter ListFilter) ([]domain.CustomOrderRequest, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*domain.CustomOrderRequest, error)
}

type ListFilter struct {
	Status domain.CustomOrderStatus
	Limit  int
}

const requestColumns = `id, customer_name, customer_email, description, colors, product_id, status,
	quoted_price, currency, admin_notes, payment_link_id, payment_link_url, linked_order_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.CustomOrderRequest, error) {
	req := &domain.CustomOrderRequest{}
	var quoted decimal.NullDecimal
	err := row.Scan(&req.ID, &req.CustomerName, &req.CustomerEmail, &req.Description, pq.Array(&req.Colors),
		&req.ProductID, &req.Status, &quoted, &req.Currency, &req.AdminNotes, &req.PaymentLinkID,
		&req.PaymentLinkURL, &req.LinkedOrderID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if quoted.Valid {
		req.QuotedPrice = &quoted.Decimal
	}
	if req.Colors == nil {
		req.Colors = []string{}
	}
	return req, nil
}

type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *domain.CustomOrderRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO custom_order_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, req.ID, req.CustomerName, req.CustomerEmail, req.Description, pq.Array(req.Colors), req.ProductID,
		req.Status, quotedPrice(req), req.Currency, req.AdminNotes, req.PaymentLinkID, req.PaymentLinkURL,
		req.LinkedOrderID, req.CreatedAt, req.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return domain.Invalid("product_id", "unknown product")
	}
	return err
}

const foreignKeyViolation = "23503"

func (r *RequestRepository) Get(ctx context.Context, id string) (*domain.CustomOrderRequest, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *RequestRepository) GetByPaymentLinkID(ctx context.Context, linkID string) (*domain.CustomOrderRequest, error) {
	return r.getWhere(ctx, "payment_link_id = $1", linkID)
}

func (r *RequestRepository) getWhere(ctx context.Context, where string, arg any) (*domain.CustomOrderRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM custom_order_requests
		WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

func (r *RequestRepository) List(ctx context.Context, filter ListFilter) ([]domain.CustomOrderRequest, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM custom_order_requests
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	requests := []domain.CustomOrderRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// Update locks the request row and runs fn in the same transaction as any
// order it creates through tx. The request is always written back when fn
// succeeds.
func (r *RequestRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*domain.CustomOrderRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := scanRequest(tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM custom_order_requests
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("custom order %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	if err := fn(req, orders.NewSQLTx(tx)); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE custom_order_requests
		SET status = $2, quoted_price = $3, admin_notes = $4, payment_link_id = $5,
			payment_link_url = $6, linked_order_id = $7, updated_at = $8
		WHERE id = $1
	`, req.ID, req.Status, quotedPrice(req), req.AdminNotes, req.PaymentLinkID, req.PaymentLinkURL,
		req.LinkedOrderID, req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return req, nil
}

func quotedPrice(req *domain.CustomOrderRequest) decimal.NullDecimal {
	if req.QuotedPrice == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *req.QuotedPrice, Valid: true}
}
