package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// Repository persists products. Get and Delete return nil, nil for unknown ids;
// Update returns domain.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, p *domain.Product) error
	Get(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	Update(ctx context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error)
	SetProcessorRefs(ctx context.Context, id string, price decimal.Decimal, refs ProcessorRefs) (bool, error)
	Delete(ctx context.Context, id string) (*domain.Product, error)
}

type ProcessorRefs struct {
	ProductID string
	PriceID   string
}

const uniqueViolation = "23505"

const productColumns = `id, name, slug, description, unit_price, currency, inventory_count,
	is_sold_out, is_active, processor_product_id, processor_price_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.UnitPrice, &p.Currency, &p.InventoryCount,
		&p.IsSoldOut, &p.IsActive, &p.ProcessorProductID, &p.ProcessorPriceID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.Name, p.Slug, p.Description, p.UnitPrice, p.Currency, p.InventoryCount,
		p.IsSoldOut, p.IsActive, p.ProcessorProductID, p.ProcessorPriceID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.Invalid("id", fmt.Sprintf("product %s already exists", p.ID))
		}
		return err
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active OR NOT $1
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// Update runs fn against the row locked FOR UPDATE and writes the result in
// the same transaction. Nothing is written when fn fails.
func (r *ProductRepository) Update(ctx context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, slug = $3, description = $4, unit_price = $5, currency = $6,
			inventory_count = $7, is_sold_out = $8, is_active = $9,
			processor_product_id = $10, processor_price_id = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.Name, p.Slug, p.Description, p.UnitPrice, p.Currency, p.InventoryCount,
		p.IsSoldOut, p.IsActive, p.ProcessorProductID, p.ProcessorPriceID, p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetProcessorRefs stores synced identifiers only if the price they were
// minted for is still the current one.
func (r *ProductRepository) SetProcessorRefs(ctx context.Context, id string, price decimal.Decimal, refs ProcessorRefs) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET processor_product_id = $2, processor_price_id = $3, updated_at = NOW()
		WHERE id = $1 AND unit_price = $4
	`, id, refs.ProductID, refs.PriceID, price)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		DELETE FROM products
		WHERE id = $1
		RETURNING `+productColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
