package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

var meter = otel.Meter("catalog")

// Service owns product mutations and their synchronization with the payment
// processor's catalog. Sync runs on create and on price change, never on a
// stock-only change.
type Service struct {
	repo      Repository
	gateway   payments.Gateway
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	syncTotal metric.Int64Counter
}

func NewService(repo Repository, gateway payments.Gateway, logger *slog.Logger, timeout time.Duration) *Service {
	syncTotal, _ := meter.Int64Counter("catalog_sync_total",
		metric.WithDescription("Processor catalog sync attempts by result"))

	return &Service{
		repo:      repo,
		gateway:   gateway,
		logger:    logger,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
		syncTotal: syncTotal,
	}
}

type NewProduct struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	Description    string          `json:"description"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Currency       string          `json:"currency"`
	InventoryCount int             `json:"inventory_count"`
	IsActive       *bool           `json:"is_active"`
}

type ProductUpdate struct {
	Name           *string          `json:"name"`
	Slug           *string          `json:"slug"`
	Description    *string          `json:"description"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	InventoryCount *int             `json:"inventory_count"`
	IsActive       *bool            `json:"is_active"`
}

func (u ProductUpdate) stockOnly() bool {
	return u.InventoryCount != nil &&
		u.Name == nil && u.Slug == nil && u.Description == nil && u.UnitPrice == nil && u.IsActive == nil
}

func (s *Service) Create(ctx context.Context, in NewProduct) (*domain.Product, error) {
	now := s.now()
	p := &domain.Product{
		ID:             strings.TrimSpace(in.ID),
		Name:           strings.TrimSpace(in.Name),
		Slug:           in.Slug,
		Description:    in.Description,
		UnitPrice:      in.UnitPrice,
		Currency:       domain.NormalizeCurrency(in.Currency),
		InventoryCount: in.InventoryCount,
		IsSoldOut:      in.InventoryCount == 0,
		IsActive:       in.IsActive == nil || *in.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.logger.Info("product created", "product_id", p.ID, "unit_price", p.UnitPrice.String())

	// A failed sync is logged and leaves the product pending; the admin retries
	// it through Resync.
	synced, err := s.sync(ctx, p)
	if err != nil {
		return p, nil
	}
	return synced, nil
}

func (s *Service) Update(ctx context.Context, id string, in ProductUpdate) (*domain.Product, error) {
	var priceChanged bool

	p, err := s.repo.Update(ctx, id, func(p *domain.Product) error {
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Slug != nil {
			p.Slug = *in.Slug
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		if in.InventoryCount != nil {
			p.InventoryCount = *in.InventoryCount
			p.IsSoldOut = p.InventoryCount == 0
		}
		if in.UnitPrice != nil && !in.UnitPrice.Equal(p.UnitPrice) {
			p.UnitPrice = *in.UnitPrice
			// Processor prices are immutable; sync mints a new one.
			p.ProcessorPriceID = nil
			priceChanged = true
		}
		return p.Validate()
	})
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	s.logger.Info("product updated", "product_id", id, "price_changed", priceChanged)

	if in.stockOnly() || (!priceChanged && p.Synced()) {
		return p, nil
	}
	// A failed sync is logged and leaves the product pending; the admin retries
	// it through Resync.
	synced, err := s.sync(ctx, p)
	if err != nil {
		return p, nil
	}
	return synced, nil
}

// Resync forces a processor sync and reports its failure to the caller.
func (s *Service) Resync(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, p)
}

func (s *Service) Archive(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.Update(ctx, id, func(p *domain.Product) error {
		p.IsActive = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive product %s: %w", id, err)
	}
	s.logger.Info("product archived", "product_id", id)
	return p, nil
}

// Delete removes the product locally and then deactivates it at the processor.
// A processor failure is logged; the local delete stands.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if p == nil {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	s.logger.Info("product deleted", "product_id", id)

	if p.ProcessorProductID == nil {
		return nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.gateway.ArchiveProduct(gwCtx, *p.ProcessorProductID); err != nil {
		s.logger.Warn("failed to archive processor product", "error", err,
			"product_id", id, "processor_product_id", *p.ProcessorProductID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if p == nil {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.repo.List(ctx, activeOnly)
}

// sync calls the processor outside any transaction and stores the returned
// identifiers only on success. On failure the product keeps whatever
// identifiers it already had (a stale price id is already NULL).
func (s *Service) sync(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	refs, err := s.gateway.EnsureCatalogSync(gwCtx, *p)
	cancel()
	if err != nil {
		s.syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		s.logger.Warn("catalog sync failed", "error", err, "product_id", p.ID)
		return p, err
	}

	stored, err := s.repo.SetProcessorRefs(ctx, p.ID, p.UnitPrice, ProcessorRefs{
		ProductID: refs.ProductID,
		PriceID:   refs.PriceID,
	})
	if err != nil {
		s.syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		s.logger.Error("failed to store processor refs", "error", err, "product_id", p.ID)
		return p, fmt.Errorf("store processor refs for %s: %w", p.ID, err)
	}
	if !stored {
		s.syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "superseded")))
		s.logger.Info("price changed during sync, refs discarded", "product_id", p.ID, "processor_price_id", refs.PriceID)
		return s.Get(ctx, p.ID)
	}

	s.syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	s.logger.Info("catalog synced", "product_id", p.ID,
		"processor_product_id", refs.ProductID, "processor_price_id", refs.PriceID)

	out := *p
	out.ProcessorProductID = &refs.ProductID
	out.ProcessorPriceID = &refs.PriceID
	return &out, nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
