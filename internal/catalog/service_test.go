package catalog_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/catalog"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/memstore"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments/paymentstest"
)

func newService(t *testing.T) (*catalog.Service, *memstore.Store, *paymentstest.Gateway) {
	t.Helper()
	store := memstore.New()
	gateway := paymentstest.New()
	svc := catalog.NewService(store.Products(), gateway, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	return svc, store, gateway
}

func mug() catalog.NewProduct {
	return catalog.NewProduct{
		ID:             "mug",
		Name:           "Big Blue Mug",
		UnitPrice:      decimal.RequireFromString("12.50"),
		InventoryCount: 5,
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs and stores processor ids", func(t *testing.T) {
		svc, store, _ := newService(t)

		p, err := svc.Create(ctx, mug())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.Synced() {
			t.Fatalf("expected synced product, got %+v", p)
		}
		if p.Slug != "big-blue-mug" {
			t.Errorf("expected slug big-blue-mug, got %s", p.Slug)
		}

		stored, _ := store.Products().Get(ctx, "mug")
		if stored.ProcessorPriceID == nil || *stored.ProcessorPriceID != *p.ProcessorPriceID {
			t.Errorf("expected stored price id, got %v", stored.ProcessorPriceID)
		}
	})

	t.Run("gateway failure keeps the product without ids", func(t *testing.T) {
		svc, store, gateway := newService(t)
		gateway.Fail(errors.New("timeout"))

		p, err := svc.Create(ctx, mug())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ProcessorProductID != nil || p.ProcessorPriceID != nil {
			t.Errorf("expected no processor ids, got %v %v", p.ProcessorProductID, p.ProcessorPriceID)
		}
		stored, _ := store.Products().Get(ctx, "mug")
		if stored == nil || stored.Synced() {
			t.Errorf("expected unsynced stored product, got %+v", stored)
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, gateway := newService(t)
		in := mug()
		in.UnitPrice = decimal.Zero

		_, err := svc.Create(ctx, in)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if gateway.Calls("EnsureCatalogSync") != 0 {
			t.Error("expected no sync")
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, _ = svc.Create(ctx, mug())

		_, err := svc.Create(ctx, mug())
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("zero stock is sold out", func(t *testing.T) {
		svc, _, _ := newService(t)
		in := mug()
		in.InventoryCount = 0

		p, _ := svc.Create(ctx, in)
		if !p.IsSoldOut {
			t.Error("expected sold out")
		}
	})
}

func TestService_Create_SubCentPrice(t *testing.T) {
	svc, store, gateway := newService(t)

	in := mug()
	in.UnitPrice = decimal.RequireFromString("19.999")
	_, err := svc.Create(context.Background(), in)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "unit_price" {
		t.Fatalf("expected unit_price validation error, got %v", err)
	}
	if p, _ := store.Products().Get(context.Background(), "mug"); p != nil {
		t.Error("expected nothing persisted")
	}
	if gateway.Calls("EnsureCatalogSync") != 0 {
		t.Error("expected no processor call")
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("price change supersedes the price id", func(t *testing.T) {
		svc, _, gateway := newService(t)
		created, _ := svc.Create(ctx, mug())
		oldPrice := *created.ProcessorPriceID

		newPrice := decimal.RequireFromString("15.00")
		updated, err := svc.Update(ctx, "mug", catalog.ProductUpdate{UnitPrice: &newPrice})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.ProcessorPriceID == nil || *updated.ProcessorPriceID == oldPrice {
			t.Errorf("expected a new price id, got %v", updated.ProcessorPriceID)
		}
		if *updated.ProcessorProductID != *created.ProcessorProductID {
			t.Error("expected the processor product to be reused")
		}
		if gateway.Calls("EnsureCatalogSync") != 2 {
			t.Errorf("expected 2 syncs, got %d", gateway.Calls("EnsureCatalogSync"))
		}
	})

	t.Run("sub-cent price is rejected before any sync", func(t *testing.T) {
		svc, store, gateway := newService(t)
		_, _ = svc.Create(ctx, mug())

		newPrice := decimal.RequireFromString("15.005")
		_, err := svc.Update(ctx, "mug", catalog.ProductUpdate{UnitPrice: &newPrice})
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}

		stored, _ := store.Products().Get(ctx, "mug")
		if !stored.UnitPrice.Equal(decimal.RequireFromString("12.50")) || stored.ProcessorPriceID == nil {
			t.Errorf("expected product untouched, got %+v", stored)
		}
		if gateway.Calls("EnsureCatalogSync") != 1 {
			t.Errorf("expected only the create sync, got %d", gateway.Calls("EnsureCatalogSync"))
		}
	})

	t.Run("failed sync after price change leaves no stale id", func(t *testing.T) {
		svc, store, gateway := newService(t)
		_, _ = svc.Create(ctx, mug())
		gateway.Fail(errors.New("timeout"))

		newPrice := decimal.RequireFromString("15.00")
		if _, err := svc.Update(ctx, "mug", catalog.ProductUpdate{UnitPrice: &newPrice}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stored, _ := store.Products().Get(ctx, "mug")
		if stored.ProcessorPriceID != nil {
			t.Errorf("expected price id to be cleared, got %s", *stored.ProcessorPriceID)
		}
	})

	t.Run("stock-only change never syncs", func(t *testing.T) {
		svc, _, gateway := newService(t)
		gateway.Fail(errors.New("down"))
		_, _ = svc.Create(ctx, mug())
		gateway.SyncFunc = nil

		zero := 0
		p, err := svc.Update(ctx, "mug", catalog.ProductUpdate{InventoryCount: &zero})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.IsSoldOut {
			t.Error("expected sold out")
		}
		if gateway.Calls("EnsureCatalogSync") != 1 {
			t.Errorf("expected only the create sync, got %d", gateway.Calls("EnsureCatalogSync"))
		}
	})

	t.Run("other changes retry a missing sync", func(t *testing.T) {
		svc, _, gateway := newService(t)
		gateway.Fail(errors.New("down"))
		_, _ = svc.Create(ctx, mug())
		gateway.SyncFunc = nil

		name := "Bigger Mug"
		p, err := svc.Update(ctx, "mug", catalog.ProductUpdate{Name: &name})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.Synced() {
			t.Error("expected product to be synced")
		}
	})

	t.Run("refs minted for an old price are discarded", func(t *testing.T) {
		svc, store, gateway := newService(t)
		_, _ = svc.Create(ctx, mug())

		gateway.SyncFunc = func(ctx context.Context, p domain.Product) (payments.CatalogRefs, error) {
			_, _ = store.Products().Update(ctx, p.ID, func(p *domain.Product) error {
				p.UnitPrice = decimal.RequireFromString("99.00")
				p.ProcessorPriceID = nil
				return nil
			})
			return payments.CatalogRefs{ProductID: "prod_mug", PriceID: "price_stale"}, nil
		}

		newPrice := decimal.RequireFromString("15.00")
		p, err := svc.Update(ctx, "mug", catalog.ProductUpdate{UnitPrice: &newPrice})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ProcessorPriceID != nil {
			t.Errorf("expected no price id, got %s", *p.ProcessorPriceID)
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, _, _ := newService(t)
		name := "x"
		_, err := svc.Update(ctx, "missing", catalog.ProductUpdate{Name: &name})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestService_Resync(t *testing.T) {
	ctx := context.Background()
	svc, _, gateway := newService(t)
	gateway.Fail(errors.New("down"))
	_, _ = svc.Create(ctx, mug())

	_, err := svc.Resync(ctx, "mug")
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	gateway.SyncFunc = nil
	p, err := svc.Resync(ctx, "mug")
	if err != nil || !p.Synced() {
		t.Fatalf("expected synced product, got %v %+v", err, p)
	}
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("archives the processor product", func(t *testing.T) {
		svc, store, gateway := newService(t)
		created, _ := svc.Create(ctx, mug())

		if err := svc.Delete(ctx, "mug"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p, _ := store.Products().Get(ctx, "mug"); p != nil {
			t.Error("expected product to be deleted")
		}
		if len(gateway.Archived) != 1 || gateway.Archived[0] != *created.ProcessorProductID {
			t.Errorf("expected archive of %s, got %v", *created.ProcessorProductID, gateway.Archived)
		}
	})

	t.Run("archive failure keeps the delete", func(t *testing.T) {
		svc, store, gateway := newService(t)
		_, _ = svc.Create(ctx, mug())
		gateway.ArchiveFunc = func(context.Context, string) error {
			return &domain.GatewayError{Op: "archive", Err: errors.New("down")}
		}

		if err := svc.Delete(ctx, "mug"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p, _ := store.Products().Get(ctx, "mug"); p != nil {
			t.Error("expected product to be deleted")
		}
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, _, _ := newService(t)
		if err := svc.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestService_Archive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, _ = svc.Create(ctx, mug())

	if _, err := svc.Archive(ctx, "mug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	public, _ := svc.List(ctx, true)
	if len(public) != 0 {
		t.Errorf("expected archived product to be hidden, got %d", len(public))
	}
	all, _ := svc.List(ctx, false)
	if len(all) != 1 {
		t.Errorf("expected 1 product, got %d", len(all))
	}
}
