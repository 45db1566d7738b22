package catalog_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/storefront-orderflow/internal/catalog"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

func TestHandler(t *testing.T) {
	svc, _, gateway := newService(t)
	h := catalog.NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", h.HandleListPublic)
	mux.HandleFunc("GET /products/{id}", h.HandleGetPublic)
	mux.HandleFunc("POST /admin/products", h.HandleCreate)
	mux.HandleFunc("PATCH /admin/products/{id}", h.HandleUpdate)
	mux.HandleFunc("POST /admin/products/{id}/sync", h.HandleSync)
	mux.HandleFunc("POST /admin/products/{id}/archive", h.HandleArchive)
	mux.HandleFunc("DELETE /admin/products/{id}", h.HandleDelete)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("create returns the synced product", func(t *testing.T) {
		rec := do(http.MethodPost, "/admin/products", `{"id":"mug","name":"Mug","unit_price":"12.50","inventory_count":3}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var p catalog.AdminProduct
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.ProcessorPriceID == nil || p.SyncStatus != catalog.SyncStatusSynced {
			t.Errorf("expected synced product with price id, got %s %v", p.SyncStatus, p.ProcessorPriceID)
		}
	})

	t.Run("create reports a pending sync", func(t *testing.T) {
		gateway.Fail(errors.New("processor down"))
		defer func() { gateway.SyncFunc = nil }()

		rec := do(http.MethodPost, "/admin/products", `{"id":"cup","name":"Cup","unit_price":"8.00","inventory_count":2}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var p catalog.AdminProduct
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.SyncStatus != catalog.SyncStatusPending || p.ProcessorPriceID != nil {
			t.Errorf("expected pending product without price id, got %s %v", p.SyncStatus, p.ProcessorPriceID)
		}

		gateway.SyncFunc = nil
		rec = do(http.MethodPost, "/admin/products/cup/sync", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"sync_status":"synced"`) {
			t.Errorf("expected synced status after resync, got %s", rec.Body.String())
		}
	})

	t.Run("sub-cent price is rejected", func(t *testing.T) {
		rec := do(http.MethodPost, "/admin/products", `{"id":"jar","name":"Jar","unit_price":"4.999"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("create rejects a missing price", func(t *testing.T) {
		rec := do(http.MethodPost, "/admin/products", `{"id":"bowl","name":"Bowl"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("update unknown product", func(t *testing.T) {
		rec := do(http.MethodPatch, "/admin/products/missing", `{"inventory_count":1}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("sync failure maps to bad gateway", func(t *testing.T) {
		gateway.Fail(errors.New("processor down"))
		defer func() { gateway.SyncFunc = nil }()

		rec := do(http.MethodPost, "/admin/products/mug/sync", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})

	t.Run("archived product is hidden from the storefront", func(t *testing.T) {
		if rec := do(http.MethodPost, "/admin/products/mug/archive", ""); rec.Code != http.StatusOK {
			t.Fatalf("archive: expected status 200, got %d", rec.Code)
		}
		if rec := do(http.MethodGet, "/products/mug", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}

		rec := do(http.MethodGet, "/products", "")
		var list []domain.Product
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected empty storefront, got %d products", len(list))
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rec := do(http.MethodDelete, "/admin/products/mug", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rec.Code)
		}
		if rec := do(http.MethodDelete, "/admin/products/mug", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}
