package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
)

// AdminProduct is the admin view of a product. A pending product has no
// processor price for its current unit price and cannot be sold until a sync
// succeeds.
type AdminProduct struct {
	*domain.Product
	SyncStatus string `json:"sync_status"`
}

func toAdmin(p *domain.Product) AdminProduct {
	status := SyncStatusPending
	if p.Synced() {
		status = SyncStatusSynced
	}
	return AdminProduct{Product: p, SyncStatus: status}
}

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleListPublic(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context(), true)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list products")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	product, err := h.service.Get(r.Context(), id)
	if err == nil && !product.IsActive {
		err = domain.ErrNotFound
	}
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get product", "product_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context(), false)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list products")
		return
	}
	out := make([]AdminProduct, 0, len(products))
	for i := range products {
		out = append(out, toAdmin(&products[i]))
	}
	h.logger.Info("products listed", "count", len(products))
	httpx.WriteJSON(w, h.logger, http.StatusOK, out)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req NewProduct
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create product", "product_id", req.ID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, toAdmin(product))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ProductUpdate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update product", "product_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, toAdmin(product))
}

func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	product, err := h.service.Resync(r.Context(), id)
	if err != nil {
		var gwErr *domain.GatewayError
		if errors.As(err, &gwErr) {
			httpx.WriteError(w, h.logger, http.StatusBadGateway, "catalog sync failed, retry later")
			return
		}
		httpx.WriteDomainError(w, h.logger, err, "failed to sync product", "product_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, toAdmin(product))
}

func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	product, err := h.service.Archive(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to archive product", "product_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete product", "product_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
