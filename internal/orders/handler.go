package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

type Handler struct {
	engine *Engine
	logger *slog.Logger
}

func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

type itemsRequest struct {
	Items []ItemRequest `json:"items"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.Checkout(r.Context(), req.Items)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to start checkout")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, result)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.CreateOrder(r.Context(), req.Items)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create order")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := h.engine.Get(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get order", "order_id", id)
		return
	}
	h.logger.Info("order retrieved", "order_id", order.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			httpx.WriteDomainError(w, h.logger, err, "invalid status filter")
			return
		}
		filter.Status = status
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.engine.List(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list orders")
		return
	}
	h.logger.Info("orders listed", "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid order status", "order_id", id)
		return
	}

	order, err := h.engine.TransitionStatus(r.Context(), id, status)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update order status", "order_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleFulfill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req domain.Shipment
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Fulfill(r.Context(), id, req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to fulfill order", "order_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}
