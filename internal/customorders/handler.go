package customorders

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

type Handler struct {
	workflow *Workflow
	logger   *slog.Logger
}

func NewHandler(workflow *Workflow, logger *slog.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		logger:   logger,
	}
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.workflow.Submit(r.Context(), req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to submit custom order")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, created)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: domain.CustomOrderStatus(r.URL.Query().Get("status"))}
	requests, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list custom orders")
		return
	}
	h.logger.Info("custom orders listed", "count", len(requests))
	httpx.WriteJSON(w, h.logger, http.StatusOK, requests)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get custom order", "request_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, req)
}

type quoteRequest struct {
	Price decimal.Decimal `json:"price"`
	Notes string          `json:"notes"`
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body quoteRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.workflow.SetQuote(r.Context(), id, body.Price, body.Notes)
	h.respond(w, req, err, "failed to quote custom order", id)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.workflow.Approve(r.Context(), id)
	h.respond(w, req, err, "failed to approve custom order", id)
}

func (h *Handler) HandlePaymentLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.workflow.GeneratePaymentLink(r.Context(), id)
	h.respond(w, req, err, "failed to generate payment link", id)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body notesRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.workflow.Reject(r.Context(), id, body.Notes)
	h.respond(w, req, err, "failed to reject custom order", id)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.workflow.Cancel(r.Context(), id)
	h.respond(w, req, err, "failed to cancel custom order", id)
}

func (h *Handler) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body notesRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.workflow.AddNote(r.Context(), id, body.Notes)
	h.respond(w, req, err, "failed to add note", id)
}

type confirmPaymentRequest struct {
	Reference string `json:"reference"`
}

// HandleConfirmPayment settles a request paid outside the payment link, for
// example by bank transfer.
func (h *Handler) HandleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body confirmPaymentRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Reference == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "reference is required")
		return
	}

	req, err := h.workflow.ConfirmPayment(r.Context(), id, domain.PaymentConfirmation{Reference: body.Reference})
	h.respond(w, req, err, "failed to confirm payment", id)
}

func (h *Handler) respond(w http.ResponseWriter, req *domain.CustomOrderRequest, err error, msg, id string) {
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, msg, "request_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, req)
}
