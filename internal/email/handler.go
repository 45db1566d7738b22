package email

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

// Handler is the outbound mail sink. It validates and logs messages; delivery
// to a real provider is configured outside this service.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(req.To, "@") {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid recipient")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "subject is required")
		return
	}

	messageID := uuid.New().String()
	h.logger.Info("email sent", "message_id", messageID, "to", req.To, "subject", req.Subject, "body_bytes", len(req.Body))

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent", MessageID: messageID})
}
