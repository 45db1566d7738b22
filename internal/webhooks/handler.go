package webhooks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

const maxPayloadBytes = 64 << 10

type Handler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewHandler(dispatcher *Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleStripe answers 2xx for everything the processor should not redeliver
// and 5xx for failures a later delivery may get past.
func (h *Handler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid payload")
		return
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var verr *domain.ValidationError
		if errors.Is(err, domain.ErrAuthentication) || errors.As(err, &verr) {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid webhook")
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"status": string(outcome)})
}
