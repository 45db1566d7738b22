package gateway

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orderflow/internal/httpx"
)

const maxWebhookBytes = 64 << 10

// Handler is the public edge of the storefront. It exposes only the customer
// routes and the processor webhook; admin routes are never proxied.
type Handler struct {
	shop   *ServiceProxy
	logger *slog.Logger
}

func NewHandler(shop *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		shop:   shop,
		logger: logger,
	}
}

func (h *Handler) HandleStorefront(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, r.URL.Path, nil)
}

// HandleWebhook buffers the payload before forwarding so that the signed
// bytes reach the backend unchanged and oversized payloads never leave the edge.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, h.logger, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid payload")
		return
	}
	h.proxyRequest(w, r, r.URL.Path, bytes.NewReader(payload))
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, path string, body io.Reader) {
	resp, err := h.shop.ForwardRequest(r.Context(), r, path, body)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
