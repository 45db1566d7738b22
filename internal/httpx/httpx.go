package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const maxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// DecodeJSON reads a bounded JSON body into dst. Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// StatusFor maps an error from the core packages to an HTTP status code.
func StatusFor(err error) int {
	var verr *domain.ValidationError
	var gwErr *domain.GatewayError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError logs server-side failures and writes a client-safe message.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, args ...any) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error(msg, append(args, "error", err)...)
		WriteError(w, logger, status, "internal server error")
	case http.StatusBadGateway:
		logger.Error(msg, append(args, "error", err)...)
		WriteError(w, logger, status, "payment processor unavailable")
	default:
		logger.Info(msg, append(args, "error", err)...)
		WriteError(w, logger, status, err.Error())
	}
}
