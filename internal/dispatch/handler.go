package dispatch

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-field/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Handler exposes the send endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the dispatch handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/deliveries/{deliveryID}/send", h.send)
}

type sendPayload struct {
	Recipients []string `json:"recipients" validate:"omitempty,dive,email"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "deliveryID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.NewValidationError("deliveryID", "invalid id"))
		return
	}
	var payload sendPayload
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if err := httpx.Validate(payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Send(r.Context(), SendRequest{DeliveryID: id, Recipients: payload.Recipients})
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("send delivery failed", slog.Int64("delivery_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
