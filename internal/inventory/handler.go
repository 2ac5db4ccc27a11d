package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-field/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Handler exposes inventory posting over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/postings", h.postDocument)
	r.Post("/adjustments", h.adjust)
	r.Get("/movements", h.listMovements)
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	var doc Document
	if err := httpx.DecodeJSON(r, &doc); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.PostDocument(r.Context(), doc)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.Adjust(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if mv == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"adjusted": false})
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"adjusted": true, "movement": mv})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		ProductCode: q.Get("product_code"),
		Type:        MovementType(q.Get("type")),
	}
	switch filter.Type {
	case "", MovementIn, MovementOut, MovementAdjust:
	default:
		httpx.RespondError(w, shared.NewValidationError("type", "must be IN, OUT or ADJUST"))
		return
	}
	var err error
	// from/to are calendar days in the business timezone, to inclusive.
	loc := h.service.cfg.Location
	if filter.From, err = parseDate(q.Get("from"), loc); err != nil {
		httpx.RespondError(w, shared.NewValidationError("from", "expected YYYY-MM-DD"))
		return
	}
	if filter.To, err = parseDate(q.Get("to"), loc); err != nil {
		httpx.RespondError(w, shared.NewValidationError("to", "expected YYYY-MM-DD"))
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, shared.NewValidationError("limit", "must be a number"))
			return
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, loc)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Warn("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
