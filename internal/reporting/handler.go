package reporting

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-field/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes confirmations and reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders/{orderID}/confirmation", h.confirmation)
	r.Get("/reports/inventory-variation", h.variation)
	r.Get("/reports/inventory-variation.xlsx", h.variationXLSX)
}

func (h *Handler) confirmation(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.RespondError(w, shared.NewValidationError("orderID", "invalid id"))
		return
	}
	conf, err := h.service.BuildConfirmation(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, conf)
}

func (h *Handler) variation(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadVariation(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) variationXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadVariation(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteVariationXLSX(&buf, report); err != nil {
		h.respondError(w, r, err)
		return
	}
	filename := "inventory-variation-" + report.From.Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// loadVariation reads an optional from/to (YYYY-MM-DD, to inclusive) window,
// defaulting to the trailing window.
func (h *Handler) loadVariation(w http.ResponseWriter, r *http.Request) (*VariationReport, bool) {
	from, to := h.service.DefaultWindow()
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.service.cfg.Location)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("from", "expected YYYY-MM-DD"))
			return nil, false
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.service.cfg.Location)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("to", "expected YYYY-MM-DD"))
			return nil, false
		}
		to = parsed.AddDate(0, 0, 1)
	}
	report, err := h.service.VariationReport(r.Context(), from, to)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}
	return report, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Warn("reporting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
