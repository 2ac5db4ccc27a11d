package delivery

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

// Handler exposes the reconciler over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the delivery handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{orderID}/deliveries", h.createDelivery)
	r.Get("/orders/{orderID}/deliveries", h.listDeliveries)
	r.Get("/orders/{orderID}/delivery-status", h.orderStatus)
	r.Post("/orders/{orderID}/complete", h.completeOrder)
	r.Get("/deliveries/{deliveryID}", h.getDelivery)
}

type carrierPayload struct {
	Company        string `json:"company" validate:"max=120"`
	TrackingNumber string `json:"tracking_number" validate:"max=120"`
	Contact        string `json:"contact" validate:"max=120"`
}

type selectedLinePayload struct {
	OrderLineID int64           `json:"order_line_id" validate:"gt=0"`
	Quantity    ledger.Quantity `json:"quantity"`
}

type createDeliveryPayload struct {
	DeliveryDate        string                `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Carrier             carrierPayload        `json:"carrier"`
	SpecialInstructions string                `json:"special_instructions" validate:"max=2000"`
	Lines               []selectedLinePayload `json:"lines" validate:"dive"`
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var payload createDeliveryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req := CreateDeliveryRequest{
		OrderID: orderID,
		Carrier: Carrier{
			Company:        payload.Carrier.Company,
			TrackingNumber: payload.Carrier.TrackingNumber,
			Contact:        payload.Carrier.Contact,
		},
		SpecialInstructions: payload.SpecialInstructions,
	}
	if payload.DeliveryDate != "" {
		date, err := time.Parse(time.DateOnly, payload.DeliveryDate)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("delivery_date", "invalid date"))
			return
		}
		req.DeliveryDate = date
	}
	for _, line := range payload.Lines {
		req.Lines = append(req.Lines, SelectedLine{OrderLineID: line.OrderLineID, Quantity: line.Quantity.Float64()})
	}

	created, err := h.service.CreateDelivery(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	deliveries, err := h.service.ListDeliveries(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []Delivery{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	summary, err := h.service.OrderStatus(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.service.CompleteOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "deliveryID")
	if !ok {
		return
	}
	d, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.NewValidationError(param, "invalid id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Warn("delivery request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
