package delivery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, newTestService(repo, nil)).MountRoutes(r)
	return r
}

func TestHandlerCreateDelivery(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	router := newTestRouter(repo)

	body := `{"delivery_date":"2026-02-16","carrier":{"company":"TransExpress"},"lines":[{"order_line_id":11,"quantity":"2.5"}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/1/deliveries", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created Delivery
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "BL-2602-001", created.Number)
	assert.Equal(t, "2026-02-16", created.DeliveryDate.Format("2006-01-02"))
	assert.Equal(t, "TransExpress", created.Carrier.Company)
	require.Len(t, created.Allocations, 1)
	assert.Equal(t, 2.5, created.Allocations[0].Quantity)
}

func TestHandlerCreateDeliveryRejectsOverDelivery(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/1/deliveries",
		strings.NewReader(`{"lines":[{"order_line_id":12,"quantity":5}]}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "remaining quantity exceeded")
}

func TestHandlerCreateDeliveryBadInput(t *testing.T) {
	router := newTestRouter(newMemoryRepo(sampleOrder()))

	cases := []struct {
		path   string
		body   string
		status int
	}{
		{"/orders/abc/deliveries", `{"lines":[]}`, http.StatusUnprocessableEntity},
		{"/orders/1/deliveries", `{"lines":`, http.StatusBadRequest},
		{"/orders/1/deliveries", `{"delivery_date":"16/02/2026","lines":[{"order_line_id":11,"quantity":1}]}`, http.StatusUnprocessableEntity},
		{"/orders/1/deliveries", `{"lines":[]}`, http.StatusUnprocessableEntity},
		{"/orders/9/deliveries", `{"lines":[{"order_line_id":11,"quantity":1}]}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
		assert.Equal(t, tc.status, rr.Code, "%s %s", tc.path, tc.body)
	}
}

func TestHandlerStatusAndComplete(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	router := newTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/1/deliveries",
		strings.NewReader(`{"lines":[{"order_line_id":12,"quantity":2}]}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/1/delivery-status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var summary ledger.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, ledger.StatusPartial, summary.Status)
	assert.Equal(t, 50, summary.Percentage)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/orders/1/complete", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, OrderStatusComplete, repo.order(1).Status)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/1/deliveries", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Deliveries []Delivery `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Deliveries, 1)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deliveries/"+strconv.FormatInt(list.Deliveries[0].ID, 10), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
