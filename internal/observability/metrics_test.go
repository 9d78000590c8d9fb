package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/payments"
)

var (
	_ numbering.Observer = (*BillingMetrics)(nil)
	_ payments.Observer  = (*BillingMetrics)(nil)
)

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	metrics := NewMetrics()
	NewBillingMetrics(metrics.Registerer()).NumberAllocated(numbering.CounterInvoice)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "garage_document_numbers_allocated_total")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/invoices/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/invoices/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/api/invoices/{id}", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inFlight))
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rr := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var b *BillingMetrics
	b.NumberAllocated("invoice")
	b.PaymentRecorded("CASH", decimal.NewFromInt(1), "PAID")
}

func TestBillingMetricsCountPayments(t *testing.T) {
	metrics := NewMetrics()
	b := NewBillingMetrics(metrics.Registerer())

	b.PaymentRecorded("CARD", decimal.RequireFromString("60.00"), "PARTIAL")
	b.PaymentRecorded("CARD", decimal.RequireFromString("40.00"), "PAID")
	b.NumberAllocated(numbering.CounterQuote)
	b.NumberAllocated(numbering.CounterQuote)

	assert.Equal(t, 1.0, testutil.ToFloat64(b.payments.WithLabelValues("CARD", "PAID")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.payments.WithLabelValues("CARD", "PARTIAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.numbers.WithLabelValues(numbering.CounterQuote)))
}
