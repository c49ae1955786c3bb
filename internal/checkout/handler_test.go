package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/stockflow/internal/domain"
	"github.com/joao-fontenele/stockflow/internal/stock"
)

type fakeService struct {
	gotReq Request
	result *Result
	err    error
}

func (f *fakeService) Checkout(_ context.Context, req Request) (*Result, error) {
	f.gotReq = req
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postCheckout(t *testing.T, handler *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.HandleCheckout(rec, req)
	return rec
}

const validBody = `{
	"items": [{"product_id": "prod-1", "variant_id": "var-1", "quantity": 2}],
	"customer_info": {"email": "jane@example.com"},
	"shipping_address": {"full_name": "Jane Doe", "address_line_1": "1 Biashara St"},
	"payment_method": "card"
}`

func TestHandleCheckoutSuccess(t *testing.T) {
	service := &fakeService{
		result: &Result{Order: &domain.Order{
			ID:          "order-1",
			OrderNumber: "ORD-20260830120000-ABC123",
			Total:       decimal.NewFromInt(1800),
		}},
	}
	handler := NewHandler(service, testLogger())

	rec := postCheckout(t, handler, validBody, map[string]string{"X-Session-Key": "sess-1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var result Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Order.ID != "order-1" {
		t.Fatalf("expected order id order-1, got %s", result.Order.ID)
	}

	if service.gotReq.SessionKey == nil || *service.gotReq.SessionKey != "sess-1" {
		t.Fatalf("expected session key forwarded, got %v", service.gotReq.SessionKey)
	}
	if service.gotReq.UserID != nil {
		t.Fatalf("expected no user id, got %v", service.gotReq.UserID)
	}
}

func TestHandleCheckoutInvalidJSON(t *testing.T) {
	handler := NewHandler(&fakeService{}, testLogger())

	rec := postCheckout(t, handler, `{not json`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient stock", &stock.InsufficientStockError{VariantID: "var-1", Requested: 5, Available: 2}, http.StatusBadRequest},
		{"empty cart", ErrCartEmpty, http.StatusBadRequest},
		{"missing cart", ErrCartNotFound, http.StatusNotFound},
		{"validation", &ValidationError{Reason: "customer email is required"}, http.StatusBadRequest},
		{"coupon required", &CouponRequiredError{Code: "SAVE10", Reason: errors.New("coupon has expired")}, http.StatusBadRequest},
		{"lock timeout", ErrLockTimeout, http.StatusServiceUnavailable},
		{"internal", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&fakeService{err: tt.err}, testLogger())

			rec := postCheckout(t, handler, validBody, nil)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleCheckoutInsufficientStockBody(t *testing.T) {
	handler := NewHandler(&fakeService{
		err: &stock.InsufficientStockError{VariantID: "var-1", Requested: 5, Available: 2},
	}, testLogger())

	rec := postCheckout(t, handler, validBody, nil)

	var body struct {
		VariantID string `json:"variant_id"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.VariantID != "var-1" || body.Requested != 5 || body.Available != 2 {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
