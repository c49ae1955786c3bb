package checkout

import (
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/joao-fontenele/stockflow/internal/domain"
	"github.com/joao-fontenele/stockflow/internal/stock"
)

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 4, 5, 0, time.UTC)

	pattern := regexp.MustCompile(`^ORD-20260830120405-[ABCDEFGHJKMNPQRSTVWXYZ0123456789]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := newOrderNumber(now)
		if !pattern.MatchString(n) {
			t.Fatalf("order number %q does not match expected format", n)
		}
		seen[n] = true
	}

	// 32^6 suffixes; 100 draws colliding would point at a broken generator.
	if len(seen) < 2 {
		t.Fatal("expected random suffixes to differ")
	}
}

func TestInitialStatus(t *testing.T) {
	tests := []struct {
		method string
		want   domain.OrderStatus
	}{
		{"card", domain.OrderStatusProcessing},
		{"mpesa", domain.OrderStatusProcessing},
		{"bank_transfer", domain.OrderStatusProcessing},
		{"cash_on_delivery", domain.OrderStatusPending},
		{"", domain.OrderStatusPending},
	}

	for _, tt := range tests {
		if got := initialStatus(tt.method); got != tt.want {
			t.Errorf("initialStatus(%q) = %s, want %s", tt.method, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	user := "user-1"
	base := Request{
		UserID: &user,
		CustomerInfo: CustomerInfo{
			Email: "jane@example.com",
		},
		ShippingAddress: ShippingInfo{
			FullName:     "Jane Doe",
			AddressLine1: "1 Biashara St",
		},
	}

	if err := validate(base); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no identity and no items", func(r *Request) { r.UserID = nil }},
		{"both user id and session key", func(r *Request) {
			key := "sess-1"
			r.SessionKey = &key
		}},
		{"missing email", func(r *Request) { r.CustomerInfo.Email = "" }},
		{"missing shipping name", func(r *Request) { r.ShippingAddress.FullName = "" }},
		{"missing address", func(r *Request) { r.ShippingAddress.AddressLine1 = "" }},
		{"item without variant", func(r *Request) {
			r.Items = []ItemRequest{{ProductID: "prod-1", Quantity: 1}}
		}},
		{"item with zero quantity", func(r *Request) {
			r.Items = []ItemRequest{{ProductID: "prod-1", VariantID: "var-1", Quantity: 0}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)

			var validation *ValidationError
			if err := validate(req); !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&stock.InsufficientStockError{VariantID: "var-1"}, "insufficient_stock"},
		{ErrCartEmpty, "cart_empty"},
		{ErrCartNotFound, "cart_not_found"},
		{ErrLockTimeout, "lock_timeout"},
		{&ValidationError{Reason: "bad input"}, "validation"},
		{&CouponRequiredError{Code: "SAVE10", Reason: errors.New("coupon has expired")}, "coupon_rejected"},
		{io.ErrUnexpectedEOF, "internal"},
	}

	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Errorf("failureReason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestMergeCombinesDuplicateVariants(t *testing.T) {
	byVariant := make(map[string]*line)

	merge(byVariant, "prod-1", "var-1", 2)
	merge(byVariant, "prod-1", "var-1", 3)
	merge(byVariant, "prod-2", "var-2", 1)

	if len(byVariant) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(byVariant))
	}
	if byVariant["var-1"].Quantity != 5 {
		t.Fatalf("expected var-1 quantity 5, got %d", byVariant["var-1"].Quantity)
	}
}
