package discount

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

func validCoupon() *domain.Coupon {
	return &domain.Coupon{
		Code:          "SAVE10",
		DiscountType:  domain.DiscountPercentage,
		Value:         decimal.NewFromInt(10),
		Active:        true,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		MinOrderValue: decimal.NewFromInt(1000),
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()
	total := decimal.NewFromInt(1300)

	t.Run("valid coupon passes", func(t *testing.T) {
		if err := Validate(validCoupon(), total, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("inactive", func(t *testing.T) {
		c := validCoupon()
		c.Active = false
		if err := Validate(c, total, now); !errors.Is(err, ErrCouponInactive) {
			t.Fatalf("expected ErrCouponInactive, got %v", err)
		}
	})

	t.Run("not yet active", func(t *testing.T) {
		c := validCoupon()
		c.ValidFrom = now.Add(time.Hour)
		if err := Validate(c, total, now); !errors.Is(err, ErrCouponNotYetValid) {
			t.Fatalf("expected ErrCouponNotYetValid, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := validCoupon()
		c.ValidUntil = now.Add(-time.Minute)
		if err := Validate(c, total, now); !errors.Is(err, ErrCouponExpired) {
			t.Fatalf("expected ErrCouponExpired, got %v", err)
		}
	})

	t.Run("usage cap reached", func(t *testing.T) {
		c := validCoupon()
		max := 5
		c.MaxUses = &max
		c.UsedCount = 5
		if err := Validate(c, total, now); !errors.Is(err, ErrCouponUsageLimit) {
			t.Fatalf("expected ErrCouponUsageLimit, got %v", err)
		}
	})

	t.Run("below minimum order value", func(t *testing.T) {
		c := validCoupon()
		if err := Validate(c, decimal.NewFromInt(999), now); !errors.Is(err, ErrCouponMinOrder) {
			t.Fatalf("expected ErrCouponMinOrder, got %v", err)
		}
	})

	t.Run("inactive wins over expired: rules check in order", func(t *testing.T) {
		c := validCoupon()
		c.Active = false
		c.ValidUntil = now.Add(-time.Minute)
		if err := Validate(c, total, now); !errors.Is(err, ErrCouponInactive) {
			t.Fatalf("expected ErrCouponInactive first, got %v", err)
		}
	})
}

func TestCalculate(t *testing.T) {
	t.Run("percentage of 1300 at 10 percent", func(t *testing.T) {
		got := Calculate(validCoupon(), decimal.NewFromInt(1300))
		if !got.Equal(decimal.NewFromInt(130)) {
			t.Fatalf("expected 130, got %s", got)
		}
	})

	t.Run("percentage rounds half up to 2 decimals", func(t *testing.T) {
		c := validCoupon()
		c.Value = decimal.NewFromFloat(7.5)
		// 10.33 * 7.5% = 0.77475 -> 0.77
		got := Calculate(c, decimal.NewFromFloat(10.33))
		if !got.Equal(decimal.NewFromFloat(0.77)) {
			t.Fatalf("expected 0.77, got %s", got)
		}
		// 10.30 * 7.5% = 0.7725 -> 0.77; 10.38 * 7.5% = 0.7785 -> 0.78
		got = Calculate(c, decimal.NewFromFloat(10.38))
		if !got.Equal(decimal.NewFromFloat(0.78)) {
			t.Fatalf("expected 0.78, got %s", got)
		}
	})

	t.Run("fixed discount clamps to amount", func(t *testing.T) {
		c := validCoupon()
		c.DiscountType = domain.DiscountFixed
		c.Value = decimal.NewFromInt(500)
		got := Calculate(c, decimal.NewFromInt(300))
		if !got.Equal(decimal.NewFromInt(300)) {
			t.Fatalf("expected clamp to 300, got %s", got)
		}
		got = Calculate(c, decimal.NewFromInt(800))
		if !got.Equal(decimal.NewFromInt(500)) {
			t.Fatalf("expected 500, got %s", got)
		}
	})
}
