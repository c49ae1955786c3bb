// Package discount validates coupons and computes discount amounts. Validation
// and calculation are pure; persisting the used-count increment is the
// checkout transaction's job.
package discount

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

// Validation failures, one per rule so callers can report the exact reason
// instead of a generic "invalid code".
var (
	ErrCouponNotFound    = errors.New("coupon code is invalid")
	ErrCouponInactive    = errors.New("coupon is currently inactive")
	ErrCouponNotYetValid = errors.New("coupon is not yet active")
	ErrCouponExpired     = errors.New("coupon has expired")
	ErrCouponUsageLimit  = errors.New("coupon usage limit reached")
	ErrCouponMinOrder    = errors.New("cart total below coupon minimum")
)

var oneHundred = decimal.NewFromInt(100)

// Validate checks a coupon against a cart total at a given instant. Rules
// short-circuit in a fixed order (active, window start, window end, usage cap,
// minimum order value) so a failure reason is deterministic.
func Validate(c *domain.Coupon, cartTotal decimal.Decimal, now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if now.Before(c.ValidFrom) {
		return ErrCouponNotYetValid
	}
	if now.After(c.ValidUntil) {
		return ErrCouponExpired
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return ErrCouponUsageLimit
	}
	if cartTotal.LessThan(c.MinOrderValue) {
		return ErrCouponMinOrder
	}
	return nil
}

// Calculate returns the discount for an amount. Percentage discounts round
// half-up to 2 decimals; fixed discounts are clamped to the amount so the
// total can never go negative.
func Calculate(c *domain.Coupon, amount decimal.Decimal) decimal.Decimal {
	if c.DiscountType == domain.DiscountPercentage {
		return amount.Mul(c.Value).Div(oneHundred).Round(2)
	}
	if c.Value.GreaterThan(amount) {
		return amount.Round(2)
	}
	return c.Value.Round(2)
}
