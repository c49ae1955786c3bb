package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon validity is a pure function of (now, used count, cart total); nothing
// here has side effects. The checkout transaction alone persists used-count
// increments, under the same row lock that created the order.
type Coupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	Value         decimal.Decimal `json:"value"`
	Active        bool            `json:"active"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidUntil    time.Time       `json:"valid_until"`
	MaxUses       *int            `json:"max_uses,omitempty"`
	UsedCount     int             `json:"used_count"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	CreatedAt     time.Time       `json:"created_at"`
}
