package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrCartEmpty    = errors.New("cart is empty")

	// ErrLockTimeout means stock rows could not be locked within the bounded
	// wait. The checkout made no changes and the whole request may be retried.
	ErrLockTimeout = errors.New("timed out waiting for stock locks")
)

// ValidationError is a caller mistake: surfaced as 400, no side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// CouponRequiredError is returned only when the caller set require_coupon and
// the coupon failed validation. The default contract is non-fatal: checkout
// proceeds without the discount and reports a warning instead.
type CouponRequiredError struct {
	Code   string
	Reason error
}

func (e *CouponRequiredError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

func (e *CouponRequiredError) Unwrap() error {
	return e.Reason
}
