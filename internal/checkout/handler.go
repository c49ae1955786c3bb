package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/stockflow/internal/stock"
)

// Checkouter lets handler tests swap in a fake service.
type Checkouter interface {
	Checkout(ctx context.Context, req Request) (*Result, error)
}

type Handler struct {
	service Checkouter
	logger  *slog.Logger
}

func NewHandler(service Checkouter, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type checkoutRequest struct {
	Items           []ItemRequest `json:"items,omitempty"`
	ShippingAddress ShippingInfo  `json:"shipping_address"`
	CustomerInfo    CustomerInfo  `json:"customer_info"`
	ShippingMethod  string        `json:"shipping_method"`
	PaymentMethod   string        `json:"payment_method"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	RequireCoupon   bool          `json:"require_coupon,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var userID, sessionKey *string
	if v := r.Header.Get("X-User-ID"); v != "" {
		userID = &v
	}
	if v := r.Header.Get("X-Session-Key"); v != "" {
		sessionKey = &v
	}

	result, err := h.service.Checkout(r.Context(), Request{
		UserID:          userID,
		SessionKey:      sessionKey,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		CustomerInfo:    req.CustomerInfo,
		ShippingMethod:  req.ShippingMethod,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		RequireCoupon:   req.RequireCoupon,
	})
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.logger.Info("checkout completed",
		"order_id", result.Order.ID, "order_number", result.Order.OrderNumber)
	h.writeJSON(w, http.StatusCreated, result)
}

// writeCheckoutError maps the failure taxonomy onto status codes. Lock
// timeouts get a 5xx so clients know to retry the whole checkout rather than
// correct their input.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var insufficient *stock.InsufficientStockError
	var validation *ValidationError
	var couponErr *CouponRequiredError

	switch {
	case errors.As(err, &insufficient):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      insufficient.Error(),
			"variant_id": insufficient.VariantID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, ErrCartEmpty):
		h.writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, ErrCartNotFound):
		h.writeError(w, http.StatusNotFound, "cart not found")
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Reason)
	case errors.As(err, &couponErr):
		h.writeError(w, http.StatusBadRequest, couponErr.Error())
	case errors.Is(err, ErrLockTimeout):
		h.writeError(w, http.StatusServiceUnavailable, "stock temporarily contended, retry the checkout")
	default:
		h.logger.Error("checkout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
