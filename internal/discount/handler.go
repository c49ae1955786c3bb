package discount

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Handler previews a coupon against a cart total before checkout. The preview
// takes no lock and increments nothing; the binding validation happens again
// inside the checkout transaction.
type Handler struct {
	repo   *CouponRepository
	logger *slog.Logger
}

func NewHandler(repo *CouponRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type previewResponse struct {
	Code     string          `json:"code"`
	Valid    bool            `json:"valid"`
	Reason   string          `json:"reason,omitempty"`
	Discount decimal.Decimal `json:"discount"`
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}

	cartTotal := decimal.Zero
	if raw := r.URL.Query().Get("cart_total"); raw != "" {
		var err error
		cartTotal, err = decimal.NewFromString(raw)
		if err != nil || cartTotal.IsNegative() {
			h.writeError(w, http.StatusBadRequest, "invalid cart_total")
			return
		}
	}

	coupon, err := h.repo.GetByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to load coupon", "error", err, "code", code)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if coupon == nil {
		h.writeJSON(w, http.StatusOK, previewResponse{
			Code:     code,
			Valid:    false,
			Reason:   ErrCouponNotFound.Error(),
			Discount: decimal.Zero,
		})
		return
	}

	resp := previewResponse{Code: coupon.Code, Discount: decimal.Zero}
	if err := Validate(coupon, cartTotal, time.Now().UTC()); err != nil {
		resp.Reason = err.Error()
	} else {
		resp.Valid = true
		resp.Discount = Calculate(coupon, cartTotal)
	}

	h.writeJSON(w, http.StatusOK, resp)
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
