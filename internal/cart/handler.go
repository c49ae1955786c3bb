package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// identity pulls the cart owner from request headers. Authenticated callers
// send X-User-ID (set by the auth layer upstream); anonymous callers send the
// X-Session-Key they were issued.
func identity(r *http.Request) (userID, sessionKey *string) {
	if v := r.Header.Get("X-User-ID"); v != "" {
		userID = &v
	}
	if v := r.Header.Get("X-Session-Key"); v != "" {
		sessionKey = &v
	}
	return userID, sessionKey
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, sessionKey := identity(r)

	cart, err := h.repo.Get(r.Context(), userID, sessionKey)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to get cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if cart == nil {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID, sessionKey := identity(r)

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" || req.VariantID == "" {
		h.writeError(w, http.StatusBadRequest, "product_id and variant_id are required")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	cart, err := h.repo.GetOrCreate(r.Context(), userID, sessionKey)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to resolve cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.repo.AddItem(r.Context(), cart.ID, req.ProductID, req.VariantID, req.Quantity); err != nil {
		h.logger.Error("failed to add cart item", "error", err, "cart_id", cart.ID, "variant_id", req.VariantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cart, err = h.repo.Get(r.Context(), userID, sessionKey)
	if err != nil {
		h.logger.Error("failed to reload cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "cart_id", cart.ID, "variant_id", req.VariantID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, cart)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, sessionKey := identity(r)

	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	cart, err := h.repo.Get(r.Context(), userID, sessionKey)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to get cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if cart == nil {
		h.writeError(w, http.StatusNotFound, "cart not found")
		return
	}

	if err := h.repo.RemoveItem(r.Context(), cart.ID, variantID); err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "cart_id", cart.ID, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "cart_id", cart.ID, "variant_id", variantID)
	w.WriteHeader(http.StatusNoContent)
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
