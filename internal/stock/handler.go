package stock

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/stockflow/internal/domain"
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

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock listed", "count", len(stocks))
	h.writeJSON(w, http.StatusOK, stocks)
}

func (h *Handler) HandleListLow(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.repo.ListLow(r.Context())
	if err != nil {
		h.logger.Error("failed to list low stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("low stock listed", "count", len(stocks))
	h.writeJSON(w, http.StatusOK, stocks)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	stock, err := h.repo.GetByVariant(r.Context(), variantID)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "stock not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

func (h *Handler) HandleListMovements(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	movements, err := h.repo.ListMovements(r.Context(), variantID)
	if err != nil {
		h.logger.Error("failed to list movements", "error", err, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, movements)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		h.writeError(w, http.StatusBadRequest, "delta must be non-zero")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual adjustment"
	}

	movement, err := h.repo.Adjust(r.Context(), variantID, req.Delta, req.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "stock not found")
			return
		}
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			h.writeError(w, http.StatusConflict, insufficient.Error())
			return
		}
		h.logger.Error("failed to adjust stock", "error", err, "variant_id", variantID, "delta", req.Delta)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock adjusted", "variant_id", variantID, "delta", req.Delta, "new_quantity", movement.NewQuantity)
	h.writeJSON(w, http.StatusOK, movement)
}

type reserveRequest struct {
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.repo.Reserve, "reserved")
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.repo.Release, "released")
}

func (h *Handler) handleReservation(
	w http.ResponseWriter,
	r *http.Request,
	move func(ctx context.Context, variantID string, qty int, reference string) (*domain.StockMovement, error),
	action string,
) {
	variantID := r.PathValue("variantId")
	if variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	movement, err := move(r.Context(), variantID, req.Quantity, req.Reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "stock not found")
			return
		}
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			h.writeError(w, http.StatusConflict, insufficient.Error())
			return
		}
		h.logger.Error("failed to move reservation", "error", err, "variant_id", variantID, "action", action)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock "+action, "variant_id", variantID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, movement)
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
