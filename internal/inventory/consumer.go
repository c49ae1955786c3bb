// Package inventory reacts to product lifecycle events from the catalog
// service. Handlers run under at-least-once delivery, so every effect must be
// idempotent: redelivering the same event changes nothing.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

// StockBootstrapper is the slice of the stock repository the consumer needs.
type StockBootstrapper interface {
	CreateIfAbsent(ctx context.Context, productID, warehouseID string, threshold int) (bool, error)
	DeactivateByProduct(ctx context.Context, productID string) (int64, error)
}

type ProductEventHandler struct {
	stocks    StockBootstrapper
	threshold int
	logger    *slog.Logger
}

func NewProductEventHandler(stocks StockBootstrapper, lowStockThreshold int, logger *slog.Logger) *ProductEventHandler {
	return &ProductEventHandler{
		stocks:    stocks,
		threshold: lowStockThreshold,
		logger:    logger,
	}
}

// Handle dispatches on the routing key. Malformed payloads are logged and
// dropped rather than returned as errors: redelivering a poison message
// forever would stall the partition.
func (h *ProductEventHandler) Handle(ctx context.Context, key string, payload []byte) error {
	var event domain.ProductEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("dropping malformed product event", "error", err, "key", key)
		return nil
	}
	if event.ProductID == "" {
		h.logger.Error("dropping product event without product_id", "key", key)
		return nil
	}

	switch key {
	case domain.EventProductCreated:
		return h.handleCreated(ctx, event)
	case domain.EventProductDeleted:
		return h.handleDeleted(ctx, event)
	default:
		h.logger.Debug("ignoring event", "key", key)
		return nil
	}
}

func (h *ProductEventHandler) handleCreated(ctx context.Context, event domain.ProductEvent) error {
	created, err := h.stocks.CreateIfAbsent(ctx, event.ProductID, domain.DefaultWarehouseID, h.threshold)
	if err != nil {
		return fmt.Errorf("bootstrap stock for product %s: %w", event.ProductID, err)
	}

	if created {
		h.logger.Info("initial stock created", "product_id", event.ProductID)
	} else {
		h.logger.Info("stock already exists, skipping", "product_id", event.ProductID)
	}
	return nil
}

func (h *ProductEventHandler) handleDeleted(ctx context.Context, event domain.ProductEvent) error {
	n, err := h.stocks.DeactivateByProduct(ctx, event.ProductID)
	if err != nil {
		return fmt.Errorf("deactivate stock for product %s: %w", event.ProductID, err)
	}

	h.logger.Info("stock deactivated", "product_id", event.ProductID, "rows", n)
	return nil
}
