package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

type fakeStocks struct {
	rows        map[string]bool // productID -> active
	createCalls int
}

func newFakeStocks() *fakeStocks {
	return &fakeStocks{rows: make(map[string]bool)}
}

func (f *fakeStocks) CreateIfAbsent(ctx context.Context, productID, warehouseID string, threshold int) (bool, error) {
	f.createCalls++
	if _, exists := f.rows[productID]; exists {
		return false, nil
	}
	f.rows[productID] = true
	return true, nil
}

func (f *fakeStocks) DeactivateByProduct(ctx context.Context, productID string) (int64, error) {
	if active, exists := f.rows[productID]; exists && active {
		f.rows[productID] = false
		return 1, nil
	}
	return 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func productEvent(t *testing.T, eventType, productID string) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.ProductEvent{
		EventType: eventType,
		ProductID: productID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func TestProductEventHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("product.created bootstraps exactly one stock row", func(t *testing.T) {
		stocks := newFakeStocks()
		handler := NewProductEventHandler(stocks, 10, discardLogger())

		payload := productEvent(t, domain.EventProductCreated, "prod-1")

		// At-least-once delivery: the same event arrives twice.
		if err := handler.Handle(ctx, domain.EventProductCreated, payload); err != nil {
			t.Fatalf("first delivery: %v", err)
		}
		if err := handler.Handle(ctx, domain.EventProductCreated, payload); err != nil {
			t.Fatalf("second delivery: %v", err)
		}

		if len(stocks.rows) != 1 {
			t.Errorf("expected exactly 1 stock row, got %d", len(stocks.rows))
		}
		if stocks.createCalls != 2 {
			t.Errorf("expected 2 create attempts, got %d", stocks.createCalls)
		}
	})

	t.Run("product.deleted deactivates without removing", func(t *testing.T) {
		stocks := newFakeStocks()
		stocks.rows["prod-1"] = true
		handler := NewProductEventHandler(stocks, 10, discardLogger())

		payload := productEvent(t, domain.EventProductDeleted, "prod-1")
		if err := handler.Handle(ctx, domain.EventProductDeleted, payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		active, exists := stocks.rows["prod-1"]
		if !exists {
			t.Fatal("stock row was removed; expected it to survive deactivation")
		}
		if active {
			t.Error("expected stock row to be inactive")
		}

		// Redelivery is a no-op.
		if err := handler.Handle(ctx, domain.EventProductDeleted, payload); err != nil {
			t.Fatalf("redelivery: %v", err)
		}
	})

	t.Run("malformed payload is dropped, not retried", func(t *testing.T) {
		stocks := newFakeStocks()
		handler := NewProductEventHandler(stocks, 10, discardLogger())

		if err := handler.Handle(ctx, domain.EventProductCreated, []byte("{not json")); err != nil {
			t.Fatalf("expected nil for malformed payload, got %v", err)
		}
		if len(stocks.rows) != 0 {
			t.Errorf("expected no stock rows, got %d", len(stocks.rows))
		}
	})

	t.Run("unknown routing key is ignored", func(t *testing.T) {
		stocks := newFakeStocks()
		handler := NewProductEventHandler(stocks, 10, discardLogger())

		payload := productEvent(t, "product.updated", "prod-1")
		if err := handler.Handle(ctx, "product.updated", payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stocks.rows) != 0 {
			t.Errorf("expected no stock rows, got %d", len(stocks.rows))
		}
	})
}
