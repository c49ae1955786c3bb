package domain

import (
	"math/rand"
	"testing"
	"time"
)

func TestStock_Apply(t *testing.T) {
	now := time.Now().UTC()

	t.Run("sale decrements quantity and records previous and new", func(t *testing.T) {
		s := Stock{ID: "s1", Quantity: 10}
		m, err := s.Apply(MovementSale, -3, "order-1", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.PreviousQuantity != 10 || m.NewQuantity != 7 {
			t.Errorf("expected 10 -> 7, got %d -> %d", m.PreviousQuantity, m.NewQuantity)
		}
		if s.Quantity != 7 {
			t.Errorf("expected quantity 7, got %d", s.Quantity)
		}
		if m.NewQuantity != m.PreviousQuantity+m.Quantity {
			t.Errorf("ledger identity violated: %d != %d + %d", m.NewQuantity, m.PreviousQuantity, m.Quantity)
		}
	})

	t.Run("sale below available fails and leaves counters untouched", func(t *testing.T) {
		s := Stock{ID: "s1", Quantity: 2}
		if _, err := s.Apply(MovementSale, -3, "order-1", now); err == nil {
			t.Fatal("expected error")
		}
		if s.Quantity != 2 {
			t.Errorf("expected quantity unchanged at 2, got %d", s.Quantity)
		}
	})

	t.Run("reserve tracks the reserved counter", func(t *testing.T) {
		s := Stock{ID: "s1", Quantity: 5}
		m, err := s.Apply(MovementReserved, 2, "order-2", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.PreviousQuantity != 0 || m.NewQuantity != 2 {
			t.Errorf("expected reserved 0 -> 2, got %d -> %d", m.PreviousQuantity, m.NewQuantity)
		}
		if s.Available() != 3 {
			t.Errorf("expected available 3, got %d", s.Available())
		}
	})

	t.Run("reserve beyond quantity fails", func(t *testing.T) {
		s := Stock{ID: "s1", Quantity: 5, Reserved: 4}
		if _, err := s.Apply(MovementReserved, 2, "order-3", now); err == nil {
			t.Fatal("expected error")
		}
		if s.Reserved != 4 {
			t.Errorf("expected reserved unchanged at 4, got %d", s.Reserved)
		}
	})

	t.Run("release below zero fails", func(t *testing.T) {
		s := Stock{ID: "s1", Quantity: 5, Reserved: 1}
		if _, err := s.Apply(MovementReleased, -2, "order-4", now); err == nil {
			t.Fatal("expected error")
		}
	})
}

// The ledger and the live counter must never diverge: for any sequence of
// applied movements, the summed deltas equal the counter change.
func TestStock_LedgerSumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()

	for run := 0; run < 100; run++ {
		initial := rng.Intn(50) + 50
		s := Stock{ID: "s1", Quantity: initial}

		var quantitySum, reservedSum int
		for i := 0; i < 50; i++ {
			var err error
			var m StockMovement
			switch rng.Intn(5) {
			case 0:
				m, err = s.Apply(MovementSale, -(rng.Intn(5) + 1), "order", now)
			case 1:
				m, err = s.Apply(MovementReturn, rng.Intn(5)+1, "return", now)
			case 2:
				m, err = s.Apply(MovementAdjustment, rng.Intn(11)-5, "adjustment", now)
			case 3:
				m, err = s.Apply(MovementReserved, rng.Intn(5)+1, "order", now)
			case 4:
				m, err = s.Apply(MovementReleased, -(rng.Intn(5) + 1), "order", now)
			}
			if err != nil {
				continue // rejected movements must leave no trace
			}
			switch m.MovementType {
			case MovementReserved, MovementReleased:
				reservedSum += m.Quantity
			default:
				quantitySum += m.Quantity
			}
		}

		if got := s.Quantity - initial; quantitySum != got {
			t.Fatalf("run %d: movement sum %d != quantity change %d", run, quantitySum, got)
		}
		if reservedSum != s.Reserved {
			t.Fatalf("run %d: reserved movement sum %d != reserved %d", run, reservedSum, s.Reserved)
		}
		if s.Available() < 0 {
			t.Fatalf("run %d: available went negative: %d", run, s.Available())
		}
	}
}

func TestStock_IsLowStock(t *testing.T) {
	s := Stock{Quantity: 12, Reserved: 2, LowStockThreshold: 10}
	if !s.IsLowStock() {
		t.Error("expected low stock at available == threshold")
	}
	s.Quantity = 13
	if s.IsLowStock() {
		t.Error("expected not low stock above threshold")
	}
}
