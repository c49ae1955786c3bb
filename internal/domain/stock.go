package domain

import (
	"fmt"
	"time"
)

// DefaultWarehouseID is used when no warehouse is specified, e.g. when the
// inventory consumer bootstraps stock for a newly created product.
const DefaultWarehouseID = "00000000-0000-0000-0000-000000000001"

type MovementType string

const (
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementAdjustment MovementType = "adjustment"
	MovementReserved   MovementType = "reserved"
	MovementReleased   MovementType = "released"
)

// Stock is the live counter pair for a (product, variant, warehouse) triple.
// Quantity is on-hand; Reserved is held for pending work; Available is the
// derived sellable amount and must never go negative.
type Stock struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	VariantID         string    `json:"variant_id"`
	WarehouseID       string    `json:"warehouse_id"`
	Quantity          int       `json:"quantity"`
	Reserved          int       `json:"reserved_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Active            bool      `json:"active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (s *Stock) Available() int {
	return s.Quantity - s.Reserved
}

func (s *Stock) IsLowStock() bool {
	return s.Available() <= s.LowStockThreshold
}

// StockMovement is one append-only ledger row. Quantity is the signed delta
// applied to the counter the movement type targets (on-hand quantity for
// sale/return/adjustment, reserved for reserved/released), and
// NewQuantity == PreviousQuantity + Quantity always holds.
type StockMovement struct {
	ID               string       `json:"id"`
	StockID          string       `json:"stock_id"`
	MovementType     MovementType `json:"movement_type"`
	Quantity         int          `json:"quantity"`
	PreviousQuantity int          `json:"previous_quantity"`
	NewQuantity      int          `json:"new_quantity"`
	Reference        string       `json:"reference"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Apply mutates the stock counters for one movement and returns the ledger row
// to be persisted alongside it. The counters and the ledger must never
// diverge, so callers persist both in the same transaction. delta is signed:
// negative for sale and released, positive for return and reserved.
func (s *Stock) Apply(t MovementType, delta int, reference string, now time.Time) (StockMovement, error) {
	m := StockMovement{
		StockID:      s.ID,
		MovementType: t,
		Quantity:     delta,
		Reference:    reference,
		CreatedAt:    now,
	}

	switch t {
	case MovementSale, MovementReturn, MovementAdjustment:
		m.PreviousQuantity = s.Quantity
		m.NewQuantity = s.Quantity + delta
		if m.NewQuantity-s.Reserved < 0 {
			return StockMovement{}, fmt.Errorf("movement %s of %d would leave available negative", t, delta)
		}
		s.Quantity = m.NewQuantity
	case MovementReserved, MovementReleased:
		m.PreviousQuantity = s.Reserved
		m.NewQuantity = s.Reserved + delta
		if m.NewQuantity < 0 || s.Quantity-m.NewQuantity < 0 {
			return StockMovement{}, fmt.Errorf("movement %s of %d would leave available negative", t, delta)
		}
		s.Reserved = m.NewQuantity
	default:
		return StockMovement{}, fmt.Errorf("unknown movement type %q", t)
	}

	s.UpdatedAt = now
	return m, nil
}
