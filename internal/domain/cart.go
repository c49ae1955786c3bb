package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart belongs to exactly one user or one anonymous session key, never both.
// It is mutable until checkout converts it to an Order, then deleted.
type Cart struct {
	ID         string     `json:"id"`
	UserID     *string    `json:"user_id,omitempty"`
	SessionKey *string    `json:"session_key,omitempty"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID          string          `json:"id"`
	CartID      string          `json:"cart_id"`
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}
