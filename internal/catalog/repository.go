// Package catalog is the read model the checkout consults for prices. The
// product service owns the data; this side only reads it.
package catalog

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

type VariantPrice struct {
	ProductID   string
	VariantID   string
	ProductName string
	Price       decimal.Decimal
	Active      bool
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EffectivePriceTx resolves the price to charge for a variant right now: the
// variant's override price when set, otherwise the product's base price. The
// caller snapshots the result into the order item; it is never recalculated.
// Returns (nil, nil) when the variant does not exist.
func (r *Repository) EffectivePriceTx(ctx context.Context, tx *sql.Tx, variantID string) (*VariantPrice, error) {
	vp := &VariantPrice{VariantID: variantID}
	var override decimal.NullDecimal
	var basePrice decimal.Decimal

	err := tx.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.base_price, v.price_override, v.is_active AND p.is_active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1
	`, variantID).Scan(&vp.ProductID, &vp.ProductName, &basePrice, &override, &vp.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	vp.Price = basePrice
	if override.Valid {
		vp.Price = override.Decimal
	}

	return vp, nil
}
