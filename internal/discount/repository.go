package discount

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

type CouponRepository struct {
	db *sql.DB
}

func NewCouponRepository(db *sql.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCodeForUpdate loads a coupon by case-insensitive code and locks its row
// for the duration of tx. The lock serializes concurrent checkouts using the
// same code, so two of them can never both pass a max_uses cap. Returns
// (nil, nil) when the code does not exist.
func (r *CouponRepository) GetByCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*domain.Coupon, error) {
	coupon := &domain.Coupon{}
	var maxUses sql.NullInt64

	err := tx.QueryRowContext(ctx, `
		SELECT id, code, discount_type, value, active, valid_from, valid_until,
		       max_uses, used_count, min_order_value, created_at
		FROM coupons
		WHERE lower(code) = lower($1)
		FOR UPDATE
	`, code).Scan(
		&coupon.ID, &coupon.Code, &coupon.DiscountType, &coupon.Value,
		&coupon.Active, &coupon.ValidFrom, &coupon.ValidUntil,
		&maxUses, &coupon.UsedCount, &coupon.MinOrderValue, &coupon.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if maxUses.Valid {
		v := int(maxUses.Int64)
		coupon.MaxUses = &v
	}

	return coupon, nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count + 1 WHERE id = $1
	`, id)
	return err
}

func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon := &domain.Coupon{}
	var maxUses sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, value, active, valid_from, valid_until,
		       max_uses, used_count, min_order_value, created_at
		FROM coupons
		WHERE lower(code) = lower($1)
	`, code).Scan(
		&coupon.ID, &coupon.Code, &coupon.DiscountType, &coupon.Value,
		&coupon.Active, &coupon.ValidFrom, &coupon.ValidUntil,
		&maxUses, &coupon.UsedCount, &coupon.MinOrderValue, &coupon.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if maxUses.Valid {
		v := int(maxUses.Int64)
		coupon.MaxUses = &v
	}

	return coupon, nil
}
