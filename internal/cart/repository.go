package cart

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

var ErrNoIdentity = errors.New("cart requires a user id or a session key")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreate resolves the single cart owned by a user or an anonymous
// session. Exactly one of userID and sessionKey must be set; partial unique
// indexes enforce one cart per identity.
func (r *Repository) GetOrCreate(ctx context.Context, userID, sessionKey *string) (*domain.Cart, error) {
	if (userID == nil) == (sessionKey == nil) {
		return nil, ErrNoIdentity
	}

	cart, err := r.find(ctx, userID, sessionKey)
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	now := time.Now().UTC()
	cart = &domain.Cart{
		ID:         uuid.New().String(),
		UserID:     userID,
		SessionKey: sessionKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, session_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT DO NOTHING
	`, cart.ID, cart.UserID, cart.SessionKey, now)
	if err != nil {
		return nil, err
	}

	// A concurrent request may have won the insert; re-read either way.
	return r.find(ctx, userID, sessionKey)
}

func (r *Repository) find(ctx context.Context, userID, sessionKey *string) (*domain.Cart, error) {
	cart := &domain.Cart{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_key, created_at, updated_at
		FROM carts
		WHERE ($1::text IS NOT NULL AND user_id = $1)
		   OR ($2::text IS NOT NULL AND session_key = $2)
	`, userID, sessionKey).Scan(&cart.ID, &cart.UserID, &cart.SessionKey, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	cart.Items, err = r.items(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// Get returns the cart for an identity, or (nil, nil) when none exists.
func (r *Repository) Get(ctx context.Context, userID, sessionKey *string) (*domain.Cart, error) {
	if (userID == nil) == (sessionKey == nil) {
		return nil, ErrNoIdentity
	}
	return r.find(ctx, userID, sessionKey)
}

func (r *Repository) items(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.variant_id, p.name, ci.quantity,
		       COALESCE(v.price_override, p.base_price)
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.variant_id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.VariantID,
			&item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// AddItem adds quantity of a variant to a cart, merging with an existing line
// for the same variant.
func (r *Repository) AddItem(ctx context.Context, cartID, productID, variantID string, quantity int) error {
	if quantity < 1 {
		return errors.New("quantity must be at least 1")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, variant_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, uuid.New().String(), cartID, productID, variantID, quantity)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	return err
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, variantID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2
	`, cartID, variantID)
	return err
}

// ItemsTx re-reads the cart lines inside the checkout transaction so the
// quantities the orchestrator acts on are the committed ones.
func (r *Repository) ItemsTx(ctx context.Context, tx *sql.Tx, cartID string) ([]domain.CartItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, cart_id, product_id, variant_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY variant_id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.VariantID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ClearTx deletes the cart's items and the cart row itself inside the
// checkout transaction. The next request for the same identity starts fresh.
func (r *Repository) ClearTx(ctx context.Context, tx *sql.Tx, cartID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	return err
}
