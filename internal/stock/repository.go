package stock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/stockflow/internal/domain"
)

// InsufficientStockError reports exactly which variant fell short and how much
// was actually available, so the caller can surface an actionable message.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const stockColumns = `id, product_id, COALESCE(variant_id, ''), warehouse_id,
       quantity, reserved_quantity, low_stock_threshold, active, updated_at`

func scanStock(row interface{ Scan(...any) error }) (*domain.Stock, error) {
	s := &domain.Stock{}
	err := row.Scan(&s.ID, &s.ProductID, &s.VariantID, &s.WarehouseID,
		&s.Quantity, &s.Reserved, &s.LowStockThreshold, &s.Active, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LockForSaleTx locks the default-warehouse stock rows for the given variants
// with FOR UPDATE. Sales always sell from the default warehouse; a variant may
// carry rows in other warehouses, and those are never touched here. Rows are
// locked in ascending variant id order so concurrent checkouts that share
// variants always contend in the same order and cannot deadlock.
func (r *Repository) LockForSaleTx(ctx context.Context, tx *sql.Tx, variantIDs []string) (map[string]*domain.Stock, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE variant_id = ANY($1) AND warehouse_id = $2 AND active
		ORDER BY variant_id
		FOR UPDATE
	`, pq.Array(variantIDs), domain.DefaultWarehouseID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	locked := make(map[string]*domain.Stock, len(variantIDs))
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		locked[s.VariantID] = s
	}

	return locked, rows.Err()
}

// ApplyMovementTx persists one already-applied movement together with the
// stock counters it produced. Counter update and ledger append share tx; the
// two must never diverge.
func (r *Repository) ApplyMovementTx(ctx context.Context, tx *sql.Tx, s *domain.Stock, m *domain.StockMovement) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE stocks
		SET quantity = $2, reserved_quantity = $3, updated_at = $4
		WHERE id = $1
	`, s.ID, s.Quantity, s.Reserved, s.UpdatedAt)
	if err != nil {
		return err
	}

	m.ID = uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, stock_id, movement_type, quantity, previous_quantity, new_quantity, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.StockID, m.MovementType, m.Quantity, m.PreviousQuantity, m.NewQuantity, m.Reference, m.CreatedAt)
	return err
}

// CommitSaleTx decrements on-hand quantity for a locked stock row and appends
// the sale to the ledger. The caller must hold the row lock via LockForSaleTx.
func (r *Repository) CommitSaleTx(ctx context.Context, tx *sql.Tx, s *domain.Stock, qty int, orderRef string) (*domain.StockMovement, error) {
	if s.Available() < qty {
		return nil, &InsufficientStockError{VariantID: s.VariantID, Requested: qty, Available: s.Available()}
	}

	m, err := s.Apply(domain.MovementSale, -qty, orderRef, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.ApplyMovementTx(ctx, tx, s, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// Adjust applies a signed manual correction in its own transaction.
func (r *Repository) Adjust(ctx context.Context, variantID string, delta int, reason string) (*domain.StockMovement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	s, err := r.getForUpdateTx(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, sql.ErrNoRows
	}

	if delta < 0 && s.Available() < -delta {
		return nil, &InsufficientStockError{VariantID: variantID, Requested: -delta, Available: s.Available()}
	}

	m, err := s.Apply(domain.MovementAdjustment, delta, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.ApplyMovementTx(ctx, tx, s, &m); err != nil {
		return nil, err
	}

	return &m, tx.Commit()
}

// Reserve holds qty units for a pending operation without decrementing
// on-hand quantity. Fails when available would go negative.
func (r *Repository) Reserve(ctx context.Context, variantID string, qty int, reference string) (*domain.StockMovement, error) {
	return r.moveReserved(ctx, variantID, qty, domain.MovementReserved, reference)
}

// Release returns previously reserved units to the sellable pool.
func (r *Repository) Release(ctx context.Context, variantID string, qty int, reference string) (*domain.StockMovement, error) {
	return r.moveReserved(ctx, variantID, -qty, domain.MovementReleased, reference)
}

func (r *Repository) moveReserved(ctx context.Context, variantID string, delta int, t domain.MovementType, reference string) (*domain.StockMovement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	s, err := r.getForUpdateTx(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, sql.ErrNoRows
	}

	if t == domain.MovementReserved && s.Available() < delta {
		return nil, &InsufficientStockError{VariantID: variantID, Requested: delta, Available: s.Available()}
	}

	m, err := s.Apply(t, delta, reference, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.ApplyMovementTx(ctx, tx, s, &m); err != nil {
		return nil, err
	}

	return &m, tx.Commit()
}

// getForUpdateTx locks the default-warehouse row for a variant. Per-variant
// operations (adjust, reserve, release) act on that row only, matching the
// sale path.
func (r *Repository) getForUpdateTx(ctx context.Context, tx *sql.Tx, variantID string) (*domain.Stock, error) {
	s, err := scanStock(tx.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE variant_id = $1 AND warehouse_id = $2 AND active
		FOR UPDATE
	`, variantID, domain.DefaultWarehouseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// GetByVariant reads the default-warehouse row for a variant.
func (r *Repository) GetByVariant(ctx context.Context, variantID string) (*domain.Stock, error) {
	s, err := scanStock(r.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE variant_id = $1 AND warehouse_id = $2
	`, variantID, domain.DefaultWarehouseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.Stock, error) {
	return r.list(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		ORDER BY product_id, variant_id
	`)
}

// ListLow returns active rows at or under their low-stock threshold but not
// empty, matching the original low-stock report.
func (r *Repository) ListLow(ctx context.Context) ([]domain.Stock, error) {
	return r.list(ctx, `
		SELECT `+stockColumns+`
		FROM stocks
		WHERE active
		  AND quantity - reserved_quantity <= low_stock_threshold
		  AND quantity - reserved_quantity > 0
		ORDER BY quantity - reserved_quantity
	`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Stock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stocks []domain.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, *s)
	}

	return stocks, rows.Err()
}

// ListMovements returns the full ledger for a variant, oldest first. The
// ledger is append-only; there is no update or delete path.
func (r *Repository) ListMovements(ctx context.Context, variantID string) ([]domain.StockMovement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.stock_id, m.movement_type, m.quantity, m.previous_quantity, m.new_quantity, m.reference, m.created_at
		FROM stock_movements m
		JOIN stocks s ON s.id = m.stock_id
		WHERE s.variant_id = $1
		ORDER BY m.created_at, m.id
	`, variantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var movements []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.StockID, &m.MovementType, &m.Quantity,
			&m.PreviousQuantity, &m.NewQuantity, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// CreateIfAbsent inserts a zero-quantity stock row for a product in a
// warehouse unless one already exists. Returns whether a row was created;
// redelivered product.created events are a no-op, keeping the consumer
// idempotent.
func (r *Repository) CreateIfAbsent(ctx context.Context, productID, warehouseID string, threshold int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO stocks (id, product_id, variant_id, warehouse_id, quantity, reserved_quantity, low_stock_threshold, active, updated_at)
		VALUES ($1, $2, NULL, $3, 0, 0, $4, TRUE, NOW())
		ON CONFLICT (product_id, warehouse_id) WHERE variant_id IS NULL DO NOTHING
	`, uuid.New().String(), productID, warehouseID, threshold)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeactivateByProduct marks every stock row of a product inactive. Rows are
// never hard-deleted so the movement ledger stays auditable.
func (r *Repository) DeactivateByProduct(ctx context.Context, productID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stocks SET active = FALSE, updated_at = NOW()
		WHERE product_id = $1 AND active
	`, productID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
