package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/stockflow/internal/cart"
	"github.com/joao-fontenele/stockflow/internal/catalog"
	"github.com/joao-fontenele/stockflow/internal/discount"
	"github.com/joao-fontenele/stockflow/internal/domain"
	"github.com/joao-fontenele/stockflow/internal/outbox"
	"github.com/joao-fontenele/stockflow/internal/stock"
	"github.com/joao-fontenele/stockflow/internal/telemetry"
)

// pqLockNotAvailable is raised when SET LOCAL lock_timeout expires while
// waiting on a row lock.
const pqLockNotAvailable = "55P03"

// Config carries the values the orchestrator previously would have read from
// ambient settings: the shipping rate table, the fallback method, the tax
// rate, and the bounded lock wait.
type Config struct {
	ShippingRates         map[string]decimal.Decimal
	DefaultShippingMethod string
	TaxRate               decimal.Decimal
	LockTimeout           time.Duration
}

type ShippingInfo struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line_1"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

type CustomerInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Request is the validated checkout input. Either a cart identity (user id or
// session key) or an explicit item list (guest / buy-now flow) must be set.
type Request struct {
	UserID     *string
	SessionKey *string
	Items      []ItemRequest

	ShippingAddress ShippingInfo
	CustomerInfo    CustomerInfo
	ShippingMethod  string
	PaymentMethod   string
	CouponCode      string
	RequireCoupon   bool
}

// CouponWarning reports a non-fatal coupon rejection: the order went through
// at full price and the caller learns the exact reason.
type CouponWarning struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type Result struct {
	Order         *domain.Order  `json:"order"`
	CouponWarning *CouponWarning `json:"coupon_warning,omitempty"`
}

type Service struct {
	db      *sql.DB
	carts   *cart.Repository
	stocks  *stock.Repository
	coupons *discount.CouponRepository
	catalog *catalog.Repository
	cfg     Config
	metrics *telemetry.CheckoutMetrics
	logger  *slog.Logger
}

func NewService(
	db *sql.DB,
	carts *cart.Repository,
	stocks *stock.Repository,
	coupons *discount.CouponRepository,
	cat *catalog.Repository,
	cfg Config,
	metrics *telemetry.CheckoutMetrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:      db,
		carts:   carts,
		stocks:  stocks,
		coupons: coupons,
		catalog: cat,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Checkout converts a cart (or explicit item list) into a committed order.
// Stock locks, decrements, ledger rows, coupon usage, the order itself, cart
// cleanup, and the outbox events all share one database transaction: either
// everything commits or nothing does. Event publication happens later, from
// the outbox relay, strictly after commit.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	result, err := s.checkout(ctx, req)
	if err != nil {
		s.metrics.RecordFailure(ctx, failureReason(err))
		return nil, err
	}

	s.metrics.RecordSuccess(ctx, time.Since(start))
	return result, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Resolve the cart outside the transaction: carts are single-owner, so
	// there is no cross-request contention to guard against here. Items are
	// re-read inside the transaction.
	var sourceCart *domain.Cart
	if len(req.Items) == 0 {
		var err error
		sourceCart, err = s.carts.Get(ctx, req.UserID, req.SessionKey)
		if err != nil {
			return nil, err
		}
		if sourceCart == nil {
			return nil, ErrCartNotFound
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.cfg.LockTimeout.Milliseconds())); err != nil {
		return nil, err
	}

	lines, err := s.resolveLines(ctx, tx, req, sourceCart)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	// Lock stock rows in ascending variant id order; every checkout uses the
	// same order, so overlapping item sets cannot deadlock each other.
	variantIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		variantIDs = append(variantIDs, line.VariantID)
	}
	locked, err := s.stocks.LockForSaleTx(ctx, tx, variantIDs)
	if err != nil {
		return nil, mapLockError(err)
	}

	now := time.Now().UTC()
	orderID := uuid.New().String()
	order := &domain.Order{
		ID:                 orderID,
		OrderNumber:        newOrderNumber(now),
		UserID:             req.UserID,
		SessionKey:         req.SessionKey,
		Status:             initialStatus(req.PaymentMethod),
		PaymentStatus:      domain.PaymentStatusPending,
		PaymentMethod:      req.PaymentMethod,
		CustomerEmail:      req.CustomerInfo.Email,
		CustomerPhone:      req.CustomerInfo.Phone,
		ShippingName:       req.ShippingAddress.FullName,
		ShippingAddress:    req.ShippingAddress.AddressLine1,
		ShippingCity:       req.ShippingAddress.City,
		ShippingPostalCode: req.ShippingAddress.PostalCode,
		ShippingCountry:    req.ShippingAddress.Country,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	subtotal := decimal.Zero
	affected := make([]*domain.Stock, 0, len(lines))

	for _, line := range lines {
		price, err := s.catalog.EffectivePriceTx(ctx, tx, line.VariantID)
		if err != nil {
			return nil, err
		}
		if price == nil || !price.Active {
			return nil, &ValidationError{Reason: fmt.Sprintf("product variant %s not found or inactive", line.VariantID)}
		}

		st, ok := locked[line.VariantID]
		if !ok {
			return nil, &stock.InsufficientStockError{VariantID: line.VariantID, Requested: line.Quantity, Available: 0}
		}

		if _, err := s.stocks.CommitSaleTx(ctx, tx, st, line.Quantity, orderID); err != nil {
			return nil, err
		}
		affected = append(affected, st)

		lineTotal := price.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)

		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ProductID:   price.ProductID,
			VariantID:   line.VariantID,
			ProductName: price.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   price.Price,
			LineTotal:   lineTotal,
		})
	}

	order.Subtotal = subtotal.Round(2)

	discountAmount, warning, err := s.applyCoupon(ctx, tx, req, order, now)
	if err != nil {
		return nil, err
	}
	order.DiscountAmount = discountAmount

	order.ShippingMethod, order.ShippingCost = s.shippingCost(req.ShippingMethod)
	order.Tax = order.Subtotal.Sub(order.DiscountAmount).Mul(s.cfg.TaxRate).Round(2)
	order.Total = order.Subtotal.Sub(order.DiscountAmount).Add(order.ShippingCost).Add(order.Tax)

	if err := s.insertOrderTx(ctx, tx, order); err != nil {
		return nil, err
	}

	if sourceCart != nil {
		if err := s.carts.ClearTx(ctx, tx, sourceCart.ID); err != nil {
			return nil, err
		}
	}

	if err := s.writeEventsTx(ctx, tx, order, affected, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapLockError(err)
	}

	s.logger.Info("order created",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"total", order.Total, "items", len(order.Items))

	return &Result{Order: order, CouponWarning: warning}, nil
}

type line struct {
	ProductID string
	VariantID string
	Quantity  int
}

// resolveLines merges duplicate variant lines and sorts by variant id, the
// globally agreed lock order.
func (s *Service) resolveLines(ctx context.Context, tx *sql.Tx, req Request, sourceCart *domain.Cart) ([]line, error) {
	byVariant := make(map[string]*line)

	if sourceCart != nil {
		items, err := s.carts.ItemsTx(ctx, tx, sourceCart.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			merge(byVariant, item.ProductID, item.VariantID, item.Quantity)
		}
	} else {
		for _, item := range req.Items {
			merge(byVariant, item.ProductID, item.VariantID, item.Quantity)
		}
	}

	lines := make([]line, 0, len(byVariant))
	for _, l := range byVariant {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

	return lines, nil
}

func merge(byVariant map[string]*line, productID, variantID string, qty int) {
	if existing, ok := byVariant[variantID]; ok {
		existing.Quantity += qty
		return
	}
	byVariant[variantID] = &line{ProductID: productID, VariantID: variantID, Quantity: qty}
}

// applyCoupon validates and applies the coupon under its row lock. Failures
// are non-fatal by default; the used-count increment happens here, inside the
// checkout transaction, so a concurrent checkout on the same code is
// serialized behind this one and observes the updated count.
func (s *Service) applyCoupon(ctx context.Context, tx *sql.Tx, req Request, order *domain.Order, now time.Time) (decimal.Decimal, *CouponWarning, error) {
	if req.CouponCode == "" {
		return decimal.Zero, nil, nil
	}

	reject := func(reason error) (decimal.Decimal, *CouponWarning, error) {
		if req.RequireCoupon {
			return decimal.Zero, nil, &CouponRequiredError{Code: req.CouponCode, Reason: reason}
		}
		s.logger.Warn("coupon rejected, checkout proceeds without discount",
			"code", req.CouponCode, "reason", reason.Error())
		return decimal.Zero, &CouponWarning{Code: req.CouponCode, Reason: reason.Error()}, nil
	}

	coupon, err := s.coupons.GetByCodeForUpdate(ctx, tx, req.CouponCode)
	if err != nil {
		return decimal.Zero, nil, mapLockError(err)
	}
	if coupon == nil {
		return reject(discount.ErrCouponNotFound)
	}

	if err := discount.Validate(coupon, order.Subtotal, now); err != nil {
		return reject(err)
	}

	if err := s.coupons.IncrementUsage(ctx, tx, coupon.ID); err != nil {
		return decimal.Zero, nil, err
	}

	order.CouponCode = &coupon.Code
	return discount.Calculate(coupon, order.Subtotal), nil, nil
}

// shippingCost resolves a method against the rate table, falling back to the
// default method for unknown values rather than failing the checkout.
func (s *Service) shippingCost(method string) (string, decimal.Decimal) {
	if cost, ok := s.cfg.ShippingRates[method]; ok {
		return method, cost
	}
	s.logger.Warn("unknown shipping method, using default",
		"method", method, "default", s.cfg.DefaultShippingMethod)
	return s.cfg.DefaultShippingMethod, s.cfg.ShippingRates[s.cfg.DefaultShippingMethod]
}

func (s *Service) insertOrderTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, session_key, status, payment_status, payment_method,
		                    subtotal, discount_amount, shipping_cost, tax, total, coupon_code,
		                    customer_email, customer_phone, shipping_name, shipping_address, shipping_city,
		                    shipping_postal_code, shipping_country, shipping_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22)
	`, order.ID, order.OrderNumber, order.UserID, order.SessionKey, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.Subtotal, order.DiscountAmount, order.ShippingCost, order.Tax,
		order.Total, order.CouponCode, order.CustomerEmail, order.CustomerPhone, order.ShippingName,
		order.ShippingAddress, order.ShippingCity, order.ShippingPostalCode, order.ShippingCountry,
		order.ShippingMethod, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, variant_id, product_name, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.OrderID, item.ProductID, item.VariantID, item.ProductName,
			item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return err
		}
	}

	return nil
}

// writeEventsTx appends order.created plus one stock.updated (and stock.low
// when the threshold is crossed) per affected row to the outbox, inside the
// checkout transaction.
func (s *Service) writeEventsTx(ctx context.Context, tx *sql.Tx, order *domain.Order, affected []*domain.Stock, now time.Time) error {
	orderEvent := domain.OrderCreatedEvent{
		EventType: domain.EventOrderCreated,
		OrderID:   order.ID,
		Data: domain.OrderCreatedData{
			OrderNumber: order.OrderNumber,
			Total:       order.Total,
			Items:       order.Items,
		},
		Timestamp: now,
	}
	if err := outbox.InsertTx(ctx, tx, domain.TopicFor(domain.EventOrderCreated), domain.EventOrderCreated, orderEvent); err != nil {
		return err
	}

	for _, st := range affected {
		data := domain.StockUpdatedData{
			ProductID: st.ProductID,
			VariantID: st.VariantID,
			Quantity:  st.Quantity,
			Available: st.Available(),
			Threshold: st.LowStockThreshold,
		}

		updated := domain.StockUpdatedEvent{
			EventType: domain.EventStockUpdated,
			StockID:   st.ID,
			Data:      data,
			Timestamp: now,
		}
		if err := outbox.InsertTx(ctx, tx, domain.TopicFor(domain.EventStockUpdated), domain.EventStockUpdated, updated); err != nil {
			return err
		}

		if st.IsLowStock() {
			low := domain.StockUpdatedEvent{
				EventType: domain.EventStockLow,
				StockID:   st.ID,
				Data:      data,
				Timestamp: now,
			}
			if err := outbox.InsertTx(ctx, tx, domain.TopicFor(domain.EventStockLow), domain.EventStockLow, low); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(req Request) error {
	hasIdentity := req.UserID != nil || req.SessionKey != nil
	if len(req.Items) == 0 && !hasIdentity {
		return &ValidationError{Reason: "either a cart identity or an item list is required"}
	}
	if req.UserID != nil && req.SessionKey != nil {
		return &ValidationError{Reason: "provide either a user id or a session key, not both"}
	}
	for _, item := range req.Items {
		if item.VariantID == "" || item.ProductID == "" {
			return &ValidationError{Reason: "every item needs a product_id and a variant_id"}
		}
		if item.Quantity < 1 {
			return &ValidationError{Reason: "item quantity must be at least 1"}
		}
	}
	if req.CustomerInfo.Email == "" {
		return &ValidationError{Reason: "customer email is required"}
	}
	if req.ShippingAddress.FullName == "" || req.ShippingAddress.AddressLine1 == "" {
		return &ValidationError{Reason: "shipping name and address are required"}
	}
	return nil
}

// initialStatus: electronically paid methods go straight to processing; the
// rest wait in pending until payment confirms.
func initialStatus(paymentMethod string) domain.OrderStatus {
	switch paymentMethod {
	case "card", "mpesa", "bank_transfer":
		return domain.OrderStatusProcessing
	default:
		return domain.OrderStatusPending
	}
}

func mapLockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqLockNotAvailable {
		return ErrLockTimeout
	}
	return err
}

func failureReason(err error) string {
	var insufficient *stock.InsufficientStockError
	var validation *ValidationError
	var couponErr *CouponRequiredError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrCartNotFound):
		return "cart_not_found"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &couponErr):
		return "coupon_rejected"
	default:
		return "internal"
	}
}
