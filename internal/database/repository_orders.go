package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// ORDERS
// ============================================================================

// CreateOrder inserts a new order with its line items
func (r *Repository) CreateOrder(ctx context.Context, order *Order, items []*OrderItem) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (order_number, customer_email, customer_name, amount_cents, currency,
		                    status, payment_method, payment_intent_id, stripe_session_id,
		                    coupon_code, coupon_discount_cents, billing_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	if order.Status == "" {
		order.Status = OrderPending
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	err = tx.QueryRow(
		ctx, query,
		order.OrderNumber, order.CustomerEmail, order.CustomerName, order.AmountCents,
		order.Currency, order.Status, order.PaymentMethod, order.PaymentIntentID,
		order.StripeSessionID, order.CouponCode, order.CouponDiscountCents,
		order.BillingAddress, order.Metadata,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for _, item := range items {
		item.OrderID = order.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, product_name, duration, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, item.OrderID, item.ProductID, item.VariantID, item.ProductName, item.Duration,
			item.Quantity, item.UnitPriceCents,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetOrderByID retrieves an order by id
func (r *Repository) GetOrderByID(ctx context.Context, id string) (*Order, error) {
	return r.queryOrder(ctx, `WHERE id = $1`, id)
}

// GetOrderByNumber retrieves an order by its human-readable number
func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return r.queryOrder(ctx, `WHERE order_number = $1`, orderNumber)
}

// GetOrderByStripeSession retrieves an order by provider session id
func (r *Repository) GetOrderByStripeSession(ctx context.Context, sessionID string) (*Order, error) {
	return r.queryOrder(ctx, `WHERE stripe_session_id = $1`, sessionID)
}

// GetOrdersByPaymentIntent lists orders sharing a payment intent id
func (r *Repository) GetOrdersByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*Order, error) {
	return r.queryOrders(ctx, orderColumns+` FROM orders WHERE payment_intent_id = $1`, paymentIntentID)
}

// ListOrders lists orders for the admin dashboard, newest first
func (r *Repository) ListOrders(ctx context.Context, limit, offset int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryOrders(ctx, orderColumns+`
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// UpdateOrderStatus transitions an order's status
func (r *Repository) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrderStripeSession records the provider session id on an order once
// the hosted checkout session has been created.
func (r *Repository) UpdateOrderStripeSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE orders SET stripe_session_id = $2, updated_at = NOW() WHERE id = $1`, id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOrdersFailedByPaymentIntent fails every order on a payment intent,
// returning the affected orders for notification purposes.
func (r *Repository) MarkOrdersFailedByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*Order, error) {
	rows, err := r.db.Pool.Query(ctx, `
		UPDATE orders SET status = 'failed', updated_at = NOW()
		WHERE payment_intent_id = $1 AND status NOT IN ('completed', 'refunded', 'disputed')
		RETURNING `+orderFieldList, paymentIntentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// CompleteOrder marks an order completed and records payment references
func (r *Repository) CompleteOrder(ctx context.Context, id string, paymentIntentID *string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE orders
		SET status = 'completed',
		    payment_intent_id = COALESCE($2, payment_intent_id),
		    updated_at = NOW()
		WHERE id = $1
	`, id, paymentIntentID)
	return err
}

// GetOrderItems lists the line items of an order
func (r *Repository) GetOrderItems(ctx context.Context, orderID string) ([]*OrderItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, product_name, duration, quantity, unit_price_cents, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*OrderItem
	for rows.Next() {
		item := &OrderItem{}
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.ProductName,
			&item.Duration, &item.Quantity, &item.UnitPriceCents, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ============================================================================
// CHECKOUT SESSIONS
// ============================================================================

// CreateCheckoutSession inserts a provider checkout session row
func (r *Repository) CreateCheckoutSession(ctx context.Context, cs *CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (session_id, provider, order_id, status, amount_cents, currency, customer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	if cs.Status == "" {
		cs.Status = SessionPending
	}
	return r.db.Pool.QueryRow(
		ctx, query,
		cs.SessionID, cs.Provider, cs.OrderID, cs.Status, cs.AmountCents, cs.Currency, cs.CustomerEmail,
	).Scan(&cs.ID, &cs.CreatedAt, &cs.UpdatedAt)
}

// GetCheckoutSession retrieves a session by provider session id
func (r *Repository) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	query := `
		SELECT id, session_id, provider, order_id, status, amount_cents, currency,
		       customer_email, payment_intent_id, paid_at, created_at, updated_at
		FROM checkout_sessions
		WHERE session_id = $1
	`
	cs := &CheckoutSession{}
	err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(
		&cs.ID, &cs.SessionID, &cs.Provider, &cs.OrderID, &cs.Status, &cs.AmountCents,
		&cs.Currency, &cs.CustomerEmail, &cs.PaymentIntentID, &cs.PaidAt, &cs.CreatedAt, &cs.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// MarkSessionCompleted marks a session completed and records the payment intent
func (r *Repository) MarkSessionCompleted(ctx context.Context, sessionID string, paymentIntentID *string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'completed', payment_intent_id = $2, paid_at = NOW(), updated_at = NOW()
		WHERE session_id = $1
	`, sessionID, paymentIntentID)
	return err
}

// MarkSessionStatus transitions a session to the given status
func (r *Repository) MarkSessionStatus(ctx context.Context, sessionID string, status SessionStatus) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE checkout_sessions SET status = $2, updated_at = NOW() WHERE session_id = $1
	`, sessionID, status)
	return err
}

// ============================================================================
// INBOUND WEBHOOK EVENT LEDGER
// ============================================================================

// RecordWebhookEvent records a provider event id before any side effects run.
// Returns false when the event was already recorded, signalling a redelivery
// that must not be re-processed.
func (r *Repository) RecordWebhookEvent(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ============================================================================
// helpers
// ============================================================================

const orderFieldList = `id, order_number, customer_email, customer_name, amount_cents, currency,
	status, payment_method, payment_intent_id, stripe_session_id, coupon_code,
	coupon_discount_cents, billing_address, metadata, created_at, updated_at`

const orderColumns = `SELECT ` + orderFieldList

func (r *Repository) queryOrder(ctx context.Context, where string, args ...interface{}) (*Order, error) {
	query := orderColumns + ` FROM orders ` + where
	order := &Order{}
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.CustomerName,
		&order.AmountCents, &order.Currency, &order.Status, &order.PaymentMethod,
		&order.PaymentIntentID, &order.StripeSessionID, &order.CouponCode,
		&order.CouponDiscountCents, &order.BillingAddress, &order.Metadata,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*Order, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		order := &Order{}
		if err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.CustomerName,
			&order.AmountCents, &order.Currency, &order.Status, &order.PaymentMethod,
			&order.PaymentIntentID, &order.StripeSessionID, &order.CouponCode,
			&order.CouponDiscountCents, &order.BillingAddress, &order.Metadata,
			&order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
