// Package checkout builds orders from carts and hands them to the payment
// provider.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamekey-store/internal/coupon"
	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/logging"
	"gamekey-store/internal/payment"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrUnknownVariant = errors.New("unknown product variant")
	ErrBadQuantity    = errors.New("quantity must be between 1 and 10")
)

// CartItem is one line of an incoming checkout request
type CartItem struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// Request is an incoming checkout request
type Request struct {
	Email      string     `json:"email" binding:"required,email"`
	Items      []CartItem `json:"items" binding:"required"`
	CouponCode string     `json:"coupon_code"`
}

// Result points the customer at the provider's hosted payment page
type Result struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CheckoutURL string `json:"checkout_url"`
	AmountCents int64  `json:"amount_cents"`
}

// Store is the repository surface checkout needs
type Store interface {
	GetProductByID(ctx context.Context, id string) (*database.Product, error)
	GetVariantByID(ctx context.Context, id string) (*database.ProductVariant, error)
	GetCouponByCode(ctx context.Context, code string) (*database.Coupon, error)
	CreateOrder(ctx context.Context, order *database.Order, items []*database.OrderItem) error
	UpdateOrderStripeSession(ctx context.Context, id, sessionID string) error
	CreateCheckoutSession(ctx context.Context, cs *database.CheckoutSession) error
}

// SessionCreator opens a hosted payment session with the provider
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, currency, customerEmail, successURL, cancelURL string, lines []payment.CheckoutLine, metadata map[string]string) (*payment.CheckoutSessionObject, error)
}

// Service turns carts into pending orders with provider checkout sessions
type Service struct {
	store    Store
	stripe   SessionCreator
	bus      *events.EventBus
	currency string
	baseURL  string
	logger   zerolog.Logger
}

// NewService creates a checkout service
func NewService(store Store, stripe SessionCreator, bus *events.EventBus, currency, publicBaseURL string) *Service {
	return &Service{
		store:    store,
		stripe:   stripe,
		bus:      bus,
		currency: currency,
		baseURL:  publicBaseURL,
		logger:   logging.For("checkout"),
	}
}

// NewOrderNumber generates a human-facing order number like MC-2026-4821
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("MC-%d-%d", now.Year(), 1000+rand.Intn(9000))
}

// priced is a cart line joined against the catalog
type priced struct {
	item    CartItem
	product *database.Product
	variant *database.ProductVariant
}

// Start validates the cart against the catalog, creates a pending order and
// a Stripe checkout session, and returns the hosted payment URL. Prices
// always come from the database, never from the request.
func (s *Service) Start(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]priced, 0, len(req.Items))
	var subtotal int64
	for _, item := range req.Items {
		if item.Quantity < 1 || item.Quantity > 10 {
			return nil, ErrBadQuantity
		}
		variant, err := s.store.GetVariantByID(ctx, item.VariantID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnknownVariant
		}
		if err != nil {
			return nil, err
		}
		if variant.ProductID != item.ProductID {
			return nil, ErrUnknownVariant
		}
		product, err := s.store.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, priced{item: item, product: product, variant: variant})
		subtotal += variant.PriceCents * int64(item.Quantity)
	}

	total := subtotal
	var couponCode *string
	var discountCents *int64
	if req.CouponCode != "" {
		c, err := s.store.GetCouponByCode(ctx, req.CouponCode)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		if err == nil && coupon.Check(c, time.Now()) == nil {
			d := coupon.Discount(c, subtotal)
			total = subtotal - d
			couponCode = &c.Code
			discountCents = &d
		}
		// an invalid code at this point is dropped silently; the validate
		// endpoint already told the customer
	}

	order := &database.Order{
		ID:                  uuid.New().String(),
		OrderNumber:         NewOrderNumber(time.Now()),
		CustomerEmail:       req.Email,
		AmountCents:         total,
		Currency:            s.currency,
		Status:              database.OrderPending,
		CouponCode:          couponCode,
		CouponDiscountCents: discountCents,
	}

	items := make([]*database.OrderItem, 0, len(lines))
	stripeLines := make([]payment.CheckoutLine, 0, len(lines))
	for _, line := range lines {
		pid, vid, dur := line.product.ID, line.variant.ID, line.variant.Duration
		items = append(items, &database.OrderItem{
			OrderID:        order.ID,
			ProductID:      &pid,
			VariantID:      &vid,
			ProductName:    line.product.Name,
			Duration:       &dur,
			Quantity:       line.item.Quantity,
			UnitPriceCents: line.variant.PriceCents,
		})
		stripeLines = append(stripeLines, payment.CheckoutLine{
			Name:           fmt.Sprintf("%s (%s)", line.product.Name, line.variant.Duration),
			ProductID:      pid,
			VariantID:      vid,
			Quantity:       line.item.Quantity,
			UnitPriceCents: line.variant.PriceCents,
		})
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	metadata := map[string]string{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}
	if couponCode != nil {
		metadata["coupon_code"] = *couponCode
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, s.currency, req.Email,
		s.baseURL+"/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		s.baseURL+"/checkout/cancel",
		stripeLines, metadata)
	if err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("stripe session creation failed")
		return nil, fmt.Errorf("payment provider unavailable: %w", err)
	}

	sid := session.ID
	order.StripeSessionID = &sid
	if err := s.store.UpdateOrderStripeSession(ctx, order.ID, session.ID); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to record session on order")
	}
	if err := s.store.CreateCheckoutSession(ctx, &database.CheckoutSession{
		ID:            uuid.New().String(),
		SessionID:     session.ID,
		Provider:      "stripe",
		OrderID:       &order.ID,
		Status:        database.SessionPending,
		AmountCents:   total,
		Currency:      s.currency,
		CustomerEmail: &req.Email,
	}); err != nil {
		s.logger.Error().Err(err).Str("session", session.ID).Msg("failed to persist checkout session")
	}

	s.bus.Publish(events.Event{
		Type:      events.EventCheckoutStarted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"order_number":   order.OrderNumber,
			"customer_email": req.Email,
			"amount_cents":   total,
			"currency":       s.currency,
		},
	})

	s.logger.Info().
		Str("order", order.OrderNumber).
		Str("session", session.ID).
		Int64("amount_cents", total).
		Msg("checkout session created")

	return &Result{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CheckoutURL: session.URL,
		AmountCents: total,
	}, nil
}

// OrderView is the customer-facing order lookup payload
type OrderView struct {
	OrderNumber   string                `json:"order_number"`
	Status        database.OrderStatus  `json:"status"`
	AmountCents   int64                 `json:"amount_cents"`
	Currency      string                `json:"currency"`
	CustomerEmail string                `json:"customer_email"`
	CreatedAt     time.Time             `json:"created_at"`
	Items         []*database.OrderItem `json:"items"`
	Licenses      []LicenseView         `json:"licenses"`
}

// LicenseView is a delivered key as the customer sees it
type LicenseView struct {
	Key         string  `json:"key"`
	ProductName *string `json:"product_name"`
	Pending     bool    `json:"pending"`
}
