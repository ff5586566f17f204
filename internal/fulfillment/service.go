// Package fulfillment processes payment provider webhooks: it marks orders
// paid, assigns license keys from stock, and drives the downstream
// notifications. Once a payment is confirmed the pipeline never fails the
// order back to the provider; anything that goes wrong after that point is
// logged and compensated by an admin.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/logging"
	"gamekey-store/internal/payment"
)

// Store is the repository surface the pipeline writes through
type Store interface {
	RecordWebhookEvent(ctx context.Context, provider, eventID, eventType string) (bool, error)
	GetOrderByStripeSession(ctx context.Context, sessionID string) (*database.Order, error)
	GetOrderByID(ctx context.Context, id string) (*database.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]*database.OrderItem, error)
	CreateOrder(ctx context.Context, order *database.Order, items []*database.OrderItem) error
	UpdateOrderStatus(ctx context.Context, id string, status database.OrderStatus) error
	CompleteOrder(ctx context.Context, id string, paymentIntentID *string) error
	MarkOrdersFailedByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*database.Order, error)
	GetOrdersByPaymentIntent(ctx context.Context, paymentIntentID string) ([]*database.Order, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*database.CheckoutSession, error)
	MarkSessionCompleted(ctx context.Context, sessionID string, paymentIntentID *string) error
	MarkSessionStatus(ctx context.Context, sessionID string, status database.SessionStatus) error
	AllocateLicense(ctx context.Context, productID string, variantID *string, orderID, customerEmail string) (*database.License, error)
	CreateLicense(ctx context.Context, lic *database.License) error
	RevokeLicensesByOrder(ctx context.Context, orderID string) (int64, error)
	GetLicensesByOrder(ctx context.Context, orderID string) ([]*database.License, error)
	GetStockCounts(ctx context.Context) (*database.StockCounts, error)
	IncrementCouponUse(ctx context.Context, code string) (bool, error)
}

// Mailer sends order confirmation emails
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *database.Order, licenses []*database.License) error
}

// SessionFetcher retrieves the full checkout session from the provider,
// used to reconstruct orders we have no local record of.
type SessionFetcher interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSessionObject, error)
}

// Service is the fulfillment pipeline
type Service struct {
	store      Store
	stripe     SessionFetcher
	mailer     Mailer
	bus        *events.EventBus
	lowStockAt int
	logger     zerolog.Logger
}

// NewService creates a fulfillment service. mailer may be nil when email
// delivery is not configured.
func NewService(store Store, stripe SessionFetcher, mailer Mailer, bus *events.EventBus, lowStockAt int) *Service {
	return &Service{
		store:      store,
		stripe:     stripe,
		mailer:     mailer,
		bus:        bus,
		lowStockAt: lowStockAt,
		logger:     logging.For("fulfillment"),
	}
}

// placeholderKey builds the marker key stored when a paid unit has no stock
// to back it. Admins replace these by hand once stock arrives.
func placeholderKey(now time.Time) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("PENDING-%d-%s", now.UnixMilli(), suffix)
}

// fulfillOrder assigns one license per purchased unit. Units that cannot be
// covered by stock get a pending placeholder so the order still completes
// and the shortfall is visible.
func (s *Service) fulfillOrder(ctx context.Context, order *database.Order, items []*database.OrderItem) []*database.License {
	var delivered []*database.License
	var shortfall int

	for _, item := range items {
		for unit := 0; unit < item.Quantity; unit++ {
			if item.ProductID == nil {
				shortfall++
				delivered = append(delivered, s.createPlaceholder(ctx, order, item))
				continue
			}
			lic, err := s.store.AllocateLicense(ctx, *item.ProductID, item.VariantID, order.ID, order.CustomerEmail)
			if errors.Is(err, database.ErrNoStock) {
				shortfall++
				delivered = append(delivered, s.createPlaceholder(ctx, order, item))
				continue
			}
			if err != nil {
				s.logger.Error().Err(err).
					Str("order", order.OrderNumber).
					Str("product_id", *item.ProductID).
					Msg("license allocation failed, recording placeholder")
				s.bus.PublishError("fulfillment", "license allocation failed", err)
				shortfall++
				delivered = append(delivered, s.createPlaceholder(ctx, order, item))
				continue
			}
			delivered = append(delivered, lic)
		}
	}

	if shortfall > 0 {
		s.logger.Warn().
			Str("order", order.OrderNumber).
			Int("placeholders", shortfall).
			Msg("order fulfilled with pending placeholders, stock exhausted")
	}
	return delivered
}

func (s *Service) createPlaceholder(ctx context.Context, order *database.Order, item *database.OrderItem) *database.License {
	now := time.Now()
	email := order.CustomerEmail
	name := item.ProductName
	lic := &database.License{
		LicenseKey:    placeholderKey(now),
		ProductID:     item.ProductID,
		VariantID:     item.VariantID,
		ProductName:   &name,
		Status:        database.LicensePending,
		CustomerEmail: &email,
		OrderID:       &order.ID,
		AssignedAt:    &now,
	}
	if err := s.store.CreateLicense(ctx, lic); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to record pending placeholder")
		s.bus.PublishError("fulfillment", "failed to record pending placeholder", err)
	}
	return lic
}

// completeOrder runs the post-payment steps shared by both providers:
// license assignment, coupon redemption, status transition, notifications.
func (s *Service) completeOrder(ctx context.Context, order *database.Order, paymentIntentID *string) {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to load order items")
		s.bus.PublishError("fulfillment", "failed to load order items", err)
	}

	licenses := s.fulfillOrder(ctx, order, items)

	if err := s.store.CompleteOrder(ctx, order.ID, paymentIntentID); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to mark order completed")
		s.bus.PublishError("fulfillment", "failed to mark order completed", err)
	}

	if order.CouponCode != nil {
		ok, err := s.store.IncrementCouponUse(ctx, *order.CouponCode)
		if err != nil {
			s.logger.Error().Err(err).Str("code", *order.CouponCode).Msg("failed to increment coupon usage")
		} else if !ok {
			s.logger.Warn().Str("code", *order.CouponCode).Msg("coupon use not counted: inactive or cap reached")
		}
	}

	if s.mailer != nil {
		if err := s.mailer.SendOrderConfirmation(ctx, order, licenses); err != nil {
			s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("confirmation email failed")
		}
	}

	s.bus.PublishOrderCompleted(order.OrderNumber, order.CustomerEmail, order.AmountCents, order.Currency)
	s.checkLowStock(ctx)

	s.logger.Info().
		Str("order", order.OrderNumber).
		Int("licenses", len(licenses)).
		Msg("order completed")
}

// checkLowStock fires a stock.low event when the total unused pool drops
// below the configured threshold.
func (s *Service) checkLowStock(ctx context.Context) {
	if s.lowStockAt <= 0 {
		return
	}
	counts, err := s.store.GetStockCounts(ctx)
	if err != nil {
		return
	}
	total := counts.General
	for _, n := range counts.ByProduct {
		total += n
	}
	for _, n := range counts.ByVariant {
		total += n
	}
	if total < int64(s.lowStockAt) {
		s.bus.Publish(events.Event{
			Type:      events.EventStockLow,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"remaining": total,
				"threshold": s.lowStockAt,
			},
		})
	}
}

// markDisputed flags every order on a payment intent and revokes its keys
func (s *Service) markDisputed(ctx context.Context, paymentIntentID, reason string) {
	orders, err := s.store.GetOrdersByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		s.logger.Error().Err(err).Str("payment_intent", paymentIntentID).Msg("dispute lookup failed")
		return
	}
	for _, order := range orders {
		if err := s.store.UpdateOrderStatus(ctx, order.ID, database.OrderDisputed); err != nil {
			s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to mark order disputed")
			continue
		}
		revoked, err := s.store.RevokeLicensesByOrder(ctx, order.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to revoke licenses")
		}
		s.logger.Warn().
			Str("order", order.OrderNumber).
			Int64("revoked", revoked).
			Str("reason", reason).
			Msg("order disputed, licenses revoked")
		s.bus.Publish(events.Event{
			Type:      events.EventOrderDisputed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_number":   order.OrderNumber,
				"customer_email": order.CustomerEmail,
				"revoked_keys":   revoked,
				"reason":         reason,
			},
		})
	}
}
