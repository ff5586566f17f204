package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/payment"
)

// HandleMoneyMotionEvent routes a verified MoneyMotion webhook through the
// pipeline. MoneyMotion does not assign event ids, so the idempotency key
// is the event name plus the session id, which is unique per transition.
func (s *Service) HandleMoneyMotionEvent(ctx context.Context, payload *payment.MMWebhookPayload) error {
	eventID := payload.Event + ":" + payload.CheckoutSession.ID
	fresh, err := s.store.RecordWebhookEvent(ctx, "moneymotion", eventID, payload.Event)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !fresh {
		s.logger.Info().Str("event_id", eventID).Msg("duplicate moneymotion event ignored")
		return nil
	}

	switch payload.Event {
	case payment.MMEventComplete:
		s.handleMMComplete(ctx, payload)
	case payment.MMEventRefunded:
		s.handleMMTerminal(ctx, payload, database.OrderRefunded, events.EventOrderRefunded)
	case payment.MMEventDisputed:
		s.handleMMTerminal(ctx, payload, database.OrderDisputed, events.EventOrderDisputed)
	case payment.MMEventExpired:
		s.handleMMExpired(ctx, payload)
	case payment.MMEventNew:
		s.logger.Debug().Str("session", payload.CheckoutSession.ID).Msg("moneymotion session opened")
	default:
		s.logger.Debug().Str("event", payload.Event).Msg("unhandled moneymotion event")
	}
	return nil
}

// resolveMMOrder finds the order behind a MoneyMotion session, creating a
// bare fallback order when there is no local record.
func (s *Service) resolveMMOrder(ctx context.Context, payload *payment.MMWebhookPayload, createMissing bool) (*database.Order, error) {
	cs, err := s.store.GetCheckoutSession(ctx, payload.CheckoutSession.ID)
	if err == nil && cs.OrderID != nil {
		return s.store.GetOrderByID(ctx, *cs.OrderID)
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if !createMissing {
		return nil, database.ErrNotFound
	}

	tail := payload.CheckoutSession.ID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	email := payload.Customer.Email
	if email == "" {
		email = "unknown@unknown"
	}
	order := &database.Order{
		ID:            uuid.New().String(),
		OrderNumber:   "MM-" + strings.ToUpper(tail),
		CustomerEmail: email,
		AmountCents:   payload.CheckoutSession.TotalInCents,
		Currency:      "EUR",
		Status:        database.OrderPending,
	}
	if pm := payload.Customer.PaymentMethodInfo; pm != nil && pm.Type != "" {
		method := pm.Type
		if pm.LastFourDigits != "" {
			method += " ****" + pm.LastFourDigits
		}
		order.PaymentMethod = &method
	}
	if err := s.store.CreateOrder(ctx, order, nil); err != nil {
		return nil, fmt.Errorf("failed to synthesize fallback order: %w", err)
	}
	s.logger.Warn().
		Str("order", order.OrderNumber).
		Str("session", payload.CheckoutSession.ID).
		Msg("no local order for moneymotion session, synthesized fallback order")
	return order, nil
}

func (s *Service) handleMMComplete(ctx context.Context, payload *payment.MMWebhookPayload) {
	order, err := s.resolveMMOrder(ctx, payload, true)
	if err != nil {
		s.logger.Error().Err(err).Str("session", payload.CheckoutSession.ID).Msg("cannot resolve order for completed session")
		s.bus.PublishError("fulfillment", "cannot resolve order for completed session", err)
		return
	}
	if order.Status == database.OrderCompleted {
		s.logger.Info().Str("order", order.OrderNumber).Msg("order already completed, skipping")
		return
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, database.OrderPaid); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to mark order paid")
	}
	if err := s.store.MarkSessionCompleted(ctx, payload.CheckoutSession.ID, nil); err != nil {
		s.logger.Error().Err(err).Str("session", payload.CheckoutSession.ID).Msg("failed to mark session completed")
	}

	s.bus.Publish(events.Event{
		Type:      events.EventPaymentCompleted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"order_number":   order.OrderNumber,
			"customer_email": order.CustomerEmail,
			"amount_cents":   order.AmountCents,
			"provider":       "moneymotion",
		},
	})

	s.completeOrder(ctx, order, nil)
}

func (s *Service) handleMMTerminal(ctx context.Context, payload *payment.MMWebhookPayload, status database.OrderStatus, eventType events.EventType) {
	order, err := s.resolveMMOrder(ctx, payload, false)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Warn().Str("session", payload.CheckoutSession.ID).Msg("terminal event for unknown session")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session", payload.CheckoutSession.ID).Msg("order lookup failed")
		return
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to update order status")
		return
	}
	revoked, err := s.store.RevokeLicensesByOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to revoke licenses")
	}
	s.logger.Warn().
		Str("order", order.OrderNumber).
		Str("status", string(status)).
		Int64("revoked", revoked).
		Msg("order closed by provider event, licenses revoked")

	s.bus.Publish(events.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"order_number":   order.OrderNumber,
			"customer_email": order.CustomerEmail,
			"revoked_keys":   revoked,
			"provider":       "moneymotion",
		},
	})
}

func (s *Service) handleMMExpired(ctx context.Context, payload *payment.MMWebhookPayload) {
	if err := s.store.MarkSessionStatus(ctx, payload.CheckoutSession.ID, database.SessionExpired); err != nil {
		s.logger.Error().Err(err).Str("session", payload.CheckoutSession.ID).Msg("failed to mark session expired")
	}
	order, err := s.resolveMMOrder(ctx, payload, false)
	if err != nil {
		return
	}
	if order.Status != database.OrderPending {
		return
	}
	if err := s.store.UpdateOrderStatus(ctx, order.ID, database.OrderExpired); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to expire order")
		return
	}
	s.bus.PublishPaymentFailed(payload.CheckoutSession.ID, order.CustomerEmail, "checkout session expired")
}
