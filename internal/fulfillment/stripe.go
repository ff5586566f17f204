package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gamekey-store/internal/database"
	"gamekey-store/internal/events"
	"gamekey-store/internal/payment"
)

// HandleStripeEvent routes a verified Stripe webhook event through the
// pipeline. Replayed events are dropped by the idempotency ledger before
// any state changes. An error return makes the transport answer 500 so
// Stripe redelivers; per-order business failures (missing stock, mail)
// are absorbed and logged instead, since the payment already happened.
func (s *Service) HandleStripeEvent(ctx context.Context, event *payment.WebhookEvent) error {
	fresh, err := s.store.RecordWebhookEvent(ctx, "stripe", event.ID, event.Type)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !fresh {
		s.logger.Info().Str("event_id", event.ID).Str("type", event.Type).Msg("duplicate stripe event ignored")
		return nil
	}

	switch event.Type {
	case "checkout.session.completed":
		var session payment.CheckoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return fmt.Errorf("malformed checkout.session.completed payload: %w", err)
		}
		s.handleSessionCompleted(ctx, &session)

	case "checkout.session.expired":
		var session payment.CheckoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return fmt.Errorf("malformed checkout.session.expired payload: %w", err)
		}
		s.handleSessionExpired(ctx, &session)

	case "payment_intent.payment_failed":
		var intent payment.PaymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return fmt.Errorf("malformed payment_intent.payment_failed payload: %w", err)
		}
		s.handlePaymentFailed(ctx, &intent)

	case "charge.dispute.created":
		var dispute payment.DisputeObject
		if err := json.Unmarshal(event.Data.Object, &dispute); err != nil {
			return fmt.Errorf("malformed charge.dispute.created payload: %w", err)
		}
		s.markDisputed(ctx, dispute.PaymentIntent, dispute.Reason)

	default:
		s.logger.Debug().Str("type", event.Type).Msg("unhandled stripe event type")
	}
	return nil
}

func (s *Service) handleSessionCompleted(ctx context.Context, session *payment.CheckoutSessionObject) {
	order, err := s.findOrCreateOrder(ctx, session)
	if err != nil {
		s.logger.Error().Err(err).Str("session", session.ID).Msg("cannot resolve order for completed session")
		s.bus.PublishError("fulfillment", "cannot resolve order for completed session", err)
		return
	}

	if order.Status == database.OrderCompleted {
		s.logger.Info().Str("order", order.OrderNumber).Msg("order already completed, skipping")
		return
	}

	var intentID *string
	if session.PaymentIntent != "" {
		intentID = &session.PaymentIntent
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, database.OrderPaid); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to mark order paid")
	}
	if err := s.store.MarkSessionCompleted(ctx, session.ID, intentID); err != nil {
		s.logger.Error().Err(err).Str("session", session.ID).Msg("failed to mark session completed")
	}

	s.bus.Publish(events.Event{
		Type:      events.EventPaymentCompleted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"order_number":   order.OrderNumber,
			"customer_email": order.CustomerEmail,
			"amount_cents":   order.AmountCents,
			"provider":       "stripe",
		},
	})

	s.completeOrder(ctx, order, intentID)
}

// findOrCreateOrder resolves the local order for a Stripe session. When no
// order exists, for example after a database restore or a session created
// outside this service, a fallback order is synthesized from the session
// itself so the customer still gets keys.
func (s *Service) findOrCreateOrder(ctx context.Context, session *payment.CheckoutSessionObject) (*database.Order, error) {
	if orderID := session.Metadata["order_id"]; orderID != "" {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	order, err := s.store.GetOrderByStripeSession(ctx, session.ID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	return s.synthesizeOrder(ctx, session)
}

// fallbackOrderNumber derives a stable order number from the session id
func fallbackOrderNumber(sessionID string) string {
	tail := sessionID
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	return "STRIPE-" + strings.ToUpper(tail)
}

func (s *Service) synthesizeOrder(ctx context.Context, session *payment.CheckoutSessionObject) (*database.Order, error) {
	full := session
	if s.stripe != nil && (session.LineItems == nil || len(session.LineItems.Data) == 0) {
		fetched, err := s.stripe.GetCheckoutSession(ctx, session.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("session", session.ID).Msg("could not expand session line items")
		} else {
			full = fetched
		}
	}

	email := "unknown@unknown"
	var name *string
	if full.CustomerDetails != nil {
		if full.CustomerDetails.Email != "" {
			email = full.CustomerDetails.Email
		}
		if full.CustomerDetails.Name != "" {
			n := full.CustomerDetails.Name
			name = &n
		}
	}

	sid := session.ID
	order := &database.Order{
		ID:              uuid.New().String(),
		OrderNumber:     fallbackOrderNumber(session.ID),
		CustomerEmail:   email,
		CustomerName:    name,
		AmountCents:     full.AmountTotal,
		Currency:        strings.ToUpper(full.Currency),
		Status:          database.OrderPending,
		StripeSessionID: &sid,
		Metadata:        metadataJSON(full.Metadata),
	}

	var items []*database.OrderItem
	if full.LineItems != nil {
		for _, li := range full.LineItems.Data {
			qty := li.Quantity
			if qty < 1 {
				qty = 1
			}
			item := &database.OrderItem{
				OrderID:        order.ID,
				ProductName:    li.Price.Product.Name,
				Quantity:       qty,
				UnitPriceCents: li.AmountTotal / int64(qty),
			}
			if pid := li.Price.Product.Metadata["product_id"]; pid != "" {
				item.ProductID = &pid
			}
			if vid := li.Price.Product.Metadata["variant_id"]; vid != "" {
				item.VariantID = &vid
			}
			items = append(items, item)
		}
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		return nil, fmt.Errorf("failed to synthesize fallback order: %w", err)
	}
	s.logger.Warn().
		Str("order", order.OrderNumber).
		Str("session", session.ID).
		Msg("no local order for session, synthesized fallback order")
	return order, nil
}

func metadataJSON(m map[string]string) *string {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	str := string(data)
	return &str
}

func (s *Service) handleSessionExpired(ctx context.Context, session *payment.CheckoutSessionObject) {
	if err := s.store.MarkSessionStatus(ctx, session.ID, database.SessionExpired); err != nil {
		s.logger.Error().Err(err).Str("session", session.ID).Msg("failed to mark session expired")
	}

	order, err := s.store.GetOrderByStripeSession(ctx, session.ID)
	if errors.Is(err, database.ErrNotFound) {
		// older orders may predate the session id column being filled;
		// the session row still points at them
		if cs, csErr := s.store.GetCheckoutSession(ctx, session.ID); csErr == nil && cs.OrderID != nil {
			order, err = s.store.GetOrderByID(ctx, *cs.OrderID)
		}
	}
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session", session.ID).Msg("expired session order lookup failed")
		return
	}
	if order.Status != database.OrderPending {
		return
	}
	if err := s.store.UpdateOrderStatus(ctx, order.ID, database.OrderExpired); err != nil {
		s.logger.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to expire order")
		return
	}
	s.bus.PublishPaymentFailed(session.PaymentIntent, order.CustomerEmail, "checkout session expired")
	s.logger.Info().Str("order", order.OrderNumber).Msg("checkout session expired, order closed")
}

func (s *Service) handlePaymentFailed(ctx context.Context, intent *payment.PaymentIntentObject) {
	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		reason = intent.LastPaymentError.Message
	}

	orders, err := s.store.MarkOrdersFailedByPaymentIntent(ctx, intent.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("payment_intent", intent.ID).Msg("failed to mark orders failed")
		return
	}
	email := intent.ReceiptEmail
	for _, order := range orders {
		email = order.CustomerEmail
		s.logger.Info().
			Str("order", order.OrderNumber).
			Str("reason", reason).
			Msg("order marked failed")
	}
	// one event per payment intent, even when it matched several orders
	s.bus.PublishPaymentFailed(intent.ID, email, reason)
}
