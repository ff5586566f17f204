package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds provider payload size
const maxWebhookBody = 1 << 20

// handleStripeWebhook receives Stripe events. The signature is verified
// before anything else; a bad signature rejects with 400. A processing
// failure returns 500 so the provider redelivers the event; the
// idempotency ledger makes the retry safe.
func (s *Server) handleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read payload")
		return
	}

	event, err := s.stripe.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected stripe webhook")
		errorResponse(c, http.StatusBadRequest, "invalid webhook")
		return
	}

	if err := s.fulfillment.HandleStripeEvent(c.Request.Context(), event); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("stripe event processing failed")
		errorResponse(c, http.StatusInternalServerError, "event processing failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// handleMoneyMotionWebhook receives MoneyMotion events, same contract as
// the Stripe endpoint.
func (s *Server) handleMoneyMotionWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "failed to read payload")
		return
	}

	event, err := s.moneymotion.ParseWebhook(payload, c.GetHeader("X-MoneyMotion-Signature"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected moneymotion webhook")
		errorResponse(c, http.StatusBadRequest, "invalid webhook")
		return
	}

	if err := s.fulfillment.HandleMoneyMotionEvent(c.Request.Context(), event); err != nil {
		s.logger.Error().Err(err).Str("event", event.Event).Msg("moneymotion event processing failed")
		errorResponse(c, http.StatusInternalServerError, "event processing failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
