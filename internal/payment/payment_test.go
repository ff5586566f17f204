package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeEventJSON = `{
	"id": "evt_test_1",
	"type": "checkout.session.completed",
	"created": 1767225600,
	"data": {"object": {"id": "cs_test_1", "payment_intent": "pi_1", "amount_total": 2999, "currency": "eur"}}
}`

func TestStripeParseWebhook(t *testing.T) {
	client := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	payload := []byte(stripeEventJSON)
	header := client.SignPayload(payload, time.Now())

	event, err := client.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_test_1", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)
	assert.NotEmpty(t, event.Data.Object)
}

func TestStripeRejectsBadSignature(t *testing.T) {
	client := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	payload := []byte(stripeEventJSON)

	_, err := client.ParseWebhook(payload, "t=123,v1=deadbeef")
	assert.Error(t, err)

	// tampered payload under a valid header
	header := client.SignPayload(payload, time.Now())
	tampered := []byte(`{"id":"evt_evil","type":"checkout.session.completed","data":{"object":{}}}`)
	_, err = client.ParseWebhook(tampered, header)
	assert.Error(t, err)
}

// Without a webhook secret configured, signatures are not enforced. That
// is the local development mode.
func TestStripeNoSecretSkipsVerification(t *testing.T) {
	client := NewStripeClient(StripeConfig{SecretKey: "sk_test"})
	event, err := client.ParseWebhook([]byte(stripeEventJSON), "")
	require.NoError(t, err)
	assert.Equal(t, "evt_test_1", event.ID)
}

const mmEventJSON = `{
	"event": "checkout_session:complete",
	"checkoutSession": {"id": "mm_1", "status": "complete", "totalInCents": 2999, "storeId": "store_1"},
	"customer": {"email": "buyer@example.com"}
}`

func TestMoneyMotionParseWebhook(t *testing.T) {
	client := NewMoneyMotionClient(MoneyMotionConfig{APIKey: "mm_key", WebhookSecret: "mm_secret"})
	payload := []byte(mmEventJSON)
	signature := client.SignPayload(payload)

	event, err := client.ParseWebhook(payload, signature)
	require.NoError(t, err)
	assert.Equal(t, MMEventComplete, event.Event)
	assert.Equal(t, "mm_1", event.CheckoutSession.ID)
	assert.Equal(t, int64(2999), event.CheckoutSession.TotalInCents)
}

func TestMoneyMotionRejectsBadSignature(t *testing.T) {
	client := NewMoneyMotionClient(MoneyMotionConfig{APIKey: "mm_key", WebhookSecret: "mm_secret"})
	_, err := client.ParseWebhook([]byte(mmEventJSON), "deadbeef")
	assert.Error(t, err)
}

// MoneyMotion is the opposite of Stripe here: with no secret configured
// every payload is rejected, since the endpoint would otherwise be open.
func TestMoneyMotionNoSecretRejects(t *testing.T) {
	client := NewMoneyMotionClient(MoneyMotionConfig{APIKey: "mm_key"})
	assert.False(t, client.VerifySignature([]byte(mmEventJSON), "anything"))
}
