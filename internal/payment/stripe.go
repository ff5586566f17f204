// Package payment holds the payment-provider clients. Both providers are
// driven over plain HTTPS rather than vendor SDKs; requests are
// form-encoded against the Stripe REST API and JSON against MoneyMotion.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeClient talks to the Stripe REST API
type StripeClient struct {
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
	baseURL       string
}

// StripeConfig holds Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// NewStripeClient creates a new Stripe client
func NewStripeClient(cfg StripeConfig) *StripeClient {
	return &StripeClient{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       "https://api.stripe.com/v1",
	}
}

// IsConfigured returns true if Stripe is properly configured
func (c *StripeClient) IsConfigured() bool {
	return c.secretKey != "" && c.webhookSecret != ""
}

// WebhookEvent represents a Stripe webhook event envelope
type WebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhook verifies the signature header and decodes the event envelope.
// Verification precedes all event handling; a bad signature is a hard error.
func (c *StripeClient) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	if !c.VerifySignature(payload, signatureHeader) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	event := &WebhookEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return event, nil
}

// VerifySignature checks the stripe-signature header (t=<ts>,v1=<sig> scheme)
// against an HMAC-SHA256 of "<ts>.<payload>" keyed by the webhook secret.
func (c *StripeClient) VerifySignature(payload []byte, signatureHeader string) bool {
	if c.webhookSecret == "" {
		return true // dev mode, no secret configured
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

// SignPayload produces a stripe-signature header value for a payload.
// Used by tests and the local webhook replay tool.
func (c *StripeClient) SignPayload(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// CheckoutSessionObject is the checkout.session object of webhook payloads
// and session retrievals.
type CheckoutSessionObject struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	PaymentIntent   string            `json:"payment_intent"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	LineItems       *LineItemList     `json:"line_items,omitempty"`
}

// CustomerDetails carries the customer block of a checkout session
type CustomerDetails struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Address json.RawMessage `json:"address"`
}

// LineItemList is Stripe's paginated list wrapper for line items
type LineItemList struct {
	Data []LineItem `json:"data"`
}

// LineItem is one purchased line of a checkout session
type LineItem struct {
	Quantity    int   `json:"quantity"`
	AmountTotal int64 `json:"amount_total"`
	Price       struct {
		Product struct {
			Name     string            `json:"name"`
			Metadata map[string]string `json:"metadata"`
		} `json:"product"`
	} `json:"price"`
}

// PaymentIntentObject is the payment_intent object of webhook payloads
type PaymentIntentObject struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ReceiptEmail     string `json:"receipt_email"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// DisputeObject is the charge.dispute object of webhook payloads
type DisputeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
}

// CheckoutLine describes one cart line when creating a checkout session
type CheckoutLine struct {
	Name           string
	ProductID      string
	VariantID      string
	Quantity       int
	UnitPriceCents int64
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode
// with ad hoc price data for each cart line. Order references travel in the
// session metadata so the webhook can tie the payment back to our order.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, currency, customerEmail, successURL, cancelURL string, lines []CheckoutLine, metadata map[string]string) (*CheckoutSessionObject, error) {
	data := map[string]string{
		"mode":           "payment",
		"success_url":    successURL,
		"cancel_url":     cancelURL,
		"customer_email": customerEmail,
	}
	for i, line := range lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		data[prefix+"[quantity]"] = strconv.Itoa(line.Quantity)
		data[prefix+"[price_data][currency]"] = strings.ToLower(currency)
		data[prefix+"[price_data][unit_amount]"] = strconv.FormatInt(line.UnitPriceCents, 10)
		data[prefix+"[price_data][product_data][name]"] = line.Name
		data[prefix+"[price_data][product_data][metadata][product_id]"] = line.ProductID
		if line.VariantID != "" {
			data[prefix+"[price_data][product_data][metadata][variant_id]"] = line.VariantID
		}
	}
	for k, v := range metadata {
		data["metadata["+k+"]"] = v
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/checkout/sessions", data)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	session := &CheckoutSessionObject{}
	if err := json.Unmarshal(resp, session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return session, nil
}

// GetCheckoutSession retrieves a session with its line items expanded
func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionObject, error) {
	data := map[string]string{
		"expand[0]": "line_items",
		"expand[1]": "line_items.data.price.product",
	}
	resp, err := c.makeRequest(ctx, http.MethodGet, "/checkout/sessions/"+sessionID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	session := &CheckoutSessionObject{}
	if err := json.Unmarshal(resp, session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return session, nil
}

// makeRequest makes an authenticated form-encoded request to the Stripe API
func (c *StripeClient) makeRequest(ctx context.Context, method, path string, data map[string]string) ([]byte, error) {
	endpoint := c.baseURL + path

	form := url.Values{}
	for k, v := range data {
		form.Set(k, v)
	}
	encoded := form.Encode()

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if encoded != "" {
			endpoint += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
	}
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}
