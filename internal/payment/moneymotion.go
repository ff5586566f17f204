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
	"time"
)

// MoneyMotion webhook event names
const (
	MMEventNew       = "checkout_session:new"
	MMEventComplete  = "checkout_session:complete"
	MMEventRefunded  = "checkout_session:refunded"
	MMEventExpired   = "checkout_session:expired"
	MMEventDisputed  = "checkout_session:disputed"
)

// MoneyMotionClient talks to the MoneyMotion payment API
type MoneyMotionClient struct {
	apiKey        string
	storeID       string
	webhookSecret string
	httpClient    *http.Client
	baseURL       string
}

// MoneyMotionConfig holds MoneyMotion credentials
type MoneyMotionConfig struct {
	APIKey        string
	StoreID       string
	WebhookSecret string
	BaseURL       string
}

// NewMoneyMotionClient creates a new MoneyMotion client
func NewMoneyMotionClient(cfg MoneyMotionConfig) *MoneyMotionClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.moneymotion.io/v1"
	}
	return &MoneyMotionClient{
		apiKey:        cfg.APIKey,
		storeID:       cfg.StoreID,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       baseURL,
	}
}

// IsConfigured returns true if MoneyMotion is properly configured
func (c *MoneyMotionClient) IsConfigured() bool {
	return c.apiKey != "" && c.webhookSecret != ""
}

// MMWebhookPayload is the MoneyMotion webhook body
type MMWebhookPayload struct {
	Event           string `json:"event"`
	CheckoutSession struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		TotalInCents int64  `json:"totalInCents"`
		StoreID      string `json:"storeId"`
	} `json:"checkoutSession"`
	Customer struct {
		Email             string `json:"email"`
		PaymentMethodInfo *struct {
			Type           string `json:"type"`
			LastFourDigits string `json:"lastFourDigits,omitempty"`
			CardBrand      string `json:"cardBrand,omitempty"`
		} `json:"paymentMethodInfo,omitempty"`
	} `json:"customer"`
}

// ParseWebhook verifies the x-moneymotion-signature header (hex HMAC-SHA256
// of the raw body) and decodes the payload.
func (c *MoneyMotionClient) ParseWebhook(payload []byte, signature string) (*MMWebhookPayload, error) {
	if !c.VerifySignature(payload, signature) {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	body := &MMWebhookPayload{}
	if err := json.Unmarshal(payload, body); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return body, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw payload
func (c *MoneyMotionClient) VerifySignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignPayload produces a signature header value for a payload (tests)
func (c *MoneyMotionClient) SignPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SessionStatus is the provider-side state of a MoneyMotion session
type SessionStatus struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Paid          bool       `json:"paid"`
	TotalInCents  int64      `json:"totalInCents"`
	Currency      string     `json:"currency"`
	PaidAt        *time.Time `json:"paidAt"`
	CustomerEmail string     `json:"customerEmail"`
}

// GetSessionStatus fetches the current state of a checkout session from the
// provider, used by the client-side payment status polling endpoint.
func (c *MoneyMotionClient) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/checkout-sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return nil, fmt.Errorf("moneymotion API error: %s - %s", resp.Status, string(respBody))
	}

	status := &SessionStatus{}
	if err := json.Unmarshal(respBody, status); err != nil {
		return nil, fmt.Errorf("failed to parse session status: %w", err)
	}
	return status, nil
}
