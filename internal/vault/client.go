// Package vault loads payment provider credentials from HashiCorp Vault.
// When Vault is disabled the store falls back to the credentials in the
// plain configuration, which is how development environments run.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"gamekey-store/config"
)

// ProviderSecrets holds the credentials of one payment provider
type ProviderSecrets struct {
	SecretKey     string `json:"secret_key"`
	APIKey        string `json:"api_key"`
	StoreID       string `json:"store_id"`
	WebhookSecret string `json:"webhook_secret"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a Vault client. A disabled config returns a client
// whose reads report not-found, so callers keep their config fallbacks.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// GetProviderSecrets reads the KV v2 secret for a payment provider,
// for example "stripe" or "moneymotion". Returns nil without error when
// Vault is disabled or the secret does not exist.
func (c *Client) GetProviderSecrets(ctx context.Context, provider string) (*ProviderSecrets, error) {
	if !c.config.Enabled {
		return nil, nil
	}

	path := fmt.Sprintf("%s/data/payments/%s", c.config.MountPath, provider)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s secrets from vault: %w", provider, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	return &ProviderSecrets{
		SecretKey:     getString(data, "secret_key"),
		APIKey:        getString(data, "api_key"),
		StoreID:       getString(data, "store_id"),
		WebhookSecret: getString(data, "webhook_secret"),
	}, nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
