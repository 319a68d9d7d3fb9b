package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"whytrade-api/config"
)

// AppSecrets holds the runtime secrets stored in Vault. Empty fields mean
// the secret is not present and the configured value stays in effect.
type AppSecrets struct {
	JWTSecret        string `json:"jwt_secret"`
	DatabasePassword string `json:"database_password"`
	RedisPassword    string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client as an optional secret source.
// When Vault is disabled the client is inert and lookups return nothing.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *AppSecrets
}

// NewClient creates a Vault client
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

// AppSecrets reads the application secrets from the configured KV v2 path.
// The first successful read is cached for the life of the process.
func (c *Client) AppSecrets(ctx context.Context) (*AppSecrets, error) {
	if !c.config.Enabled {
		return &AppSecrets{}, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read app secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secrets found at %s", c.config.SecretPath)
	}

	// KV v2 nests the payload under "data"; KV v1 responses are flat.
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	secrets := &AppSecrets{
		JWTSecret:        getString(data, "jwt_secret"),
		DatabasePassword: getString(data, "database_password"),
		RedisPassword:    getString(data, "redis_password"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	return secrets, nil
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
