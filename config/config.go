package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the immutable top-level configuration, assembled once at startup
// and passed to components by value.
type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	AuthConfig     AuthConfig     `json:"auth"`
	RedisConfig    RedisConfig    `json:"redis"`
	MarketConfig   MarketConfig   `json:"market"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	CORSOrigins    []string `json:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// AuthConfig holds JWT and password hashing configuration
type AuthConfig struct {
	JWTSecret          string `json:"jwt_secret"`
	AccessTokenMinutes int    `json:"access_token_minutes"`
	BcryptCost         int    `json:"bcrypt_cost"`
}

// AccessTokenDuration returns the configured token lifetime.
func (a AuthConfig) AccessTokenDuration() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

// RedisConfig holds the quote cache configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// MarketConfig holds the external market data feed configuration
type MarketConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	CacheTTLSecs   int    `json:"cache_ttl_secs"`
	ExchangeSuffix string `json:"exchange_suffix"` // appended to bare symbols, e.g. ".T" for TSE
}

// VaultConfig holds the optional secret-source configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			ProductionMode: false,
			CORSOrigins:    []string{"http://localhost:3000"},
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "whytrade_user",
			Password: "whytrade_password",
			Database: "whytrade",
			SSLMode:  "disable",
		},
		AuthConfig: AuthConfig{
			AccessTokenMinutes: 30,
			BcryptCost:         12,
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		MarketConfig: MarketConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			TimeoutSeconds: 10,
			CacheTTLSecs:   60,
			ExchangeSuffix: ".T",
		},
		VaultConfig: VaultConfig{
			Enabled:    false,
			SecretPath: "secret/data/whytrade",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

// Load reads the configuration file at path (if it exists), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.ServerConfig.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.ServerConfig.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_SERVER"); v != "" {
		c.DatabaseConfig.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DatabaseConfig.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.DatabaseConfig.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.DatabaseConfig.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		c.DatabaseConfig.Database = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.AuthConfig.JWTSecret = v
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil {
			c.AuthConfig.AccessTokenMinutes = mins
		}
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.RedisConfig.Enabled = true
		c.RedisConfig.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisConfig.Password = v
	}
	if v := os.Getenv("VAULT_ADDR"); v != "" {
		c.VaultConfig.Enabled = true
		c.VaultConfig.Address = v
	}
	if v := os.Getenv("VAULT_TOKEN"); v != "" {
		c.VaultConfig.Token = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LoggingConfig.Level = v
	}
}

// Validate checks that the configuration is usable. The JWT secret may still
// be empty here when it is sourced from Vault; main enforces its presence
// after the secret source has been consulted.
func (c *Config) Validate() error {
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerConfig.Port)
	}
	if c.DatabaseConfig.Host == "" || c.DatabaseConfig.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.AuthConfig.AccessTokenMinutes <= 0 {
		return fmt.Errorf("access token lifetime must be positive")
	}
	if c.MarketConfig.BaseURL == "" {
		return fmt.Errorf("market data base URL is required")
	}
	return nil
}
