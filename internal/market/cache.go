package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"whytrade-api/config"
	"whytrade-api/internal/logging"
)

// Key formats for cached market data
const (
	keyQuote    = "market:quote:%s"
	keyAnalysis = "market:analysis:%s"
)

// Cache provides Redis-backed caching for market data with graceful
// degradation. When Redis is down, Get returns an error and callers fall
// through to the upstream; a circuit breaker keeps a dead Redis from
// adding latency to every request.
type Cache struct {
	client       *redis.Client
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
	log           *logging.Logger
}

// NewCache connects to Redis and returns a cache. A failed initial
// connection returns the cache in degraded mode, not an error.
func NewCache(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Cache{
		client:        client,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		log:           logging.WithComponent("market-cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.log.Warn("initial Redis connection failed, starting degraded: %v", err)
		return c, nil
	}

	c.healthy = true
	c.lastCheck = time.Now()
	c.log.Info("Redis connected at %s", cfg.Address)
	return c, nil
}

// IsHealthy reports whether Redis is currently usable
func (c *Cache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures {
		if c.healthy {
			c.log.Warn("circuit breaker open: Redis marked unhealthy after %d failures", c.failureCount)
		}
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.log.Info("circuit breaker closed: Redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

// checkHealth schedules a background ping when the breaker is open and the
// backoff interval has passed.
func (c *Cache) checkHealth() {
	c.mu.RLock()
	shouldCheck := !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !shouldCheck {
		return
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		}
	}()
}

// GetJSON loads a cached value into dest. A miss and a dead Redis both
// return an error; callers treat either as "fetch upstream".
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.checkHealth()
	if !c.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return err
		}
		c.recordFailure()
		return fmt.Errorf("redis get failed: %w", err)
	}
	c.recordSuccess()

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to decode cached value: %w", err)
	}
	return nil
}

// SetJSON stores a value under key with the given TTL
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.checkHealth()
	if !c.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}
	c.recordSuccess()
	return nil
}

// Close releases the Redis connection pool
func (c *Cache) Close() error {
	return c.client.Close()
}
