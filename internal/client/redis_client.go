package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/util/logger"
)

// RedisClient wraps redis.Client with JSON helpers and tracing. It holds the
// verification pipeline's ephemeral state: issued credential challenges and
// cached geolocation fixes.
type RedisClient struct {
	*redis.Client
	cfg    config.RedisConfig
	mu     sync.RWMutex
	closed bool
	tracer trace.Tracer
}

// NewRedisClient creates a new Redis client instance and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	c := &RedisClient{
		Client: rdb,
		cfg:    cfg,
		tracer: otel.Tracer("attendance-service/redis"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Infof("redis connected at %s (db %d)", cfg.Address, cfg.DB)
	return c, nil
}

// SetJSON marshals value and stores it under key with the given TTL.
func (c *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "redis.SetJSON",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl).Err()
}

// GetJSON loads key and unmarshals it into dest. Returns redis.Nil when the
// key is absent or expired.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	ctx, span := c.tracer.Start(ctx, "redis.GetJSON",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	b, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// GetDelJSON atomically loads and deletes key. Single-use challenge reads go
// through this so a challenge can never validate twice.
func (c *RedisClient) GetDelJSON(ctx context.Context, key string, dest interface{}) error {
	ctx, span := c.tracer.Start(ctx, "redis.GetDelJSON",
		trace.WithAttributes(attribute.String("redis.key", key)))
	defer span.End()

	b, err := c.Client.GetDel(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// Close shuts the underlying client down once.
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Client.Close()
}
