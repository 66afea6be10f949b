// Package redis builds the shared go-redis client used by the national-ID
// index.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"siteledger/internal/platform/config"
)

// Client embeds *redis.Client so callers can hand the raw client to stores.
type Client struct {
	*redis.Client
}

// New dials Redis from config and verifies the connection with a ping.
// An empty URL means Redis is not configured; callers get (nil, nil) and
// fall back to store-only lookups.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}
