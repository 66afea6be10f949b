package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const nationalIDKeyPrefix = "nid:"

// RedisIndex maps national ID numbers to the master account that holds them.
// It is a cache in front of the account store: a hit answers CheckNationalID
// without a table scan, a miss falls through. Entries are written on
// successful submission and carry no TTL by default.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisIndexOption func(*RedisIndex)

// WithIndexTTL bounds entry lifetime. Zero means entries never expire.
func WithIndexTTL(ttl time.Duration) RedisIndexOption {
	return func(i *RedisIndex) { i.ttl = ttl }
}

func NewRedisIndex(client *redis.Client, opts ...RedisIndexOption) *RedisIndex {
	idx := &RedisIndex{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(idx)
		}
	}
	return idx
}

// Lookup returns the holding account ID, or "" when the ID is not indexed.
func (i *RedisIndex) Lookup(ctx context.Context, nationalID string) (string, error) {
	if nationalID == "" {
		return "", nil
	}
	accountID, err := i.client.Get(ctx, nationalIDKeyPrefix+nationalID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// Put records the holder of a national ID.
func (i *RedisIndex) Put(ctx context.Context, nationalID, masterAccountID string) error {
	if nationalID == "" || masterAccountID == "" {
		return nil
	}
	return i.client.Set(ctx, nationalIDKeyPrefix+nationalID, masterAccountID, i.ttl).Err()
}
