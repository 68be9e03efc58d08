package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTripCache shares raw engine trip responses across hosts. Entries
// never expire; a trip for a fixed departure time does not go stale.
type RedisTripCache struct {
	RDB *redis.Client
}

func NewRedisTripCache(rdb *redis.Client) *RedisTripCache {
	return &RedisTripCache{RDB: rdb}
}

// Fetch one cached response payload.
func (r *RedisTripCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.RDB == nil {
		return nil, false, errors.New("trip cache: redis client is nil")
	}

	if key == "" {
		return nil, false, errors.New("get trip cache: key must not be empty")
	}

	payload, err := r.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get trip cache: %w", err)
	}

	return payload, true, nil
}

// Store or replace one cached response payload.
func (r *RedisTripCache) Put(ctx context.Context, key string, payload []byte) error {
	if r.RDB == nil {
		return errors.New("trip cache: redis client is nil")
	}

	if key == "" {
		return errors.New("insert trip cache: key must not be empty")
	}

	if err := r.RDB.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("insert trip cache key=%q: %w", key, err)
	}

	return nil
}
