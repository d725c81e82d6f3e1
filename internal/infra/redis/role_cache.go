package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

// RoleCache stores role facts keyed by the block height they were read at. Entries
// expire after the configured TTL so the ledger stays the source of truth.
type RoleCache struct {
	client *Client
	ttl    time.Duration
}

// NewRoleCache creates a role cache; ttl <= 0 defaults to ten minutes.
func NewRoleCache(client *Client, ttl time.Duration) *RoleCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RoleCache{client: client, ttl: ttl}
}

func (r *RoleCache) key(address string, capability domain.Capability, block uint64) string {
	return fmt.Sprintf("%s:role:%s:%s:%d", r.client.namespace, capability, strings.ToLower(address), block)
}

// Get returns the cached fact; found is false on a miss.
func (r *RoleCache) Get(ctx context.Context, address string, capability domain.Capability, block uint64) (granted, found bool, err error) {
	val, err := r.client.rdb.Get(ctx, r.key(address, capability, block)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get role fact: %w", err)
	}
	return val == "1", true, nil
}

// Set stores a fact read from the ledger.
func (r *RoleCache) Set(ctx context.Context, fact domain.RoleFact) error {
	val := "0"
	if fact.Granted {
		val = "1"
	}
	if err := r.client.rdb.Set(ctx, r.key(fact.Address, fact.Capability, fact.AsOfBlock), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("set role fact: %w", err)
	}
	return nil
}
