package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deletes or extends the key only while it still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a named lease shared by every process pointing at the same Redis.
type Lock struct {
	client *Client
	name   string
	token  string
	ttl    time.Duration
}

// NewLock returns a lock identified by name; token distinguishes this holder.
func (c *Client) NewLock(name, token string, ttl time.Duration) *Lock {
	return &Lock{client: c, name: name, token: token, ttl: ttl}
}

// TryAcquire takes the lease if nobody holds it.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.client.lockKey(l.name), l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	if ok {
		return true, nil
	}
	// Re-entrant for the same holder.
	return l.Refresh(ctx)
}

// Refresh extends the lease if this holder still owns it.
func (l *Lock) Refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client.rdb, []string{l.client.lockKey(l.name)}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.client.lockKey(l.name)}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
