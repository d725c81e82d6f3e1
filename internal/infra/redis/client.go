package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis operations shared by the rescan queue, the scanner lock and
// the role cache.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Namespace string `yaml:"namespace"`
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return Wrap(rdb, cfg.Namespace), nil
}

// Wrap builds a Client around an existing connection.
func Wrap(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = "boatwatch"
	}
	return &Client{rdb: rdb, namespace: namespace}
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) queueKey() string {
	return c.namespace + ":rescan_ranges"
}

func (c *Client) progressKey(start, end uint64) string {
	return fmt.Sprintf("%s:rescan_progress:%d-%d", c.namespace, start, end)
}

func (c *Client) lockKey(name string) string {
	return fmt.Sprintf("%s:lock:%s", c.namespace, name)
}

// PushRange queues the inclusive range [start, end] for a targeted re-scan.
func (c *Client) PushRange(ctx context.Context, start, end uint64) error {
	if start > end {
		return fmt.Errorf("start > end: %d > %d", start, end)
	}
	member := FormatRange(start, end)
	if err := c.rdb.ZAdd(ctx, c.queueKey(), redis.Z{Score: float64(start), Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PopRange removes and returns the queued range with the lowest start block.
func (c *Client) PopRange(ctx context.Context) (start, end uint64, found bool, err error) {
	results, err := c.rdb.ZPopMin(ctx, c.queueKey(), 1).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("zpopmin failed: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}

	member, _ := results[0].Member.(string)
	start, end, err = ParseRangeString(member)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid range format: %w", err)
	}
	return start, end, true, nil
}

// PendingRanges returns every queued range in start order.
func (c *Client) PendingRanges(ctx context.Context) ([]string, error) {
	return c.rdb.ZRange(ctx, c.queueKey(), 0, -1).Result()
}

// ClearQueue removes all queued ranges.
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.rdb.Del(ctx, c.queueKey()).Err()
}

// GetProgress returns the last block applied for a range; ok is false when none was recorded.
func (c *Client) GetProgress(ctx context.Context, start, end uint64) (uint64, bool, error) {
	val, err := c.rdb.Get(ctx, c.progressKey(start, end)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get failed: %w", err)
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid progress %q: %w", val, err)
	}
	return n, true, nil
}

// SetProgress records the last block applied for a range.
func (c *Client) SetProgress(ctx context.Context, start, end, current uint64, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.progressKey(start, end), strconv.FormatUint(current, 10), ttl).Err()
}

// ClearProgress removes progress tracking for a range.
func (c *Client) ClearProgress(ctx context.Context, start, end uint64) error {
	return c.rdb.Del(ctx, c.progressKey(start, end)).Err()
}

// FormatRange renders a range as "12000-12500".
func FormatRange(start, end uint64) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// ParseRangeString parses "12000-12500" format.
func ParseRangeString(s string) (start, end uint64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", s)
	}

	start, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}

	end, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}

	if start > end {
		return 0, 0, fmt.Errorf("start > end: %d > %d", start, end)
	}

	return start, end, nil
}
