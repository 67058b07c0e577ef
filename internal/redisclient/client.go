package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/unlock.lua
var unlockScript string

// Client wraps Redis for the concerns a multi-instance deployment shares:
// per-item mutation locks and mutation idempotency keys. Single-instance
// runs skip Redis entirely and use the in-process locker.
type Client struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewClient creates a Redis client and verifies connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		unlock: redis.NewScript(unlockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock takes the named lock for owner, with a TTL so a crashed
// instance cannot leave an item busy forever. Returns false when another
// mutation already holds it.
func (c *Client) AcquireLock(ctx context.Context, lockKey, owner string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), owner, ttl).Result()
}

// ReleaseLock releases the named lock only when owner still holds it, via
// an atomic compare-and-delete script.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, owner string) error {
	_, err := c.unlock.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, owner).Result()
	if err != nil {
		return fmt.Errorf("unlock script failed: %w", err)
	}
	return nil
}

// IsLocked reports whether the named lock is currently held
func (c *Client) IsLocked(ctx context.Context, lockKey string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("lock:%s", lockKey)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// ItemLocker adapts the Redis lock primitives to the mutation executor's
// locker contract, serializing per-item mutations across instances.
type ItemLocker struct {
	client *Client
	owner  string
	ttl    time.Duration
}

// NewItemLocker creates a locker with a unique owner id for this process.
func NewItemLocker(client *Client, ttl time.Duration) *ItemLocker {
	return &ItemLocker{
		client: client,
		owner:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *ItemLocker) Acquire(ctx context.Context, key string) (bool, error) {
	return l.client.AcquireLock(ctx, key, l.owner, l.ttl)
}

func (l *ItemLocker) Release(ctx context.Context, key string) error {
	return l.client.ReleaseLock(ctx, key, l.owner)
}

func (l *ItemLocker) Busy(ctx context.Context, key string) (bool, error) {
	return l.client.IsLocked(ctx, key)
}

// EventDedup tracks processed event ids in Redis, for deployments that run
// without the journal database. Entries expire after ttl, which must exceed
// the broker's redelivery window.
type EventDedup struct {
	client *Client
	ttl    time.Duration
}

// NewEventDedup creates a Redis-backed processed-event tracker.
func NewEventDedup(client *Client, ttl time.Duration) *EventDedup {
	return &EventDedup{client: client, ttl: ttl}
}

func (d *EventDedup) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return d.client.CheckIdempotencyKey(ctx, "event:"+eventID)
}

func (d *EventDedup) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return d.client.SetIdempotencyKey(ctx, "event:"+eventID, eventType, d.ttl)
}
