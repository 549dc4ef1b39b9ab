package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/payment"
)

// Guard remembers event deliveries that were already handled.
type Guard interface {
	// Claim marks key as seen and reports whether this call was the first
	// to do so.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so that a failed delivery can be retried.
	Release(ctx context.Context, key string) error
}

// NopGuard claims every key. The compare-and-set update still keeps
// repeated deliveries idempotent, they are just not short-circuited.
type NopGuard struct{}

func (NopGuard) Claim(context.Context, string) (bool, error) { return true, nil }

func (NopGuard) Release(context.Context, string) error { return nil }

// RedisGuard keeps delivery keys in Redis with SET NX and a TTL.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard creates a guard storing keys under prefix for ttl.
func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// DeliveryKey derives a stable key for a callback body received on ch.
func DeliveryKey(ch payment.Channel, body []byte) string {
	sum := sha256.Sum256(body)
	return string(ch) + ":" + hex.EncodeToString(sum[:])
}
