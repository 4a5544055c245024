package valuation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// DamageCache stores damage fractions by cache key. A miss is reported with
// found == false and a nil error.
type DamageCache interface {
	LookupDamage(ctx context.Context, key string) (fraction float64, found bool, err error)
	StoreDamage(ctx context.Context, key string, fraction float64, ttl time.Duration) error
}

// RedisCache keeps damage fractions as decimal strings in Redis.
type RedisCache struct {
	client *redis.Client
}

var _ DamageCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) LookupDamage(ctx context.Context, key string) (float64, bool, error) {
	fraction, err := c.client.Get(ctx, key).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return fraction, true, nil
}

func (c *RedisCache) StoreDamage(ctx context.Context, key string, fraction float64, ttl time.Duration) error {
	return c.client.Set(ctx, key, strconv.FormatFloat(fraction, 'g', -1, 64), ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// DialRedis connects to addr and verifies the server answers.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
