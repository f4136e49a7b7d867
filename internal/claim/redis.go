package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces claim keys in a shared Redis.
const DefaultKeyPrefix = "relister:claim:"

// Compare-and-delete so a holder whose claim expired cannot free a newer one.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker shares claims between processes through Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. An empty prefix uses DefaultKeyPrefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (r *RedisLocker) TryClaim(ctx context.Context, key string, ttl time.Duration) (*Claim, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyClaimed
	}
	return &Claim{Key: key, Token: token}, nil
}

func (r *RedisLocker) Release(ctx context.Context, c *Claim) error {
	result, err := releaseScript.Run(ctx, r.client, []string{r.prefix + c.Key}, c.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (r *RedisLocker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
