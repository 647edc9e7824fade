package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry stores "<prefix>:<sha256(token)>" -> subject. Retention is
// normally the refresh token lifetime; a binding that outlives it could
// never be used because the token itself no longer validates.
type RedisRegistry struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisRegistry(rdb redis.UniversalClient, prefix string, retention time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "refresh"
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix, retention: retention}
}

func (r *RedisRegistry) key(token string) string { return r.prefix + ":" + HashToken(token) }

func (r *RedisRegistry) Register(ctx context.Context, token, subject string) error {
	if err := r.rdb.Set(ctx, r.key(token), subject, r.retention).Err(); err != nil {
		return fmt.Errorf("register refresh token: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, token string) (string, bool, error) {
	subject, err := r.rdb.Get(ctx, r.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return subject, true, nil
}
