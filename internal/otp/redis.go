package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "otp"
	maxUpdateRetries   = 5
	// entries outlive their expiry briefly so Verify can still observe and
	// clear them; Redis drops whatever the sweeper misses.
	expiryGrace = time.Minute
)

// RedisRepository stores each entry as JSON under "<prefix>:<key>".
// Updates use WATCH/MULTI so concurrent verifications of the same key
// cannot both consume an attempt budget slot without noticing each other.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
	clock  clockwork.Clock
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string, clock clockwork.Clock) *RedisRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisRepository{rdb: rdb, prefix: prefix, clock: clock}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisRepository) key(k string) string { return r.prefix + ":" + k }

func (r *RedisRepository) ttl(e Entry) time.Duration {
	d := e.ExpiresAt.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	return d + expiryGrace
}

func (r *RedisRepository) load(ctx context.Context, g getter, key string) (*Entry, error) {
	b, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode otp entry: %w", err)
	}
	return &e, nil
}

func (r *RedisRepository) Get(ctx context.Context, key string) (*Entry, error) {
	return r.load(ctx, r.rdb, r.key(key))
}

func (r *RedisRepository) Put(ctx context.Context, key string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(key), b, r.ttl(e)).Err()
}

func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

func (r *RedisRepository) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := r.key(key)
	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := r.load(ctx, tx, k)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			if cur == nil && next == nil {
				return nil
			}
			var payload []byte
			if next != nil {
				if payload, err = json.Marshal(next); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, k)
					return nil
				}
				pipe.Set(ctx, k, payload, r.ttl(*next))
				return nil
			})
			return err
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *RedisRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	prefix := r.prefix + ":"
	iter := r.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan otp keys: %w", err)
	}
	return keys, nil
}
