package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStoreWithRedisRepository(t *testing.T) {
	storeContract(t, func(t *testing.T, clock clockwork.Clock) Repository {
		_, rdb := newMiniRedis(t)
		return NewRedisRepository(rdb, "otp", clock)
	})
}

func TestRedisRepositoryLayout(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	clock := clockwork.NewFakeClock()
	repo := NewRedisRepository(rdb, "otp", clock)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "b@x.io", Entry{Code: "123456", ExpiresAt: clock.Now().Add(5 * time.Minute)}))
	require.NoError(t, repo.Put(ctx, "a@x.io", Entry{Code: "654321", ExpiresAt: clock.Now().Add(5 * time.Minute)}))
	require.NoError(t, rdb.Set(ctx, "other:key", "x", 0).Err())

	assert.True(t, mr.Exists("otp:a@x.io"))
	assert.Equal(t, 6*time.Minute, mr.TTL("otp:a@x.io"))

	keys, err := repo.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@x.io", "b@x.io"}, keys)

	require.NoError(t, repo.Delete(ctx, "a@x.io"))
	e, err := repo.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRedisRepositoryUpdateDeletesOnNil(t *testing.T) {
	_, rdb := newMiniRedis(t)
	clock := clockwork.NewFakeClock()
	repo := NewRedisRepository(rdb, "", clock)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "k", Entry{Code: "111111", ExpiresAt: clock.Now().Add(time.Minute)}))
	require.NoError(t, repo.Update(ctx, "k", func(cur *Entry) (*Entry, error) {
		require.NotNil(t, cur)
		assert.Equal(t, "111111", cur.Code)
		return nil, nil
	}))

	e, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRedisRepositoryReportsBackendFailure(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	s := NewStore(NewRedisRepository(rdb, "otp", nil), WithLogger(quiet))
	mr.Close()

	_, err := s.Verify(context.Background(), email, "123456")
	assert.Error(t, err)
}
