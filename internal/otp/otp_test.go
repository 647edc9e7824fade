package otp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const email = "a@x.io"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func sequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func newTestStore(t *testing.T, repo Repository, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock), WithLogger(quiet)}, opts...)
	return NewStore(repo, opts...), clock
}

// storeContract runs the behavioural checks shared by every repository.
func storeContract(t *testing.T, newRepo func(t *testing.T, clock clockwork.Clock) Repository) {
	ctx := context.Background()

	t.Run("generate is idempotent while active", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet))

		first, err := s.Generate(ctx, email)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)
		second, err := s.Generate(ctx, email)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), first)
	})

	t.Run("verify is single use", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet))

		code, err := s.Generate(ctx, email)
		require.NoError(t, err)

		ok, err := s.Verify(ctx, email, code)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Verify(ctx, email, code)
		require.NoError(t, err)
		assert.False(t, ok)

		active, err := s.HasActive(ctx, email)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("three misses exhaust the code", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet),
			WithCodeGenerator(sequence("482913")))

		_, err := s.Generate(ctx, email)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			ok, err := s.Verify(ctx, email, "000000")
			require.NoError(t, err)
			assert.False(t, ok)
		}

		ok, err := s.Verify(ctx, email, "482913")
		require.NoError(t, err)
		assert.False(t, ok)

		active, err := s.HasActive(ctx, email)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("expired code is rejected and replaced", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet),
			WithCodeGenerator(sequence("111111", "222222")))

		code, err := s.Generate(ctx, email)
		require.NoError(t, err)
		clock.Advance(5*time.Minute + time.Second)

		active, err := s.HasActive(ctx, email)
		require.NoError(t, err)
		assert.False(t, active)

		ok, err := s.Verify(ctx, email, code)
		require.NoError(t, err)
		assert.False(t, ok)

		fresh, err := s.Generate(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, "222222", fresh)
	})

	t.Run("verify and apply consumes only after apply succeeds", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet), WithCodeGenerator(sequence("246810")))
		_, err := s.Generate(ctx, email)
		require.NoError(t, err)

		saveErr := errors.New("users table unavailable")
		ok, err := s.VerifyAndApply(ctx, email, "246810", func() error { return saveErr })
		require.ErrorIs(t, err, saveErr)
		assert.False(t, ok)

		active, err := s.HasActive(ctx, email)
		require.NoError(t, err)
		assert.True(t, active, "failed apply leaves the code usable")

		applied := 0
		ok, err = s.VerifyAndApply(ctx, email, "246810", func() error { applied++; return nil })
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, applied)

		ok, err = s.Verify(ctx, email, "246810")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verify and apply skips apply on mismatch", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet), WithCodeGenerator(sequence("246810")))
		_, err := s.Generate(ctx, email)
		require.NoError(t, err)

		ok, err := s.VerifyAndApply(ctx, email, "000000", func() error {
			t.Fatal("apply must not run for a wrong code")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sweep removes only expired entries", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		s := NewStore(newRepo(t, clock), WithClock(clock), WithLogger(quiet))

		_, err := s.Generate(ctx, "old@x.io")
		require.NoError(t, err)
		clock.Advance(4 * time.Minute)
		_, err = s.Generate(ctx, "new@x.io")
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)

		removed, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		active, err := s.HasActive(ctx, "new@x.io")
		require.NoError(t, err)
		assert.True(t, active)
	})
}

func TestStoreWithMemoryRepository(t *testing.T) {
	storeContract(t, func(*testing.T, clockwork.Clock) Repository { return NewMemoryRepository() })
}

func TestHasActiveDoesNotMutate(t *testing.T) {
	repo := NewMemoryRepository()
	s, clock := newTestStore(t, repo)
	ctx := context.Background()

	_, err := s.Generate(ctx, email)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	active, err := s.HasActive(ctx, email)
	require.NoError(t, err)
	assert.False(t, active)

	e, err := repo.Get(ctx, email)
	require.NoError(t, err)
	assert.NotNil(t, e, "expired entry is left for verify or sweep to remove")
}

func TestMismatchKeepsEntryWithAttemptCounted(t *testing.T) {
	repo := NewMemoryRepository()
	s, _ := newTestStore(t, repo, WithCodeGenerator(sequence("123456")))
	ctx := context.Background()

	_, err := s.Generate(ctx, email)
	require.NoError(t, err)
	ok, err := s.Verify(ctx, email, "654321")
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := repo.Get(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Attempts)

	ok, err = s.Verify(ctx, email, "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	s, _ := newTestStore(t, NewMemoryRepository(), WithCodeGenerator(sequence("777777")))
	ctx := context.Background()
	_, err := s.Generate(ctx, email)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Verify(ctx, email, "777777")
			if err == nil && ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestGenerateSurfacesGeneratorFailure(t *testing.T) {
	boom := errors.New("entropy exhausted")
	s, _ := newTestStore(t, NewMemoryRepository(), WithCodeGenerator(func() (string, error) { return "", boom }))

	_, err := s.Generate(context.Background(), email)
	require.ErrorIs(t, err, boom)
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := randomCode()
		require.NoError(t, err)
		n, err := strconv.Atoi(c)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}
