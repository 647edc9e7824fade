package otp

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRemovesExpiredOnTick(t *testing.T) {
	repo := NewMemoryRepository()
	clock := clockwork.NewFakeClock()
	store := NewStore(repo, WithClock(clock), WithLogger(quiet))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := store.Generate(ctx, email)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		NewSweeper(store, time.Hour, quiet).Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool {
		keys, _ := repo.Keys(context.Background())
		return len(keys) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
