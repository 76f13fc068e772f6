package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ReserveCompleteCycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	snap, err := store.Reserve(ctx, "u1", 10, ModeFree, now)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.MessagesUsed)
	assert.Equal(t, 1, snap.PendingMessages)
	assert.Equal(t, 9, snap.FreeMessagesRemaining)
	require.NotNil(t, snap.LastReservedAt)

	snap, err = store.Complete(ctx, "u1", 10, now)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.MessagesUsed)
	assert.Equal(t, 0, snap.PendingMessages)
	assert.Equal(t, 9, snap.FreeMessagesRemaining)
	require.NotNil(t, snap.LastCompletedAt)
}

func TestMemoryStore_ReserveReleaseLeavesUsageUntouched(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Reserve(ctx, "u1", 10, ModeFree, now)
	require.NoError(t, err)

	snap, err := store.Release(ctx, "u1", 10, now)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.MessagesUsed)
	assert.Equal(t, 0, snap.PendingMessages)
	assert.Equal(t, 10, snap.FreeMessagesRemaining)
}

func TestMemoryStore_PendingCountsAgainstFreeLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	// Two pending reservations against a limit of 2: the third must fail
	// even though nothing has completed yet.
	_, err := store.Reserve(ctx, "u1", 2, ModeFree, now)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "u1", 2, ModeFree, now)
	require.NoError(t, err)

	snap, err := store.Reserve(ctx, "u1", 2, ModeFree, now)
	assert.ErrorIs(t, err, ErrFreeLimitExhausted)
	assert.Equal(t, 2, snap.PendingMessages)
	assert.Equal(t, 0, snap.FreeMessagesRemaining)
}

func TestMemoryStore_PaidModeBypassesFreeLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_, err := store.Reserve(ctx, "u1", 3, ModeFree, now)
		require.NoError(t, err)
		_, err = store.Complete(ctx, "u1", 3, now)
		require.NoError(t, err)
	}

	_, err := store.Reserve(ctx, "u1", 3, ModeFree, now)
	require.ErrorIs(t, err, ErrFreeLimitExhausted)

	snap, err := store.Reserve(ctx, "u1", 3, ModePaid, now)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PendingMessages)
	assert.Equal(t, 0, snap.FreeMessagesRemaining)
}

func TestMemoryStore_CompleteWithoutReservation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap, err := store.Complete(ctx, "u1", 10, time.Now().UTC())
	assert.ErrorIs(t, err, ErrNoPendingReservation)
	assert.Equal(t, 0, snap.MessagesUsed)
}

func TestMemoryStore_ReleaseWithoutReservation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap, err := store.Release(ctx, "u1", 10, time.Now().UTC())
	assert.ErrorIs(t, err, ErrNoPendingReservation)
	assert.Equal(t, 0, snap.PendingMessages)
}

func TestMemoryStore_ConcurrentReservesNeverOversell(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	const freeLimit = 10
	const attempts = freeLimit + 25

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reserve(ctx, "u1", freeLimit, ModeFree, now)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for err := range results {
		if err == nil {
			granted++
		} else {
			require.ErrorIs(t, err, ErrFreeLimitExhausted)
		}
	}
	assert.Equal(t, freeLimit, granted, "exactly freeLimit reservations must win")

	snap, err := store.Get(ctx, "u1", freeLimit)
	require.NoError(t, err)
	assert.Equal(t, freeLimit, snap.PendingMessages)
	assert.Equal(t, 0, snap.FreeMessagesRemaining)
}

func TestSnapshotOf_ClampsRemainingAtZero(t *testing.T) {
	snap := SnapshotOf(Account{UserID: "u1", MessagesUsed: 12, PendingMessages: 1}, 10)
	assert.Equal(t, 0, snap.FreeMessagesRemaining)
}

func TestMemoryStore_UsersAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Reserve(ctx, "u1", 1, ModeFree, now)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "u1", 1, ModeFree, now)
	require.ErrorIs(t, err, ErrFreeLimitExhausted)

	snap, err := store.Reserve(ctx, "u2", 1, ModeFree, now)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PendingMessages)
}
