//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podiumhq/podium/internal/usage"
)

func TestReservationProtocolOverHTTP(t *testing.T) {
	env := SetupTestEnv(t)
	token := MintToken(t, "user-"+uuid.NewString())

	// Reserve
	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/reserve", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, true, data["allowed"])
	assert.Equal(t, "free", data["mode"])

	// Complete
	resp = DoRequest(t, env, http.MethodPost, "/api/v1/ai/complete", map[string]string{"mode": "free"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = ParseResponse(t, resp)
	snap := result["data"].(map[string]any)["usage"].(map[string]any)
	assert.Equal(t, float64(1), snap["messages_used"])
	assert.Equal(t, float64(0), snap["pending_messages"])

	// Orphaned complete is a protocol violation
	resp = DoRequest(t, env, http.MethodPost, "/api/v1/ai/complete", map[string]string{"mode": "free"}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReleaseReturnsReservation(t *testing.T) {
	env := SetupTestEnv(t)
	token := MintToken(t, "user-"+uuid.NewString())

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/reserve", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, http.MethodPost, "/api/v1/ai/release", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, true, data["released"])

	resp = DoRequest(t, env, http.MethodGet, "/api/v1/ai/usage", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = ParseResponse(t, resp)
	snap := result["data"].(map[string]any)
	assert.Equal(t, float64(0), snap["messages_used"])
	assert.Equal(t, float64(0), snap["pending_messages"])
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/reserve", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPostgresStore_ConcurrentReservesNeverOversell(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	const freeLimit = 10
	const attempts = freeLimit + 20

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.UsageStore.Reserve(ctx, userID, freeLimit, usage.ModeFree, time.Now().UTC())
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
			require.ErrorIs(t, err, usage.ErrFreeLimitExhausted)
		}
	}
	assert.Equal(t, freeLimit, granted, "the conditional update must admit exactly freeLimit winners")

	snap, err := env.UsageStore.Get(ctx, userID, freeLimit)
	require.NoError(t, err)
	assert.Equal(t, freeLimit, snap.PendingMessages)
}

func TestPostgresStore_SentinelsCarrySnapshots(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	snap, err := env.UsageStore.Complete(ctx, userID, 10, time.Now().UTC())
	require.ErrorIs(t, err, usage.ErrNoPendingReservation)
	assert.Equal(t, userID, snap.UserID)
	assert.Equal(t, 10, snap.FreeMessagesRemaining)

	snap, err = env.UsageStore.Release(ctx, userID, 10, time.Now().UTC())
	require.ErrorIs(t, err, usage.ErrNoPendingReservation)
	assert.Equal(t, 0, snap.PendingMessages)
}
