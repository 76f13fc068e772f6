package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podiumhq/podium/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.BillingConfig{
		BaseURL:   srv.URL,
		APIKey:    "am_test_key",
		FeatureID: "ai-messages",
		Timeout:   5 * time.Second,
	})
}

func TestClient_Configured(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.Configured())

	noKey := NewClient(config.BillingConfig{FeatureID: "ai-messages"})
	assert.False(t, noKey.Configured())

	withKey := NewClient(config.BillingConfig{APIKey: "am_test_key"})
	assert.True(t, withKey.Configured())
}

func TestClient_CheckAllowed(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check", r.URL.Path)
		assert.Equal(t, "Bearer am_test_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"allowed":true,"balance":42}`))
	})

	result, err := client.Check(context.Background(), "user-1", "ai-messages")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "user-1", gotBody["customer_id"])
	assert.Equal(t, "ai-messages", gotBody["feature_id"])
	// The decision payload is passed through verbatim for display.
	assert.JSONEq(t, `{"allowed":true,"balance":42}`, string(result.Data))
}

func TestClient_CheckDenied(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"allowed":false,"preview":{"plan":"pro"}}`))
	})

	result, err := client.Check(context.Background(), "user-1", "ai-messages")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Contains(t, string(result.Data), "preview")
}

func TestClient_CheckUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := client.Check(context.Background(), "user-1", "ai-messages")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_Track(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	})

	err := client.Track(context.Background(), "user-1", "ai-messages", 1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), gotBody["value"])
}

func TestClient_TrackUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	err := client.Track(context.Background(), "user-1", "ai-messages", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
