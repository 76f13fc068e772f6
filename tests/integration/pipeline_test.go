//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podiumhq/podium/internal/responses"
)

func TestChatFlowPersistsResponse(t *testing.T) {
	env := SetupTestEnv(t)
	userID := "user-" + uuid.NewString()
	token := MintToken(t, userID)

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/chat",
		map[string]string{"prompt": "Summarize the scores"}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	responseID := data["responseId"].(string)
	require.NotEmpty(t, responseID)
	assert.Equal(t, "free", data["mode"])

	// The stream runs detached; poll until the record finalizes.
	record := waitForFinal(t, env, responseID, 5*time.Second)
	assert.Equal(t, responses.StatusComplete, record.Status)
	assert.Equal(t, "Hello from the judge.", record.Response)
	require.NotNil(t, record.Usage)
	assert.Equal(t, 9, record.Usage.TotalTokens)
	assert.False(t, record.Usage.Estimated)

	// The ledger settled: one message used, nothing pending.
	resp = DoRequest(t, env, http.MethodGet, "/api/v1/ai/usage", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(1), snap["messages_used"])
	assert.Equal(t, float64(0), snap["pending_messages"])
}

func TestAnalyzeFlowReturnsStructuredResult(t *testing.T) {
	env := SetupTestEnv(t)
	token := MintToken(t, "user-"+uuid.NewString())

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/analyze",
		map[string]string{"content": "package main ..."}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)

	analysis := data["analysis"].(map[string]any)
	assert.Equal(t, "A hackathon judging platform", analysis["mainPurpose"])
	assert.Equal(t, "Go, Postgres", analysis["keyTechnologiesAndFrameworks"])

	responseID := data["responseId"].(string)
	record, err := env.ResponseStore.Get(context.Background(), responseID)
	require.NoError(t, err)
	assert.Equal(t, responses.StatusComplete, record.Status)
	assert.NotEmpty(t, record.StructuredData)
}

func TestGetResponseOverHTTP(t *testing.T) {
	env := SetupTestEnv(t)
	token := MintToken(t, "user-"+uuid.NewString())

	resp := DoRequest(t, env, http.MethodPost, "/api/v1/ai/analyze",
		map[string]string{"content": "repo"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	responseID := data["responseId"].(string)

	resp = DoRequest(t, env, http.MethodGet, "/api/v1/ai/responses/"+responseID, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "complete", record["status"])
	assert.Equal(t, "analyze", record["method"])

	resp = DoRequest(t, env, http.MethodGet, "/api/v1/ai/responses/"+uuid.NewString(), nil, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func waitForFinal(t *testing.T, env *TestEnv, responseID string, timeout time.Duration) *responses.Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		record, err := env.ResponseStore.Get(context.Background(), responseID)
		require.NoError(t, err)
		if record.Status != responses.StatusPending {
			return record
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("response %s did not finalize within %s", responseID, timeout)
	return nil
}
