package responses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateStartsPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "chat", "openai", "gpt-4o-mini")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "chat", r.Method)
	assert.Empty(t, r.Response)
	assert.Zero(t, r.ChunkCount)
}

func TestMemoryStore_AppendChunkAccumulates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, "chat", "openai", "gpt-4o-mini")
	require.NoError(t, err)

	seq, err := store.AppendChunk(ctx, id, "Hello")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	seq, err = store.AppendChunk(ctx, id, ", world")
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", r.Response)
	assert.Equal(t, 2, r.ChunkCount)
}

func TestMemoryStore_FinalizedRecordRejectsWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, "chat", "openai", "gpt-4o-mini")
	require.NoError(t, err)

	require.NoError(t, store.MarkComplete(ctx, id, "done", Usage{TotalTokens: 3}, "stop", nil, ""))

	_, err = store.AppendChunk(ctx, id, "late")
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, store.MarkComplete(ctx, id, "again", Usage{}, "", nil, ""), ErrFinalized)
	assert.ErrorIs(t, store.MarkError(ctx, id, "late failure"), ErrFinalized)
}

func TestMemoryStore_MarkError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.Create(ctx, "chat", "openai", "gpt-4o-mini")
	require.NoError(t, err)

	require.NoError(t, store.MarkError(ctx, id, "provider exploded"))

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, r.Status)
	require.NotNil(t, r.ErrorMessage)
	assert.Equal(t, "provider exploded", *r.ErrorMessage)
}

func TestMemoryStore_UnknownID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.AppendChunk(ctx, "nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.MarkError(ctx, "nope", "x"), ErrNotFound)
}
