package responses

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, method, provider, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	now := time.Now().UTC()
	s.records[id] = &Record{
		ID:        id,
		Method:    method,
		Provider:  provider,
		Model:     model,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *MemoryStore) AppendChunk(_ context.Context, id, content string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return 0, ErrNotFound
	}
	if r.Status != StatusPending {
		return 0, ErrFinalized
	}

	r.Response += content
	r.ChunkCount++
	r.UpdatedAt = time.Now().UTC()
	return r.ChunkCount, nil
}

func (s *MemoryStore) MarkComplete(_ context.Context, id, response string, usage Usage, finishReason string, structured json.RawMessage, parseError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrFinalized
	}

	r.Status = StatusComplete
	r.Response = response
	u := usage
	r.Usage = &u
	if finishReason != "" {
		fr := finishReason
		r.FinishReason = &fr
	}
	r.StructuredData = structured
	if parseError != "" {
		pe := parseError
		r.ParseError = &pe
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkError(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrFinalized
	}

	r.Status = StatusError
	msg := message
	r.ErrorMessage = &msg
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}
