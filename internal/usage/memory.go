package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development. A
// single mutex serializes all operations; accounts for different users do
// not contend in Postgres, but the volumes a memory store sees make that
// distinction irrelevant here.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

func (s *MemoryStore) account(userID string) *Account {
	a, ok := s.accounts[userID]
	if !ok {
		a = &Account{UserID: userID}
		s.accounts[userID] = a
	}
	return a
}

func (s *MemoryStore) Reserve(_ context.Context, userID string, freeLimit int, mode Mode, now time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(userID)
	if mode == ModeFree && a.MessagesUsed+a.PendingMessages >= freeLimit {
		return SnapshotOf(*a, freeLimit), ErrFreeLimitExhausted
	}

	a.PendingMessages++
	t := now
	a.LastReservedAt = &t
	return SnapshotOf(*a, freeLimit), nil
}

func (s *MemoryStore) Complete(_ context.Context, userID string, freeLimit int, now time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(userID)
	if a.PendingMessages <= 0 {
		return SnapshotOf(*a, freeLimit), ErrNoPendingReservation
	}

	a.PendingMessages--
	a.MessagesUsed++
	t := now
	a.LastCompletedAt = &t
	return SnapshotOf(*a, freeLimit), nil
}

func (s *MemoryStore) Release(_ context.Context, userID string, freeLimit int, _ time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(userID)
	if a.PendingMessages <= 0 {
		return SnapshotOf(*a, freeLimit), ErrNoPendingReservation
	}

	a.PendingMessages--
	return SnapshotOf(*a, freeLimit), nil
}

func (s *MemoryStore) Get(_ context.Context, userID string, freeLimit int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SnapshotOf(*s.account(userID), freeLimit), nil
}
