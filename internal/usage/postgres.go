package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a usage_accounts table. Each operation is
// one conditional UPDATE: Postgres row-level locking serializes concurrent
// writers on the same user, and the WHERE clause is re-evaluated after the
// lock is acquired, so the free-tier boundary cannot be crossed twice.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accountColumns = `user_id, messages_used, pending_messages, last_reserved_at, last_completed_at`

func (s *PostgresStore) ensure(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensuring usage account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reserve(ctx context.Context, userID string, freeLimit int, mode Mode, now time.Time) (Snapshot, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return Snapshot{}, err
	}

	var a Account
	err := s.pool.QueryRow(ctx,
		`UPDATE usage_accounts
		 SET pending_messages = pending_messages + 1,
		     last_reserved_at = $3,
		     updated_at = NOW()
		 WHERE user_id = $1
		   AND ($4 OR messages_used + pending_messages < $2)
		 RETURNING `+accountColumns,
		userID, freeLimit, now, mode == ModePaid,
	).Scan(&a.UserID, &a.MessagesUsed, &a.PendingMessages, &a.LastReservedAt, &a.LastCompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Row exists (ensured above) but the free tier is exhausted.
		snap, gerr := s.Get(ctx, userID, freeLimit)
		if gerr != nil {
			return Snapshot{}, gerr
		}
		return snap, ErrFreeLimitExhausted
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reserving message: %w", err)
	}
	return SnapshotOf(a, freeLimit), nil
}

func (s *PostgresStore) Complete(ctx context.Context, userID string, freeLimit int, now time.Time) (Snapshot, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`UPDATE usage_accounts
		 SET pending_messages = pending_messages - 1,
		     messages_used = messages_used + 1,
		     last_completed_at = $2,
		     updated_at = NOW()
		 WHERE user_id = $1 AND pending_messages > 0
		 RETURNING `+accountColumns,
		userID, now,
	).Scan(&a.UserID, &a.MessagesUsed, &a.PendingMessages, &a.LastReservedAt, &a.LastCompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		snap, gerr := s.Get(ctx, userID, freeLimit)
		if gerr != nil {
			return Snapshot{}, gerr
		}
		return snap, ErrNoPendingReservation
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("completing message: %w", err)
	}
	return SnapshotOf(a, freeLimit), nil
}

func (s *PostgresStore) Release(ctx context.Context, userID string, freeLimit int, now time.Time) (Snapshot, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`UPDATE usage_accounts
		 SET pending_messages = pending_messages - 1,
		     updated_at = NOW()
		 WHERE user_id = $1 AND pending_messages > 0
		 RETURNING `+accountColumns,
		userID,
	).Scan(&a.UserID, &a.MessagesUsed, &a.PendingMessages, &a.LastReservedAt, &a.LastCompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		snap, gerr := s.Get(ctx, userID, freeLimit)
		if gerr != nil {
			return Snapshot{}, gerr
		}
		return snap, ErrNoPendingReservation
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("releasing message: %w", err)
	}
	return SnapshotOf(a, freeLimit), nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string, freeLimit int) (Snapshot, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return Snapshot{}, err
	}

	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM usage_accounts WHERE user_id = $1`, userID,
	).Scan(&a.UserID, &a.MessagesUsed, &a.PendingMessages, &a.LastReservedAt, &a.LastCompletedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching usage account: %w", err)
	}
	return SnapshotOf(a, freeLimit), nil
}
