package usage

import (
	"context"
	"errors"
	"time"
)

// ErrFreeLimitExhausted is returned by Reserve in free mode when the free
// tier is already consumed. The accompanying Snapshot is still valid.
var ErrFreeLimitExhausted = errors.New("free message limit exhausted")

// ErrNoPendingReservation is returned by Complete and Release when there is
// no pending unit to settle. It signals a protocol violation by the caller
// and is always surfaced, never swallowed.
var ErrNoPendingReservation = errors.New("no pending reservation")

// Store is the persistent per-user ledger. Every operation is a single
// atomic read-modify-write scoped to one account row: concurrent reserves
// for the same user must never both observe room for one more free message
// and both succeed.
//
// On ErrFreeLimitExhausted and ErrNoPendingReservation the returned Snapshot
// reflects the unmutated current state of the account.
type Store interface {
	// Reserve creates the account if absent and claims one pending unit.
	// In free mode the claim is denied with ErrFreeLimitExhausted once
	// messagesUsed+pendingMessages >= freeLimit; in paid mode it always
	// succeeds.
	Reserve(ctx context.Context, userID string, freeLimit int, mode Mode, now time.Time) (Snapshot, error)

	// Complete settles one pending unit into messagesUsed.
	Complete(ctx context.Context, userID string, freeLimit int, now time.Time) (Snapshot, error)

	// Release drops one pending unit without counting a message
	// (compensating action).
	Release(ctx context.Context, userID string, freeLimit int, now time.Time) (Snapshot, error)

	// Get returns the current snapshot, creating the account if absent.
	Get(ctx context.Context, userID string, freeLimit int) (Snapshot, error)
}
