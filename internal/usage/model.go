package usage

import (
	"encoding/json"
	"time"
)

// Mode is the tier a reservation was made under. It exists only in caller
// memory for the lifetime of the reservation; it is never persisted. A
// crashed caller therefore leaves an orphaned pending unit that only a
// release can clear.
type Mode string

const (
	ModeFree Mode = "free"
	ModePaid Mode = "paid"
)

// Denial reason codes returned by the reservation protocol. These are domain
// results, not errors: callers branch on them without exception-style control
// flow.
const (
	ReasonFreeLimitExhausted   = "free_limit_exhausted"
	ReasonBillingNotConfigured = "autumn_not_configured"
	ReasonBillingCheckFailed   = "autumn_check_failed"
	ReasonUpgradeRequired      = "upgrade_required"
	ReasonReservationFailed    = "reservation_failed"
	ReasonNoPendingReservation = "no_pending_reservation"
)

// Account is one row of the per-user usage ledger, created lazily on the
// first reservation.
type Account struct {
	UserID          string     `json:"user_id"`
	MessagesUsed    int        `json:"messages_used"`
	PendingMessages int        `json:"pending_messages"`
	LastReservedAt  *time.Time `json:"last_reserved_at,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Snapshot is the externally visible view of an account at a point in time.
type Snapshot struct {
	UserID                string     `json:"user_id"`
	MessagesUsed          int        `json:"messages_used"`
	PendingMessages       int        `json:"pending_messages"`
	FreeMessagesRemaining int        `json:"free_messages_remaining"`
	LastReservedAt        *time.Time `json:"last_reserved_at,omitempty"`
	LastCompletedAt       *time.Time `json:"last_completed_at,omitempty"`
}

// SnapshotOf derives the external view of an account for a given free limit.
func SnapshotOf(a Account, freeLimit int) Snapshot {
	remaining := freeLimit - (a.MessagesUsed + a.PendingMessages)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		UserID:                a.UserID,
		MessagesUsed:          a.MessagesUsed,
		PendingMessages:       a.PendingMessages,
		FreeMessagesRemaining: remaining,
		LastReservedAt:        a.LastReservedAt,
		LastCompletedAt:       a.LastCompletedAt,
	}
}

// ReserveResult is the outcome of the reservation orchestration.
type ReserveResult struct {
	Allowed         bool            `json:"allowed"`
	Mode            Mode            `json:"mode,omitempty"`
	FreeLimit       int             `json:"free_limit"`
	Usage           Snapshot        `json:"usage"`
	Reason          string          `json:"reason,omitempty"`
	RequiresUpgrade bool            `json:"requires_upgrade,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Preview         json.RawMessage `json:"preview,omitempty"`
}

// TrackError reports a non-fatal failure to record paid usage with the
// billing collaborator. The completion itself still stands.
type TrackError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CompleteResult is the outcome of completing a reservation.
type CompleteResult struct {
	FreeLimit  int         `json:"free_limit"`
	Usage      Snapshot    `json:"usage"`
	TrackError *TrackError `json:"track_error,omitempty"`
}

// ReleaseResult is the outcome of releasing a reservation.
type ReleaseResult struct {
	Released  bool     `json:"released"`
	FreeLimit int      `json:"free_limit"`
	Usage     Snapshot `json:"usage"`
	Reason    string   `json:"reason,omitempty"`
}
