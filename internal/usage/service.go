package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/podiumhq/podium/internal/billing"
	"github.com/podiumhq/podium/internal/metrics"
)

// EntitlementGate is the external billing collaborator consulted when the
// free tier is exhausted. *billing.Client satisfies it.
type EntitlementGate interface {
	Configured() bool
	FeatureID() string
	Check(ctx context.Context, userID, featureID string) (*billing.CheckResult, error)
	Track(ctx context.Context, userID, featureID string, value int) error
}

// Service layers the reservation orchestration policy over the ledger
// primitives. Denials are returned as structured results; only store and
// infrastructure failures surface as errors.
type Service struct {
	store     Store
	gate      EntitlementGate
	freeLimit int
	now       func() time.Time
}

func NewService(store Store, gate EntitlementGate, freeLimit int) *Service {
	return &Service{
		store:     store,
		gate:      gate,
		freeLimit: freeLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FreeLimit returns the configured free-tier message limit.
func (s *Service) FreeLimit() int {
	return s.freeLimit
}

// Reserve attempts to claim one AI message for the user: free tier first,
// then the paid tier behind an entitlement check.
func (s *Service) Reserve(ctx context.Context, userID string) (ReserveResult, error) {
	snap, err := s.store.Reserve(ctx, userID, s.freeLimit, ModeFree, s.now())
	if err == nil {
		metrics.ReservationsTotal.WithLabelValues("free").Inc()
		return ReserveResult{Allowed: true, Mode: ModeFree, FreeLimit: s.freeLimit, Usage: snap}, nil
	}
	if !errors.Is(err, ErrFreeLimitExhausted) {
		return ReserveResult{}, err
	}

	// Free tier exhausted: consult the billing collaborator.
	if s.gate == nil || !s.gate.Configured() {
		metrics.ReservationsTotal.WithLabelValues(ReasonBillingNotConfigured).Inc()
		return ReserveResult{
			Allowed:      false,
			FreeLimit:    s.freeLimit,
			Usage:        snap,
			Reason:       ReasonBillingNotConfigured,
			ErrorCode:    ReasonBillingNotConfigured,
			ErrorMessage: "Billing is not configured. Set BILLING_API_KEY to enable usage beyond the free tier.",
		}, nil
	}

	check, err := s.gate.Check(ctx, userID, s.gate.FeatureID())
	if err != nil {
		slog.Warn("entitlement check failed", "user_id", userID, "error", err)
		metrics.ReservationsTotal.WithLabelValues(ReasonBillingCheckFailed).Inc()
		return ReserveResult{
			Allowed:      false,
			FreeLimit:    s.freeLimit,
			Usage:        snap,
			Reason:       ReasonBillingCheckFailed,
			ErrorCode:    ReasonBillingCheckFailed,
			ErrorMessage: "Billing check failed. Please try again later.",
		}, nil
	}

	if !check.Allowed {
		metrics.ReservationsTotal.WithLabelValues(ReasonUpgradeRequired).Inc()
		return ReserveResult{
			Allowed:         false,
			FreeLimit:       s.freeLimit,
			Usage:           snap,
			Reason:          ReasonUpgradeRequired,
			RequiresUpgrade: true,
			ErrorMessage:    "Free message limit reached. Upgrade your plan to continue.",
			Preview:         check.Data,
		}, nil
	}

	// Entitled: re-reserve in paid mode.
	snap, err = s.store.Reserve(ctx, userID, s.freeLimit, ModePaid, s.now())
	if err != nil {
		slog.Error("paid reservation failed after entitlement allow", "user_id", userID, "error", err)
		metrics.ReservationsTotal.WithLabelValues(ReasonReservationFailed).Inc()
		current, gerr := s.store.Get(ctx, userID, s.freeLimit)
		if gerr != nil {
			current = snap
		}
		return ReserveResult{
			Allowed:      false,
			FreeLimit:    s.freeLimit,
			Usage:        current,
			Reason:       ReasonReservationFailed,
			ErrorCode:    ReasonReservationFailed,
			ErrorMessage: "Could not reserve an AI message. Please try again.",
		}, nil
	}

	metrics.ReservationsTotal.WithLabelValues("paid").Inc()
	return ReserveResult{Allowed: true, Mode: ModePaid, FreeLimit: s.freeLimit, Usage: snap}, nil
}

// Complete settles a reservation. For paid reservations the usage is
// reported to the billing collaborator; a tracking failure is attached as a
// non-fatal TrackError and never rolls back the completion.
func (s *Service) Complete(ctx context.Context, userID string, mode Mode) (CompleteResult, error) {
	snap, err := s.store.Complete(ctx, userID, s.freeLimit, s.now())
	if err != nil {
		return CompleteResult{}, err
	}
	metrics.CompletionsTotal.WithLabelValues(string(mode)).Inc()

	result := CompleteResult{FreeLimit: s.freeLimit, Usage: snap}

	if mode == ModePaid && s.gate != nil && s.gate.Configured() {
		if err := s.gate.Track(ctx, userID, s.gate.FeatureID(), 1); err != nil {
			slog.Warn("usage tracking failed", "user_id", userID, "error", err)
			result.TrackError = &TrackError{Message: err.Error(), Code: "autumn_track_failed"}
		}
	}

	return result, nil
}

// Release returns a pending unit without counting a message. It is the
// caller's compensation path after a provider or persistence failure.
func (s *Service) Release(ctx context.Context, userID string) (ReleaseResult, error) {
	snap, err := s.store.Release(ctx, userID, s.freeLimit, s.now())
	if errors.Is(err, ErrNoPendingReservation) {
		return ReleaseResult{
			Released:  false,
			FreeLimit: s.freeLimit,
			Usage:     snap,
			Reason:    ReasonNoPendingReservation,
		}, nil
	}
	if err != nil {
		return ReleaseResult{}, err
	}

	metrics.ReleasesTotal.Inc()
	return ReleaseResult{Released: true, FreeLimit: s.freeLimit, Usage: snap}, nil
}

// Usage returns the user's current snapshot.
func (s *Service) Usage(ctx context.Context, userID string) (Snapshot, error) {
	return s.store.Get(ctx, userID, s.freeLimit)
}
