package stream

import (
	"context"
	"strings"
	"time"

	"github.com/podiumhq/podium/internal/metrics"
	"github.com/podiumhq/podium/internal/responses"
)

// Assembler buffers incremental model output for one response id and
// persists it in ordered chunks. A chunk is flushed when the pending buffer
// reaches Threshold characters or Interval has elapsed since the last flush,
// whichever comes first. Empty buffers are never flushed.
//
// An Assembler is not safe for concurrent use; one goroutine drives one
// stream. Separate assemblers for different response ids are independent.
type Assembler struct {
	store      responses.Store
	responseID string
	threshold  int
	interval   time.Duration
	now        func() time.Time

	full      strings.Builder
	pending   strings.Builder
	lastFlush time.Time
	started   bool
}

// Config carries the assembler tunables.
type Config struct {
	Threshold int
	Interval  time.Duration
}

// New creates an Assembler writing chunks for responseID through store.
func New(store responses.Store, responseID string, cfg Config) *Assembler {
	return &Assembler{
		store:      store,
		responseID: responseID,
		threshold:  cfg.Threshold,
		interval:   cfg.Interval,
		now:        time.Now,
	}
}

// Write appends one delta and flushes if either trigger condition is met.
func (a *Assembler) Write(ctx context.Context, delta string) error {
	if !a.started {
		a.lastFlush = a.now()
		a.started = true
	}
	if delta == "" {
		return nil
	}

	a.full.WriteString(delta)
	a.pending.WriteString(delta)

	if a.pending.Len() >= a.threshold || a.now().Sub(a.lastFlush) >= a.interval {
		return a.Flush(ctx)
	}
	return nil
}

// Flush persists the pending buffer as one chunk. Flushing an empty buffer
// is a no-op so subscribers never see redundant writes.
func (a *Assembler) Flush(ctx context.Context) error {
	if a.pending.Len() == 0 {
		a.lastFlush = a.now()
		return nil
	}

	if _, err := a.store.AppendChunk(ctx, a.responseID, a.pending.String()); err != nil {
		return err
	}
	metrics.StreamFlushesTotal.Inc()
	a.pending.Reset()
	a.lastFlush = a.now()
	return nil
}

// Close drains any remaining buffered content, even below threshold. The
// caller finalizes the record afterwards, once post-stream usage and finish
// reason are available from the provider.
func (a *Assembler) Close(ctx context.Context) error {
	return a.Flush(ctx)
}

// Text returns everything written so far.
func (a *Assembler) Text() string {
	return a.full.String()
}
