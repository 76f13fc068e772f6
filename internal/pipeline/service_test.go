package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podiumhq/podium/internal/provider"
	"github.com/podiumhq/podium/internal/repair"
	"github.com/podiumhq/podium/internal/responses"
	"github.com/podiumhq/podium/internal/stream"
	"github.com/podiumhq/podium/internal/usage"
)

// fakeProvider scripts inference outcomes without a network.
type fakeProvider struct {
	deltas    []string
	streamErr error

	objectText   string
	finishReason string
	objectErr    error

	usage *responses.Usage
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) StreamChat(_ context.Context, _ string, onDelta func(string) error) (*provider.StreamResult, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	for _, d := range p.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	return &provider.StreamResult{FinishReason: "stop", Usage: p.usage}, nil
}

func (p *fakeProvider) GenerateObject(_ context.Context, _ string, _ int) (*provider.ObjectResult, error) {
	if p.objectErr != nil {
		return nil, p.objectErr
	}
	return &provider.ObjectResult{Text: p.objectText, FinishReason: p.finishReason, Usage: p.usage}, nil
}

type fixture struct {
	svc    *Service
	ledger *usage.Service
	store  *responses.MemoryStore
}

func newFixture(t *testing.T, prov provider.Client, freeLimit int) fixture {
	t.Helper()
	ledger := usage.NewService(usage.NewMemoryStore(), nil, freeLimit)
	store := responses.NewMemoryStore()
	svc := NewService(ledger, store, prov, stream.Config{Threshold: 100, Interval: 100 * time.Millisecond})
	return fixture{svc: svc, ledger: ledger, store: store}
}

func TestChat_SuccessCompletesReservation(t *testing.T) {
	prov := &fakeProvider{
		deltas: []string{"Hello", ", ", "world"},
		usage:  &responses.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	require.True(t, start.Reservation.Allowed)
	require.NotEmpty(t, start.ResponseID)

	complete, err := f.svc.Run(ctx, "u1", start, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, complete.Usage.MessagesUsed)
	assert.Equal(t, 0, complete.Usage.PendingMessages)

	record, err := f.store.Get(ctx, start.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, responses.StatusComplete, record.Status)
	assert.Equal(t, "Hello, world", record.Response)
	require.NotNil(t, record.FinishReason)
	assert.Equal(t, "stop", *record.FinishReason)
	require.NotNil(t, record.Usage)
	assert.Equal(t, 8, record.Usage.TotalTokens)
	assert.False(t, record.Usage.Estimated)
}

func TestChat_EstimatesUsageWhenProviderReportsNone(t *testing.T) {
	prov := &fakeProvider{deltas: []string{"abcdefgh"}}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, "u1", start, "abcd")

	require.NoError(t, err)
	record, err := f.store.Get(ctx, start.ResponseID)
	require.NoError(t, err)
	require.NotNil(t, record.Usage)
	assert.True(t, record.Usage.Estimated)
	assert.Equal(t, 1, record.Usage.PromptTokens)
	assert.Equal(t, 2, record.Usage.CompletionTokens)
	assert.Equal(t, 3, record.Usage.TotalTokens)
}

func TestChat_DeniedReservationRunsNothing(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, 0)

	start, err := f.svc.Start(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, start.Reservation.Allowed)
	assert.Equal(t, usage.ReasonBillingNotConfigured, start.Reservation.Reason)
	assert.Empty(t, start.ResponseID)
}

func TestChat_ProviderFailureReleasesReservation(t *testing.T) {
	prov := &fakeProvider{streamErr: errors.New("upstream exploded")}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.Run(ctx, "u1", start, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")

	// The reservation must be returned, not counted.
	snap, err := f.ledger.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.MessagesUsed)
	assert.Equal(t, 0, snap.PendingMessages)

	record, err := f.store.Get(ctx, start.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, responses.StatusError, record.Status)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "upstream exploded")
}

func TestAnalyze_CleanObject(t *testing.T) {
	prov := &fakeProvider{
		objectText:   `{"mainPurpose":"X","keyTechnologiesAndFrameworks":"Y","mainFeaturesAndFunctionality":"Z"}`,
		finishReason: "stop",
	}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	outcome, err := f.svc.Analyze(ctx, "u1", "repo contents")
	require.NoError(t, err)
	require.True(t, outcome.Reservation.Allowed)
	require.NotNil(t, outcome.Analysis)
	assert.Equal(t, "X", outcome.Analysis.MainPurpose)
	assert.Equal(t, "stop", outcome.FinishReason)
	assert.Empty(t, outcome.ParseError)

	record, err := f.store.Get(ctx, outcome.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, responses.StatusComplete, record.Status)
	assert.NotEmpty(t, record.StructuredData)
}

func TestAnalyze_TruncatedObjectIsRepaired(t *testing.T) {
	prov := &fakeProvider{
		objectText:   `{"mainPurpose":"X","keyTechnologiesAndFrameworks":"Y"`,
		finishReason: "length",
	}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	outcome, err := f.svc.Analyze(ctx, "u1", "repo contents")
	require.NoError(t, err)
	require.NotNil(t, outcome.Analysis)
	assert.Equal(t, "length", outcome.FinishReason)
	assert.Equal(t, "X", outcome.Analysis.MainPurpose)
	assert.Equal(t, repair.Placeholder, outcome.Analysis.MainFeaturesAndFunctionality)

	// The repaired completion still settles the ledger.
	snap, err := f.ledger.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.MessagesUsed)
	assert.Equal(t, 0, snap.PendingMessages)
}

func TestAnalyze_UnrepairableSurfacesParseError(t *testing.T) {
	prov := &fakeProvider{objectText: "sorry, I cannot do that"}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	outcome, err := f.svc.Analyze(ctx, "u1", "repo contents")
	require.NoError(t, err)
	assert.Nil(t, outcome.Analysis)
	assert.NotEmpty(t, outcome.ParseError)

	record, err := f.store.Get(ctx, outcome.ResponseID)
	require.NoError(t, err)
	assert.Equal(t, responses.StatusComplete, record.Status)
	require.NotNil(t, record.ParseError)

	// The provider call happened, so the message still counts.
	snap, err := f.ledger.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.MessagesUsed)
}

func TestAnalyze_ProviderFailureReleasesReservation(t *testing.T) {
	prov := &fakeProvider{objectErr: errors.New("model offline")}
	f := newFixture(t, prov, 10)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, "u1", "repo contents")
	require.Error(t, err)

	snap, err := f.ledger.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.MessagesUsed)
	assert.Equal(t, 0, snap.PendingMessages)
}
