package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/podiumhq/podium/internal/metrics"
	"github.com/podiumhq/podium/internal/provider"
	"github.com/podiumhq/podium/internal/repair"
	"github.com/podiumhq/podium/internal/responses"
	"github.com/podiumhq/podium/internal/stream"
	"github.com/podiumhq/podium/internal/usage"
)

// Service drives the metered AI request flow: reserve a message, run the
// provider call through the stream assembler or structured-output repair,
// then complete the reservation, or release it on any failure in between.
type Service struct {
	ledger    *usage.Service
	store     responses.Store
	prov      provider.Client
	streamCfg stream.Config
	maxTokens int
}

func NewService(ledger *usage.Service, store responses.Store, prov provider.Client, streamCfg stream.Config) *Service {
	return &Service{
		ledger:    ledger,
		store:     store,
		prov:      prov,
		streamCfg: streamCfg,
		maxTokens: 1024,
	}
}

// ChatStart is the synchronous half of a streaming chat request. When the
// reservation is denied, ResponseID is empty and nothing has run.
type ChatStart struct {
	Reservation usage.ReserveResult
	ResponseID  string
}

// Start reserves a message and creates the pending response record. The
// caller then invokes Run (typically in a goroutine) to drive the stream.
func (s *Service) Start(ctx context.Context, userID string) (*ChatStart, error) {
	res, err := s.ledger.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return &ChatStart{Reservation: res}, nil
	}

	id, err := s.store.Create(ctx, "chat", s.prov.Name(), s.prov.Model())
	if err != nil {
		s.releaseBestEffort(ctx, userID)
		return nil, err
	}

	return &ChatStart{Reservation: res, ResponseID: id}, nil
}

// Run executes the streaming provider call for a started chat request. It
// finalizes the response record and settles the reservation. Provider and
// persistence failures release the reservation and are returned.
func (s *Service) Run(ctx context.Context, userID string, start *ChatStart, prompt string) (*usage.CompleteResult, error) {
	asm := stream.New(s.store, start.ResponseID, s.streamCfg)

	streamResult, err := s.prov.StreamChat(ctx, prompt, func(delta string) error {
		return asm.Write(ctx, delta)
	})
	if err != nil {
		return nil, s.fail(ctx, userID, start.ResponseID, fmt.Errorf("streaming chat: %w", err))
	}

	if err := asm.Close(ctx); err != nil {
		return nil, s.fail(ctx, userID, start.ResponseID, fmt.Errorf("flushing stream: %w", err))
	}

	text := asm.Text()
	finalUsage := stream.FinalizeUsage(streamResult.Usage, prompt, text)

	if err := s.store.MarkComplete(ctx, start.ResponseID, text, finalUsage, streamResult.FinishReason, nil, ""); err != nil {
		return nil, s.fail(ctx, userID, start.ResponseID, fmt.Errorf("finalizing response: %w", err))
	}

	complete, err := s.ledger.Complete(ctx, userID, start.Reservation.Mode)
	if err != nil {
		// The response is durable; only the ledger settle failed. The
		// pending unit stays claimed for a later retry or reconciliation.
		return nil, fmt.Errorf("completing reservation: %w", err)
	}
	return &complete, nil
}

// AnalyzeOutcome is the result of a one-shot structured analysis request.
// ParseError is set when the payload could not be repaired; the response
// record is still finalized with the raw text.
type AnalyzeOutcome struct {
	Reservation  usage.ReserveResult
	ResponseID   string
	Analysis     *repair.Analysis
	FinishReason string
	ParseError   string
	TrackError   *usage.TrackError
}

// Analyze runs the metered structured-generation flow: reserve, generate,
// repair truncated output, persist, complete.
func (s *Service) Analyze(ctx context.Context, userID, content string) (*AnalyzeOutcome, error) {
	res, err := s.ledger.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return &AnalyzeOutcome{Reservation: res}, nil
	}

	id, err := s.store.Create(ctx, "analyze", s.prov.Name(), s.prov.Model())
	if err != nil {
		s.releaseBestEffort(ctx, userID)
		return nil, err
	}

	obj, err := s.prov.GenerateObject(ctx, analysisPrompt(content), s.maxTokens)
	if err != nil {
		return nil, s.fail(ctx, userID, id, fmt.Errorf("generating analysis: %w", err))
	}

	finalUsage := stream.FinalizeUsage(obj.Usage, content, obj.Text)
	outcome := &AnalyzeOutcome{Reservation: res, ResponseID: id}

	repaired, rerr := repair.Repair(obj.Text)
	if rerr != nil {
		// Unrepairable payload. The upstream call still consumed a
		// message, so the record is finalized with the raw text and the
		// reservation completes.
		metrics.RepairsTotal.WithLabelValues("failed").Inc()
		outcome.ParseError = rerr.Error()
		if err := s.store.MarkComplete(ctx, id, obj.Text, finalUsage, obj.FinishReason, nil, rerr.Error()); err != nil {
			return nil, s.fail(ctx, userID, id, fmt.Errorf("finalizing response: %w", err))
		}
	} else {
		if repaired.FinishReason == "length" {
			metrics.RepairsTotal.WithLabelValues("repaired").Inc()
			outcome.FinishReason = "length"
		} else {
			metrics.RepairsTotal.WithLabelValues("clean").Inc()
			outcome.FinishReason = obj.FinishReason
		}
		outcome.Analysis = &repaired.Analysis

		structured, _ := json.Marshal(repaired.Analysis)
		if err := s.store.MarkComplete(ctx, id, obj.Text, finalUsage, outcome.FinishReason, structured, ""); err != nil {
			return nil, s.fail(ctx, userID, id, fmt.Errorf("finalizing response: %w", err))
		}
	}

	complete, err := s.ledger.Complete(ctx, userID, res.Mode)
	if err != nil {
		return nil, fmt.Errorf("completing reservation: %w", err)
	}
	outcome.TrackError = complete.TrackError
	return outcome, nil
}

// fail finalizes the record as errored and releases the reservation, both
// best-effort, then returns the original error. The error path must never
// mask or crash over a secondary failure.
func (s *Service) fail(ctx context.Context, userID, responseID string, cause error) error {
	if err := s.store.MarkError(ctx, responseID, cause.Error()); err != nil {
		slog.Warn("marking response as errored", "response_id", responseID, "error", err)
	}
	s.releaseBestEffort(ctx, userID)
	return cause
}

func (s *Service) releaseBestEffort(ctx context.Context, userID string) {
	result, err := s.ledger.Release(ctx, userID)
	if err != nil {
		slog.Warn("releasing reservation", "user_id", userID, "error", err)
		return
	}
	if !result.Released {
		slog.Warn("no pending reservation to release", "user_id", userID, "reason", result.Reason)
	}
}

func analysisPrompt(content string) string {
	return "Analyze the following repository contents and respond with a JSON object " +
		"containing exactly these string fields: mainPurpose, keyTechnologiesAndFrameworks, " +
		"mainFeaturesAndFunctionality.\n\n" + content
}
