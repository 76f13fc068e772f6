package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on an ai_responses table. Appends and
// finalization are conditional UPDATEs guarded on status='pending', so a
// record cannot be appended to or finalized twice.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, method, provider, model string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ai_responses (method, provider, model, status)
		 VALUES ($1, $2, $3, 'pending')
		 RETURNING id`,
		method, provider, model,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating ai response: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) AppendChunk(ctx context.Context, id, content string) (int, error) {
	var seq int
	err := s.pool.QueryRow(ctx,
		`UPDATE ai_responses
		 SET response = response || $2,
		     chunk_count = chunk_count + 1,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING chunk_count`,
		id, content,
	).Scan(&seq)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.missingOrFinalized(ctx, id)
	}
	if err != nil {
		return 0, fmt.Errorf("appending chunk: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) MarkComplete(ctx context.Context, id, response string, usage Usage, finishReason string, structured json.RawMessage, parseError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_responses
		 SET status = 'complete',
		     response = $2,
		     prompt_tokens = $3,
		     completion_tokens = $4,
		     total_tokens = $5,
		     usage_estimated = $6,
		     finish_reason = NULLIF($7, ''),
		     structured_data = $8,
		     parse_error = NULLIF($9, ''),
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id, response, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
		usage.Estimated, finishReason, structured, parseError)
	if err != nil {
		return fmt.Errorf("completing ai response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrFinalized(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MarkError(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_responses
		 SET status = 'error',
		     error_message = $2,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id, message)
	if err != nil {
		return fmt.Errorf("failing ai response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrFinalized(ctx, id)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		r         Record
		prompt    pgtype.Int4
		compl     pgtype.Int4
		total     pgtype.Int4
		estimated pgtype.Bool
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, method, provider, model, status, response, chunk_count,
		        structured_data, parse_error, prompt_tokens, completion_tokens,
		        total_tokens, usage_estimated, finish_reason, error_message,
		        created_at, updated_at
		 FROM ai_responses WHERE id = $1`, id,
	).Scan(&r.ID, &r.Method, &r.Provider, &r.Model, &r.Status, &r.Response,
		&r.ChunkCount, &r.StructuredData, &r.ParseError, &prompt, &compl,
		&total, &estimated, &r.FinishReason, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching ai response: %w", err)
	}

	if total.Valid {
		r.Usage = &Usage{
			PromptTokens:     int(prompt.Int32),
			CompletionTokens: int(compl.Int32),
			TotalTokens:      int(total.Int32),
			Estimated:        estimated.Bool,
		}
	}
	return &r, nil
}

func (s *PostgresStore) missingOrFinalized(ctx context.Context, id string) error {
	var status Status
	err := s.pool.QueryRow(ctx, `SELECT status FROM ai_responses WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking ai response status: %w", err)
	}
	return ErrFinalized
}
