// Package store persists what happened on a call: suggestions, stage
// transitions, end-of-call summaries and seller feedback. Store writes to
// Postgres; SQLiteStore is the embedded alternative for single-node runs.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/session"
)

var _ session.Recorder = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		final_stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		summary JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suggestion_events (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		type TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		fallback BOOLEAN NOT NULL DEFAULT false,
		suggestion TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stage_transitions (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		legal BOOLEAN NOT NULL,
		automatic BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS suggestion_feedback (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		suggestion_id TEXT NOT NULL,
		stage TEXT,
		user_action TEXT NOT NULL,
		user_feedback TEXT,
		actual_words_used TEXT,
		customer_reaction TEXT,
		effectiveness_score INTEGER NOT NULL DEFAULT 3,
		improvement_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customer_reactions (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		reaction TEXT NOT NULL,
		reaction_text TEXT,
		context JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestion_events_session ON suggestion_events(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_transitions_session ON stage_transitions(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestion_feedback_session ON suggestion_feedback(session_id)`,
}

func (s *Store) SaveSuggestion(ctx context.Context, sug *conversation.Suggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suggestion_events (id, session_id, stage, type, confidence, fallback, suggestion, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		sug.ID, sug.SessionID, string(sug.Stage), sug.Type, sug.Confidence, sug.Fallback, sug.Text, sug.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion event: %w", err)
	}
	return nil
}

func (s *Store) SaveTransition(ctx context.Context, t session.Transition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stage_transitions (id, session_id, from_stage, to_stage, legal, automatic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), t.SessionID, string(t.From), string(t.To), t.Legal, t.Automatic, t.At,
	)
	if err != nil {
		return fmt.Errorf("insert stage transition: %w", err)
	}
	return nil
}

// SaveSummary upserts the session row; ending a session twice keeps the
// latest summary.
func (s *Store) SaveSummary(ctx context.Context, sum analytics.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, final_stage, outcome, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE
		SET ended_at = EXCLUDED.ended_at, final_stage = EXCLUDED.final_stage,
		    outcome = EXCLUDED.outcome, summary = EXCLUDED.summary`,
		sum.SessionID, sum.UserID, sum.StartTime, sum.EndTime, string(sum.FinalStage), sum.Outcome, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

// SaveFeedback validates f, assigns its id and timestamp, and inserts it.
func (s *Store) SaveFeedback(ctx context.Context, f *SuggestionFeedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	stamp(&f.ID, &f.CreatedAt)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suggestion_feedback (id, session_id, suggestion_id, stage, user_action, user_feedback,
			actual_words_used, customer_reaction, effectiveness_score, improvement_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.SessionID, f.SuggestionID, f.Stage, f.UserAction, f.UserFeedback,
		f.ActualWordsUsed, f.CustomerReaction, f.EffectivenessScore, f.ImprovementNotes, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion feedback: %w", err)
	}
	return nil
}

func (s *Store) SaveReaction(ctx context.Context, r *CustomerReaction) error {
	if err := r.Validate(); err != nil {
		return err
	}
	stamp(&r.ID, &r.CreatedAt)
	raw, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("marshal reaction context: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO customer_reactions (id, session_id, reaction, reaction_text, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.SessionID, r.Reaction, r.ReactionText, raw, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer reaction: %w", err)
	}
	return nil
}

func stamp(id *string, at *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if at.IsZero() {
		*at = time.Now().UTC()
	}
}
