package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/session"
)

var _ session.Recorder = (*SQLiteStore)(nil)

// SQLiteStore keeps the same records as Store in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			final_stage TEXT NOT NULL,
			outcome TEXT NOT NULL,
			summary TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS suggestion_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			suggestion TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stage_transitions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			from_stage TEXT NOT NULL,
			to_stage TEXT NOT NULL,
			legal INTEGER NOT NULL,
			automatic INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS suggestion_feedback (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			suggestion_id TEXT NOT NULL,
			stage TEXT,
			user_action TEXT NOT NULL,
			user_feedback TEXT,
			actual_words_used TEXT,
			customer_reaction TEXT,
			effectiveness_score INTEGER NOT NULL DEFAULT 3,
			improvement_notes TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS customer_reactions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			reaction TEXT NOT NULL,
			reaction_text TEXT,
			context TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestion_events_session ON suggestion_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_transitions_session ON stage_transitions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestion_feedback_session ON suggestion_feedback(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveSuggestion(ctx context.Context, sug *conversation.Suggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO suggestion_events (id, session_id, stage, type, confidence, fallback, suggestion, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sug.ID, sug.SessionID, string(sug.Stage), sug.Type, sug.Confidence, sug.Fallback, sug.Text, sug.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveTransition(ctx context.Context, t session.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_transitions (id, session_id, from_stage, to_stage, legal, automatic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), t.SessionID, string(t.From), string(t.To), t.Legal, t.Automatic, t.At,
	)
	if err != nil {
		return fmt.Errorf("insert stage transition: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, sum analytics.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, started_at, ended_at, final_stage, outcome, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE
		SET ended_at = excluded.ended_at, final_stage = excluded.final_stage,
		    outcome = excluded.outcome, summary = excluded.summary`,
		sum.SessionID, sum.UserID, sum.StartTime, sum.EndTime, string(sum.FinalStage), sum.Outcome, string(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, f *SuggestionFeedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	stamp(&f.ID, &f.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_feedback (id, session_id, suggestion_id, stage, user_action, user_feedback,
			actual_words_used, customer_reaction, effectiveness_score, improvement_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SessionID, f.SuggestionID, f.Stage, f.UserAction, f.UserFeedback,
		f.ActualWordsUsed, f.CustomerReaction, f.EffectivenessScore, f.ImprovementNotes, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveReaction(ctx context.Context, r *CustomerReaction) error {
	if err := r.Validate(); err != nil {
		return err
	}
	stamp(&r.ID, &r.CreatedAt)
	raw, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("marshal reaction context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customer_reactions (id, session_id, reaction, reaction_text, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Reaction, r.ReactionText, string(raw), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer reaction: %w", err)
	}
	return nil
}
