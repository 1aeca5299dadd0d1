package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
)

// Registry tracks live sessions by id.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(d Deps) *Registry {
	return &Registry{deps: d, sessions: make(map[string]*Session)}
}

// Start opens a session in the opening stage.
func (r *Registry) Start(ctx context.Context, userID string) *Session {
	s := newSession(uuid.NewString(), userID, r.deps)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	metrics.SessionStarted()
	s.logger.Info("session started", "user_id", userID)
	s.notifier.Notify(ctx, Event{
		Kind:      EventSessionStarted,
		SessionID: s.id,
		At:        s.startedAt,
		Payload:   Started{SessionID: s.id, UserID: userID, StartedAt: s.startedAt},
	})
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End ends the session and forgets it.
func (r *Registry) End(ctx context.Context, id string) (analytics.Summary, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return analytics.Summary{}, ErrSessionNotFound
	}
	summary := s.End(ctx)
	metrics.SessionEnded()
	return summary, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close ends every live session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		_, _ = r.End(ctx, id)
	}
}
