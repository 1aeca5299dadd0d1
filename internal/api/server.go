package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MikeSquared-Agency/closer/internal/conversation"
	"github.com/MikeSquared-Agency/closer/internal/metrics"
	"github.com/MikeSquared-Agency/closer/internal/processor"
	"github.com/MikeSquared-Agency/closer/internal/session"
	"github.com/MikeSquared-Agency/closer/internal/store"
)

// FeedbackStore records seller feedback on suggestions and customer reactions.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, f *store.SuggestionFeedback) error
	SaveReaction(ctx context.Context, r *store.CustomerReaction) error
}

type Options struct {
	Port      int
	APIToken  string
	Sessions  *session.Registry
	Processor *processor.Processor
	Feedback  FeedbackStore
	Hub       *Hub
	Logger    *slog.Logger
}

type Server struct {
	router   *chi.Mux
	port     int
	sessions *session.Registry
	ingest   *processor.Processor
	feedback FeedbackStore
	hub      *Hub
	logger   *slog.Logger
	http     *http.Server
}

func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "closer-api")
	})

	s := &Server{
		router:   router,
		port:     opts.Port,
		sessions: opts.Sessions,
		ingest:   opts.Processor,
		feedback: opts.Feedback,
		hub:      opts.Hub,
		logger:   opts.Logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.endSession)
			r.Post("/messages", s.postMessage)
			r.Post("/interrupts", s.postInterrupt)
			r.Get("/suggestion", s.latestSuggestion)
			r.Post("/suggestion", s.generateSuggestion)
			r.Post("/stage", s.advanceStage)
			r.Get("/metrics", s.sessionMetrics)
		})
		r.Post("/feedback/suggestion", s.suggestionFeedback)
		r.Post("/feedback/customer-reaction", s.customerReaction)
	})

	router.Route("/ws/sessions/{id}", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))
		r.Get("/suggestions", s.streamSuggestions)
		r.Get("/transcripts", s.streamTranscripts)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry token. An empty token disables the check. Browsers cannot set
// headers on WebSocket upgrades, so a token query parameter is accepted too.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"agent":           "closer",
		"active_sessions": s.sessions.Len(),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sess := s.sessions.Start(r.Context(), req.UserID)
	st := sess.Status()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": st.SessionID,
		"stage":      st.Stage,
		"started_at": st.StartedAt,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Status())
	}
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type messageRequest struct {
	Speaker    string   `json:"speaker"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (req messageRequest) validate() error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("text is required")
	}
	return nil
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	confidence := session.DefaultConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	res, err := sess.Submit(r.Context(), conversation.ParseSpeaker(req.Speaker), strings.TrimSpace(req.Text), confidence)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) postInterrupt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := sess.HandleInterrupt(r.Context(), conversation.ParseSpeaker(req.Speaker), strings.TrimSpace(req.Text))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) latestSuggestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sug, err := sess.LatestSuggestion(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

func (s *Server) generateSuggestion(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sug, err := sess.GenerateSuggestion(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

type stageRequest struct {
	Target string `json:"target"`
}

func (req stageRequest) validate() error {
	if strings.TrimSpace(req.Target) == "" {
		return errors.New("target is required")
	}
	return nil
}

func (s *Server) advanceStage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := sess.AdvanceStage(r.Context(), req.Target)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) sessionMetrics(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Metrics())
	}
}

func (s *Server) suggestionFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback storage not configured")
		return
	}
	var fb store.SuggestionFeedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.feedback.SaveFeedback(r.Context(), &fb); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded", "id": fb.ID})
}

func (s *Server) customerReaction(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback storage not configured")
		return
	}
	var rc store.CustomerReaction
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.feedback.SaveReaction(r.Context(), &rc); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded", "id": rc.ID})
}

func (s *Server) streamSuggestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session(w, r); !ok {
		return
	}
	s.hub.serve(w, r, chi.URLParam(r, "id"))
}

// fail maps domain errors onto status codes. Anything unrecognized is a 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, store.ErrInvalidRecord), errors.Is(err, processor.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type validator interface {
	validate() error
}

func decode(w http.ResponseWriter, r *http.Request, v validator) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := v.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
