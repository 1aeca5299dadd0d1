package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/closer/internal/processor"
	"github.com/MikeSquared-Agency/closer/internal/session"
)

// transcriptReply is written back for every final transcript event.
type transcriptReply struct {
	Type   string                `json:"type"`
	Result *session.SubmitResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// streamTranscripts accepts transcript events for one session over a
// WebSocket. The session id comes from the path; any id in the payload is
// ignored. The stream closes when the session ends.
func (s *Server) streamTranscripts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.session(w, r); !ok {
		return
	}
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("transcript stream opened", "session_id", id)

	for {
		var evt processor.TranscriptEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("transcript stream read failed", "session_id", id, "error", err)
			}
			return
		}
		evt.SessionID = id

		res, ingestErr := s.ingest.Ingest(r.Context(), evt)
		reply := transcriptReply{Type: "ack", Result: res}
		if ingestErr != nil {
			reply = transcriptReply{Type: "error", Error: ingestErr.Error()}
		}
		if res == nil && ingestErr == nil {
			reply.Type = "skipped"
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		if errors.Is(ingestErr, session.ErrSessionEnded) || errors.Is(ingestErr, session.ErrSessionNotFound) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		}
	}
}
