package hermes

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/session"
)

const subjectPrefix = "closer."

// SubjectAgentRegistered is published once on startup.
const SubjectAgentRegistered = subjectPrefix + "agent.registered"

// Subjects for session events. Each is the event kind under the closer prefix.
var (
	SubjectSessionStarted      = SubjectFor(session.EventSessionStarted)
	SubjectSessionEnded        = SubjectFor(session.EventSessionEnded)
	SubjectSuggestionGenerated = SubjectFor(session.EventSuggestionGenerated)
	SubjectStageTransition     = SubjectFor(session.EventStageTransition)
	SubjectInterruptHandled    = SubjectFor(session.EventInterruptHandled)
)

func SubjectFor(kind session.EventKind) string {
	return subjectPrefix + string(kind)
}

var capabilities = []string{"stage_tracking", "suggestion_generation", "interrupt_handling", "call_summary"}

var eventSubjects = []string{
	SubjectSessionStarted,
	SubjectSessionEnded,
	SubjectSuggestionGenerated,
	SubjectStageTransition,
	SubjectInterruptHandled,
}

// AgentRegistration announces this process to the rest of the swarm.
type AgentRegistration struct {
	Agent        string    `json:"agent"`
	Version      string    `json:"version"`
	Capabilities []string  `json:"capabilities"`
	Consumes     []string  `json:"consumes"`
	Publishes    []string  `json:"publishes"`
	StartedAt    time.Time `json:"started_at"`
}

type publisher interface {
	Publish(subject string, data any) error
}

// Publisher forwards session events to NATS. It satisfies session.Notifier.
type Publisher struct {
	pub    publisher
	logger *slog.Logger
}

func NewPublisher(pub publisher, logger *slog.Logger) *Publisher {
	return &Publisher{pub: pub, logger: logger}
}

func (p *Publisher) Notify(_ context.Context, e session.Event) {
	subject := SubjectFor(e.Kind)
	if err := p.pub.Publish(subject, e); err != nil {
		p.logger.Warn("event publish failed",
			"subject", subject, "session_id", e.SessionID, "error", err)
	}
}

// Register publishes the agent registration for a process consuming
// transcriptSubject.
func (p *Publisher) Register(version, transcriptSubject string) error {
	reg := AgentRegistration{
		Agent:        "closer",
		Version:      version,
		Capabilities: capabilities,
		Consumes:     []string{transcriptSubject},
		Publishes:    eventSubjects,
		StartedAt:    time.Now().UTC(),
	}
	if err := p.pub.Publish(SubjectAgentRegistered, reg); err != nil {
		return err
	}
	p.logger.Info("agent registered", "subject", SubjectAgentRegistered)
	return nil
}
