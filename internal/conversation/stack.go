package conversation

import (
	"time"

	"github.com/MikeSquared-Agency/closer/internal/stage"
)

// EntryKind tags a context stack entry.
type EntryKind string

const (
	KindInterrupt       EntryKind = "interrupt"
	KindStageTransition EntryKind = "stage_transition"
)

// ContextEntry records one suspension of the main flow. Interrupt entries
// carry Stage, Speaker and Text; transition entries carry From and To.
type ContextEntry struct {
	Kind      EntryKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Stage     stage.Stage `json:"stage,omitempty"`
	Speaker   Speaker     `json:"speaker,omitempty"`
	Text      string      `json:"text,omitempty"`
	From      stage.Stage `json:"from_stage,omitempty"`
	To        stage.Stage `json:"to_stage,omitempty"`
}

// InterruptEntry builds the entry pushed when an interruption arrives.
func InterruptEntry(at time.Time, current stage.Stage, speaker Speaker, text string) ContextEntry {
	return ContextEntry{Kind: KindInterrupt, Timestamp: at, Stage: current, Speaker: speaker, Text: text}
}

// TransitionEntry builds the entry pushed on every stage change.
func TransitionEntry(at time.Time, from, to stage.Stage) ContextEntry {
	return ContextEntry{Kind: KindStageTransition, Timestamp: at, From: from, To: to}
}

// Stack is an append-only log of context entries. It is never popped; the
// tail is read as context by the stage analyzers. Not safe for concurrent
// use; the owning session serializes access.
type Stack struct {
	entries []ContextEntry
}

// Push appends e.
func (s *Stack) Push(e ContextEntry) {
	s.entries = append(s.entries, e)
}

// Last returns a copy of the trailing n entries, or all of them when the
// stack is shorter.
func (s *Stack) Last(n int) []ContextEntry {
	if n <= 0 || len(s.entries) == 0 {
		return []ContextEntry{}
	}
	start := len(s.entries) - n
	if start < 0 {
		start = 0
	}
	return append([]ContextEntry(nil), s.entries[start:]...)
}

// Len returns the number of entries pushed so far.
func (s *Stack) Len() int {
	return len(s.entries)
}
